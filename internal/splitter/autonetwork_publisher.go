package splitter

import (
	"context"

	"github.com/iqrf/iqmesh-gateway/internal/publisher"
)

// AutonetworkMType is the mType used for autonetwork requests/responses
// (spec.md §6).
const AutonetworkMType = "iqmeshNetwork_AutoNetwork"

// AutonetworkPublisher adapts a Bus into a publisher.Publisher for one
// in-flight autonetwork request, identified by msgID.
type AutonetworkPublisher struct {
	bus   *Bus
	msgID string
}

// NewAutonetworkPublisher builds a publisher.Publisher bound to one
// request's msgID.
func NewAutonetworkPublisher(bus *Bus, msgID string) *AutonetworkPublisher {
	return &AutonetworkPublisher{bus: bus, msgID: msgID}
}

func (p *AutonetworkPublisher) Progress(ctx context.Context, msg publisher.ProgressMessage) error {
	return p.bus.publish(ctx, AutonetworkMType, ResponseData{
		MsgID:     p.msgID,
		Rsp:       msg,
		Status:    msg.StateCode,
		StatusStr: "progress",
	})
}

func (p *AutonetworkPublisher) Result(ctx context.Context, msg publisher.ResultMessage) error {
	statusStr := "ok"
	if msg.StateCode != 0 {
		statusStr = "error"
	}
	return p.bus.publish(ctx, AutonetworkMType, ResponseData{
		MsgID:     p.msgID,
		Rsp:       msg,
		Status:    msg.StateCode,
		StatusStr: statusStr,
	})
}
