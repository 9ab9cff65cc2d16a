package splitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/iqrf/iqmesh-gateway/internal/autonetwork"
	"github.com/iqrf/iqmesh-gateway/internal/dpa"
	"github.com/iqrf/iqmesh-gateway/internal/lease"
	"github.com/iqrf/iqmesh-gateway/internal/publisher"
)

// autonetworkMIDListEntry mirrors one entry of the request's midList array
// (original_source's ComAutonetwork.h: deviceMID as a hex string,
// deviceAddr an optional address, 0/absent meaning "pick free").
type autonetworkMIDListEntry struct {
	DeviceMID  string `json:"deviceMID"`
	DeviceAddr *uint8 `json:"deviceAddr,omitempty"`
}

// autonetworkOverlappingNetworks mirrors the request's overlappingNetworks
// sub-object (original_source's ComAutonetwork.h).
type autonetworkOverlappingNetworks struct {
	Networks uint32 `json:"networks"`
	Network  uint32 `json:"network"`
}

// autonetworkStopConditions mirrors the request's stopConditions
// sub-object (original_source's ComAutonetwork.h).
type autonetworkStopConditions struct {
	Waves                    uint16 `json:"waves"`
	EmptyWaves               uint16 `json:"emptyWaves"`
	NumberOfTotalNodes       uint16 `json:"numberOfTotalNodes"`
	NumberOfNewNodes         uint16 `json:"numberOfNewNodes"`
	AbortOnTooManyNodesFound bool   `json:"abortOnTooManyNodesFound"`
}

// autonetworkRequestWire is the JSON shape of the `req` object carried in
// an AutonetworkMType request (spec.md §3, §6), field names grounded on
// original_source's ComAutonetwork::parseRequest.
type autonetworkRequestWire struct {
	DiscoveryTxPower        *uint8                          `json:"discoveryTxPower,omitempty"`
	DiscoveryBeforeStart    *bool                           `json:"discoveryBeforeStart,omitempty"`
	SkipDiscoveryEachWave   *bool                           `json:"skipDiscoveryEachWave,omitempty"`
	SkipPrebonding          *bool                           `json:"skipPrebonding,omitempty"`
	UnbondUnrespondingNodes *bool                           `json:"unbondUnrespondingNodes,omitempty"`
	ActionRetries           *uint8                          `json:"actionRetries,omitempty"`
	AddressSpace            []uint8                         `json:"addressSpace,omitempty"`
	MIDList                 []autonetworkMIDListEntry       `json:"midList,omitempty"`
	MIDFiltering            *bool                           `json:"midFiltering,omitempty"`
	OverlappingNetworks     *autonetworkOverlappingNetworks `json:"overlappingNetworks,omitempty"`
	HWPIDFiltering          []uint16                        `json:"hwpidFiltering,omitempty"`
	StopConditions          *autonetworkStopConditions      `json:"stopConditions,omitempty"`
}

// applyTo overlays req onto base, returning the merged InputParams a run
// should use. Fields the request omits keep the config default in base.
func (req autonetworkRequestWire) applyTo(base autonetwork.InputParams, timeout *int, returnVerbose bool) (autonetwork.InputParams, error) {
	p := base
	p.ReturnVerbose = returnVerbose
	if timeout != nil {
		p.Timeout = *timeout
	}

	if req.DiscoveryTxPower != nil {
		p.DiscoveryTxPower = *req.DiscoveryTxPower
	}
	if req.DiscoveryBeforeStart != nil {
		p.DiscoveryBeforeStart = *req.DiscoveryBeforeStart
	}
	if req.SkipDiscoveryEachWave != nil {
		p.SkipDiscoveryEachWave = *req.SkipDiscoveryEachWave
	}
	if req.SkipPrebonding != nil {
		p.SkipPrebonding = *req.SkipPrebonding
	}
	if req.UnbondUnrespondingNodes != nil {
		p.UnbondUnrespondingNodes = *req.UnbondUnrespondingNodes
	}
	if req.ActionRetries != nil {
		p.ActionRetries = *req.ActionRetries
	}

	if len(req.AddressSpace) > 0 {
		space := make(map[uint8]bool, len(req.AddressSpace))
		for _, a := range req.AddressSpace {
			space[a] = true
		}
		p.Bonding.AddressSpace = space
	}

	if len(req.MIDList) > 0 {
		list := make(map[uint32]uint8, len(req.MIDList))
		for _, entry := range req.MIDList {
			mid, err := strconv.ParseUint(entry.DeviceMID, 16, 32)
			if err != nil {
				return autonetwork.InputParams{}, fmt.Errorf("splitter: parse midList deviceMID %q: %w", entry.DeviceMID, err)
			}
			if mid == 0 {
				continue
			}
			var addr uint8
			if entry.DeviceAddr != nil {
				addr = *entry.DeviceAddr
			}
			list[uint32(mid)] = addr
		}
		p.Bonding.MIDList = list
		p.Bonding.MIDListActive = len(list) > 0
	}

	if req.MIDFiltering != nil {
		p.Bonding.MIDFiltering = *req.MIDFiltering
	}
	if req.OverlappingNetworks != nil {
		p.Bonding.OverlappingNetworks = autonetwork.OverlappingNetworks{
			Networks: req.OverlappingNetworks.Networks,
			Network:  req.OverlappingNetworks.Network,
		}
	}
	if len(req.HWPIDFiltering) > 0 {
		p.HWPIDFiltering = req.HWPIDFiltering
	}

	if sc := req.StopConditions; sc != nil {
		if sc.Waves != 0 {
			p.TotalWaves = sc.Waves
		}
		if sc.EmptyWaves != 0 {
			p.EmptyWaves = sc.EmptyWaves
		}
		p.NumberOfTotalNodes = sc.NumberOfTotalNodes
		p.NumberOfNewNodes = sc.NumberOfNewNodes
		p.AbortOnTooManyNodesFound = sc.AbortOnTooManyNodesFound
	}

	return p, nil
}

// RegisterAutonetworkHandler wires the AutonetworkMType request onto bus.
// Each request acquires l for the run's duration (one run at a time
// across the whole daemon, spec.md §4.3) and drives the run in its own
// goroutine: the handler's return value is only the immediate
// acknowledgement, since the real per-wave progress/result stream is
// published asynchronously through an AutonetworkPublisher bound to the
// request's msgId (spec.md §4.5, §6).
func RegisterAutonetworkHandler(bus *Bus, client dpa.Client, l *lease.Lease, defaults autonetwork.InputParams, log *zap.SugaredLogger) {
	bus.Handle(AutonetworkMType, func(ctx context.Context, msgID string, verbose bool, timeoutMs *int, raw json.RawMessage) (any, error) {
		var req autonetworkRequestWire
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, fmt.Errorf("splitter: parse autonetwork request: %w", err)
			}
		}

		if l.Held() {
			return nil, dpa.ErrBusy
		}

		params, err := req.applyTo(defaults, timeoutMs, verbose)
		if err != nil {
			return nil, err
		}

		pub := NewAutonetworkPublisher(bus, msgID)
		o := autonetwork.New(client, l, pub, params, log)

		runCtx := context.WithoutCancel(ctx)
		go func() {
			if err := o.Run(runCtx); err != nil {
				if errors.Is(err, dpa.ErrBusy) {
					_ = pub.Result(runCtx, publisher.ResultMessage{
						ProgressMessage: publisher.ProgressMessage{StateCode: StatusBusy, Progress: 0},
					})
					return
				}
				if log != nil {
					log.Errorw("autonetwork: run failed", "msgId", msgID, "error", err)
				}
			}
		}()

		return nil, nil
	})
}
