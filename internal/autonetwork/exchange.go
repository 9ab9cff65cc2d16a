package autonetwork

import (
	"context"
	"fmt"
	"time"

	"github.com/iqrf/iqmesh-gateway/internal/dpa"
	"github.com/iqrf/iqmesh-gateway/internal/dpa/packet"
	"github.com/iqrf/iqmesh-gateway/internal/publisher"
)

// exchange sends one DPA request with retries and returns its parsed
// response payload (header stripped), recording the transaction for
// verbose responses.
func (o *Orchestrator) exchange(ctx context.Context, nadr uint16, pnum, pcmd uint8, payload []byte, retries int) ([]byte, error) {
	reqBuf := append(packet.BuildHeader(nadr, pnum, pcmd, packet.HWPIDDoCare), payload...)
	req := dpa.Request{NADR: nadr, Payload: reqBuf}

	start := time.Now()
	conf, resp, err := dpa.ExecuteWithRetry(ctx, o.client, req, o.timeout, retries, o.log)

	rec := publisher.TransactionRecord{Request: reqBuf, RequestTs: start}
	if conf != nil {
		rec.Confirmation = conf.Payload
		rec.ConfirmationTs = time.Now()
	}
	if resp != nil {
		rec.Response = resp.Payload
		rec.ResponseTs = time.Now()
	}
	o.record(rec)

	if err != nil {
		return nil, fmt.Errorf("autonetwork: exchange pnum=0x%02X pcmd=0x%02X: %w", pnum, pcmd, err)
	}

	_, body, err := packet.ParseResponseHeader(resp.Payload)
	if err != nil {
		return nil, fmt.Errorf("autonetwork: parse response pnum=0x%02X pcmd=0x%02X: %w", pnum, pcmd, err)
	}
	return body, nil
}

// retryAttempts returns the retry count for action steps (spec.md §4.4.3:
// "retry up to action_retries + 1 times" -- exchange itself is called with
// ActionRetries extra attempts on top of the first).
func (o *Orchestrator) retryAttempts() int {
	return int(o.params.ActionRetries)
}
