// Package coordparams snapshots and restores the three coordinator
// parameters the autonetwork orchestrator temporarily overrides for the
// duration of a run: the FRC response-time byte, the DPA-param byte, and
// the hop params (spec.md §4.4.2 step 4, §4.4.8 cleanup). It exists as its
// own package so that pre-flight (Save) and cleanup (Restore) share the
// same three DPA exchanges (SPEC_FULL.md §7).
package coordparams

import (
	"context"
	"fmt"
	"time"

	"github.com/iqrf/iqmesh-gateway/internal/dpa"
	"github.com/iqrf/iqmesh-gateway/internal/dpa/packet"
	"go.uber.org/zap"
)

// Snapshot holds the coordinator parameters saved before a run so they can
// be restored afterwards.
type Snapshot struct {
	FRCResponseTime uint8
	DPAParam        uint8
	Hops            packet.HopParams
}

// OptimalForRun is the override applied for the duration of a run: zero
// FRC response time, zero DPA param, maximum hops on both directions
// (spec.md §4.4.2 step 4: "optimal time slots and maximum hops").
var OptimalForRun = struct {
	FRCResponseTime uint8
	DPAParam        uint8
	Hops            packet.HopParams
}{
	FRCResponseTime: 0,
	DPAParam:        0,
	Hops:            packet.HopParams{ReqHops: 0xFF, RspHops: 0xFF},
}

// Save writes OptimalForRun to the coordinator's FRC response-time byte,
// DPA-param byte, and hop params, and returns the previous values that
// each SET response reports.
func Save(ctx context.Context, c dpa.Client, timeout time.Duration) (Snapshot, error) {
	var snap Snapshot

	_, resp, err := c.Execute(ctx, dpa.Request{
		NADR:    packet.AddrCoordinator,
		Payload: append(packet.BuildHeader(packet.AddrCoordinator, packet.PNUMFRC, packet.CmdFRCSetParams, packet.HWPIDDoCare), packet.BuildSetFRCParams(OptimalForRun.FRCResponseTime)...),
	}, timeout)
	if err != nil {
		return snap, fmt.Errorf("coordparams: save FRC params: %w", err)
	}
	_, payload, err := packet.ParseResponseHeader(resp.Payload)
	if err != nil {
		return snap, fmt.Errorf("coordparams: parse FRC params response: %w", err)
	}
	snap.FRCResponseTime, err = packet.ParseSetFRCParams(payload)
	if err != nil {
		return snap, fmt.Errorf("coordparams: decode FRC params response: %w", err)
	}

	_, resp, err = c.Execute(ctx, dpa.Request{
		NADR:    packet.AddrCoordinator,
		Payload: append(packet.BuildHeader(packet.AddrCoordinator, packet.PNUMCoordinator, packet.CmdCoordSetDpaParams, packet.HWPIDDoCare), packet.BuildSetDpaParams(OptimalForRun.DPAParam)...),
	}, timeout)
	if err != nil {
		return snap, fmt.Errorf("coordparams: save DPA params: %w", err)
	}
	_, payload, err = packet.ParseResponseHeader(resp.Payload)
	if err != nil {
		return snap, fmt.Errorf("coordparams: parse DPA params response: %w", err)
	}
	snap.DPAParam, err = packet.ParseSetDpaParams(payload)
	if err != nil {
		return snap, fmt.Errorf("coordparams: decode DPA params response: %w", err)
	}

	_, resp, err = c.Execute(ctx, dpa.Request{
		NADR:    packet.AddrCoordinator,
		Payload: append(packet.BuildHeader(packet.AddrCoordinator, packet.PNUMCoordinator, packet.CmdCoordSetHops, packet.HWPIDDoCare), packet.BuildSetHops(OptimalForRun.Hops)...),
	}, timeout)
	if err != nil {
		return snap, fmt.Errorf("coordparams: save hops: %w", err)
	}
	_, payload, err = packet.ParseResponseHeader(resp.Payload)
	if err != nil {
		return snap, fmt.Errorf("coordparams: parse hops response: %w", err)
	}
	snap.Hops, err = packet.ParseSetHops(payload)
	if err != nil {
		return snap, fmt.Errorf("coordparams: decode hops response: %w", err)
	}

	return snap, nil
}

// Restore writes back a previously-saved Snapshot. Any failure here is
// fatal-but-not-retried per spec.md §7 ("any failure to restore the three
// saved parameters during cleanup (logged, not retried)") — callers should
// log and continue rather than abort cleanup.
func Restore(ctx context.Context, c dpa.Client, snap Snapshot, timeout time.Duration, log *zap.SugaredLogger) error {
	if _, _, err := c.Execute(ctx, dpa.Request{
		NADR:    packet.AddrCoordinator,
		Payload: append(packet.BuildHeader(packet.AddrCoordinator, packet.PNUMFRC, packet.CmdFRCSetParams, packet.HWPIDDoCare), packet.BuildSetFRCParams(snap.FRCResponseTime)...),
	}, timeout); err != nil {
		if log != nil {
			log.Errorw("coordparams: failed to restore FRC response time", "error", err)
		}
		return fmt.Errorf("coordparams: restore FRC params: %w", err)
	}

	if _, _, err := c.Execute(ctx, dpa.Request{
		NADR:    packet.AddrCoordinator,
		Payload: append(packet.BuildHeader(packet.AddrCoordinator, packet.PNUMCoordinator, packet.CmdCoordSetDpaParams, packet.HWPIDDoCare), packet.BuildSetDpaParams(snap.DPAParam)...),
	}, timeout); err != nil {
		if log != nil {
			log.Errorw("coordparams: failed to restore DPA param", "error", err)
		}
		return fmt.Errorf("coordparams: restore DPA params: %w", err)
	}

	if _, _, err := c.Execute(ctx, dpa.Request{
		NADR:    packet.AddrCoordinator,
		Payload: append(packet.BuildHeader(packet.AddrCoordinator, packet.PNUMCoordinator, packet.CmdCoordSetHops, packet.HWPIDDoCare), packet.BuildSetHops(snap.Hops)...),
	}, timeout); err != nil {
		if log != nil {
			log.Errorw("coordparams: failed to restore hops", "error", err)
		}
		return fmt.Errorf("coordparams: restore hops: %w", err)
	}

	return nil
}
