package autonetwork

import (
	"context"
	"fmt"

	"github.com/iqrf/iqmesh-gateway/internal/dpa/packet"
)

// pingAndPrune FRC-pings this wave's newly-authorized candidates and
// removes at the coordinator any that did not respond, queuing them for
// the next duplicate-MID cleanup so a node that is merely unreachable
// right now (rather than actually gone) still gets its stale bond info
// reconciled (spec.md §4.4.3 step 9). Scoped to o.wave.RespondedNew, not
// every bonded node in the network: original_source clears and refills
// its FrcSelect set with only this wave's just-authorized addresses
// before pinging (AutonetworkService.cpp:2574, 2601-2602, 2677-2678) —
// a long-bonded node from a prior wave missing one radio ping here must
// not be unbonded, since it was never a candidate this wave.
func (o *Orchestrator) pingAndPrune(ctx context.Context) error {
	bonded := make([]uint8, 0, len(o.wave.RespondedNew))
	for _, addr := range o.wave.RespondedNew {
		if rec := o.nodes[addr]; rec != nil && rec.Bonded {
			bonded = append(bonded, addr)
		}
	}
	if len(bonded) == 0 {
		return nil
	}

	responded, err := o.frcSelectivePing(ctx, bonded)
	if err != nil {
		return err
	}

	respondedSet := make(map[uint8]bool, len(responded))
	for _, a := range responded {
		respondedSet[a] = true
	}

	var unresponsive []uint8
	for _, addr := range bonded {
		if !respondedSet[addr] {
			unresponsive = append(unresponsive, addr)
		}
	}
	if len(unresponsive) == 0 {
		return nil
	}

	for _, addr := range unresponsive {
		payload := packet.BuildRemoveBond(addr)
		if _, err := o.exchange(ctx, packet.AddrCoordinator, packet.PNUMCoordinator, packet.CmdCoordRemoveBond, payload, o.retryAttempts()); err != nil {
			o.log.Warnw("autonetwork: remove-bond failed", "address", addr, "error", err)
			continue
		}
		if rec := o.nodes[addr]; rec != nil {
			rec.Bonded = false
			rec.Discovered = false
		}
		o.bondedCount--
		o.unbondQueue[addr] = true
	}

	return nil
}

// frcSelectivePing runs one FRC_SEND_SELECTIVE ping against addrs and
// returns the subset that responded.
func (o *Orchestrator) frcSelectivePing(ctx context.Context, addrs []uint8) ([]uint8, error) {
	payload, err := packet.BuildFRCAckBroadcastBitsBatch(addrs, []byte{0x00, 0x00})
	if err != nil {
		return nil, fmt.Errorf("autonetwork: encode ping selection: %w", err)
	}
	payload[0] = packet.FRCCmdPing

	resp, err := o.exchange(ctx, packet.AddrCoordinator, packet.PNUMFRC, packet.CmdFRCSendSelective, payload, o.retryAttempts())
	if err != nil {
		return nil, fmt.Errorf("autonetwork: FRC selective ping: %w", err)
	}
	status, window, err := packet.ParseFRCResponse(resp)
	if err != nil {
		return nil, err
	}
	if packet.FRCStatusFailed(status) {
		return nil, fmt.Errorf("autonetwork: FRC selective ping failed, status=0x%02X", status)
	}

	var responded []uint8
	for _, addr := range addrs {
		if packet.HasBit(window, addr) {
			responded = append(responded, addr)
		}
	}
	return responded, nil
}
