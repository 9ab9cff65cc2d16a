package autonetwork

import (
	"context"

	"github.com/iqrf/iqmesh-gateway/internal/dpa/coordparams"
	"github.com/iqrf/iqmesh-gateway/internal/dpa/packet"
)

// saveCoordParams saves the FRC response-time, DPA-param, and hop params,
// then overwrites them for the duration of the run (spec.md §4.4.2 step
// 4).
func (o *Orchestrator) saveCoordParams(ctx context.Context) (coordparams.Snapshot, error) {
	return coordparams.Save(ctx, o.client, o.timeout)
}

// runCleanup restores the saved coordinator params, broadcasts a
// VALIDATE_BONDS that zeros the temporary address, and (for DPA < 4.17
// with any bonded node) restarts all nodes via a selective FRC batch
// (spec.md §4.4.8). It runs on every exit path and never returns an error
// to its caller: individual failures are logged, not retried (spec.md
// §7 "Fatal conditions").
func (o *Orchestrator) runCleanup(ctx context.Context) {
	if o.savedValid {
		if err := coordparams.Restore(ctx, o.client, o.saved, o.timeout, o.log); err != nil {
			o.log.Errorw("autonetwork: failed to restore coordinator params", "error", err)
		}
	}

	if err := o.zeroTemporaryAddress(ctx); err != nil {
		o.log.Errorw("autonetwork: failed to zero temporary address bonds", "error", err)
	}

	if o.dpaVersion < 0x0417 && o.bondedCount > 0 {
		if err := o.restartAllBonded(ctx); err != nil {
			o.log.Errorw("autonetwork: failed to restart bonded nodes", "error", err)
		}
	}
}

// zeroTemporaryAddress broadcasts NODE/VALIDATE_BONDS with a zero MID for
// address 0xFE at every node, clearing any lingering pre-bond.
func (o *Orchestrator) zeroTemporaryAddress(ctx context.Context) error {
	records := []packet.AuthorizeRecord{{Address: packet.AddrTemporary, MID: 0}}
	payload, err := packet.BuildValidateBonds(records)
	if err != nil {
		return err
	}
	_, err = o.exchange(ctx, packet.AddrBroadcast, packet.PNUMNode, packet.CmdNodeValidateBonds, payload, o.retryAttempts())
	return err
}

// restartAllBonded issues FRC_ACKNOWLEDGED_BROADCAST_BITS with an OS
// RESTART body to every currently-bonded node, retrying up to
// action_retries+1 times (spec.md §4.4.8).
func (o *Orchestrator) restartAllBonded(ctx context.Context) error {
	addrs := make([]uint8, 0, o.bondedCount)
	for addr := uint8(1); addr <= packet.MaxAddress; addr++ {
		if rec := o.nodes[addr]; rec != nil && rec.Bonded {
			addrs = append(addrs, addr)
		}
	}
	if len(addrs) == 0 {
		return nil
	}

	restartBatchBody := []byte{packet.PNUMOS, packet.CmdOSRestart, packet.HWPIDDoCare & 0xFF, packet.HWPIDDoCare >> 8, 0x00}
	payload, err := packet.BuildFRCAckBroadcastBitsBatch(addrs, restartBatchBody)
	if err != nil {
		return err
	}
	_, err = o.exchange(ctx, packet.AddrBroadcast, packet.PNUMFRC, packet.CmdFRCSendSelective, payload, o.retryAttempts())
	return err
}
