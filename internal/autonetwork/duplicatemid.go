package autonetwork

import (
	"context"
	"fmt"

	"github.com/iqrf/iqmesh-gateway/internal/dpa/packet"
)

// cleanupDuplicateMID broadcasts NODE/VALIDATE_BONDS in batches of up to
// 11 records to addresses 1..239, writing the MID the coordinator holds
// for each still-bonded node, and a zero MID for addresses queued for
// unbond, reconciling any node whose [N]-side and [C]-side records have
// diverged (spec.md §4.4.4).
func (o *Orchestrator) cleanupDuplicateMID(ctx context.Context) error {
	records := make([]packet.AuthorizeRecord, 0, packet.MaxAddress)
	for addr := uint8(1); addr <= packet.MaxAddress; addr++ {
		if o.unbondQueue[addr] {
			records = append(records, packet.AuthorizeRecord{Address: addr, MID: 0})
			continue
		}
		if rec := o.nodes[addr]; rec != nil && rec.Bonded {
			records = append(records, packet.AuthorizeRecord{Address: addr, MID: rec.MID})
		}
	}
	o.unbondQueue = make(map[uint8]bool)

	for start := 0; start < len(records); start += packet.MaxValidateBondsRecordsPerRequest {
		end := start + packet.MaxValidateBondsRecordsPerRequest
		if end > len(records) {
			end = len(records)
		}
		payload, err := packet.BuildValidateBonds(records[start:end])
		if err != nil {
			return fmt.Errorf("autonetwork: build validate-bonds batch: %w", err)
		}
		if _, err := o.exchange(ctx, packet.AddrBroadcast, packet.PNUMNode, packet.CmdNodeValidateBonds, payload, o.retryAttempts()); err != nil {
			return fmt.Errorf("autonetwork: validate-bonds broadcast: %w", err)
		}
	}

	return nil
}
