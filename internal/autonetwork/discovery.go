package autonetwork

import (
	"context"
	"fmt"

	"github.com/iqrf/iqmesh-gateway/internal/dpa/packet"
)

// runDiscovery re-runs network discovery at the configured TX power,
// retrying up to action_retries+1 times on a failed exchange (spec.md
// §4.4.3 step 10). A reported discovered-node count lower than the number
// of nodes already known as discovered is only logged: discovery is not
// repeated, and node records are refreshed by the next UpdateNetworkInfo
// either way.
func (o *Orchestrator) runDiscovery(ctx context.Context) error {
	prev := o.discoveredCount()

	payload := packet.BuildDiscovery(o.params.DiscoveryTxPower)
	resp, err := o.exchange(ctx, packet.AddrCoordinator, packet.PNUMCoordinator, packet.CmdCoordDiscovery, payload, o.retryAttempts())
	if err != nil {
		return fmt.Errorf("autonetwork: discovery: %w", err)
	}
	count, err := packet.ParseDiscovery(resp)
	if err != nil {
		return err
	}
	if int(count) < prev {
		o.log.Warnw("autonetwork: discovery returned fewer nodes than before, keeping previous state", "previous", prev, "reported", count)
		return nil
	}
	return nil
}

func (o *Orchestrator) discoveredCount() int {
	n := 0
	for addr := uint8(1); addr <= packet.MaxAddress; addr++ {
		if rec := o.nodes[addr]; rec != nil && rec.Discovered {
			n++
		}
	}
	return n
}
