package autonetwork

import (
	"context"
	"fmt"

	"github.com/iqrf/iqmesh-gateway/internal/dpa/packet"
)

// authorizeCandidates authorizes every candidate tagged Authorize, batching
// multi-auth-capable candidates up to 11 per AUTHORIZE_BOND request when the
// run is in MultiAuthBatched mode, and authorizing the rest one at a time
// (spec.md §4.4.3 step 8). It stops admitting further candidates once one
// more would push the bonded-node count past 239, or past a configured
// number_of_total_nodes / number_of_new_nodes stop threshold. It
// returns whether at least one candidate was authorized, so the caller can
// treat a late failure as partial rather than fatal.
func (o *Orchestrator) authorizeCandidates(ctx context.Context, candidates []*Candidate) (bool, error) {
	var batch, single []*Candidate
	p := &o.params
	selected := 0
	for _, c := range candidates {
		if c.Error != AuthorizeErrNone || !c.Authorize {
			continue
		}
		if o.bondedCount+selected >= packet.MaxAddress ||
			(p.NumberOfTotalNodes != 0 && o.bondedCount+selected >= int(p.NumberOfTotalNodes)) ||
			(p.NumberOfNewNodes != 0 && int(o.wave.NewNodesTotal)+selected >= int(p.NumberOfNewNodes)) {
			break
		}
		selected++
		if o.authMode == MultiAuthBatched && c.SupportsMultiAuth {
			batch = append(batch, c)
		} else {
			single = append(single, c)
		}
	}

	authorizedAny := false

	for start := 0; start < len(batch); start += packet.MaxAuthorizeRecordsPerRequest {
		end := start + packet.MaxAuthorizeRecordsPerRequest
		if end > len(batch) {
			end = len(batch)
		}
		group := batch[start:end]

		records := make([]packet.AuthorizeRecord, len(group))
		for i, c := range group {
			records[i] = packet.AuthorizeRecord{Address: c.ProposedAddress, MID: c.MID}
		}
		payload, err := packet.BuildAuthorizeBond(records)
		if err != nil {
			return authorizedAny, fmt.Errorf("autonetwork: build authorize-bond batch: %w", err)
		}
		if _, err := o.exchange(ctx, packet.AddrCoordinator, packet.PNUMCoordinator, packet.CmdCoordAuthorizeBond, payload, o.retryAttempts()); err != nil {
			return authorizedAny, fmt.Errorf("autonetwork: authorize-bond batch: %w", err)
		}
		for _, c := range group {
			o.admitCandidate(c)
			authorizedAny = true
		}
	}

	for _, c := range single {
		record := packet.AuthorizeRecord{Address: c.ProposedAddress, MID: c.MID}
		payload, err := packet.BuildAuthorizeBond([]packet.AuthorizeRecord{record})
		if err != nil {
			return authorizedAny, fmt.Errorf("autonetwork: build authorize-bond: %w", err)
		}
		if _, err := o.exchange(ctx, packet.AddrCoordinator, packet.PNUMCoordinator, packet.CmdCoordAuthorizeBond, payload, o.retryAttempts()); err != nil {
			o.log.Warnw("autonetwork: authorize-bond failed for candidate", "address", c.ProposedAddress, "error", err)
			continue
		}
		o.admitCandidate(c)
		authorizedAny = true
	}

	return authorizedAny, nil
}

// admitCandidate records a successfully authorized candidate into the
// node table and the current wave's counters.
func (o *Orchestrator) admitCandidate(c *Candidate) {
	o.nodes[c.ProposedAddress] = &NodeRecord{
		Address: c.ProposedAddress,
		MID:     c.MID,
		HWPID:   c.HWPID,
		HWPIDVer: c.HWPIDVer,
		Bonded:  true,
	}
	o.bondedCount++
	o.wave.NewNodesTotal++
	o.wave.NewNodesThisWave++
	o.wave.RespondedNew = append(o.wave.RespondedNew, c.ProposedAddress)
}
