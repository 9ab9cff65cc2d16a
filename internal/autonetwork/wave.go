package autonetwork

import (
	"context"
	"fmt"

	"github.com/iqrf/iqmesh-gateway/internal/dpa/packet"
)

// runWave runs one wave: pre-bond -> alive -> identify -> authorize ->
// prune -> discover -> publish (spec.md §4.4.3). It returns the
// WaveStateCode the wave ended on (WaveFinished if the run continues) and
// any error encountered; per spec.md §4.4.9, an error still yields a
// partial wave result: Run publishes it as the last one and then runs
// cleanup. Nodes authorized before the error stay authorized.
func (o *Orchestrator) runWave(ctx context.Context) (WaveStateCode, error) {
	steps := o.progressSteps()
	seed := o.nextSeed()

	// Step 1 - Pre-bond.
	if !o.params.SkipPrebonding {
		if err := o.smartConnect(ctx); err != nil {
			return o.attachErrorAndCleanup(ctx, err)
		}
	}
	o.publishProgress(ctx, SmartConnect, steps)

	// Step 2 - Alive check.
	responders, err := o.checkPrebondedAlive(ctx, seed)
	if err != nil {
		return o.attachErrorAndCleanup(ctx, err)
	}
	o.publishProgress(ctx, CheckPrebondedAlive, steps)

	if len(responders) == 0 {
		if err := o.cleanupDuplicateMID(ctx); err != nil {
			o.log.Warnw("autonetwork: duplicate-MID cleanup failed", "error", err)
		}
		return o.finishWave(ctx)
	}

	// Step 3 - Abort on too many nodes found.
	if o.params.AbortOnTooManyNodesFound && o.wouldExceedStopThresholds(len(responders)) {
		return AbortOnTooManyNodesFound, nil
	}

	candidates := make([]*Candidate, 0, len(responders))
	for _, srcAddr := range responders {
		candidates = append(candidates, &Candidate{SourceAddress: srcAddr})
	}

	// Step 4 - DPA-version probe.
	if o.dpaVersion >= 0x0414 && len(candidates) > 1 {
		if err := o.probeDPAVersion(ctx, seed, candidates); err != nil {
			o.log.Warnw("autonetwork: DPA version probe failed", "error", err)
		}
		o.publishProgress(ctx, ReadingDPAVersion, steps)
	}

	// Step 5 - Read MIDs.
	if err := o.readPrebondedMIDs(ctx, seed, candidates); err != nil {
		o.log.Warnw("autonetwork: read prebonded MIDs failed", "error", err)
	}
	o.publishProgress(ctx, ReadPrebondedMID, steps)

	// Step 6 - Read HWPIDs.
	if len(o.params.HWPIDFiltering) > 0 {
		candidates = filterErrored(candidates)
		if err := o.readPrebondedHWPIDs(ctx, seed, candidates); err != nil {
			o.log.Warnw("autonetwork: read prebonded HWPIDs failed", "error", err)
		}
		o.publishProgress(ctx, ReadPrebondedHWPID, steps)
	}

	o.publishProgress(ctx, Enumeration, steps)

	// Step 7 - Unbond pre-existing bonds that match a candidate.
	o.unbondMatchingExistingBonds(ctx, candidates)

	// Step 8 - Authorize.
	authorizedAny, err := o.authorizeCandidates(ctx, candidates)
	o.publishProgress(ctx, Authorize, steps)
	if err != nil {
		if authorizedAny {
			o.log.Warnw("autonetwork: authorize step had partial failures", "error", err)
		} else {
			return o.attachErrorAndCleanup(ctx, err)
		}
	}

	// Step 9 - Ping and prune.
	if o.params.UnbondUnrespondingNodes {
		if err := o.pingAndPrune(ctx); err != nil {
			o.log.Warnw("autonetwork: ping/prune step failed", "error", err)
		}
		o.publishProgress(ctx, Ping, steps)
	}

	// Step 10 - Discovery.
	if !o.params.SkipDiscoveryEachWave {
		if err := o.runDiscovery(ctx); err != nil {
			o.log.Warnw("autonetwork: discovery step failed", "error", err)
		}
		o.publishProgress(ctx, Discovery, steps)
	}

	return o.finishWave(ctx)
}

// finishWave implements step 11: re-read bonded/discovered bitmaps, push
// confirmed new nodes, evaluate stop conditions. empty_wave_streak tracks
// consecutive waves that authorized no new node, whatever the reason
// (spec.md §8 scenario S2: a wave where every responder is filtered out
// as a duplicate MID still counts as empty).
func (o *Orchestrator) finishWave(ctx context.Context) (WaveStateCode, error) {
	if err := o.UpdateNetworkInfo(ctx); err != nil {
		return o.attachErrorAndCleanup(ctx, err)
	}

	if o.wave.NewNodesThisWave == 0 {
		o.wave.EmptyWaveStreak++
	} else {
		o.wave.EmptyWaveStreak = 0
	}

	code := o.checkLastWave()
	return code, nil
}

// attachErrorAndCleanup implements spec.md §4.4.9: an unrecoverable error
// within a wave still yields a partial result. It logs err and returns it
// with WaveFinished; Run treats the non-nil error as the end of the run,
// publishes the partial result with lastWave set, and runs cleanup.
func (o *Orchestrator) attachErrorAndCleanup(ctx context.Context, err error) (WaveStateCode, error) {
	o.log.Errorw("autonetwork: wave aborted", "wave", o.wave.WaveIndex, "error", err)
	return WaveFinished, err
}

// wouldExceedStopThresholds reports whether responderCount new
// pre-bonded candidates would push the run's total/new counters past any
// configured stop threshold (spec.md §4.4.3 step 3).
func (o *Orchestrator) wouldExceedStopThresholds(responderCount int) bool {
	p := &o.params
	if p.NumberOfTotalNodes != 0 && o.bondedCount+responderCount > int(p.NumberOfTotalNodes) {
		return true
	}
	if p.NumberOfNewNodes != 0 && int(o.wave.NewNodesTotal)+responderCount > int(p.NumberOfNewNodes) {
		return true
	}
	return false
}

// smartConnect sends one SmartConnect request targeting the temporary
// address (spec.md §4.4.3 step 1).
func (o *Orchestrator) smartConnect(ctx context.Context) error {
	req := packet.SmartConnectRequest{Address: packet.AddrTemporary}

	if o.params.Bonding.OverlappingNetworks.Enabled() {
		on := o.params.Bonding.OverlappingNetworks
		req.MID = [4]byte{uint8(on.Network - 1), uint8(on.Networks), 0xFF, 0xFF}
	}

	payload := packet.BuildSmartConnect(req)
	_, err := o.exchange(ctx, packet.AddrCoordinator, packet.PNUMCoordinator, packet.CmdCoordSmartConnect, payload, o.retryAttempts())
	if err != nil {
		return fmt.Errorf("autonetwork: smart connect: %w", err)
	}
	return nil
}

// checkPrebondedAlive issues FRC_PREBONDED_ALIVE and decodes the
// responding temporary addresses (spec.md §4.4.3 step 2).
func (o *Orchestrator) checkPrebondedAlive(ctx context.Context, seed uint8) ([]uint8, error) {
	payload := packet.BuildFRCPrebondedAlive(seed)
	resp, err := o.exchange(ctx, packet.AddrCoordinator, packet.PNUMFRC, packet.CmdFRCSend, payload, o.retryAttempts())
	if err != nil {
		return nil, fmt.Errorf("autonetwork: FRC prebonded alive: %w", err)
	}
	status, window, err := packet.ParseFRCResponse(resp)
	if err != nil {
		return nil, err
	}
	if packet.FRCStatusFailed(status) {
		return nil, fmt.Errorf("autonetwork: FRC prebonded alive failed, status=0x%02X", status)
	}
	return packet.ParseFRCPrebondedAlive(window), nil
}

func filterErrored(candidates []*Candidate) []*Candidate {
	out := candidates[:0]
	for _, c := range candidates {
		if c.Error == AuthorizeErrNone {
			out = append(out, c)
		}
	}
	return out
}

// unbondMatchingExistingBonds implements spec.md §4.4.3 step 7: for every
// candidate tagged NodeBonded, if unbond_unresponding_nodes is false,
// remove the duplicate address at the coordinator and clear its record.
// The coordinator must be told to drop the bond (original_source's
// removeBondAtCoordinator, AutonetworkService.cpp:2554) — clearing the
// local record alone is undone by the next UpdateNetworkInfo, which
// re-reads the coordinator's still-bonded bitmap.
func (o *Orchestrator) unbondMatchingExistingBonds(ctx context.Context, candidates []*Candidate) {
	if o.params.UnbondUnrespondingNodes {
		return
	}
	for _, c := range candidates {
		if c.Error != AuthorizeErrNodeBonded {
			continue
		}
		addr := c.ProposedAddress
		payload := packet.BuildRemoveBond(addr)
		if _, err := o.exchange(ctx, packet.AddrCoordinator, packet.PNUMCoordinator, packet.CmdCoordRemoveBond, payload, o.retryAttempts()); err != nil {
			o.log.Warnw("autonetwork: remove-bond failed", "address", addr, "error", err)
			continue
		}
		if rec, ok := o.nodes[addr]; ok {
			rec.Bonded = false
			rec.Discovered = false
			rec.MID = 0
		}
		if o.wave.NewNodesThisWave > 0 {
			o.wave.NewNodesThisWave--
		}
	}
}
