package autonetwork

import "github.com/iqrf/iqmesh-gateway/internal/dpa/packet"

// checkLastWave evaluates stop conditions in priority order after a wave
// (spec.md §4.4.5) and returns the resulting WaveStateCode. WaveFinished
// means the run continues to another wave.
func (o *Orchestrator) checkLastWave() WaveStateCode {
	p := &o.params

	if p.TotalWaves != 0 && o.wave.WaveIndex == p.TotalWaves {
		return StopOnMaxNumWaves
	}
	if p.EmptyWaves != 0 && o.wave.EmptyWaveStreak >= p.EmptyWaves {
		return StopOnMaxEmptyWaves
	}
	if p.NumberOfNewNodes != 0 && o.wave.NewNodesTotal >= p.NumberOfNewNodes {
		return StopOnNumberOfNewNodes
	}
	if p.NumberOfTotalNodes != 0 && o.bondedCount >= int(p.NumberOfTotalNodes) {
		return StopOnNumberOfTotalNodes
	}
	if o.bondedCount == packet.MaxAddress {
		return AbortOnAllAddressesAllocated
	}
	if len(p.Bonding.AddressSpace) > 0 {
		allBonded := true
		for addr := range p.Bonding.AddressSpace {
			if rec := o.nodes[addr]; rec == nil || !rec.Bonded {
				allBonded = false
				break
			}
		}
		if allBonded {
			return AbortOnAllAddressesFromAddressSpaceAllocated
		}
	}
	if p.Bonding.MIDFiltering && len(p.Bonding.MIDList) > 0 {
		bondedMIDs := make(map[uint32]bool)
		for addr := uint8(1); addr <= packet.MaxAddress; addr++ {
			if rec := o.nodes[addr]; rec != nil && rec.Bonded {
				bondedMIDs[rec.MID] = true
			}
		}
		allMatched := true
		for mid := range p.Bonding.MIDList {
			if !bondedMIDs[mid] {
				allMatched = false
				break
			}
		}
		if allMatched {
			return AbortOnAllMIDsFromMidListAllocated
		}
	}

	return WaveFinished
}
