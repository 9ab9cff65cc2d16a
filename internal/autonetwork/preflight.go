package autonetwork

import (
	"context"
	"fmt"

	"github.com/iqrf/iqmesh-gateway/internal/dpa/packet"
)

// preflight runs the pre-flight sequence once per request (spec.md
// §4.4.2): peripheral enumeration, network-info reconciliation, parameter
// consistency checks, and saving the coordinator's FRC/DPA/hop params.
// It returns WaveFinished if the run may proceed, or the matching
// CannotStart* code (with a descriptive error) otherwise.
func (o *Orchestrator) preflight(ctx context.Context) (WaveStateCode, error) {
	payload, err := o.exchange(ctx, packet.AddrBroadcast, packet.PNUMExplore, packet.CmdExploreEnumerate, nil, o.retryAttempts())
	if err != nil {
		return CannotStartNoCoordOrCoordOs, fmt.Errorf("autonetwork: peripheral enumeration: %w", err)
	}
	enum, err := packet.ParsePeripheralEnumeration(payload)
	if err != nil {
		return CannotStartNoCoordOrCoordOs, fmt.Errorf("autonetwork: parse peripheral enumeration: %w", err)
	}
	if !packet.EmbeddedPeripheralSet(enum.Bitmap, packet.PeripheralBitCoordinator) ||
		!packet.EmbeddedPeripheralSet(enum.Bitmap, packet.PeripheralBitOS) {
		return CannotStartNoCoordOrCoordOs, fmt.Errorf("autonetwork: coordinator is missing COORDINATOR or OS peripheral")
	}
	o.dpaVersion = enum.DPAVersion
	if o.dpaVersion >= 0x0414 {
		o.authMode = MultiAuthBatched
	} else {
		o.authMode = SingleAuthOnly
	}

	if err := o.UpdateNetworkInfo(ctx); err != nil {
		return CannotStartNoCoordOrCoordOs, fmt.Errorf("autonetwork: update network info: %w", err)
	}

	if code, err := o.checkDuplicateMidInCoord(); err != nil {
		return code, err
	}

	if code, err := o.checkStartConditions(); err != nil {
		return code, err
	}

	saved, err := o.saveCoordParams(ctx)
	if err != nil {
		return CannotStartNoCoordOrCoordOs, fmt.Errorf("autonetwork: save coordinator params: %w", err)
	}
	o.saved = saved
	o.savedValid = true

	return WaveFinished, nil
}

// checkDuplicateMidInCoord implements spec.md §4.4.6: "Coordinator
// contains two bonded addresses with identical non-zero MID ->
// CannotStartDuplicitMidInCoord".
func (o *Orchestrator) checkDuplicateMidInCoord() (WaveStateCode, error) {
	seen := make(map[uint32]uint8)
	for addr := uint8(1); addr <= packet.MaxAddress; addr++ {
		rec := o.nodes[addr]
		if rec == nil || !rec.Bonded || rec.MID == 0 {
			continue
		}
		if prev, ok := seen[rec.MID]; ok {
			return CannotStartDuplicitMidInCoord, fmt.Errorf("autonetwork: duplicate MID 0x%08X at addresses %d and %d", rec.MID, prev, addr)
		}
		seen[rec.MID] = addr
	}
	return WaveFinished, nil
}

// checkStartConditions implements the remaining pre-flight refusals of
// spec.md §4.4.6.
func (o *Orchestrator) checkStartConditions() (WaveStateCode, error) {
	if o.bondedCount >= packet.MaxAddress {
		return CannotStartMaxAddress, fmt.Errorf("autonetwork: all %d addresses already bonded", packet.MaxAddress)
	}

	bc := o.params.Bonding
	if len(bc.AddressSpace) > 0 {
		allBonded := true
		for addr := range bc.AddressSpace {
			if rec := o.nodes[addr]; rec == nil || !rec.Bonded {
				allBonded = false
				break
			}
		}
		if allBonded {
			return CannotStartAddressSpaceNoFreeAddress, fmt.Errorf("autonetwork: every address-space entry is already bonded")
		}
	}

	if bc.MIDFiltering {
		if len(bc.MIDList) == 0 {
			return WaveFinished, nil
		}
		allBonded := true
		bondedMIDs := make(map[uint32]bool)
		for addr := uint8(1); addr <= packet.MaxAddress; addr++ {
			if rec := o.nodes[addr]; rec != nil && rec.Bonded {
				bondedMIDs[rec.MID] = true
			}
		}
		for mid := range bc.MIDList {
			if !bondedMIDs[mid] {
				allBonded = false
				break
			}
		}
		if allBonded {
			return CannotStartAllNodesMidListBonded, fmt.Errorf("autonetwork: every MID in the MID list is already bonded")
		}

		if o.params.NumberOfTotalNodes != 0 {
			maxAchievable := len(bondedMIDs) + (len(bc.MIDList) - countBondedMIDs(bc.MIDList, bondedMIDs))
			if int(o.params.NumberOfTotalNodes) > maxAchievable {
				return CannotStartTotalNodesNrMidList, fmt.Errorf("autonetwork: number_of_total_nodes exceeds what the MID list can satisfy")
			}
		}
		if o.params.NumberOfNewNodes != 0 {
			notYetBonded := len(bc.MIDList) - countBondedMIDs(bc.MIDList, bondedMIDs)
			if int(o.params.NumberOfNewNodes) > notYetBonded {
				return CannotStartNewNodesNrMidList, fmt.Errorf("autonetwork: number_of_new_nodes exceeds what the MID list can satisfy")
			}
		}
		return WaveFinished, nil
	}

	if o.params.TotalWaves == 0 && o.params.EmptyWaves == 0 {
		if o.params.NumberOfTotalNodes != 0 && int(o.params.NumberOfTotalNodes) <= o.bondedCount {
			return CannotStartTotalNodesNr, fmt.Errorf("autonetwork: number_of_total_nodes <= already-bonded count")
		}
		if o.params.NumberOfNewNodes != 0 && o.bondedCount+int(o.params.NumberOfNewNodes) > packet.MaxAddress {
			return CannotStartNewNodesNr, fmt.Errorf("autonetwork: bonded_count + number_of_new_nodes exceeds %d", packet.MaxAddress)
		}
		if len(bc.AddressSpace) > 0 {
			free := 0
			for addr := range bc.AddressSpace {
				if rec := o.nodes[addr]; rec == nil || !rec.Bonded {
					free++
				}
			}
			if o.params.NumberOfTotalNodes != 0 && int(o.params.NumberOfTotalNodes) > o.bondedCount+free {
				return CannotStartTotalNodesNr, fmt.Errorf("autonetwork: address space cannot satisfy number_of_total_nodes")
			}
			if o.params.NumberOfNewNodes != 0 && int(o.params.NumberOfNewNodes) > free {
				return CannotStartNewNodesNr, fmt.Errorf("autonetwork: address space cannot satisfy number_of_new_nodes")
			}
		}
	}

	return WaveFinished, nil
}

func countBondedMIDs(midList map[uint32]uint8, bondedMIDs map[uint32]bool) int {
	n := 0
	for mid := range midList {
		if bondedMIDs[mid] {
			n++
		}
	}
	return n
}
