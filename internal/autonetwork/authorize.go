package autonetwork

import "github.com/iqrf/iqmesh-gateway/internal/dpa/packet"

// authorizeControl decides whether a candidate should be authorized and at
// what address (spec.md §4.4.7). Ported branch-for-branch from
// original_source's AutonetworkService.cpp `authorizeControl` (see
// DESIGN.md).
func (o *Orchestrator) authorizeControl(mid uint32, hwpid uint16) (addr uint8, authErr AuthorizeErr) {
	bc := &o.params.Bonding

	// 1. Duplicate MID already bonded.
	for a := uint8(1); a <= packet.MaxAddress; a++ {
		if rec := o.nodes[a]; rec != nil && rec.Bonded && rec.MID == mid {
			return a, AuthorizeErrNodeBonded
		}
	}

	// 2. Overlapping networks.
	if bc.OverlappingNetworks.Enabled() && mid%bc.OverlappingNetworks.Networks != bc.OverlappingNetworks.Network-1 {
		return 0, AuthorizeErrNetworkNum
	}

	if bc.MIDListActive {
		entry, inList := bc.MIDList[mid]

		if bc.MIDFiltering && !inList {
			return 0, AuthorizeErrMIDFiltering
		}

		if len(o.params.HWPIDFiltering) > 0 && !hwpidAllowed(o.params.HWPIDFiltering, hwpid) {
			return 0, AuthorizeErrHWPIDFiltering
		}

		if inList && entry != 0 {
			if len(bc.AddressSpace) > 0 && !bc.AddressSpace[entry] {
				return 0, AuthorizeErrAddress
			}
			return entry, AuthorizeErrNone
		}

		return o.assignFreeAddress(bc, mid, inList)
	}

	// mid_list not present: identical branch with the lookup collapsed,
	// still updating the implicit list (spec.md §4.4.7 step 4).
	if len(o.params.HWPIDFiltering) > 0 && !hwpidAllowed(o.params.HWPIDFiltering, hwpid) {
		return 0, AuthorizeErrHWPIDFiltering
	}

	entry, inList := bc.MIDList[mid]
	if inList && entry != 0 {
		if len(bc.AddressSpace) > 0 && !bc.AddressSpace[entry] {
			return 0, AuthorizeErrAddress
		}
		return entry, AuthorizeErrNone
	}

	return o.assignFreeAddress(bc, mid, inList)
}

// assignFreeAddress picks the lowest address in 1..239 not bonded, not
// already assigned in the MID list, and not excluded by address_space; it
// records the assignment into the MID list (spec.md §4.4.7 step 3).
func (o *Orchestrator) assignFreeAddress(bc *BondingControl, mid uint32, inList bool) (uint8, AuthorizeErr) {
	usedInList := make(map[uint8]bool, len(bc.MIDList))
	for _, a := range bc.MIDList {
		usedInList[a] = true
	}

	for addr := uint8(1); addr <= packet.MaxAddress; addr++ {
		if rec := o.nodes[addr]; rec != nil && rec.Bonded {
			continue
		}
		if usedInList[addr] {
			continue
		}
		if len(bc.AddressSpace) > 0 && !bc.AddressSpace[addr] {
			continue
		}

		if bc.MIDList == nil {
			bc.MIDList = make(map[uint32]uint8)
		}
		bc.MIDList[mid] = addr
		return addr, AuthorizeErrNone
	}

	return 0, AuthorizeErrAddress
}

func hwpidAllowed(allow []uint16, hwpid uint16) bool {
	for _, h := range allow {
		if h == hwpid {
			return true
		}
	}
	return false
}
