package autonetwork

import (
	"context"
	"fmt"

	"github.com/iqrf/iqmesh-gateway/internal/dpa/packet"
)

// UpdateNetworkInfo reads the bonded bitmap and the discovered bitmap and
// reconciles them into node records (spec.md §4.4.2 step 2, §4.4.3 step
// 11). The coordinator's addressing info (ADDR_INFO) is not read. It is
// called once during pre-flight and once at the end of every wave
// (SPEC_FULL.md §7).
func (o *Orchestrator) UpdateNetworkInfo(ctx context.Context) error {
	bondedPayload, err := o.exchange(ctx, packet.AddrCoordinator, packet.PNUMCoordinator, packet.CmdCoordBonded, nil, o.retryAttempts())
	if err != nil {
		return fmt.Errorf("autonetwork: read bonded bitmap: %w", err)
	}
	bondedBitmap, err := packet.ParseBondedBitmap(bondedPayload)
	if err != nil {
		return fmt.Errorf("autonetwork: parse bonded bitmap: %w", err)
	}
	bondedAddrs := packet.DecodeBitmap32(bitmap30To32(bondedBitmap))

	discPayload, err := o.exchange(ctx, packet.AddrCoordinator, packet.PNUMCoordinator, packet.CmdCoordDiscovered, nil, o.retryAttempts())
	if err != nil {
		return fmt.Errorf("autonetwork: read discovered bitmap: %w", err)
	}
	discBitmap, err := packet.ParseDiscoveredBitmap(discPayload)
	if err != nil {
		return fmt.Errorf("autonetwork: parse discovered bitmap: %w", err)
	}
	discoveredAddrs := packet.DecodeBitmap32(bitmap30To32(discBitmap))

	bondedSet := make(map[uint8]bool, len(bondedAddrs))
	for _, a := range bondedAddrs {
		bondedSet[a] = true
	}
	discoveredSet := make(map[uint8]bool, len(discoveredAddrs))
	for _, a := range discoveredAddrs {
		discoveredSet[a] = true
	}

	o.bondedCount = 0
	for addr := uint8(1); addr <= packet.MaxAddress; addr++ {
		rec, ok := o.nodes[addr]
		if !ok {
			rec = &NodeRecord{Address: addr}
			o.nodes[addr] = rec
		}

		wasBonded := rec.Bonded
		rec.Bonded = bondedSet[addr]
		rec.Discovered = rec.Bonded && discoveredSet[addr]

		if !rec.Bonded {
			rec.Discovered = false
			rec.MID = 0
			rec.HWPID = 0
			rec.HWPIDVer = 0
		} else {
			o.bondedCount++
			if rec.MID == 0 {
				mid, err := o.readMIDFromEEPROM(ctx, addr)
				if err != nil {
					o.log.Warnw("autonetwork: failed to read bonded node's MID", "address", addr, "error", err)
				} else {
					rec.MID = mid
				}
			}
		}
		_ = wasBonded
	}

	return nil
}

// readMIDFromEEPROM reads the MID of a bonded node directly from the
// coordinator's EEEPROM, at 0x4000 + addr*8 (spec.md §4.4.2 step 2).
func (o *Orchestrator) readMIDFromEEPROM(ctx context.Context, addr uint8) (uint32, error) {
	payload, err := o.exchange(ctx, packet.AddrCoordinator, packet.PNUMEEEPROM, packet.CmdEEEPROMXRead,
		packet.BuildEEEPROMXRead(packet.MIDEEPROMAddress(addr), 4), o.retryAttempts())
	if err != nil {
		return 0, err
	}
	return packet.ParseEEEPROMXRead(payload)
}

// bitmap30To32 widens a 30-byte wire bitmap (addresses 0..239) into the
// 32-byte general decoder's shape, zero-padding the remaining two bytes.
func bitmap30To32(b [30]byte) [32]byte {
	var out [32]byte
	copy(out[:30], b[:])
	return out
}
