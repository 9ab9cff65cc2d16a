package autonetwork

import (
	"context"
	"fmt"

	"github.com/iqrf/iqmesh-gateway/internal/dpa/packet"
)

// maxFRCMemoryReadSlots is the number of 4-byte value slots one FRC
// prebonded-memory-read exchange (base window + extra result) can carry
// (spec.md §4.4.3 steps 5-6).
const maxFRCMemoryReadSlots = 15

// probeDPAVersion issues FRC_PREBONDED_COMPARE_2B against every candidate's
// DPA version word (offset 0 of its peripheral-enumeration response) and
// tags SupportsMultiAuth on those at or above 0x0414
// (spec.md §4.4.3 step 4). The compare FRC always needs its extra result:
// it produces 2 bits per node (less-than, greater-or-equal), which for up
// to 239 nodes spans the 55-byte base window plus the 9-byte extra result.
func (o *Orchestrator) probeDPAVersion(ctx context.Context, seed uint8, candidates []*Candidate) error {
	payload := packet.BuildFRCPrebondedCompare2B(seed, 0x0414, 0x00, packet.PNUMExplore, packet.CmdExploreEnumerate)
	resp, err := o.exchange(ctx, packet.AddrCoordinator, packet.PNUMFRC, packet.CmdFRCSend, payload, o.retryAttempts())
	if err != nil {
		return fmt.Errorf("autonetwork: FRC compare DPA version: %w", err)
	}
	status, base, err := packet.ParseFRCResponse(resp)
	if err != nil {
		return err
	}
	if packet.FRCStatusFailed(status) {
		return fmt.Errorf("autonetwork: FRC compare DPA version failed, status=0x%02X", status)
	}

	extraResp, err := o.exchange(ctx, packet.AddrCoordinator, packet.PNUMFRC, packet.CmdFRCExtraResult, packet.BuildFRCExtraResult(), o.retryAttempts())
	if err != nil {
		return fmt.Errorf("autonetwork: FRC extra result: %w", err)
	}
	extra, err := packet.ParseFRCExtraResult(extraResp)
	if err != nil {
		return err
	}
	window := packet.MergeFRCMemoryReadWindow(base, extra)
	if len(window) < 64 {
		return fmt.Errorf("autonetwork: FRC compare 2B window too short: %d bytes", len(window))
	}

	low, high := window[:32], window[32:64]
	for _, c := range candidates {
		c.SupportsMultiAuth = !packet.HasBit(low, c.SourceAddress) && packet.HasBit(high, c.SourceAddress)
	}
	return nil
}

// readPrebondedMIDs reads each candidate's MID out of its OS::Read response
// via FRC prebonded-memory-read, in batches of up to 15 selected nodes per
// exchange, then runs authorize_control with hwpid unknown (spec.md §4.4.3
// step 5). Duplicate MIDs within the same wave are tagged Frc and excluded
// from authorization. An HWPID-filtering refusal at this point is not kept:
// such a candidate stays untagged but not authorized until
// readPrebondedHWPIDs re-evaluates it with its real HWPID.
func (o *Orchestrator) readPrebondedMIDs(ctx context.Context, seed uint8, candidates []*Candidate) error {
	seenThisWave := make(map[uint32]*Candidate, len(candidates))

	for start := 0; start < len(candidates); start += maxFRCMemoryReadSlots {
		end := start + maxFRCMemoryReadSlots
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		addrs := make([]uint8, len(batch))
		for i, c := range batch {
			addrs[i] = c.SourceAddress
		}

		values, err := o.frcMemoryReadBatch(ctx, addrs, seed, 0x00, packet.OSReadMIDOffset, packet.PNUMOS, packet.CmdOSRead)
		if err != nil {
			return err
		}

		for i, c := range batch {
			mid := values[i]
			if mid == 0 {
				c.Error = AuthorizeErrFrc
				continue
			}
			if dup, ok := seenThisWave[mid]; ok {
				dup.Error = AuthorizeErrFrc
				c.Error = AuthorizeErrFrc
				continue
			}
			seenThisWave[mid] = c
			c.MID = mid
			addr, authErr := o.authorizeControl(mid, 0)
			c.ProposedAddress = addr
			c.Error = authErr
			c.Authorize = authErr == AuthorizeErrNone
			if authErr == AuthorizeErrHWPIDFiltering {
				// The HWPID is not known yet; readPrebondedHWPIDs decides.
				c.Error = AuthorizeErrNone
			}
		}
	}
	return nil
}

// readPrebondedHWPIDs reads each remaining candidate's HWPID/HWPID-version
// out of its OS::Read response and re-evaluates authorize_control now that
// hwpid is known (spec.md §4.4.3 step 6).
func (o *Orchestrator) readPrebondedHWPIDs(ctx context.Context, seed uint8, candidates []*Candidate) error {
	for start := 0; start < len(candidates); start += maxFRCMemoryReadSlots {
		end := start + maxFRCMemoryReadSlots
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		addrs := make([]uint8, len(batch))
		for i, c := range batch {
			addrs[i] = c.SourceAddress
		}

		values, err := o.frcMemoryReadBatch(ctx, addrs, seed, 0x00, packet.OSReadHWPIDOffset, packet.PNUMOS, packet.CmdOSRead)
		if err != nil {
			return err
		}

		for i, c := range batch {
			raw := values[i]
			c.HWPID = uint16(raw & 0xFFFF)
			c.HWPIDVer = uint16(raw >> 16)
			addr, authErr := o.authorizeControl(c.MID, c.HWPID)
			c.ProposedAddress = addr
			c.Error = authErr
			c.Authorize = authErr == AuthorizeErrNone
		}
	}
	return nil
}

// frcMemoryReadBatch runs one FRC_PREBONDED_MEMORY_READ_4B+1 exchange
// (plus its extra result, needed whenever more than 12 nodes are
// selected) and decodes one 4-byte value per address in addrs, in order.
func (o *Orchestrator) frcMemoryReadBatch(ctx context.Context, addrs []uint8, seed, offset uint8, memAddr uint16, pnum, pcmd uint8) ([]uint32, error) {
	payload, err := packet.BuildFRCPrebondedMemoryRead(addrs, seed, offset, memAddr, pnum, pcmd)
	if err != nil {
		return nil, fmt.Errorf("autonetwork: build FRC memory read: %w", err)
	}
	resp, err := o.exchange(ctx, packet.AddrCoordinator, packet.PNUMFRC, packet.CmdFRCSendSelective, payload, o.retryAttempts())
	if err != nil {
		return nil, fmt.Errorf("autonetwork: FRC memory read: %w", err)
	}
	status, base, err := packet.ParseFRCResponse(resp)
	if err != nil {
		return nil, err
	}
	if packet.FRCStatusFailed(status) {
		return nil, fmt.Errorf("autonetwork: FRC memory read failed, status=0x%02X", status)
	}

	window := base
	if len(addrs) > 12 {
		extraResp, err := o.exchange(ctx, packet.AddrCoordinator, packet.PNUMFRC, packet.CmdFRCExtraResult, packet.BuildFRCExtraResult(), o.retryAttempts())
		if err != nil {
			return nil, fmt.Errorf("autonetwork: FRC extra result: %w", err)
		}
		extra, err := packet.ParseFRCExtraResult(extraResp)
		if err != nil {
			return nil, err
		}
		window = packet.MergeFRCMemoryReadWindow(base, extra)
	}

	values := packet.DecodeFRCMemoryReadValues(window, len(addrs))
	for len(values) < len(addrs) {
		values = append(values, 0) // slot missing from a short window: no answer
	}
	return values, nil
}
