// Package packet implements the DPA wire codec: building request buffers
// and parsing response buffers for the peripheral/command pairs the
// autonetwork orchestrator uses, and bit-packing the address sets carried
// by FRC exchanges.
package packet

import (
	"encoding/binary"
	"fmt"
)

// Peripheral numbers used by the orchestrator.
const (
	PNUMCoordinator = 0x00
	PNUMNode        = 0x01
	PNUMOS          = 0x02
	PNUMEEPROM      = 0x03
	PNUMEEEPROM     = 0x05
	PNUMFRC         = 0x0D
	PNUMExplore     = 0x3F
)

// Commands used against the COORDINATOR peripheral.
const (
	CmdCoordAddrInfo      = 0x00
	CmdCoordDiscovery     = 0x07
	CmdCoordBonded        = 0x02
	CmdCoordDiscovered    = 0x06
	CmdCoordSetHops       = 0x09
	CmdCoordSetDpaParams  = 0x0A
	CmdCoordAuthorizeBond = 0x0D
	CmdCoordRemoveBond    = 0x0C
	CmdCoordSmartConnect  = 0x12
)

// Commands used against the FRC peripheral.
const (
	CmdFRCSend          = 0x00
	CmdFRCExtraResult   = 0x01
	CmdFRCSendSelective = 0x02
	CmdFRCSetParams     = 0x03
)

// Commands used against the NODE peripheral.
const (
	CmdNodeValidateBonds = 0x0B
)

// Commands used against the EEEPROM peripheral.
const (
	CmdEEEPROMXRead = 0x04
)

// Commands used against the EXPLORE peripheral.
const (
	CmdExploreEnumerate  = 0x3F
	CmdExploreGetPerInfo = 0x00
)

// Commands used against the OS peripheral.
const (
	CmdOSRead    = 0x00
	CmdOSRestart = 0x08
)

// Offsets of fields within an OS::Read response payload that the
// orchestrator reads via FRC prebonded-memory-read rather than a direct
// request (spec.md §4.4.3 steps 5-6).
const (
	OSReadMIDOffset   = 0x04 // 4-byte MID
	OSReadHWPIDOffset = 0x08 // 2-byte HWPID followed by 2-byte HWPID version
)

const (
	// AddrCoordinator is the coordinator's own address.
	AddrCoordinator = 0x00
	// AddrTemporary is the temporary-bond address used by SmartConnect.
	AddrTemporary = 0xFE
	// AddrBroadcast is the reserved broadcast address.
	AddrBroadcast = 0xFF
	// MaxAddress is the highest regular node address (1..239).
	MaxAddress = 239
)

// RequestHeader is the 6-byte header prefixed to every outgoing request
// buffer: {NADR_LE(2), PNUM, PCMD, HWPID_LE(2)}.
type RequestHeader struct {
	NADR  uint16
	PNUM  uint8
	PCMD  uint8
	HWPID uint16
}

// HWPIDDoCare is the "don't care" HWPID value used on most requests.
const HWPIDDoCare = 0xFFFF

// BuildHeader serializes a RequestHeader into the first 6 bytes of buf.
func BuildHeader(nadr uint16, pnum, pcmd uint8, hwpid uint16) []byte {
	buf := make([]byte, 6)
	binary.LittleEndian.PutUint16(buf[0:2], nadr)
	buf[2] = pnum
	buf[3] = pcmd
	binary.LittleEndian.PutUint16(buf[4:6], hwpid)
	return buf
}

// ResponseHeader is the {ResponseCode, DpaValue} pair added before the
// payload of every response buffer.
type ResponseHeader struct {
	ResponseCode uint8
	DpaValue     uint8
}

// ParseResponseHeader reads the 6-byte request echo + 2-byte response
// header (8 bytes in all) prefixing every response payload and returns the
// remaining payload bytes.
func ParseResponseHeader(buf []byte) (ResponseHeader, []byte, error) {
	if len(buf) < 8 {
		return ResponseHeader{}, nil, fmt.Errorf("packet: response too short: %d bytes", len(buf))
	}
	// buf[0:6] is the echoed request header (NADR, PNUM, PCMD, HWPID).
	hdr := ResponseHeader{
		ResponseCode: buf[6],
		DpaValue:     buf[7],
	}
	return hdr, buf[8:], nil
}
