package packet

import (
	"encoding/binary"
	"fmt"
)

// AddrInfo is the coordinator's addressing info response.
type AddrInfo struct {
	DevNr uint8
	DID   uint8
}

// ParseAddrInfo decodes the ADDR_INFO response payload.
func ParseAddrInfo(payload []byte) (AddrInfo, error) {
	if len(payload) < 2 {
		return AddrInfo{}, fmt.Errorf("packet: addr info payload too short")
	}
	return AddrInfo{DevNr: payload[0], DID: payload[1]}, nil
}

// PeripheralEnumeration is the decoded peripheral-enumeration response:
// the coordinator's DPA version word and the embedded-peripherals bitmap.
type PeripheralEnumeration struct {
	DPAVersion uint16
	Bitmap     []byte
}

// ParsePeripheralEnumeration decodes the peripheral-enumeration response.
// The layout is {DpaVersion_LE(2), UserPerNr(1), EmbeddedPers(4), ...}; only
// the DPA version and the embedded-peripherals bitmap matter to callers,
// who test individual peripheral bits with EmbeddedPeripheralSet.
func ParsePeripheralEnumeration(payload []byte) (PeripheralEnumeration, error) {
	if len(payload) < 7 {
		return PeripheralEnumeration{}, fmt.Errorf("packet: peripheral enumeration payload too short")
	}
	return PeripheralEnumeration{
		DPAVersion: binary.LittleEndian.Uint16(payload[0:2]),
		Bitmap:     payload[3:7],
	}, nil
}

// EmbeddedPeripheralSet reports whether peripheral p's bit is set in the
// embedded-peripherals bitmap. This takes the *intended* meaning of the
// source's "!(embPers & 0x01 == 0x01)" expression (spec.md §9): "peripheral
// bit set", not the C-precedence-mangled one.
func EmbeddedPeripheralSet(bitmap []byte, p uint) bool {
	byteIdx := p / 8
	if int(byteIdx) >= len(bitmap) {
		return false
	}
	return bitmap[byteIdx]&(1<<(p%8)) != 0
}

// Peripheral bit positions used by pre-flight (spec.md §4.4.2 step 1).
const (
	PeripheralBitCoordinator = 0
	PeripheralBitOS          = 2
)

// ParseBondedBitmap decodes the 30-byte bonded-nodes bitmap response.
func ParseBondedBitmap(payload []byte) ([30]byte, error) {
	var out [30]byte
	if len(payload) < 30 {
		return out, fmt.Errorf("packet: bonded bitmap payload too short: %d bytes", len(payload))
	}
	copy(out[:], payload[:30])
	return out, nil
}

// ParseDiscoveredBitmap decodes the 30-byte discovered-nodes bitmap
// response.
func ParseDiscoveredBitmap(payload []byte) ([30]byte, error) {
	var out [30]byte
	if len(payload) < 30 {
		return out, fmt.Errorf("packet: discovered bitmap payload too short: %d bytes", len(payload))
	}
	copy(out[:], payload[:30])
	return out, nil
}

// HopParams are the coordinator's request/response hop counts.
type HopParams struct {
	ReqHops uint8
	RspHops uint8
}

// BuildSetHops builds the SET_HOPS request payload.
func BuildSetHops(p HopParams) []byte {
	return []byte{p.ReqHops, p.RspHops}
}

// ParseSetHops decodes the previous hop params from a SET_HOPS response.
func ParseSetHops(payload []byte) (HopParams, error) {
	if len(payload) < 2 {
		return HopParams{}, fmt.Errorf("packet: set-hops response too short")
	}
	return HopParams{ReqHops: payload[0], RspHops: payload[1]}, nil
}

// BuildSetDpaParams builds the SET_DPA_PARAMS request payload (1 byte).
func BuildSetDpaParams(b uint8) []byte {
	return []byte{b}
}

// ParseSetDpaParams decodes the previous DPA-param byte from the response.
func ParseSetDpaParams(payload []byte) (uint8, error) {
	if len(payload) < 1 {
		return 0, fmt.Errorf("packet: set-dpa-params response too short")
	}
	return payload[0], nil
}

// BuildSetFRCParams builds the FRC SET_PARAMS request payload (1 byte,
// the FRC response-time byte).
func BuildSetFRCParams(b uint8) []byte {
	return []byte{b}
}

// ParseSetFRCParams decodes the previous FRC response-time byte.
func ParseSetFRCParams(payload []byte) (uint8, error) {
	if len(payload) < 1 {
		return 0, fmt.Errorf("packet: set-frc-params response too short")
	}
	return payload[0], nil
}

// SmartConnectRequest is the 38-byte smart-connect request struct.
type SmartConnectRequest struct {
	Address    uint8 // temp address, 0xFE
	BondingMask uint8
	IBK        [16]byte
	MID        [4]byte
	VirtID     uint8
	UserData   [15]byte
}

// BuildSmartConnect serializes a SmartConnectRequest. When overlapping
// networks is configured, callers set MID[0]=i-1, MID[1]=n, MID[2]=0xFF,
// MID[3]=0xFF per spec.md §4.4.3 step 1; otherwise MID/IBK are left zero.
func BuildSmartConnect(req SmartConnectRequest) []byte {
	buf := make([]byte, 0, 38)
	buf = append(buf, req.Address, req.BondingMask)
	buf = append(buf, req.IBK[:]...)
	buf = append(buf, req.MID[:]...)
	buf = append(buf, req.VirtID)
	buf = append(buf, req.UserData[:]...)
	return buf
}

// EncodeMID serializes a 32-bit MID little-endian.
func EncodeMID(mid uint32) [4]byte {
	var out [4]byte
	binary.LittleEndian.PutUint32(out[:], mid)
	return out
}

// DecodeMID deserializes a little-endian 32-bit MID.
func DecodeMID(b [4]byte) uint32 {
	return binary.LittleEndian.Uint32(b[:])
}

// AuthorizeRecord is one {address, MID} record of an AUTHORIZE_BOND or
// VALIDATE_BONDS request.
type AuthorizeRecord struct {
	Address uint8
	MID     uint32
}

// MaxAuthorizeRecordsPerRequest is the maximum number of records carried by
// a single AUTHORIZE_BOND request.
const MaxAuthorizeRecordsPerRequest = 11

// MaxValidateBondsRecordsPerRequest is the maximum number of records
// carried by a single NODE/VALIDATE_BONDS broadcast.
const MaxValidateBondsRecordsPerRequest = 11

// BuildAuthorizeBond builds the AUTHORIZE_BOND request payload for 1..11
// records.
func BuildAuthorizeBond(records []AuthorizeRecord) ([]byte, error) {
	if len(records) == 0 || len(records) > MaxAuthorizeRecordsPerRequest {
		return nil, fmt.Errorf("packet: authorize-bond record count %d out of range 1..%d", len(records), MaxAuthorizeRecordsPerRequest)
	}
	buf := make([]byte, 0, len(records)*5)
	for _, r := range records {
		mid := EncodeMID(r.MID)
		buf = append(buf, r.Address)
		buf = append(buf, mid[:]...)
	}
	return buf, nil
}

// AuthorizeBondResult is the {assigned, total} response of AUTHORIZE_BOND.
type AuthorizeBondResult struct {
	Assigned uint8
	Total    uint8
}

// ParseAuthorizeBond decodes the AUTHORIZE_BOND response.
func ParseAuthorizeBond(payload []byte) (AuthorizeBondResult, error) {
	if len(payload) < 2 {
		return AuthorizeBondResult{}, fmt.Errorf("packet: authorize-bond response too short")
	}
	return AuthorizeBondResult{Assigned: payload[0], Total: payload[1]}, nil
}

// BuildRemoveBond builds the REMOVE_BOND request payload.
func BuildRemoveBond(address uint8) []byte {
	return []byte{address}
}

// BuildValidateBonds builds the NODE/VALIDATE_BONDS broadcast request
// payload for up to 11 records.
func BuildValidateBonds(records []AuthorizeRecord) ([]byte, error) {
	if len(records) > MaxValidateBondsRecordsPerRequest {
		return nil, fmt.Errorf("packet: validate-bonds record count %d exceeds max %d", len(records), MaxValidateBondsRecordsPerRequest)
	}
	buf := make([]byte, 0, len(records)*5)
	for _, r := range records {
		mid := EncodeMID(r.MID)
		buf = append(buf, r.Address)
		buf = append(buf, mid[:]...)
	}
	return buf, nil
}

// BuildDiscovery builds the COORD/DISCOVERY request payload.
func BuildDiscovery(txPower uint8) []byte {
	return []byte{txPower, 0x00}
}

// ParseDiscovery decodes the discovered-node count from a DISCOVERY
// response.
func ParseDiscovery(payload []byte) (uint8, error) {
	if len(payload) < 1 {
		return 0, fmt.Errorf("packet: discovery response too short")
	}
	return payload[0], nil
}

// BuildEEEPROMXRead builds the EEEPROM XREAD request payload for reading
// length bytes starting at address.
func BuildEEEPROMXRead(address uint16, length uint8) []byte {
	buf := make([]byte, 3)
	binary.LittleEndian.PutUint16(buf[0:2], address)
	buf[2] = length
	return buf
}

// MIDEEPROMAddress returns the EEPROM address holding the MID of the node
// bonded at addr (spec.md §4.4.2 step 2: "0x4000 + addr*8").
func MIDEEPROMAddress(addr uint8) uint16 {
	return 0x4000 + uint16(addr)*8
}

// ParseEEEPROMXRead decodes a little-endian 32-bit MID from a 4-byte XREAD
// response.
func ParseEEEPROMXRead(payload []byte) (uint32, error) {
	if len(payload) < 4 {
		return 0, fmt.Errorf("packet: EEEPROM XREAD response too short")
	}
	return binary.LittleEndian.Uint32(payload[:4]), nil
}
