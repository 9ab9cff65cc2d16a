package packet

import (
	"encoding/binary"
	"fmt"
)

// FRC command bytes carried as the first byte of an FRC SEND/SEND_SELECTIVE
// user-data payload. These are IQRF-standard FRC command codes, not DPA
// peripheral commands.
const (
	FRCCmdPrebondedAlive      = 0x50 // 2bitPrebonded
	FRCCmdPrebondedMemRead4B1 = 0xD1 // 4B Peripheral information/memory read+1
	FRCCmdPrebondedCompare2B  = 0x91 // 2B compare
	FRCCmdPing                = 0x00 // Ping / Prebonding memory read
	FRCCmdAckBroadcastBits    = 0x82 // Acknowledged broadcast bits batch carrier
)

// FRC status byte interpretation (spec.md §4.2).
const (
	FRCStatusMaxOK        = 239 // status <= this: success, value is responder count
	FRCStatusFailLow      = 0xFE
	FRCStatusFailHigh     = 0xFF
	FRCStatusUnsupported1 = 0xFD // >= this, < failLow: selected-nodes FRC unsupported count
)

// FRCStatusOK reports whether status denotes success.
func FRCStatusOK(status uint8) bool {
	return status <= FRCStatusMaxOK
}

// FRCStatusFailed reports whether status denotes an FRC-layer failure.
func FRCStatusFailed(status uint8) bool {
	return status == FRCStatusFailLow || status == FRCStatusFailHigh
}

// BuildFRCPrebondedAlive builds the FRC_SEND request payload for the
// "prebonded alive" check: cmd byte + node_seed + 0.
func BuildFRCPrebondedAlive(nodeSeed uint8) []byte {
	return []byte{FRCCmdPrebondedAlive, nodeSeed, 0x00}
}

// ParseFRCResponse splits an FRC SEND/SEND_SELECTIVE response payload into
// its status byte and up-to-55-byte data window.
func ParseFRCResponse(payload []byte) (status uint8, window []byte, err error) {
	if len(payload) < 1 {
		return 0, nil, fmt.Errorf("packet: empty FRC response")
	}
	status = payload[0]
	if len(payload) > 1 {
		window = payload[1:]
	}
	return status, window, nil
}

// ParseFRCPrebondedAlive decodes the responder temporary-address list from
// a "prebonded alive" FRC response window: bit-0 per address, byte addr/8.
func ParseFRCPrebondedAlive(window []byte) []uint8 {
	out := make([]uint8, 0)
	for idx := 0; idx <= MaxAddress; idx++ {
		if HasBit(window, uint8(idx)) {
			out = append(out, uint8(idx))
		}
	}
	return out
}

// BuildFRCPrebondedMemoryRead builds the FRC_SEND_SELECTIVE payload for a
// "prebonded memory read+1" exchange: cmd + 30-byte selected bitmap + 7
// user bytes (seed, offset, address LE, pnum, pcmd, 0).
func BuildFRCPrebondedMemoryRead(selected []uint8, seed, offset uint8, address uint16, pnum, pcmd uint8) ([]byte, error) {
	bitmap, err := EncodeSelected30(selected)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 1+30+7)
	buf = append(buf, FRCCmdPrebondedMemRead4B1)
	buf = append(buf, bitmap[:]...)
	addrBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(addrBuf, address)
	buf = append(buf, seed, offset, addrBuf[0], addrBuf[1], pnum, pcmd, 0x00)
	return buf, nil
}

// DecodeFRCMemoryReadSlot decodes one 4-byte value slot from a combined
// base-response + extra-result memory-read window, subtracting 1 per the
// "memory read+1" convention; value 0 after decoding means no answer.
func DecodeFRCMemoryReadSlot(raw uint32) (value uint32, answered bool) {
	if raw == 0 {
		return 0, false
	}
	return raw - 1, true
}

// BuildFRCPrebondedCompare2B builds the FRC_SEND payload for the "prebonded
// compare 2B" exchange: cmd + 10 user bytes (seed, 0, flags=1, value LE,
// address LE, pnum, pcmd, 0).
func BuildFRCPrebondedCompare2B(seed uint8, compareValue uint16, address uint16, pnum, pcmd uint8) []byte {
	buf := make([]byte, 0, 11)
	buf = append(buf, FRCCmdPrebondedCompare2B, seed, 0x00, 0x01)
	valBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(valBuf, compareValue)
	buf = append(buf, valBuf...)
	addrBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(addrBuf, address)
	buf = append(buf, addrBuf...)
	buf = append(buf, pnum, pcmd, 0x00)
	return buf
}

// BuildFRCPing builds the FRC_SEND payload for a plain ping: cmd + 2 zero
// bytes.
func BuildFRCPing() []byte {
	return []byte{FRCCmdPing, 0x00, 0x00}
}

// BuildFRCExtraResult builds the (empty) FRC_EXTRARESULT request payload.
func BuildFRCExtraResult() []byte {
	return nil
}

// ParseFRCExtraResult returns the 9 trailing bytes of an extra-result
// response.
func ParseFRCExtraResult(payload []byte) ([9]byte, error) {
	var out [9]byte
	if len(payload) < 9 {
		return out, fmt.Errorf("packet: extra-result payload too short: %d bytes", len(payload))
	}
	copy(out[:], payload[:9])
	return out, nil
}

// MergeFRCMemoryReadWindow concatenates a base-response window (up to 55
// bytes) with an extra-result's 9 trailing bytes into the full responder
// value stream. Used by 4-byte FRCs with more than 12 selected nodes.
func MergeFRCMemoryReadWindow(base []byte, extra [9]byte) []byte {
	return append(append([]byte{}, base...), extra[:]...)
}

// DecodeFRCMemoryReadValues decodes a stream of 4-byte little-endian values
// (the concatenated base+extra window for FRC_PREBONDED_MEMORY_READ_4B+1)
// into up to n values, applying the value-1 convention.
func DecodeFRCMemoryReadValues(window []byte, n int) []uint32 {
	out := make([]uint32, 0, n)
	for i := 0; i < n && (i+1)*4 <= len(window); i++ {
		raw := binary.LittleEndian.Uint32(window[i*4 : i*4+4])
		v, ok := DecodeFRCMemoryReadSlot(raw)
		if !ok {
			out = append(out, 0)
			continue
		}
		out = append(out, v)
	}
	return out
}

// BuildFRCAckBroadcastBitsBatch builds the FRC_SEND_SELECTIVE payload that
// carries a batch command (remove-bond / restart) to a selected bitmap of
// nodes.
func BuildFRCAckBroadcastBitsBatch(selected []uint8, batchBody []byte) ([]byte, error) {
	bitmap, err := EncodeSelected30(selected)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 1+30+len(batchBody))
	buf = append(buf, FRCCmdAckBroadcastBits)
	buf = append(buf, bitmap[:]...)
	buf = append(buf, batchBody...)
	return buf, nil
}
