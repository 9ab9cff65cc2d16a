package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Bitmap32RoundTrip(t *testing.T) {
	in := []uint8{0, 1, 42, 239, 255}
	bitmap := EncodeBitmap32(in)
	out := DecodeBitmap32(bitmap)
	assert.ElementsMatch(t, in, out)
}

func Test_Bitmap32BitPosition(t *testing.T) {
	bitmap := EncodeBitmap32([]uint8{9})
	assert.Equal(t, byte(1<<1), bitmap[1])
}

func Test_Selected30RoundTrip(t *testing.T) {
	in := []uint8{0, 1, 42, 239}
	bitmap, err := EncodeSelected30(in)
	assert.NoError(t, err)
	out := DecodeSelected30(bitmap)
	assert.ElementsMatch(t, in, out)
}

func Test_Selected30RejectsOutOfRange(t *testing.T) {
	_, err := EncodeSelected30([]uint8{240})
	assert.Error(t, err)
}

func Test_Selected30ZeroedFirst(t *testing.T) {
	// Regression for spec.md §9: the buffer must start all-zero, not
	// memset to 1, before bits are set.
	bitmap, err := EncodeSelected30(nil)
	assert.NoError(t, err)
	for _, b := range bitmap {
		assert.Equal(t, byte(0), b)
	}
}

func Test_MIDRoundTrip(t *testing.T) {
	for _, mid := range []uint32{0x00ABCDEF, 0x11111111, 1, 0xFFFFFFFE} {
		encoded := EncodeMID(mid)
		assert.Equal(t, mid, DecodeMID(encoded))
	}
}

func Test_EmbeddedPeripheralSet(t *testing.T) {
	bitmap := []byte{0b00000101, 0, 0, 0}
	assert.True(t, EmbeddedPeripheralSet(bitmap, PeripheralBitCoordinator))
	assert.True(t, EmbeddedPeripheralSet(bitmap, PeripheralBitOS))
	assert.False(t, EmbeddedPeripheralSet(bitmap, 1))
}

func Test_FRCMemoryReadSlotSubtractsOne(t *testing.T) {
	v, ok := DecodeFRCMemoryReadSlot(0x00ABCDF0)
	assert.True(t, ok)
	assert.Equal(t, uint32(0x00ABCDEF), v)

	_, ok = DecodeFRCMemoryReadSlot(0)
	assert.False(t, ok)
}

func Test_FRCStatusInterpretation(t *testing.T) {
	assert.True(t, FRCStatusOK(0))
	assert.True(t, FRCStatusOK(239))
	assert.False(t, FRCStatusOK(240))
	assert.True(t, FRCStatusFailed(0xFE))
	assert.True(t, FRCStatusFailed(0xFF))
}
