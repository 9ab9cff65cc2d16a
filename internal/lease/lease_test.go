package lease

import (
	"testing"

	"github.com/iqrf/iqmesh-gateway/internal/dpa"
	"github.com/stretchr/testify/assert"
)

func Test_AcquireRelease(t *testing.T) {
	l := New()

	release, err := l.Acquire()
	assert.NoError(t, err)
	assert.True(t, l.Held())

	release()
	assert.False(t, l.Held())
}

func Test_AcquireFailsWhenHeld(t *testing.T) {
	l := New()

	release, err := l.Acquire()
	assert.NoError(t, err)
	defer release()

	_, err = l.Acquire()
	assert.ErrorIs(t, err, dpa.ErrBusy)
}

func Test_ReleaseIsIdempotent(t *testing.T) {
	l := New()

	release, err := l.Acquire()
	assert.NoError(t, err)

	release()
	assert.NotPanics(t, release)
	assert.False(t, l.Held())
}
