// Package lease implements a single-holder exclusive-access lease on the
// DPA client, grounded on the teacher's sync.Mutex-guarded single-writer
// Coordinator struct (coordinator/coordinator.go).
package lease

import (
	"sync"

	"github.com/iqrf/iqmesh-gateway/internal/dpa"
)

// Lease is a single-holder lock. While held, no other component may submit
// DPA requests.
type Lease struct {
	mu     sync.Mutex
	held   bool
}

// New creates an unheld lease.
func New() *Lease {
	return &Lease{}
}

// Acquire takes the lease. It fails with dpa.ErrBusy if already held. The
// returned release function must be called exactly once, on every exit
// path, to guarantee the release invariant in spec.md §8.
func (l *Lease) Acquire() (release func(), err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return nil, dpa.ErrBusy
	}
	l.held = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.held = false
			l.mu.Unlock()
		})
	}, nil
}

// Held reports whether the lease is currently held. Intended for
// diagnostics only.
func (l *Lease) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}
