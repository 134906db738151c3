package core

import (
	"os"
	"sync/atomic"

	"github.com/pkg/errors"
)

var getpid = os.Getpid

// ownerGuard rejects mutating calls made from a process other than the one
// that built the manager, and calls that overlap another mutating call.
type ownerGuard struct {
	enabled  bool
	pid      int
	inFlight atomic.Bool
}

func newOwnerGuard(enabled bool) *ownerGuard {
	return &ownerGuard{enabled: enabled, pid: getpid()}
}

func (g *ownerGuard) enter(op string) (func(), error) {
	if !g.enabled {
		return func() {}, nil
	}
	if pid := getpid(); pid != g.pid {
		return nil, errors.Wrapf(ErrCrossThreadUsage, "%s called from process %d, manager belongs to %d", op, pid, g.pid)
	}
	if !g.inFlight.CompareAndSwap(false, true) {
		return nil, errors.Wrapf(ErrCrossThreadUsage, "%s called while another operation is in flight", op)
	}
	return func() { g.inFlight.Store(false) }, nil
}
