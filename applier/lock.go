package applier

import (
	"sync/atomic"

	"github.com/R-omk/cartridge/config"
)

// clusterwideLock is the process-wide boolean lock of spec.md §5: it
// serializes any outgoing 2PC round started on this instance. Contention
// returns a KindAtomic error immediately; there is no queuing.
type clusterwideLock struct {
	held atomic.Bool
}

// TryAcquire attempts to take the lock, returning false if it is already held.
func (l *clusterwideLock) TryAcquire() bool {
	return l.held.CompareAndSwap(false, true)
}

// Release frees the lock. Calling Release without a matching TryAcquire is
// a programming error; it is only ever called from a deferred statement
// immediately after a successful TryAcquire.
func (l *clusterwideLock) Release() {
	l.held.Store(false)
}

// errAtomicLockHeld builds the KindAtomic error PatchClusterwide returns when
// another 2PC round is already in flight on this instance.
func errAtomicLockHeld() error {
	return config.Wrap(config.KindAtomic, "clusterwide lock is already held", nil)
}
