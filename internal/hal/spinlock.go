// File: internal/hal/spinlock.go
package hal

import (
	"runtime"
	"sync/atomic"
	"time"
)

// SpinLock is a yield-backoff spinlock (§4.1: "spinlock with yield
// backoff"), used by the row-lock shard array (§4.7, §5) and anywhere else
// HN4 needs a lock cheaper than an OS mutex under low contention.
type SpinLock struct {
	state int32
}

// Lock spins with exponential backoff, yielding the OS thread between
// attempts via runtime.Gosched (the portable equivalent of the spec's
// YIELD intrinsic).
func (s *SpinLock) Lock() {
	backoff := time.Microsecond
	for !atomic.CompareAndSwapInt32(&s.state, 0, 1) {
		yieldBackoff(&backoff)
	}
}

// TryLock attempts to acquire the lock without blocking.
func (s *SpinLock) TryLock() bool {
	return atomic.CompareAndSwapInt32(&s.state, 0, 1)
}

// Unlock releases the lock.
func (s *SpinLock) Unlock() {
	atomic.StoreInt32(&s.state, 0)
}

// yieldBackoff yields once with runtime.Gosched and then sleeps for a
// capped exponential interval, shared by SpinLock and the SyncIO poll loop.
func yieldBackoff(backoff *time.Duration) {
	const maxBackoff = 2 * time.Millisecond
	runtime.Gosched()
	time.Sleep(*backoff)
	*backoff *= 2
	if *backoff > maxBackoff {
		*backoff = maxBackoff
	}
}
