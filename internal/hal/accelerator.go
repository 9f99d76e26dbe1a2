// File: internal/hal/accelerator.go
package hal

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// AcceleratorID identifies an AI accelerator for the allocator's per-thread
// affinity contract (§4.6 "AI affinity"). AcceleratorNone means "no
// affinity", the global-pool fallback.
type AcceleratorID uint32

const AcceleratorNone AcceleratorID = 0

// acceleratorTLS emulates §4.1/§5's thread-local accelerator context id.
// Go has no native goroutine-local storage; HN4 keys a map by the calling
// goroutine's runtime-assigned id (parsed from runtime.Stack, the standard
// workaround every "goroutine-local storage" package in the ecosystem
// uses) rather than silently sharing one global value across goroutines,
// matching §9's "if TLS unsupported, affinity is disabled rather than
// silently shared": if id extraction ever fails, Get reports "unsupported"
// and the allocator falls back to the global pool instead of leaking one
// goroutine's affinity into another's allocation.
type acceleratorTLS struct {
	mu   sync.RWMutex
	ctx  map[uint64]AcceleratorID
	supported bool
}

func newAcceleratorTLS() *acceleratorTLS {
	_, ok := goroutineID()
	return &acceleratorTLS{ctx: make(map[uint64]AcceleratorID), supported: ok}
}

// SetAcceleratorContext binds id to the calling goroutine (§4.1: "per-thread
// accelerator context get/set/clear").
func (h *Handle) SetAcceleratorContext(id AcceleratorID) {
	gid, ok := goroutineID()
	if !ok {
		return // TLS unsupported: affinity simply never activates (§9)
	}
	h.accel.mu.Lock()
	defer h.accel.mu.Unlock()
	h.accel.ctx[gid] = id
}

// AcceleratorContext returns the calling goroutine's bound accelerator id,
// or (AcceleratorNone, false) if TLS extraction is unsupported or no
// context was ever set.
func (h *Handle) AcceleratorContext() (AcceleratorID, bool) {
	gid, ok := goroutineID()
	if !ok || !h.accel.supported {
		return AcceleratorNone, false
	}
	h.accel.mu.RLock()
	defer h.accel.mu.RUnlock()
	id, set := h.accel.ctx[gid]
	if !set {
		return AcceleratorNone, true
	}
	return id, true
}

// ClearAcceleratorContext removes the calling goroutine's binding.
func (h *Handle) ClearAcceleratorContext() {
	gid, ok := goroutineID()
	if !ok {
		return
	}
	h.accel.mu.Lock()
	defer h.accel.mu.Unlock()
	delete(h.accel.ctx, gid)
}

// goroutineID parses the current goroutine's numeric id out of a short
// runtime.Stack dump ("goroutine 123 [running]:..."). This is the
// well-known, if informal, technique every goroutine-local-storage shim in
// the Go ecosystem relies on; a parse failure (format change in a future Go
// release) degrades to "unsupported" rather than panicking or guessing.
func goroutineID() (uint64, bool) {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	const prefix = "goroutine "
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return 0, false
	}
	rest := buf[len(prefix):]
	sp := bytes.IndexByte(rest, ' ')
	if sp < 0 {
		return 0, false
	}
	id, err := strconv.ParseUint(string(rest[:sp]), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
