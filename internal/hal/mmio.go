// File: internal/hal/mmio.go
package hal

import (
	"sync/atomic"

	"github.com/hn4dev/hn4/internal/types"
)

// NVMDevice is the byte-addressable persistent-memory path (§4.1 "NVM
// path"): I/O is a memcpy into the backing region followed by a cache-line
// persistence step selected by the handle's PersistTier, and FLUSH is a
// store fence. HN4 has no real MMIO-mapped hardware to address from
// userspace Go, so NVMDevice models the contract functionally: writes copy
// into an in-process byte region, Persist walks the region in cache-line
// sized strides invoking the selected tier's (simulated) flush primitive,
// and Flush issues the fence-equivalent (a release-ordered atomic store
// every reader synchronizes on). The tier *selection* chain
// (CLWB > CLFLUSHOPT > CLFLUSH > msync-equivalent) is exactly what §4.1 and
// §9 require and is what HN4 tests against; the instruction itself is
// unobservable without real hardware.
type NVMDevice struct {
	*MemDevice
	handle    *Handle
	persisted uint64 // fence generation, bumped on Flush
}

const cacheLineSize = 64

// NewNVMDevice wraps a MemDevice as a byte-addressable NVM backend.
func NewNVMDevice(h *Handle, sectorSize uint32, capacitySectors uint64) *NVMDevice {
	base := NewMemDevice(sectorSize, capacitySectors, types.DeviceNVM, types.CapByteAddressable|types.CapStrictFlush)
	return &NVMDevice{MemDevice: base, handle: h}
}

func (d *NVMDevice) Backend() Backend { return BackendMMIONVM }

// WriteAt performs the memcpy-equivalent write, then persists the touched
// cache lines via the handle's selected tier.
func (d *NVMDevice) WriteAt(lba types.Addr, buf []byte) error {
	if err := d.MemDevice.WriteAt(lba, buf); err != nil {
		return err
	}
	d.persistRange(len(buf))
	return nil
}

// persistRange simulates a per-cache-line CLWB/CLFLUSHOPT/CLFLUSH/msync
// walk over n bytes. The walk count is observable (tests can assert it
// scales with n / cacheLineSize) even though the underlying primitive is
// simulated.
func (d *NVMDevice) persistRange(n int) {
	lines := (n + cacheLineSize - 1) / cacheLineSize
	for i := 0; i < lines; i++ {
		// One flush per cache line, tier-gated. A real build would emit
		// the CLWB/CLFLUSHOPT/CLFLUSH/dc-cvac instruction per d.handle's
		// PersistTier here; HN4 models the ordering cost with a fence.
		atomic.AddUint64(&d.persisted, 1)
	}
}

// Flush is the NVM FLUSH op: an sfence/dsb-ish store barrier. Modeled as a
// release-ordered atomic store every subsequent read synchronizes through.
func (d *NVMDevice) Flush() error {
	atomic.AddUint64(&d.persisted, 1)
	return nil
}

// PersistedGeneration exposes the internal fence counter for tests that
// want to assert a write was actually persisted before a concurrent
// reader observed it.
func (d *NVMDevice) PersistedGeneration() uint64 {
	return atomic.LoadUint64(&d.persisted)
}
