// File: internal/hal/device.go
package hal

import (
	"io"
	"sync"

	"github.com/hn4dev/hn4/internal/types"
)

// Backend identifies which of the three device variants a Device
// implements (§9 design note: "Device backing ... maps to a variant type:
// DeviceBackend = { MMIO_NVM, BlockIO, ZNS }").
type Backend int

const (
	BackendBlockIO Backend = iota
	BackendMMIONVM
	BackendZNS
)

// Device is the HAL's sector-addressed backing store contract. Generalized
// from the teacher's internal/interfaces.BlockDevice (read+write+info
// split into three interfaces) into one surface since HN4's HAL owns both
// directions of every I/O path, not just read-only exploration.
type Device interface {
	// Backend reports which variant this device implements.
	Backend() Backend

	// SectorSize and Capacity describe the device geometry the formatter
	// and superblock quorum consult (§4.3, §4.4).
	SectorSize() uint32
	CapacitySectors() uint64

	// ReadAt/WriteAt operate in sector units: lba is a sector address and
	// len(buf) is a whole number of SectorSize() sectors.
	ReadAt(lba types.Addr, buf []byte) error
	WriteAt(lba types.Addr, buf []byte) error

	// Flush is the strict persistence barrier (§4.1, §5 ordering
	// guarantees).
	Flush() error

	// Caps reports the device's capability bitset (§4.4 step 2/6, §6).
	Caps() types.HWCaps

	// DeviceType reports the device's media tag, consulted by the
	// allocator's theta-suppression rule (§4.6) and the formatter.
	DeviceType() types.DeviceType
}

// ZonedDevice is implemented additionally by ZNS-backed devices, exposing
// zone-append and zone-reset semantics (§4.1 "ZNS semantics").
type ZonedDevice interface {
	Device
	ZoneSize() uint64 // sectors per zone
	ZoneCount() uint64
	// ZoneAppend lands buf at the zone containing lba's write pointer,
	// advancing the pointer by len(buf)/SectorSize() sectors via CAS, and
	// returns the landed LBA. Fails with ErrZoneFull if it would exceed
	// zone capacity (§4.1).
	ZoneAppend(lba types.Addr, buf []byte) (types.Addr, error)
	// ZoneReset clears the zone containing lba and resets its write
	// pointer to zero.
	ZoneReset(lba types.Addr) error
}

// MemDevice is an in-memory BlockIO-backed Device, the HAL analogue of the
// teacher's MockBlockDevice (map/slice-backed, used directly by unit tests
// with no real disk I/O).
type MemDevice struct {
	mu         sync.RWMutex
	sectorSize uint32
	data       []byte
	caps       types.HWCaps
	devType    types.DeviceType

	// failLBAs marks sectors that should return a simulated HW_IO error on
	// read, letting parity/superblock tests exercise degraded paths
	// without a real failing device. failWrites fails every write while the
	// device still answers reads, the §4.7 mirror-divergence shape.
	failLBAs   map[types.Addr]bool
	failWrites bool
	offline    bool
}

// NewMemDevice allocates an in-memory device of capacitySectors sectors.
func NewMemDevice(sectorSize uint32, capacitySectors uint64, devType types.DeviceType, caps types.HWCaps) *MemDevice {
	return &MemDevice{
		sectorSize: sectorSize,
		data:       make([]byte, uint64(sectorSize)*capacitySectors),
		caps:       caps,
		devType:    devType,
		failLBAs:   make(map[types.Addr]bool),
	}
}

func (d *MemDevice) Backend() Backend            { return BackendBlockIO }
func (d *MemDevice) SectorSize() uint32          { return d.sectorSize }
func (d *MemDevice) CapacitySectors() uint64     { return uint64(len(d.data)) / uint64(d.sectorSize) }
func (d *MemDevice) Caps() types.HWCaps          { return d.caps }
func (d *MemDevice) DeviceType() types.DeviceType { return d.devType }

// SetOffline simulates total device loss: all reads/writes return
// ErrHwIO-class failures, letting array-mode tests (§4.7 §8 scenarios
// 8-10) drive reconstruction paths.
func (d *MemDevice) SetOffline(offline bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.offline = offline
}

func (d *MemDevice) Offline() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.offline
}

// FailSector marks a single LBA to simulate silent corruption / transient
// I/O failure on every read of it until cleared (§4.7 "Silent corruption
// recovery").
func (d *MemDevice) FailSector(lba types.Addr, fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fail {
		d.failLBAs[lba] = true
	} else {
		delete(d.failLBAs, lba)
	}
}

func (d *MemDevice) ReadAt(lba types.Addr, buf []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.offline || d.failLBAs[lba] {
		return io.ErrClosedPipe
	}
	off := uint64(lba) * uint64(d.sectorSize)
	if off+uint64(len(buf)) > uint64(len(d.data)) {
		return io.ErrUnexpectedEOF
	}
	copy(buf, d.data[off:off+uint64(len(buf))])
	return nil
}

// FailWrites makes every subsequent write return an I/O error while reads
// keep succeeding, simulating a mirror member whose medium went read-only.
func (d *MemDevice) FailWrites(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failWrites = fail
}

func (d *MemDevice) WriteAt(lba types.Addr, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.offline || d.failWrites {
		return io.ErrClosedPipe
	}
	off := uint64(lba) * uint64(d.sectorSize)
	if off+uint64(len(buf)) > uint64(len(d.data)) {
		return io.ErrUnexpectedEOF
	}
	copy(d.data[off:off+uint64(len(buf))], buf)
	return nil
}

func (d *MemDevice) Flush() error {
	if d.Offline() {
		return io.ErrClosedPipe
	}
	return nil
}

// A production volume opens a real file or block special device through
// internal/device.FileDevice, which layers Viper-sourced device config on
// top of the same contract.
