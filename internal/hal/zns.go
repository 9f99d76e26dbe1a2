// File: internal/hal/zns.go
package hal

import (
	"sync/atomic"

	"github.com/hn4dev/hn4/internal/herr"
	"github.com/hn4dev/hn4/internal/types"
)

// ZNSMemDevice is an in-memory ZNS-backed Device: fixed-size zones, each
// with an atomic write pointer advanced only via CAS (§5 shared-resource
// policy: "ZNS zone write-pointer: per-zone atomic, updated via CAS loop;
// never with fetch-add (overflow hazard)").
type ZNSMemDevice struct {
	*MemDevice
	zoneSectors uint64
	zonePtrs    []uint64 // atomic write pointer per zone, in sectors from zone start
}

// NewZNSMemDevice allocates a ZNS device of capacitySectors sectors divided
// into zones of zoneSectors sectors each.
func NewZNSMemDevice(sectorSize uint32, capacitySectors, zoneSectors uint64) *ZNSMemDevice {
	base := NewMemDevice(sectorSize, capacitySectors, types.DeviceZNS, types.CapZoneAppend|types.CapStrictFlush)
	zoneCount := capacitySectors / zoneSectors
	return &ZNSMemDevice{
		MemDevice:   base,
		zoneSectors: zoneSectors,
		zonePtrs:    make([]uint64, zoneCount),
	}
}

func (z *ZNSMemDevice) Backend() Backend   { return BackendZNS }
func (z *ZNSMemDevice) ZoneSize() uint64   { return z.zoneSectors }
func (z *ZNSMemDevice) ZoneCount() uint64  { return uint64(len(z.zonePtrs)) }

// zoneOf computes (zone_idx, zone_start_lba) from an LBA (§4.1).
func (z *ZNSMemDevice) zoneOf(lba types.Addr) (idx uint64, start types.Addr) {
	idx = uint64(lba) / z.zoneSectors
	start = types.Addr(idx * z.zoneSectors)
	return
}

// ZoneAppend computes the zone from lba, then CAS-advances that zone's
// write pointer by the request length (in sectors), failing with
// ErrZoneFull if the advance would exceed zone capacity; the write lands at
// zone_start + old_pointer (§4.1).
func (z *ZNSMemDevice) ZoneAppend(lba types.Addr, buf []byte) (types.Addr, error) {
	idx, start := z.zoneOf(lba)
	if idx >= uint64(len(z.zonePtrs)) {
		return types.InvalidAddr, herr.New(herr.ErrInvalidArgument, "ZoneAppend", "", "lba outside device")
	}
	lengthSectors := uint64(len(buf)) / uint64(z.SectorSize())
	if lengthSectors == 0 {
		return types.InvalidAddr, herr.New(herr.ErrInvalidArgument, "ZoneAppend", "", "zero-length append")
	}

	ptrAddr := &z.zonePtrs[idx]
	for {
		old := atomic.LoadUint64(ptrAddr)
		next := old + lengthSectors
		if next > z.zoneSectors {
			return types.InvalidAddr, herr.New(herr.ErrZoneFull, "ZoneAppend", "", "append exceeds zone capacity")
		}
		if atomic.CompareAndSwapUint64(ptrAddr, old, next) {
			landed := types.Addr(uint64(start) + old)
			if err := z.MemDevice.WriteAt(landed, buf); err != nil {
				return types.InvalidAddr, err
			}
			return landed, nil
		}
		// CAS lost the race; retry. No fetch-add: an overflowed pointer
		// from a lost race must never be observed by a concurrent append.
	}
}

// ZoneReset clears the zone containing lba and resets its write pointer.
func (z *ZNSMemDevice) ZoneReset(lba types.Addr) error {
	idx, start := z.zoneOf(lba)
	if idx >= uint64(len(z.zonePtrs)) {
		return herr.New(herr.ErrInvalidArgument, "ZoneReset", "", "lba outside device")
	}
	zero := make([]byte, z.zoneSectors*uint64(z.SectorSize()))
	if err := z.MemDevice.WriteAt(start, zero); err != nil {
		return err
	}
	atomic.StoreUint64(&z.zonePtrs[idx], 0)
	return nil
}

// WritePointer reports a zone's current write pointer, in sectors from the
// zone's start LBA. Exposed for recovery/test inspection.
func (z *ZNSMemDevice) WritePointer(zoneIdx uint64) uint64 {
	return atomic.LoadUint64(&z.zonePtrs[zoneIdx])
}
