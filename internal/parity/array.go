package parity

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/hn4dev/hn4/internal/hal"
	"github.com/hn4dev/hn4/internal/herr"
	"github.com/hn4dev/hn4/internal/types"
)

// Mode is the array's redundancy mode (§4.7).
type Mode int

const (
	ModeSingle Mode = iota
	ModeMirror
	ModeShard
	ModeParity
)

// DefaultMaxArrayDevices resolves the §9 Open Question ("source implies
// 8-16... pick 16") for MAX_ARRAY_DEVICES.
const DefaultMaxArrayDevices = 16

// DefaultStripeUnit is the §4.7 PARITY mode default stripe unit, in
// sectors.
const DefaultStripeUnit = 128

// CortexShards is the row-lock shard count (§4.7 "Row lock hash"; §5
// "default 64 spinlocks per volume").
const CortexShards = 64

// member is one array device plus its bookkeeping.
type member struct {
	dev     hal.Device
	online  int32 // atomic bool
	usage   int64 // atomic reference count, §5 "Reference counting"
}

// Array is one volume's device array under a chosen redundancy Mode
// (§4.7).
type Array struct {
	mu sync.RWMutex // volume L2 lock: guards topology changes

	mode       Mode
	members    []*member
	stripeUnit uint64

	// columnBase offsets every PARITY-mode column LBA: row r's unit lives
	// at columnBase + r*stripeUnit on each member. A volume sets this to
	// its flux_start so row space never aliases the primary member's
	// metadata regions; standalone arrays keep the zero base.
	columnBase types.Addr

	// rowLocks uses hal.SpinLock, not sync.Mutex: §4.1 names "spinlock with
	// yield backoff" as the HAL's lock primitive and §5 names this exact
	// shard array ("Row-lock shard array (default 64 spinlocks per
	// volume)") as its consumer.
	rowLocks [CortexShards]hal.SpinLock

	degraded int32 // atomic bool, StateDegraded mirror

	capacityPool types.Addr128 // SHARD mode 128-bit capacity accounting
}

// NewArray constructs an empty array in the given mode.
func NewArray(mode Mode, stripeUnit uint64) *Array {
	if stripeUnit == 0 {
		stripeUnit = DefaultStripeUnit
	}
	return &Array{mode: mode, stripeUnit: stripeUnit}
}

// Mode reports the array's redundancy mode.
func (a *Array) Mode() Mode { return a.mode }

// SetColumnBase rebases PARITY-mode column addressing so row 0 starts at
// base rather than LBA 0. Must be called before the first stripe I/O.
func (a *Array) SetColumnBase(base types.Addr) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.columnBase = base
}

// Degraded reports whether the array is in the DEGRADED state.
func (a *Array) Degraded() bool { return atomic.LoadInt32(&a.degraded) != 0 }

func (a *Array) markDegraded() { atomic.StoreInt32(&a.degraded, 1) }

// AddDevice adds dev to the array (§4.7 validation rules for SHARD mode).
// No device-count minimum for PARITY mode is enforced in this package; the
// array is built up one device at a time before first use.
func (a *Array) AddDevice(dev hal.Device) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, m := range a.members {
		if m.dev == dev {
			return herr.New(herr.ErrEexist, "AddDevice", "", "device already a member of this array")
		}
	}

	if a.mode == ModeShard {
		if len(a.members) > 0 && a.members[0].dev.SectorSize() != dev.SectorSize() {
			return herr.New(herr.ErrAlignmentFail, "AddDevice", "", "mismatched sector size")
		}
		if dev.CapacitySectors()*uint64(dev.SectorSize()) < types.ShardMinCapacity {
			return herr.New(herr.ErrGeometry, "AddDevice", "", "device capacity below SHARD minimum (100 MiB)")
		}
		maxDevices := DefaultMaxArrayDevices
		if len(a.members) >= maxDevices {
			return herr.New(herr.ErrEnospc, "AddDevice", "", "array at MAX_ARRAY_DEVICES")
		}
		newPool, overflow := a.capacityPool.AddCapacity(dev.CapacitySectors())
		if overflow {
			return herr.New(herr.ErrEnospc, "AddDevice", "", "128-bit pool capacity would wrap")
		}
		a.capacityPool = newPool
	}

	a.members = append(a.members, &member{dev: dev, online: 1})
	return nil
}

// SetOffline marks member i offline/online, simulating a device failure
// for tests and the degraded-path exercises of §4.7. Taking a member
// offline is a topology change (§5 "Reference counting": "pin protects
// against pool removal mid-I/O"), so it waits for the member's usage
// counter — incremented by every in-flight router/column access, see
// pin/unpin — to drain before flipping the flag.
func (a *Array) SetOffline(i int, offline bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if i < 0 || i >= len(a.members) {
		return
	}
	if offline {
		for atomic.LoadInt64(&a.members[i].usage) != 0 {
			runtime.Gosched()
		}
		atomic.StoreInt32(&a.members[i].online, 0)
	} else {
		atomic.StoreInt32(&a.members[i].online, 1)
	}
}

func (a *Array) isOnline(i int) bool {
	return atomic.LoadInt32(&a.members[i].online) != 0
}

// onlineCount returns how many members are currently online.
func (a *Array) onlineCount() int {
	n := 0
	for i := range a.members {
		if a.isOnline(i) {
			n++
		}
	}
	return n
}

// pin/unpin bracket every per-member device access on the router/column
// I/O paths (§5 "Reference counting": "every router entry increments the
// selected devices' usage_counter... and decrements on exit"). SetOffline
// is the topology-change path they protect: it spins until a member's
// counter drains to zero before taking that member offline.
func (a *Array) pin(i int)   { atomic.AddInt64(&a.members[i].usage, 1) }
func (a *Array) unpin(i int) { atomic.AddInt64(&a.members[i].usage, -1) }

// deviceCount returns the number of member devices.
func (a *Array) deviceCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.members)
}

// DeviceCount is the exported form of deviceCount, used by the spatial
// router layer above this package to compute PARITY-mode row layouts.
func (a *Array) DeviceCount() int { return a.deviceCount() }

// RowDegraded reports whether any column of row r's layout (data, P, or Q)
// is currently offline, steering the spatial router's write path onto
// DegradedWrite for that row.
func (a *Array) RowDegraded(row uint64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	layout := ComputeRowLayout(row, len(a.members))
	for _, phys := range layout.DataCols {
		if !a.isOnline(phys) {
			return true
		}
	}
	return !a.isOnline(layout.PCol) || !a.isOnline(layout.QCol)
}

// rowLockIndex implements §4.7's mixing-hash row lock selection: a murmur-style
// 64-bit mix of the row id, not row % N, to avoid periodic rows aliasing
// onto the same shard.
func rowLockIndex(row uint64) int {
	mix := row
	mix ^= mix >> 33
	mix *= 0xff51afd7ed558ccd
	mix ^= mix >> 33
	return int(mix % CortexShards)
}

func (a *Array) lockRow(row uint64) func() {
	idx := rowLockIndex(row)
	a.rowLocks[idx].Lock()
	return a.rowLocks[idx].Unlock
}

// ShardSelect implements SHARD mode's deterministic shard selection: a
// mixing hash of the per-I/O 128-bit id picks a shard, rotating to the
// next online shard on failover (§4.7).
func ShardSelect(id types.UUID, onlineMask func(int) bool, n int) (int, error) {
	if n == 0 {
		return 0, herr.New(herr.ErrEnospc, "ShardSelect", "", "no shards configured")
	}
	mix := id.Hi ^ id.Lo
	mix ^= mix >> 33
	mix *= 0xff51afd7ed558ccd
	mix ^= mix >> 33
	start := int(mix % uint64(n))
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if onlineMask(idx) {
			return idx, nil
		}
	}
	return 0, herr.New(herr.ErrHwIO, "ShardSelect", "", "no online shard available")
}
