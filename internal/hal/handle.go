// Package hal is HN4's Hardware Abstraction Layer (§4.1): sector-oriented
// async I/O with a synchronous wrapper, aligned allocation, spinlocks,
// monotonic clock, a deterministic PRNG, per-goroutine accelerator
// affinity, device capability queries, and ZNS zone-append coordination.
//
// Modeled on the teacher's device layer (internal/device.DMGDevice +
// internal/interfaces.BlockDevice) generalized from a single read-only APFS
// container reader into a full read/write async HAL with multiple backend
// variants, per §4.1/§9 ("model as a single process-wide HAL handle").
package hal

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/cpu"
)

// Handle is the single process-wide HAL instance (§9 design note: "model as
// a single process-wide HAL handle (explicit construct/teardown); all
// global flags live as fields of that handle; pass the handle to every
// volume"). All HAL global state — CPU feature flags, the PRNG seed, the
// default sync-I/O timeout — lives here rather than in package-level
// variables, so multiple Handles (e.g. in tests) never interfere.
type Handle struct {
	mu          sync.RWMutex
	initialized bool

	persistTier PersistTier
	cpuFeatures CPUFeatures

	prngState uint64 // accessed only via atomic ops, see prng.go

	syncTimeout time.Duration

	accel *acceleratorTLS

	shutdown int32 // atomic bool
}

// Config seeds a Handle's tunables, normally sourced from internal/config's
// Viper-backed defaults.
type Config struct {
	SyncTimeout time.Duration // default 30s per §4.1/§5
}

// DefaultSyncTimeout is the §4.1/§5 default synchronous I/O timeout.
const DefaultSyncTimeout = 30 * time.Second

// NewHandle constructs and initializes a HAL handle: probes CPU features,
// seeds the PRNG from clock entropy, and records the sync-I/O timeout.
func NewHandle(cfg Config) *Handle {
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = DefaultSyncTimeout
	}
	h := &Handle{
		cpuFeatures: detectCPUFeatures(),
		syncTimeout: cfg.SyncTimeout,
		accel:       newAcceleratorTLS(),
	}
	h.persistTier = h.cpuFeatures.BestPersistTier()
	h.seedPRNG()
	h.initialized = true
	return h
}

// Initialized reports whether the handle has completed NewHandle setup and
// has not been shut down; HAL operations on an uninitialized/shutdown
// handle return ErrUninitialized at the caller boundary.
func (h *Handle) Initialized() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.initialized && atomic.LoadInt32(&h.shutdown) == 0
}

// Shutdown tears the handle down. Idempotent.
func (h *Handle) Shutdown() {
	atomic.StoreInt32(&h.shutdown, 1)
}

// PersistTier reports the selected cache-line persistence primitive tier
// (§4.1 NVM path: CLWB ≻ CLFLUSHOPT ≻ CLFLUSH ≻ msync-equivalent).
func (h *Handle) PersistTier() PersistTier { return h.persistTier }

// CPUFeatures reports the detected feature set, via golang.org/x/sys/cpu.
func (h *Handle) CPUFeatures() CPUFeatures { return h.cpuFeatures }

// SyncTimeout returns the configured synchronous I/O timeout.
func (h *Handle) SyncTimeout() time.Duration { return h.syncTimeout }

// PersistTier ranks the NVM cache-line persistence primitives from most to
// least specific, per §4.1's "CLWB ≻ CLFLUSHOPT ≻ CLFLUSH ≻
// msync-equivalent" chain (ARM: "dc cvac" + "dsb ish").
type PersistTier int

const (
	PersistCLWB PersistTier = iota
	PersistCLFlushOpt
	PersistCLFlush
	PersistARMDCCVAC
	PersistMsyncFallback
)

func (t PersistTier) String() string {
	switch t {
	case PersistCLWB:
		return "CLWB"
	case PersistCLFlushOpt:
		return "CLFLUSHOPT"
	case PersistCLFlush:
		return "CLFLUSH"
	case PersistARMDCCVAC:
		return "DC_CVAC"
	default:
		return "MSYNC_FALLBACK"
	}
}

// CPUFeatures is the subset of CPU capability flags HN4's persistence path
// cares about, read once at handle construction via golang.org/x/sys/cpu
// rather than hand-rolled CPUID assembly.
type CPUFeatures struct {
	HasCLWB        bool
	HasCLFlushOpt  bool
	HasCLFlush     bool
	HasARMDCCVAC   bool
}

// BestPersistTier picks the highest-priority primitive this CPU supports.
func (f CPUFeatures) BestPersistTier() PersistTier {
	switch {
	case f.HasCLWB:
		return PersistCLWB
	case f.HasCLFlushOpt:
		return PersistCLFlushOpt
	case f.HasCLFlush:
		return PersistCLFlush
	case f.HasARMDCCVAC:
		return PersistARMDCCVAC
	default:
		return PersistMsyncFallback
	}
}

// detectCPUFeatures probes golang.org/x/sys/cpu rather than hand-rolled
// CPUID assembly. x/sys/cpu does not expose dedicated CLWB/CLFLUSHOPT
// feature bits, so HN4 approximates the persistence-primitive tier from
// the feature families it does expose: AVX512 implies a modern uarch that
// carries CLWB, AVX2 implies at least CLFLUSHOPT, and plain SSE2 (present
// on every amd64 CPU) implies at least CLFLUSH. arm64's DCPOP bit is the
// direct equivalent of the "dc cvac"/"dc cvap" persistence instruction the
// spec calls out. Platforms x/sys/cpu does not probe fall through to the
// msync-equivalent tier, which is always correct — it is strictly more
// conservative than any cache-line primitive.
func detectCPUFeatures() CPUFeatures {
	return CPUFeatures{
		HasCLWB:       cpu.X86.HasAVX512F,
		HasCLFlushOpt: cpu.X86.HasAVX2,
		HasCLFlush:    cpu.X86.HasSSE2,
		HasARMDCCVAC:  cpu.ARM64.HasDCPOP,
	}
}
