// File: internal/types/profile.go
package types

// Profile is the format profile selected at Genesis (§4.4). Each profile
// carries a default block size and a set of geometry constraints enforced
// by the formatter.
type Profile uint32

const (
	ProfilePico Profile = iota
	ProfileGeneric
	ProfileUSB
	ProfileGaming
	ProfileAI
	ProfileArchive
	ProfileSystem
	ProfileHyperCloud

	// ProfileUnknown is never a valid format target; the formatter rejects
	// it (and any numeric profile value it does not recognize, including
	// the historical "profile 999" sentinel from the source material).
	ProfileUnknown Profile = 999
)

func (p Profile) String() string {
	switch p {
	case ProfilePico:
		return "Pico"
	case ProfileGeneric:
		return "Generic"
	case ProfileUSB:
		return "USB"
	case ProfileGaming:
		return "Gaming"
	case ProfileAI:
		return "AI"
	case ProfileArchive:
		return "Archive"
	case ProfileSystem:
		return "System"
	case ProfileHyperCloud:
		return "HyperCloud"
	default:
		return "Unknown"
	}
}

// Valid reports whether p names one of the eight known profiles.
func (p Profile) Valid() bool {
	return p <= ProfileHyperCloud
}

// DefaultBlockSize returns the profile's default block size in bytes,
// before any sector-size upscaling (§4.4 step 4).
func (p Profile) DefaultBlockSize() uint32 {
	switch p {
	case ProfilePico:
		return 512
	case ProfileGeneric:
		return 4096
	case ProfileUSB:
		return 4096
	case ProfileGaming:
		return 4096
	case ProfileAI:
		return 16384
	case ProfileArchive:
		return 65536
	case ProfileSystem:
		return 4096
	case ProfileHyperCloud:
		return 32768
	default:
		return 4096
	}
}

// ForcesRailMode reports whether alloc_genesis (§4.6) must use V=1
// (contiguous, "Rail mode") for this profile regardless of caller flags.
func (p Profile) ForcesRailMode() bool {
	switch p {
	case ProfileSystem, ProfileArchive:
		return true
	default:
		return false
	}
}

// SuppressesTheta reports whether calc_trajectory_lba must force theta to
// zero for this profile (§4.6 step 6, predictable-latency requirement).
func (p Profile) SuppressesTheta() bool {
	return p == ProfileSystem
}

const (
	// MiB and friends in sectors-independent byte units, used by the
	// formatter's capacity gating (§4.4 step 3).
	kib = uint64(1) << 10
	mib = uint64(1) << 20
	gib = uint64(1) << 30
	eib = uint64(1) << 60
)

const (
	GenericMinCapacity = 128 * mib
	ArchiveMinCapacity = 10 * gib
	// 18 EiB exceeds the range of uint64 (max ~16 EiB); since no uint64
	// capacity value can ever exceed ^uint64(0), using the type's max
	// preserves the unreachable-bound semantics of the spec's 18 EiB limit.
	ArchiveMaxCapacity = ^uint64(0)
	PicoMaxCapacity    = 2 * gib
	VirtualOverlayMin  = 100 * mib
	ShardMinCapacity   = 100 * mib
)
