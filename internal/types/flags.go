// File: internal/types/flags.go
package types

// StateFlags is the superblock state bit set (§3).
type StateFlags uint32

const (
	StateValid StateFlags = 1 << iota
	StateClean
	StateDegraded
	StateRuntimeSaturated
	StateMetadataZeroed
	StateSouthSBPresent
	StateWormhole
	StateVirtualOverlay
)

func (f StateFlags) Has(bit StateFlags) bool { return f&bit != 0 }
func (f *StateFlags) Set(bit StateFlags)     { *f |= bit }
func (f *StateFlags) Clear(bit StateFlags)   { *f &^= bit }

// CompatFlags is the superblock compatibility bitset (§3). HN4 does not
// define optional on-disk feature extensions beyond the base layout, so
// this is carried as an opaque, round-tripped field — unrecognized bits are
// preserved, not rejected, matching the forward-compatibility contract a
// compat-flags field exists to provide.
type CompatFlags uint64

// MountIntentFlags controls mount-time behavior requests (§4.3, §6).
type MountIntentFlags uint32

const (
	MountWormhole MountIntentFlags = 1 << iota
	MountVirtual
)

func (f MountIntentFlags) Has(bit MountIntentFlags) bool { return f&bit != 0 }

// Permissions is the anchor permission bitset (§3).
type Permissions uint32

const (
	PermRead Permissions = 1 << iota
	PermWrite
	PermExec
	PermAppend
	PermImmutable
	PermSovereign
	PermEncrypted

	// PermValidMask is every bit a caller-supplied permission override may
	// legally set (§4.4: "permissions = ... | (user_overrides &
	// PERM_VALID_MASK)").
	PermValidMask = PermRead | PermWrite | PermExec | PermAppend | PermImmutable | PermSovereign | PermEncrypted
)

func (p Permissions) Has(bit Permissions) bool { return p&bit != 0 }

// DataClass is the anchor data_class bitset (§3).
type DataClass uint64

const (
	ClassValid DataClass = 1 << iota
	ClassTombstone
	ClassStatic
)

func (d DataClass) Has(bit DataClass) bool { return d&bit != 0 }

// IsEmpty reports whether an anchor carrying this data_class is "empty"
// per §3 ("An anchor is empty if data_class & VALID == 0").
func (d DataClass) IsEmpty() bool { return d&ClassValid == 0 }
