// Package chronicle implements HN4's append-only audit/write-intent log
// (§3, §4.2): a fixed sector-aligned ring region on the primary device,
// one entry per sector, chained by the previous sector's full-sector CRC32.
//
// Modeled on the teacher's checksum-then-append patterns in
// apfs/pkg/container (Fletcher64-validated structures written sector by
// sector) generalized from a read-only checkpoint descriptor area into a
// read/write circular log.
package chronicle

import (
	"hash/crc32"
	"sync"

	"github.com/hn4dev/hn4/internal/hal"
	"github.com/hn4dev/hn4/internal/herr"
	"github.com/hn4dev/hn4/internal/types"
)

// Log is one volume's chronicle region.
type Log struct {
	mu sync.Mutex // the volume's L2 lock serializes appends (§4.2, §5)

	dev        hal.Device
	h          *hal.Handle
	start      types.Addr // region start LBA
	lengthSect uint64     // region length, in sectors
	sectorSize uint32

	head     types.Addr // next write position (absolute LBA)
	readOnly bool
}

// Open attaches a Log to an already-formatted chronicle region.
func Open(h *hal.Handle, dev hal.Device, start types.Addr, lengthSectors uint64, head types.Addr, readOnly bool) *Log {
	return &Log{
		dev:        dev,
		h:          h,
		start:      start,
		lengthSect: lengthSectors,
		sectorSize: dev.SectorSize(),
		head:       head,
		readOnly:   readOnly,
	}
}

// Head reports the log's current write head (persisted in the superblock's
// JournalHead field by the caller after each append).
func (l *Log) Head() types.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.head
}

// SetReadOnly toggles whether Append rejects with ErrAccessDenied (§4.2).
func (l *Log) SetReadOnly(ro bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readOnly = ro
}

// Append writes one chronicle entry at the current head, chained to the
// previous sector's CRC32, and advances the head modulo the region length
// (§4.2). Returns the LBA the entry landed at.
func (l *Log) Append(opCode types.ChronicleOpCode, oldLBA, newLBA types.Addr, payloadTag uint64) (types.Addr, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.readOnly {
		return types.InvalidAddr, herr.New(herr.ErrAccessDenied, "Append", "", "chronicle is read-only")
	}

	prevCRC, err := l.prevSectorCRC()
	if err != nil {
		return types.InvalidAddr, err
	}

	entry := &types.ChronicleEntry{
		Magic:         types.ChronicleMagic,
		OpCode:        opCode,
		OldLBA:        oldLBA,
		NewLBA:        newLBA,
		PayloadTag:    payloadTag,
		Timestamp:     hal.NowNanos(),
		PrevSectorCRC: prevCRC,
	}

	sector := make([]byte, l.sectorSize)
	entry.Serialize(sector)

	landed := l.head
	res := l.h.SyncIO(l.dev, &hal.Request{Op: hal.OpWrite, LBA: landed, Buffer: sector})
	if res.Err != nil {
		return types.InvalidAddr, herr.New(herr.ErrHwIO, "Append", "", res.Err.Error())
	}

	l.head = l.advance(l.head)
	return landed, nil
}

// advance wraps an absolute LBA forward by one sector within the region.
func (l *Log) advance(lba types.Addr) types.Addr {
	rel := uint64(lba-l.start) + 1
	rel %= l.lengthSect
	return l.start + types.Addr(rel)
}

// prevSectorCRC reads the sector immediately before the head and computes
// its CRC32 over the full sector bytes (§4.2 step 1).
func (l *Log) prevSectorCRC() (uint32, error) {
	relHead := uint64(l.head - l.start)
	relPrev := (relHead + l.lengthSect - 1) % l.lengthSect
	prevLBA := l.start + types.Addr(relPrev)

	buf := make([]byte, l.sectorSize)
	res := l.h.SyncIO(l.dev, &hal.Request{Op: hal.OpRead, LBA: prevLBA, Buffer: buf})
	if res.Err != nil {
		return 0, herr.New(herr.ErrHwIO, "Append", "", res.Err.Error())
	}
	return crc32.ChecksumIEEE(buf), nil
}

// Flush barriers all previously appended entries down to media. The parity
// RMW path calls this between the WORMHOLE append and the data/P/Q writes:
// the flushed log entry is the commit point (§4.7 step 6, §5 ordering).
func (l *Log) Flush() error {
	res := l.h.SyncIO(l.dev, &hal.Request{Op: hal.OpFlush})
	if res.Err != nil {
		return herr.New(herr.ErrHwIO, "Flush", "", res.Err.Error())
	}
	return nil
}

// ReadEntry reads and decodes the entry at absolute LBA lba.
func (l *Log) ReadEntry(lba types.Addr) (*types.ChronicleEntry, error) {
	buf := make([]byte, l.sectorSize)
	res := l.h.SyncIO(l.dev, &hal.Request{Op: hal.OpRead, LBA: lba, Buffer: buf})
	if res.Err != nil {
		return nil, herr.New(herr.ErrHwIO, "ReadEntry", "", res.Err.Error())
	}
	return types.DeserializeChronicleEntry(buf)
}

// TornStripe identifies one WORMHOLE entry found near the tail: the
// combined row/column tag WriteStripe recorded (NewLBA = row*stripe_unit +
// phys, PayloadTag = phys), left for the parity layer to decode since only
// it knows the stripe unit those were encoded with.
type TornStripe struct {
	NewLBA     types.Addr
	PayloadTag uint64
}

// RecoveryResult summarizes a tail-to-head scan (§4.2 "Recovery scan").
type RecoveryResult struct {
	EntriesScanned int
	ChainBroken    bool
	TornStripes    []TornStripe // any WORMHOLE entry found near the tail
}

// RecoveryScan walks entries from tail (oldest, i.e. one past the current
// head, wrapping) to head, validating the prev-CRC chain. Any WORMHOLE
// entry found marks its target row "possibly torn"; the caller (the
// parity engine's mount-time scavenger, §4.7) is expected to scrub those
// rows. A broken chain link does not abort the scan — chronicle is a ring
// and older entries may legitimately have been overwritten — but it is
// reported so the caller can decide how far back to trust the log.
func (l *Log) RecoveryScan() (*RecoveryResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res := &RecoveryResult{}
	relHead := uint64(l.head - l.start)

	var lastCRC uint32
	haveLast := false

	for i := uint64(0); i < l.lengthSect; i++ {
		rel := (relHead + i) % l.lengthSect
		lba := l.start + types.Addr(rel)
		buf := make([]byte, l.sectorSize)
		r := l.h.SyncIO(l.dev, &hal.Request{Op: hal.OpRead, LBA: lba, Buffer: buf})
		if r.Err != nil {
			return res, herr.New(herr.ErrHwIO, "RecoveryScan", "", r.Err.Error())
		}
		entry, err := types.DeserializeChronicleEntry(buf)
		if err != nil || entry.Magic != types.ChronicleMagic {
			continue // unwritten or foreign sector; skip
		}
		if haveLast && entry.PrevSectorCRC != lastCRC {
			res.ChainBroken = true
		}
		lastCRC = crc32.ChecksumIEEE(buf)
		haveLast = true
		res.EntriesScanned++
		if entry.OpCode == types.OpWormhole {
			res.TornStripes = append(res.TornStripes, TornStripe{NewLBA: entry.NewLBA, PayloadTag: entry.PayloadTag})
		}
	}
	return res, nil
}
