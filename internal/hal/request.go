// File: internal/hal/request.go
package hal

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hn4dev/hn4/internal/herr"
	"github.com/hn4dev/hn4/internal/types"
)

// Op is one of the six HAL operations (§4.1).
type Op int

const (
	OpRead Op = iota
	OpWrite
	OpFlush
	OpDiscard
	OpZoneAppend
	OpZoneReset
)

// Request carries one I/O submission (§4.1). ResultLBA is populated by
// ZONE_APPEND with the actual landed LBA.
type Request struct {
	Op         Op
	LBA        types.Addr
	Buffer     []byte
	Length     uint32 // sectors
	UserCtx    interface{}
	ResultLBA  types.Addr
}

// Result is what a completion callback (or the sync wrapper) observes.
type Result struct {
	Err       error
	ResultLBA types.Addr
}

// bundle is the heap-resident bookkeeping struct the sync wrapper spins on.
// §4.1/§9: on timeout this is intentionally leaked — the device may still
// be mid-flight into it, so reclaiming it would be a use-after-free. An
// arena-style allocation (here, a plain heap escape via pointer return)
// keeps the bundle alive exactly as long as something might still write to
// it, same as the teacher's pattern of never reusing a buffer a concurrent
// operation might still touch.
type bundle struct {
	done   int32 // atomic bool
	result Result
	req    *Request
}

// Submit issues req asynchronously against dev, invoking cb on completion.
// HN4 has no process-wide event loop (§5): submission runs the operation on
// its own goroutine and the callback fires from that goroutine, which is
// the idiomatic Go analogue of the spec's callback-style async I/O (§9
// design note: "Reimplement as a small async task handle returning a
// result; the sync wrapper is a bounded-spin poll with yielding").
func (h *Handle) Submit(dev Device, req *Request, cb func(Result)) *Task {
	t := &Task{done: make(chan struct{})}
	go func() {
		res := h.execute(dev, req)
		t.mu.Lock()
		t.result = res
		t.mu.Unlock()
		close(t.done)
		if cb != nil {
			cb(res)
		}
	}()
	return t
}

// Task is a handle to an in-flight async submission.
type Task struct {
	done   chan struct{}
	mu     sync.Mutex
	result Result
}

// Wait blocks until the task completes and returns its result.
func (t *Task) Wait() Result {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Done reports whether the task has completed without blocking.
func (t *Task) Done() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (h *Handle) execute(dev Device, req *Request) Result {
	switch req.Op {
	case OpRead:
		err := dev.ReadAt(req.LBA, req.Buffer)
		return Result{Err: err}
	case OpWrite:
		err := dev.WriteAt(req.LBA, req.Buffer)
		return Result{Err: err}
	case OpFlush:
		err := dev.Flush()
		return Result{Err: err}
	case OpDiscard:
		// Best-effort: HN4 has no TRIM-capable MemDevice/FileDevice path;
		// treated as a no-op success, matching §4.1's "prefetch hint
		// (best-effort no-op)" posture for operations the backend cannot
		// honor.
		return Result{}
	case OpZoneAppend:
		zd, ok := dev.(ZonedDevice)
		if !ok {
			return Result{Err: herr.New(herr.ErrInvalidArgument, "Submit", "", "device is not zone-append capable")}
		}
		landed, err := zd.ZoneAppend(req.LBA, req.Buffer)
		return Result{Err: err, ResultLBA: landed}
	case OpZoneReset:
		zd, ok := dev.(ZonedDevice)
		if !ok {
			return Result{Err: herr.New(herr.ErrInvalidArgument, "Submit", "", "device is not zone-append capable")}
		}
		return Result{Err: zd.ZoneReset(req.LBA)}
	default:
		return Result{Err: herr.New(herr.ErrInvalidArgument, "Submit", "", "unknown op")}
	}
}

// SyncIO wraps Submit with a bounded spin-poll and the §4.1/§5 default 30s
// timeout. On timeout it returns ErrAtomicsTimeout and intentionally leaks
// the bundle (by design, per §4.1/§9: the hardware may still write to it).
func (h *Handle) SyncIO(dev Device, req *Request) Result {
	if !h.Initialized() {
		return Result{Err: herr.New(herr.ErrUninitialized, "SyncIO", "", "HAL handle not initialized")}
	}
	b := &bundle{req: req} // heap-escapes via the closure below; see leak note on bundle
	deadline := time.Now().Add(h.syncTimeout)

	go func() {
		res := h.execute(dev, req)
		b.result = res
		atomic.StoreInt32(&b.done, 1)
	}()

	backoff := time.Microsecond
	for {
		if atomic.LoadInt32(&b.done) == 1 {
			return b.result
		}
		if time.Now().After(deadline) {
			// Intentional leak: b is never reclaimed. The goroutine above
			// may still be writing to b.result after we give up waiting.
			return Result{Err: herr.New(herr.ErrAtomicsTimeout, "SyncIO", "", "synchronous I/O exceeded timeout")}
		}
		yieldBackoff(&backoff)
	}
}

// SyncWriteThenFlush issues a WRITE then a FLUSH, always barriered in that
// order per §5's ordering guarantees.
func (h *Handle) SyncWriteThenFlush(dev Device, lba types.Addr, buf []byte) error {
	wres := h.SyncIO(dev, &Request{Op: OpWrite, LBA: lba, Buffer: buf, Length: uint32(len(buf)) / dev.SectorSize()})
	if wres.Err != nil {
		return wres.Err
	}
	fres := h.SyncIO(dev, &Request{Op: OpFlush})
	return fres.Err
}

// Prefetch hints that [lba, lba+lengthSectors) will be read soon. Best
// effort: none of the in-tree backends can act on it, so it is a no-op
// (§4.1 "prefetch hint (best-effort no-op)").
func (h *Handle) Prefetch(dev Device, lba types.Addr, lengthSectors uint32) {
	_, _, _ = dev, lba, lengthSectors
}

const maxChunkBytes = 2 << 30 // 2 GiB, §4.1 "Large sync I/O"

// SyncIOLarge chunks a large request to <=2GiB per submission (§4.1). It
// validates that length is a multiple of the device's block size (the
// caller-supplied blockSize, which may differ from sector size) and aborts
// with ErrInternalFault if a chunk computes to zero blocks (the "Zeno
// trap": a chunk boundary that rounds down to nothing would spin forever).
func (h *Handle) SyncIOLarge(dev Device, lba types.Addr, buf []byte, blockSize uint32) error {
	if blockSize == 0 || len(buf)%int(blockSize) != 0 {
		return herr.New(herr.ErrAlignmentFail, "SyncIOLarge", "", "length not a multiple of block size")
	}
	sectorSize := dev.SectorSize()
	sectorsPerBlock := blockSize / sectorSize
	chunkBlocks := maxChunkBytes / int(blockSize)
	if chunkBlocks == 0 {
		return herr.New(herr.ErrInternalFault, "SyncIOLarge", "", "zero-block chunk computed (Zeno trap)")
	}

	off := 0
	curLBA := lba
	for off < len(buf) {
		remainingBlocks := (len(buf) - off) / int(blockSize)
		n := chunkBlocks
		if n > remainingBlocks {
			n = remainingBlocks
		}
		if n == 0 {
			return herr.New(herr.ErrInternalFault, "SyncIOLarge", "", "zero-block chunk computed (Zeno trap)")
		}
		chunkLen := n * int(blockSize)
		res := h.SyncIO(dev, &Request{Op: OpWrite, LBA: curLBA, Buffer: buf[off : off+chunkLen]})
		if res.Err != nil {
			return res.Err
		}
		off += chunkLen
		curLBA += types.Addr(n) * types.Addr(sectorsPerBlock)
	}
	return nil
}
