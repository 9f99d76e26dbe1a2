package hal

import (
	"io"
	"testing"
	"time"

	"github.com/hn4dev/hn4/internal/herr"
	"github.com/hn4dev/hn4/internal/types"
)

// blockingDevice never completes a ReadAt/WriteAt, simulating a wedged
// backend so SyncIO's bounded spin-poll has to give up and time out rather
// than wait forever (§4.1 "synchronous wrapper with default 30s timeout").
type blockingDevice struct {
	unblock chan struct{}
}

func (d *blockingDevice) Backend() Backend             { return BackendBlockIO }
func (d *blockingDevice) SectorSize() uint32            { return 512 }
func (d *blockingDevice) CapacitySectors() uint64       { return 1 << 20 }
func (d *blockingDevice) Caps() types.HWCaps            { return 0 }
func (d *blockingDevice) DeviceType() types.DeviceType  { return types.DeviceSSD }
func (d *blockingDevice) Flush() error                  { return nil }
func (d *blockingDevice) ReadAt(_ types.Addr, _ []byte) error {
	<-d.unblock
	return io.ErrClosedPipe
}
func (d *blockingDevice) WriteAt(_ types.Addr, _ []byte) error {
	<-d.unblock
	return io.ErrClosedPipe
}

func TestSyncIOSucceedsWithinTimeout(t *testing.T) {
	h := NewHandle(Config{SyncTimeout: time.Second})
	dev := NewMemDevice(512, 8, types.DeviceSSD, 0)
	buf := make([]byte, 512)
	res := h.SyncIO(dev, &Request{Op: OpWrite, LBA: 0, Buffer: buf})
	if res.Err != nil {
		t.Fatalf("expected successful sync write, got %v", res.Err)
	}
}

func TestSyncIOReturnsAtomicsTimeoutOnWedgedDevice(t *testing.T) {
	h := NewHandle(Config{SyncTimeout: 20 * time.Millisecond})
	dev := &blockingDevice{unblock: make(chan struct{})}
	defer close(dev.unblock) // let the leaked goroutine finish so the test binary can exit cleanly

	res := h.SyncIO(dev, &Request{Op: OpRead, LBA: 0, Buffer: make([]byte, 512)})
	if res.Err == nil {
		t.Fatalf("expected ErrAtomicsTimeout from a device that never completes")
	}
	if !herr.IsCode(res.Err, herr.ErrAtomicsTimeout) {
		t.Fatalf("expected ErrAtomicsTimeout, got %v", res.Err)
	}
}

func TestSyncIORejectsUninitializedHandle(t *testing.T) {
	h := NewHandle(Config{})
	h.Shutdown()
	dev := NewMemDevice(512, 8, types.DeviceSSD, 0)
	res := h.SyncIO(dev, &Request{Op: OpRead, LBA: 0, Buffer: make([]byte, 512)})
	if !herr.IsCode(res.Err, herr.ErrUninitialized) {
		t.Fatalf("expected ErrUninitialized on a shut-down handle, got %v", res.Err)
	}
}

func TestSyncIOLargeRejectsUnalignedLength(t *testing.T) {
	h := NewHandle(Config{})
	dev := NewMemDevice(512, 1<<20, types.DeviceSSD, 0)
	buf := make([]byte, 4096+1)
	err := h.SyncIOLarge(dev, 0, buf, 4096)
	if !herr.IsCode(err, herr.ErrAlignmentFail) {
		t.Fatalf("expected ErrAlignmentFail for a length not a multiple of block size, got %v", err)
	}
}

func TestSyncIOMultiSectorRoundTrip(t *testing.T) {
	h := NewHandle(Config{})
	const blockSize = 4096
	dev := NewMemDevice(512, 1<<20, types.DeviceSSD, 0)
	buf := make([]byte, blockSize*4)
	for i := range buf {
		buf[i] = byte(i)
	}
	if err := h.SyncIOLarge(dev, 0, buf, blockSize); err != nil {
		t.Fatalf("SyncIOLarge: %v", err)
	}
	readBack := make([]byte, len(buf))
	if err := dev.ReadAt(0, readBack); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	for i := range buf {
		if readBack[i] != buf[i] {
			t.Fatalf("byte %d mismatched after chunked write: want %x got %x", i, buf[i], readBack[i])
		}
	}
}
