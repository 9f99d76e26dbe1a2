package hal

import (
	"sync"
	"testing"

	"github.com/hn4dev/hn4/internal/herr"
	"github.com/hn4dev/hn4/internal/types"
)

func TestZoneAppendLandsAtPointerAndAdvances(t *testing.T) {
	dev := NewZNSMemDevice(512, 64, 16) // 4 zones of 16 sectors

	buf := make([]byte, 512*4)
	landed, err := dev.ZoneAppend(0, buf)
	if err != nil {
		t.Fatalf("first append: %v", err)
	}
	if landed != 0 {
		t.Fatalf("expected first append to land at zone start 0, got %d", landed)
	}
	if got := dev.WritePointer(0); got != 4 {
		t.Fatalf("expected write pointer 4 after first append, got %d", got)
	}

	landed, err = dev.ZoneAppend(0, buf)
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if landed != 4 {
		t.Fatalf("expected second append to land at 4, got %d", landed)
	}
}

func TestZoneAppendRejectsPastZoneCapacity(t *testing.T) {
	dev := NewZNSMemDevice(512, 64, 16)

	buf := make([]byte, 512*16)
	if _, err := dev.ZoneAppend(0, buf); err != nil {
		t.Fatalf("filling the zone exactly should succeed: %v", err)
	}

	one := make([]byte, 512)
	_, err := dev.ZoneAppend(0, one)
	if err == nil {
		t.Fatalf("expected ErrZoneFull once the zone is full")
	}
	if !herr.IsCode(err, herr.ErrZoneFull) {
		t.Fatalf("expected ErrZoneFull, got %v", err)
	}
	if got := dev.WritePointer(0); got != 16 {
		t.Fatalf("a rejected append must not move the write pointer; got %d", got)
	}
}

func TestZoneAppendConcurrentCASNeverOverflowsPointer(t *testing.T) {
	// §5: "ZNS zone write-pointer: per-zone atomic, updated via CAS loop;
	// never with fetch-add (overflow hazard)". Fire many single-sector
	// appends at the same zone concurrently and confirm the pointer lands
	// exactly at zone capacity with no lost or double-counted advances.
	const zoneSectors = 256
	dev := NewZNSMemDevice(512, zoneSectors, zoneSectors)

	var wg sync.WaitGroup
	results := make(chan types.Addr, zoneSectors)
	for i := 0; i < zoneSectors; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]byte, 512)
			landed, err := dev.ZoneAppend(0, buf)
			if err == nil {
				results <- landed
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[types.Addr]bool)
	count := 0
	for r := range results {
		if seen[r] {
			t.Fatalf("two appends landed at the same offset %d: CAS lost an update", r)
		}
		seen[r] = true
		count++
	}
	if count != zoneSectors {
		t.Fatalf("expected all %d single-sector appends to land, got %d", zoneSectors, count)
	}
	if got := dev.WritePointer(0); got != zoneSectors {
		t.Fatalf("expected write pointer to land exactly at zone capacity %d, got %d", zoneSectors, got)
	}
}

func TestZoneResetClearsDataAndPointer(t *testing.T) {
	dev := NewZNSMemDevice(512, 32, 16)

	buf := make([]byte, 512)
	for i := range buf {
		buf[i] = 0xAA
	}
	if _, err := dev.ZoneAppend(0, buf); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := dev.ZoneReset(0); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := dev.WritePointer(0); got != 0 {
		t.Fatalf("expected write pointer reset to 0, got %d", got)
	}

	readBack := make([]byte, 512)
	if err := dev.ReadAt(0, readBack); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	for i, b := range readBack {
		if b != 0 {
			t.Fatalf("expected zone data cleared at offset %d, got %x", i, b)
		}
	}
}
