package parity

import (
	"testing"

	"github.com/hn4dev/hn4/internal/hal"
	"github.com/hn4dev/hn4/internal/types"
)

func newMirrorArray(t *testing.T, n int) (*Array, *hal.Handle) {
	t.Helper()
	h := hal.NewHandle(hal.Config{})
	a := NewArray(ModeMirror, 0)
	for i := 0; i < n; i++ {
		dev := hal.NewMemDevice(512, 64, types.DeviceSSD, 0)
		if err := a.AddDevice(dev); err != nil {
			t.Fatalf("AddDevice: %v", err)
		}
	}
	return a, h
}

func TestMirrorWriteReadRoundTrip(t *testing.T) {
	a, h := newMirrorArray(t, 3)
	id := types.UUID{Hi: 1}
	buf := []byte("mirror-payload--")
	if err := a.writeMirror(h, 0, buf); err != nil {
		t.Fatalf("writeMirror: %v", err)
	}
	out := make([]byte, len(buf))
	if err := a.Read(h, id, 0, out); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(out) != string(buf) {
		t.Fatalf("mirror round trip mismatch")
	}
}

func TestMirrorWriteWithOfflineMemberLeavesArrayUndegraded(t *testing.T) {
	a, h := newMirrorArray(t, 3)
	a.SetOffline(1, true)
	buf := []byte("partial---------")
	if err := a.writeMirror(h, 0, buf); err != nil {
		t.Fatalf("writeMirror with one offline member should still succeed (2/2 online): %v", err)
	}
	if a.Degraded() {
		t.Fatalf("writing to all *online* members should not itself mark degraded")
	}
}

func TestMirrorDivergenceRollsBackSurvivors(t *testing.T) {
	h := hal.NewHandle(hal.Config{})
	a := NewArray(ModeMirror, 0)
	dev0 := hal.NewMemDevice(512, 64, types.DeviceSSD, 0)
	dev1 := hal.NewMemDevice(512, 64, types.DeviceSSD, 0)
	for _, d := range []*hal.MemDevice{dev0, dev1} {
		if err := a.AddDevice(d); err != nil {
			t.Fatalf("AddDevice: %v", err)
		}
	}

	old := []byte("original-sector-")
	if err := a.writeMirror(h, 0, old); err != nil {
		t.Fatalf("seed write: %v", err)
	}

	dev1.FailWrites(true)
	if err := a.writeMirror(h, 0, []byte("replacement-----")); err == nil {
		t.Fatalf("expected HW_IO on partial mirror failure")
	}
	if !a.Degraded() {
		t.Fatalf("partial mirror failure should mark the array degraded")
	}

	got := make([]byte, len(old))
	if err := dev0.ReadAt(0, got); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(got) != string(old) {
		t.Fatalf("survivor not rolled back: got %q, want %q", got, old)
	}
}

func TestShardSelectRotatesOnFailover(t *testing.T) {
	online := []bool{true, false, true, true}
	idx, err := ShardSelect(types.UUID{Hi: 123, Lo: 456}, func(i int) bool { return online[i] }, len(online))
	if err != nil {
		t.Fatalf("ShardSelect: %v", err)
	}
	if !online[idx] {
		t.Fatalf("ShardSelect returned an offline shard: %d", idx)
	}
}

func TestShardSelectDeterministic(t *testing.T) {
	online := []bool{true, true, true, true}
	id := types.UUID{Hi: 77, Lo: 88}
	i1, _ := ShardSelect(id, func(i int) bool { return online[i] }, len(online))
	i2, _ := ShardSelect(id, func(i int) bool { return online[i] }, len(online))
	if i1 != i2 {
		t.Fatalf("ShardSelect not deterministic for same id: %d != %d", i1, i2)
	}
}
