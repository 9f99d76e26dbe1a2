package types

import "testing"

func TestChronicleEntrySerializeDeserializeRoundTrip(t *testing.T) {
	e := &ChronicleEntry{
		Magic:         ChronicleMagic,
		OpCode:        OpWormhole,
		OldLBA:        Addr(10),
		NewLBA:        Addr(20),
		PayloadTag:    99,
		Timestamp:     123456789,
		PrevSectorCRC: 0xDEADBEEF,
	}
	buf := make([]byte, ChronicleEntrySize)
	e.Serialize(buf)

	back, err := DeserializeChronicleEntry(buf)
	if err != nil {
		t.Fatalf("DeserializeChronicleEntry: %v", err)
	}
	if *back != *e {
		t.Fatalf("expected chronicle entry to round-trip exactly, got %+v want %+v", back, e)
	}
}

func TestDeserializeChronicleEntryRejectsShortBuffer(t *testing.T) {
	_, err := DeserializeChronicleEntry(make([]byte, ChronicleEntrySize-1))
	if err != ErrShortBuffer {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
}

func TestEpochHeaderSerializeDeserializeRoundTrip(t *testing.T) {
	e := &EpochHeader{EpochID: 5, PrevCRC: 0x1111, OwnCRC: 0x2222}
	buf := make([]byte, EpochHeaderSize)
	e.Serialize(buf)

	back, err := DeserializeEpochHeader(buf)
	if err != nil {
		t.Fatalf("DeserializeEpochHeader: %v", err)
	}
	if *back != *e {
		t.Fatalf("expected epoch header to round-trip exactly, got %+v want %+v", back, e)
	}
}
