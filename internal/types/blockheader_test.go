package types

import (
	"hash/crc32"
	"testing"
)

func TestBlockHeaderSerializeDeserializeRoundTrip(t *testing.T) {
	payload := []byte("hello hn4 block payload")
	buf := make([]byte, BlockHeaderSize+len(payload))

	h := &BlockHeader{
		Magic:        BlockHeaderMagic,
		Flags:        BlockFlagCompressed,
		AnchorSeedID: UUID{Hi: 1, Lo: 2},
		LogicalIndex: 42,
	}
	h.DataCRC = crc32Payload(payload)
	rest := h.Serialize(buf)
	copy(rest, payload)

	back, gotPayload, err := DeserializeBlockHeader(buf)
	if err != nil {
		t.Fatalf("DeserializeBlockHeader: %v", err)
	}
	if back.Magic != BlockHeaderMagic {
		t.Fatalf("expected magic to round-trip, got %#x", back.Magic)
	}
	if back.LogicalIndex != 42 {
		t.Fatalf("expected LogicalIndex to round-trip, got %d", back.LogicalIndex)
	}
	if !back.VerifyHeaderCRC(buf) {
		t.Fatalf("expected header CRC to validate on an untouched buffer")
	}
	if !back.VerifyPayloadCRC(gotPayload) {
		t.Fatalf("expected payload CRC to validate")
	}
}

func TestBlockHeaderDetectsHeaderCorruption(t *testing.T) {
	payload := []byte("payload")
	buf := make([]byte, BlockHeaderSize+len(payload))
	h := &BlockHeader{Magic: BlockHeaderMagic, AnchorSeedID: UUID{Hi: 9}}
	h.DataCRC = crc32Payload(payload)
	h.Serialize(buf)
	copy(buf[BlockHeaderSize:], payload)

	buf[10] ^= 0xFF // flip a byte inside the header region

	back, _, err := DeserializeBlockHeader(buf)
	if err != nil {
		t.Fatalf("DeserializeBlockHeader: %v", err)
	}
	if back.VerifyHeaderCRC(buf) {
		t.Fatalf("expected a corrupted header to fail its own CRC check")
	}
}

func TestBlockHeaderDetectsPayloadCorruption(t *testing.T) {
	payload := []byte("payload")
	buf := make([]byte, BlockHeaderSize+len(payload))
	h := &BlockHeader{Magic: BlockHeaderMagic}
	h.DataCRC = crc32Payload(payload)
	rest := h.Serialize(buf)
	copy(rest, payload)

	back, gotPayload, err := DeserializeBlockHeader(buf)
	if err != nil {
		t.Fatalf("DeserializeBlockHeader: %v", err)
	}
	gotPayload[0] ^= 0xFF // silent corruption in the payload only

	if back.VerifyHeaderCRC(buf) == false {
		t.Fatalf("header CRC should still validate: only the payload was corrupted")
	}
	if back.VerifyPayloadCRC(gotPayload) {
		t.Fatalf("expected corrupted payload to fail its CRC check")
	}
}

func TestDeserializeBlockHeaderRejectsShortBuffer(t *testing.T) {
	_, _, err := DeserializeBlockHeader(make([]byte, BlockHeaderSize-1))
	if err != ErrShortBuffer {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
}

func crc32Payload(p []byte) uint32 {
	return crc32.ChecksumIEEE(p)
}
