package protocol

import "testing"

func TestChecksumKnownVector(t *testing.T) {
	// Published CRC-16/CCITT-FALSE check value.
	if got := Checksum([]byte("123456789")); got != 0x29B1 {
		t.Fatalf("checksum = %04X, want 29B1", got)
	}
	if !ValidateChecksum([]byte("123456789"), "29b1") {
		t.Fatalf("case-insensitive validation failed")
	}
}

func TestChecksumSingleCharacterFlip(t *testing.T) {
	segment := []byte("$DM1236915CDC401")
	received := ChecksumHex(segment)
	if !ValidateChecksum(segment, received) {
		t.Fatalf("self-computed checksum did not validate")
	}
	for i := range segment {
		flipped := append([]byte(nil), segment...)
		flipped[i] ^= 0x01
		if ValidateChecksum(flipped, received) {
			t.Fatalf("flip at %d still validated", i)
		}
	}
}

func TestChecksumAbsentIsInvalid(t *testing.T) {
	if ValidateChecksum([]byte("anything"), "") {
		t.Fatalf("empty checksum validated")
	}
	if ValidateChecksum([]byte("anything"), "  ") {
		t.Fatalf("blank checksum validated")
	}
}
