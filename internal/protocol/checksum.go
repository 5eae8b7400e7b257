package protocol

import (
	"fmt"
	"strings"

	"github.com/sigurn/crc16"
)

// The wire checksum is CRC-16/CCITT-FALSE: polynomial 0x1021, initial value
// 0xFFFF, MSB first, no final XOR.
var checksumTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Checksum computes the protocol checksum over a data segment.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, checksumTable)
}

// ChecksumHex renders a checksum the way devices transmit it.
func ChecksumHex(data []byte) string {
	return fmt.Sprintf("%04X", Checksum(data))
}

// ValidateChecksum compares a received checksum string against the computed
// value, case-insensitively. An absent or empty received value is invalid.
// It never fails hard: any malformed input yields false.
func ValidateChecksum(data []byte, received string) bool {
	received = strings.TrimSpace(received)
	if len(received) != 4 {
		return false
	}
	return strings.EqualFold(ChecksumHex(data), received)
}
