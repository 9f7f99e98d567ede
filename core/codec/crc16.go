package codec

import (
	"encoding/binary"

	"github.com/sigurn/crc16"
)

const (
	// CRCPoly is the CRC-16 generator polynomial (CCITT, MSB first).
	CRCPoly uint16 = 0x1021
	// CRCInitial is the CRC-16 register value before the first byte.
	CRCInitial uint16 = 0xFFFF
	// ChecksumSize is the size of the checksum appended to every payload.
	ChecksumSize = 2
)

// CRC-16/CCITT-FALSE matches CRCPoly and CRCInitial with no reflection or
// final XOR.
var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Checksum computes the CRC-16 of data using polynomial 0x1021, initial
// value 0xFFFF and no final XOR.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// AppendChecksum appends crc to b in big-endian order.
func AppendChecksum(b []byte, crc uint16) []byte {
	return binary.BigEndian.AppendUint16(b, crc)
}

// VerifyChecksum reports whether data, which must end with its own
// big-endian checksum, reduces to a zero CRC residue.
func VerifyChecksum(data []byte) bool {
	if len(data) < ChecksumSize {
		return false
	}
	return Checksum(data) == 0
}
