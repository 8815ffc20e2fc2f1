package util

import "hash/crc32"

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// ChecksumValue returns the crc32c of data.
func ChecksumValue(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

// ChecksumExtend returns the crc32c of the concatenation of A and data,
// where crc is the crc32c of A.
func ChecksumExtend(crc uint32, data []byte) uint32 {
	return crc32.Update(crc, crc32cTable, data)
}

const maskDelta = 0xa282ead8

// MaskChecksum returns a masked representation of crc.
// Computing the checksum of a string that contains embedded checksums
// is problematic, so checksums stored in files are masked.
func MaskChecksum(crc uint32) uint32 {
	return ((crc >> 15) | (crc << 17)) + maskDelta
}

// UnmaskChecksum returns the crc whose masked representation is maskedCrc.
func UnmaskChecksum(maskedCrc uint32) uint32 {
	rot := maskedCrc - maskDelta
	return (rot >> 17) | (rot << 15)
}
