package modes

// crcTable is the 112-entry Mode S parity table (generator polynomial
// 0xfff409). crcTable[j+24] is the 24-bit parity contributed by a single 1
// in data bit j (MSB-first, bit 0 = MSB of byte 0) of a 112-bit message, so
// the 88 data bits of a long frame read entries 24..111; CRC never reads
// entries 0..23.
var crcTable = [112]uint32{
	0x16c19e, 0x0b60cf, 0xfa4a63, 0x82df35, 0xbe959e, 0x5f4acf, 0xd05f63,
	0x97d5b5, 0xb410de, 0x5a086f, 0xd2fe33, 0x96851d, 0xb4b88a, 0x5a5c45,
	0xd2d426, 0x696a13, 0xcb4f0d, 0x9a5d82, 0x4d2ec1, 0xd96d64, 0x6cb6b2,
	0x365b59, 0xe4d7a8, 0x726bd4, 0x3935ea, 0x1c9af5, 0xf1b77e, 0x78dbbf,
	0xc397db, 0x9e31e9, 0xb0e2f0, 0x587178, 0x2c38bc, 0x161c5e, 0x0b0e2f,
	0xfa7d13, 0x82c48d, 0xbe9842, 0x5f4c21, 0xd05c14, 0x682e0a, 0x341705,
	0xe5f186, 0x72f8c3, 0xc68665, 0x9cb936, 0x4e5c9b, 0xd8d449, 0x939020,
	0x49c810, 0x24e408, 0x127204, 0x093902, 0x049c81, 0xfdb444, 0x7eda22,
	0x3f6d11, 0xe04c8c, 0x702646, 0x381323, 0xe3f395, 0x8e03ce, 0x4701e7,
	0xdc7af7, 0x91c77f, 0xb719bb, 0xa476d9, 0xadc168, 0x56e0b4, 0x2b705a,
	0x15b82d, 0xf52612, 0x7a9309, 0xc2b380, 0x6159c0, 0x30ace0, 0x185670,
	0x0c2b38, 0x06159c, 0x030ace, 0x018567, 0xff38b7, 0x80665f, 0xbfc92b,
	0xa01e91, 0xaff54c, 0x57faa6, 0x2bfd53, 0xea04ad, 0x8af852, 0x457c29,
	0xdd4410, 0x6ea208, 0x375104, 0x1ba882, 0x0dd441, 0xf91024, 0x7c8812,
	0x3e4409, 0xe0d800, 0x706c00, 0x383600, 0x1c1b00, 0x0e0d80, 0x0706c0,
	0x038360, 0x01c1b0, 0x00e0d8, 0x00706c, 0x003836, 0x001c1b, 0xfff409,
}

// ChecksumEngine computes and repairs the 24-bit Mode S CRC.
type ChecksumEngine struct{}

// NewChecksumEngine returns a ChecksumEngine. It carries no state; the
// parity table above is shared package state, matching the teacher's
// package-level table convention.
func NewChecksumEngine() *ChecksumEngine { return &ChecksumEngine{} }

// CRC computes the 24-bit CRC by XOR-reducing the table entries selected by
// set data bits in payload[0:bits/8] (every bit but the trailing 24 parity
// bits). 56-bit frames are shifted by offset 56, so their 32 data bits read
// the last 32 entries.
func (e *ChecksumEngine) CRC(payload []byte, bits int) uint32 {
	offset := 0
	if bits == 56 {
		offset = 56
	}
	var crc uint32
	for j := 0; j < bits-24; j++ {
		byteIdx := j / 8
		bitIdx := j % 8
		if byteIdx >= len(payload) {
			break
		}
		mask := byte(1 << (7 - bitIdx))
		if payload[byteIdx]&mask != 0 {
			crc ^= crcTable[j+offset+24]
		}
	}
	return crc
}

// Declared reads the CRC carried in the last 3 bytes of a bits-length
// payload.
func (e *ChecksumEngine) Declared(payload []byte, bits int) uint32 {
	n := bits / 8
	if n < 3 || n > len(payload) {
		return 0
	}
	return uint32(payload[n-3])<<16 | uint32(payload[n-2])<<8 | uint32(payload[n-1])
}

// CRCOk reports whether the computed CRC matches the declared CRC.
func (e *ChecksumEngine) CRCOk(payload []byte, bits int) bool {
	return e.CRC(payload, bits) == e.Declared(payload, bits)
}

func flipBit(payload []byte, i int) {
	byteIdx := i / 8
	bitIdx := i % 8
	payload[byteIdx] ^= 1 << (7 - bitIdx)
}

// TryFixOne flips each of the bits bits in turn and returns the first index
// whose CRC then matches, overwriting payload on success; otherwise -1.
func (e *ChecksumEngine) TryFixOne(payload []byte, bits int) int {
	for i := 0; i < bits; i++ {
		flipBit(payload, i)
		if e.CRCOk(payload, bits) {
			return i
		}
		flipBit(payload, i)
	}
	return -1
}

// TryFixTwo tries all unordered pairs (i<j) of bit flips and returns
// j|(i<<16) for the first pair whose CRC matches, overwriting payload on
// success; otherwise -1.
//
// The spec leaves the combined-index encoding width unspecified beyond
// noting that an 8-bit shift loses information once a flipped index can
// reach 256 or above; this implementation widens the shift to 16 bits so
// both i and j (each < 112) are always recoverable from the result.
func (e *ChecksumEngine) TryFixTwo(payload []byte, bits int) int32 {
	for i := 0; i < bits; i++ {
		flipBit(payload, i)
		for j := i + 1; j < bits; j++ {
			flipBit(payload, j)
			if e.CRCOk(payload, bits) {
				return int32(j) | int32(i)<<16
			}
			flipBit(payload, j)
		}
		flipBit(payload, i)
	}
	return -1
}
