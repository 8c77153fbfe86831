package modes

import (
	"math"
	"strings"
)

// FrameDecoder turns a RawFrame into a fully decoded Message: CRC
// validation and repair, AP/ICAO recovery, and per-DF field extraction.
type FrameDecoder struct {
	crc   *ChecksumEngine
	cache *IcaoCache

	noFix       bool
	noCRCCheck  bool
	aggressive  bool

	unknownME uint64
}

// NewFrameDecoder returns a FrameDecoder backed by the given IcaoCache
// (shared with AP recovery across the whole receiver).
func NewFrameDecoder(cache *IcaoCache, aggressive, noFix, noCRCCheck bool) *FrameDecoder {
	return &FrameDecoder{
		crc:        NewChecksumEngine(),
		cache:      cache,
		noFix:      noFix,
		noCRCCheck: noCRCCheck,
		aggressive: aggressive,
	}
}

// Decode consumes a RawFrame and produces a Message, per the DF-dependent
// pipeline: CRC check (+ single/double bit repair for DF11/17), AP recovery
// for the remaining downlink formats, then structured field extraction.
// nowEpochS is used for IcaoCache bookkeeping.
func (fd *FrameDecoder) Decode(frame RawFrame, nowEpochS uint32) *Message {
	payload := frame.Payload[:]
	df := payload[0] >> 3
	bits := BitsForDF(df)

	msg := &Message{
		DF:            df,
		Bits:          bits,
		FixedBitIndex: -1,
	}

	msg.CRCDeclared = fd.crc.Declared(payload, bits)
	msg.CRCComputed = fd.crc.CRC(payload, bits)

	crcOk := msg.CRCComputed == msg.CRCDeclared

	if !crcOk && (df == 11 || df == 17) && !fd.noFix {
		if i := fd.crc.TryFixOne(payload, bits); i >= 0 {
			msg.FixedBitIndex = int32(i)
			msg.CRCComputed = fd.crc.CRC(payload, bits)
			crcOk = true
		} else if fd.aggressive && df == 17 {
			if idx := fd.crc.TryFixTwo(payload, bits); idx >= 0 {
				msg.FixedBitIndex = idx
				msg.CRCComputed = fd.crc.CRC(payload, bits)
				crcOk = true
			}
		}
	}

	if df != 11 && df != 17 {
		// AP recovery: the declared trailer is CRC XOR ICAO; recovering the
		// ICAO and checking IcaoCache membership validates the frame
		// heuristically since there's no independent checksum to trust.
		recoveredICAO := msg.CRCDeclared ^ msg.CRCComputed
		msg.ICAO = recoveredICAO & 0xFFFFFF
		msg.CRCOk = fd.cache.Recent(msg.ICAO, nowEpochS)
	} else {
		msg.ICAO = uint32(payload[1])<<16 | uint32(payload[2])<<8 | uint32(payload[3])
		msg.CRCOk = crcOk
		if crcOk {
			fd.cache.Add(msg.ICAO, nowEpochS)
		}
	}

	if fd.noCRCCheck {
		// still decoded and delivered, just flagged for the registry/fan-out
		// to treat specially per the error-handling policy.
	} else if !msg.CRCOk {
		return msg
	}

	fd.extractCommon(msg, payload)
	fd.extractByDF(msg, payload)

	return msg
}

func (fd *FrameDecoder) extractCommon(msg *Message, payload []byte) {
	msg.CA = payload[0] & 0x07

	switch msg.DF {
	case 5, 21:
		id13 := (uint16(payload[2])<<8 | uint16(payload[3])) & 0x1FFF
		msg.Identity = DecodeID13Field(id13)
		msg.HasIdentity = true
	}
}

// DecodeID13Field implements the Gillham bit permutation
// C1 A1 C2 A2 C4 A4 0 B1 D1 B2 D2 B4 D4 -> a decimal reading of the four
// octal digits. Exported so internal/beast's Mode A/C decode, which carries
// the same Gillham code in a different wire bit order, can remap into this
// layout and share the one permutation table instead of re-deriving it.
func DecodeID13Field(id13 uint16) int {
	var hex uint16
	if id13&0x1000 != 0 {
		hex |= 0x0010
	}
	if id13&0x0800 != 0 {
		hex |= 0x1000
	}
	if id13&0x0400 != 0 {
		hex |= 0x0020
	}
	if id13&0x0200 != 0 {
		hex |= 0x2000
	}
	if id13&0x0100 != 0 {
		hex |= 0x0040
	}
	if id13&0x0080 != 0 {
		hex |= 0x4000
	}
	if id13&0x0020 != 0 {
		hex |= 0x0100
	}
	if id13&0x0010 != 0 {
		hex |= 0x0001
	}
	if id13&0x0008 != 0 {
		hex |= 0x0200
	}
	if id13&0x0004 != 0 {
		hex |= 0x0002
	}
	if id13&0x0002 != 0 {
		hex |= 0x0400
	}
	if id13&0x0001 != 0 {
		hex |= 0x0004
	}
	d1000 := (hex >> 12) & 0xF
	d100 := (hex >> 8) & 0xF
	d10 := (hex >> 4) & 0xF
	d1 := hex & 0xF
	return int(d1000)*1000 + int(d100)*100 + int(d10)*10 + int(d1)
}

func (fd *FrameDecoder) extractByDF(msg *Message, payload []byte) {
	switch msg.DF {
	case 0, 4, 16, 20:
		if alt, ok := decodeAC13(payload); ok {
			msg.Altitude = alt
			msg.AltitudeUnit = Feet
			msg.HasAltitude = true
		}
	case 17, 18:
		fd.extractExtendedSquitter(msg, payload)
	}
}

// decodeAC13 decodes the 13-bit altitude code carried in bytes 2-3 for
// DF0/4/16/20, feet-only, Q-coded case (m_bit clear, q_bit set). Other
// combinations (Gillham Mode-C, metric) are not decoded.
func decodeAC13(payload []byte) (int, bool) {
	p2, p3 := payload[2], payload[3]
	mBit := p3&0x40 != 0
	qBit := p3&0x10 != 0
	if mBit || !qBit {
		return 0, false
	}
	n := int(p2&0x1F)<<6 | int(p3&0x80)>>2 | int(p3&0x20)>>1 | int(p3&0x0F)
	return 25*n - 1000, true
}

// decodeAC12 decodes the 12-bit altitude code carried in payload bytes 5-6
// (the second and third bytes of the ME field) for DF17/18 airborne
// position, Q-coded only.
func decodeAC12(payload []byte) (int, bool) {
	p5, p6 := payload[5], payload[6]
	qBit := p5&0x01 != 0
	if !qBit {
		return 0, false
	}
	n := int(p5>>1)<<4 | int(p6&0xF0)>>4
	return 25*n - 1000, true
}

func (fd *FrameDecoder) extractExtendedSquitter(msg *Message, payload []byte) {
	typeCode := payload[4] >> 3
	msg.METype = typeCode
	msg.MESubtype = payload[4] & 0x07

	switch {
	case typeCode >= 1 && typeCode <= 4:
		msg.Flight = decodeCallsign(payload)
		msg.HasFlight = true

	case typeCode >= 9 && typeCode <= 18 || typeCode >= 20 && typeCode <= 22:
		msg.OddFlag = payload[6]&0x04 != 0
		msg.RawLat = extractRawCPRLat(payload)
		msg.RawLon = extractRawCPRLon(payload)
		msg.HasPosition = true
		if alt, ok := decodeAC12(payload); ok {
			msg.Altitude = alt
			msg.AltitudeUnit = Feet
			msg.HasAltitude = true
		}

	case typeCode == 19:
		fd.extractVelocity(msg, payload)

	default:
		msg.UnknownME = true
		fd.unknownME++
	}
}

func decodeCallsign(payload []byte) string {
	var sb strings.Builder
	// Callsign occupies ME bits 9..56 (8 six-bit characters), ME starting
	// at payload byte 4.
	for i := 0; i < 8; i++ {
		c := getBits(payload, 9+6*i, 14+6*i)
		if int(c) < len(Charset) {
			sb.WriteByte(Charset[c])
		}
	}
	return strings.TrimRight(sb.String(), " ?")
}

// getBits extracts a 1-based, inclusive bit range [first,last] (counted
// from the start of the ME field, bit 1 = first bit of payload byte 4)
// into the low bits of the return value.
func getBits(payload []byte, first, last int) uint8 {
	meBase := 32 // ME field starts at bit 33 of the overall message (1-based); bit 1 of ME == bit 33 overall
	firstBit := meBase + first
	lastBit := meBase + last
	var v uint32
	for b := firstBit; b <= lastBit; b++ {
		byteIdx := (b - 1) / 8
		bitIdx := (b - 1) % 8
		if byteIdx >= len(payload) {
			break
		}
		bit := (payload[byteIdx] >> (7 - uint(bitIdx))) & 1
		v = v<<1 | uint32(bit)
	}
	return uint8(v)
}

func extractRawCPRLat(payload []byte) uint32 {
	// 17-bit latitude: ME bits 23-39 (1-based within ME), split across
	// payload bytes 6,7,8.
	v := (uint32(payload[6]&0x03) << 15) | (uint32(payload[7]) << 7) | (uint32(payload[8]) >> 1)
	return v & 0x1FFFF
}

func extractRawCPRLon(payload []byte) uint32 {
	v := (uint32(payload[8]&0x01) << 16) | (uint32(payload[9]) << 8) | uint32(payload[10])
	return v & 0x1FFFF
}

func (fd *FrameDecoder) extractVelocity(msg *Message, payload []byte) {
	sub := msg.MESubtype
	p5, p6, p7, p8, p9 := payload[5], payload[6], payload[7], payload[8], payload[9]

	switch sub {
	case 1, 2:
		ewDir := (p5 >> 2) & 0x01
		ewVel := int((p5&0x03))<<8 | int(p6)
		nsDir := (p7 >> 7) & 0x01
		nsVel := int(p7&0x7F)<<3 | int(p8>>5)

		if ewVel != 0 || nsVel != 0 {
			ew := float64(ewVel - 1)
			if ewDir != 0 {
				ew = -ew
			}
			ns := float64(nsVel - 1)
			if nsDir != 0 {
				ns = -ns
			}
			msg.GroundSpeed = math.Hypot(ew, ns)
			if msg.GroundSpeed != 0 {
				h := math.Atan2(ew, ns) * 180 / math.Pi
				if h < 0 {
					h += 360
				}
				msg.HeadingDeg = h
				msg.HeadingValid = true
			}
			msg.HasVelocity = true
		}

	case 3, 4:
		heading := (uint16(p5&0x03) << 5) | uint16(p6>>3)
		msg.HeadingDeg = float64(heading) * 360.0 / 128.0
		msg.HeadingValid = p5&0x04 != 0

		airspeed := int(p7&0x7F)<<3 | int(p8>>5)
		if airspeed != 0 {
			v := float64(airspeed - 1)
			if sub == 4 {
				v *= 4
			}
			msg.GroundSpeed = v
			msg.HasVelocity = true
		}
	}

	vr := int(p8&0x07)<<6 | int(p9>>2)
	if vr != 0 {
		vr--
		if p8&0x08 != 0 {
			vr = -vr
		}
		msg.VerticalRate = vr * 64
	}
}

// UnknownMECount returns the number of extended-squitter submessages seen
// with an (me_type, me_subtype) this decoder doesn't recognize.
func (fd *FrameDecoder) UnknownMECount() uint64 { return fd.unknownME }
