package beast

import (
	"time"

	"go1090/internal/modes"
)

// Beast protocol framing constants: the sync byte and the four message
// types that appear after it.
const (
	SyncByte   = 0x1A // Beast mode sync byte
	ModeAC     = 0x31 // Mode A/C
	ModeS      = 0x32 // Mode S Short (56 bits)
	ModeSLong  = 0x33 // Mode S Long (112 bits)
	ModeStatus = 0x34 // Status
)

// Message is one framed Beast record: its type byte, the 12MHz timestamp
// counter converted to wall-clock time, signal level, and unescaped payload.
type Message struct {
	MessageType byte
	Timestamp   time.Time
	Signal      byte
	Data        []byte
	Raw         []byte
}

// GetICAO returns the 24-bit ICAO address for a Mode S message, via the
// same bit-field reader the RawIn frame decoder uses on its own payloads.
func (msg *Message) GetICAO() uint32 {
	if msg.MessageType != ModeS && msg.MessageType != ModeSLong {
		return 0
	}
	return modes.GetICAO(msg.Data)
}

// GetDF returns the downlink format for a Mode S message.
func (msg *Message) GetDF() byte {
	if msg.MessageType != ModeS && msg.MessageType != ModeSLong {
		return 0
	}
	return modes.GetDF(msg.Data)
}

// GetSquawk decodes the Mode A/C squawk carried in a ModeAC message. Beast's
// wire order (A1 A2 A4 B1 B2 B4 C1 C2 C4 D1 D2 D4, no spacer bit) differs
// from the id13 field DF5/DF21 messages carry, so the bits are first
// remapped into that layout and handed to the one shared Gillham
// permutation table rather than keeping a second, independent decoding of
// the same four-octal-digit code.
func (msg *Message) GetSquawk() int {
	if msg.MessageType != ModeAC {
		return 0
	}
	if len(msg.Data) < 2 {
		return 0
	}

	raw := uint16(msg.Data[0])<<8 | uint16(msg.Data[1])

	var id13 uint16
	if raw&0x1000 != 0 {
		id13 |= 0x0800 // A1
	}
	if raw&0x0800 != 0 {
		id13 |= 0x0200 // A2
	}
	if raw&0x0400 != 0 {
		id13 |= 0x0080 // A4
	}
	if raw&0x0200 != 0 {
		id13 |= 0x0020 // B1
	}
	if raw&0x0100 != 0 {
		id13 |= 0x0008 // B2
	}
	if raw&0x0080 != 0 {
		id13 |= 0x0002 // B4
	}
	if raw&0x0040 != 0 {
		id13 |= 0x1000 // C1
	}
	if raw&0x0020 != 0 {
		id13 |= 0x0400 // C2
	}
	if raw&0x0010 != 0 {
		id13 |= 0x0100 // C4
	}
	if raw&0x0008 != 0 {
		id13 |= 0x0010 // D1
	}
	if raw&0x0004 != 0 {
		id13 |= 0x0004 // D2
	}
	if raw&0x0002 != 0 {
		id13 |= 0x0001 // D4
	}

	return modes.DecodeID13Field(id13)
}

// ToRawFrame converts a ModeS/ModeSLong Beast message into a modes.RawFrame
// ready for FrameDecoder.Decode, or ok=false if the type or payload length
// doesn't correspond to a 56- or 112-bit Mode S frame.
func (msg *Message) ToRawFrame() (frame modes.RawFrame, ok bool) {
	if msg.MessageType != ModeS && msg.MessageType != ModeSLong {
		return modes.RawFrame{}, false
	}
	n := copy(frame.Payload[:], msg.Data)
	frame.Bits = n * 8
	if frame.Bits != 56 && frame.Bits != 112 {
		return modes.RawFrame{}, false
	}
	return frame, true
}

// IsValid checks that the message carries enough payload bytes for its
// declared type.
func (msg *Message) IsValid() bool {
	if len(msg.Data) == 0 {
		return false
	}

	switch msg.MessageType {
	case ModeAC:
		return len(msg.Data) >= 2
	case ModeS:
		return len(msg.Data) >= 7
	case ModeSLong:
		return len(msg.Data) >= 14
	case ModeStatus:
		return len(msg.Data) >= 2
	default:
		return false
	}
}
