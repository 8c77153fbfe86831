package beast

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Decoder accumulates a byte stream from a Beast-protocol feed (replayed
// from a dump1090-style USB device or a recorded capture) and splits it
// into framed Messages, mirroring the length-dispatch table a real Beast
// client uses instead of any delimiter search.
type Decoder struct {
	logger *logrus.Logger
	buffer []byte
}

// NewDecoder returns a Decoder with an empty internal buffer.
func NewDecoder(logger *logrus.Logger) *Decoder {
	return &Decoder{
		logger: logger,
		buffer: make([]byte, 0, 4096),
	}
}

// Decode appends data to the internal buffer and extracts every complete
// frame currently available. Partial trailing data is kept for the next
// call.
func (d *Decoder) Decode(data []byte) ([]*Message, error) {
	d.buffer = append(d.buffer, data...)

	var messages []*Message

	if len(d.buffer) > 0 && len(d.buffer)%1024 == 0 {
		d.logger.WithFields(logrus.Fields{
			"buffer_bytes": len(d.buffer),
			"chunk_bytes":  len(data),
		}).Debug("beast: buffer growing")
	}

	for {
		syncIndex := -1
		for i, b := range d.buffer {
			if b == SyncByte {
				syncIndex = i
				break
			}
		}

		if syncIndex == -1 {
			// nothing resembling a frame start in the whole buffer
			if len(d.buffer) > 1024 {
				d.logger.WithFields(logrus.Fields{
					"buffer_bytes": len(d.buffer),
				}).Debug("beast: no sync byte, dropping buffer")
			}
			d.buffer = d.buffer[:0]
			break
		}

		if syncIndex > 0 {
			// discard the garbage that precedes the sync byte
			d.buffer = d.buffer[syncIndex:]
		}

		if len(d.buffer) < 2 {
			break
		}

		messageType := d.buffer[1]
		messageLen := d.getMessageLength(messageType)

		if messageLen == 0 {
			d.logger.WithFields(logrus.Fields{
				"message_type": fmt.Sprintf("0x%02x", messageType),
			}).Debug("beast: unrecognized message type byte, resyncing")
			d.buffer = d.buffer[1:]
			continue
		}

		if len(d.buffer) < messageLen {
			// frame not fully buffered yet
			break
		}

		messageData := make([]byte, messageLen)
		copy(messageData, d.buffer[:messageLen])

		msg, err := d.decodeMessage(messageData)
		if err != nil {
			d.logger.WithError(err).Debug("beast: frame rejected, resyncing")
			d.buffer = d.buffer[1:]
			continue
		}

		d.logger.WithFields(logrus.Fields{
			"message_type": fmt.Sprintf("0x%02x", msg.MessageType),
			"signal":       msg.Signal,
			"payload_len":  len(msg.Data),
		}).Debug("beast: frame decoded")

		messages = append(messages, msg)
		d.buffer = d.buffer[messageLen:]
	}

	if len(d.buffer) > 2048 {
		// nothing valid has synced in a long while; stop accumulating
		d.buffer = d.buffer[:0]
	}

	return messages, nil
}

// getMessageLength returns the total on-wire frame length (sync + type +
// timestamp + signal + payload) for a Beast message type, or 0 if unknown.
func (d *Decoder) getMessageLength(messageType byte) int {
	switch messageType {
	case ModeAC:
		return 11 // 1 sync + 1 type + 6 timestamp + 1 signal + 2 data
	case ModeS:
		return 16 // 1 sync + 1 type + 6 timestamp + 1 signal + 7 data
	case ModeSLong:
		return 23 // 1 sync + 1 type + 6 timestamp + 1 signal + 14 data
	case ModeStatus:
		return 11 // 1 sync + 1 type + 6 timestamp + 1 signal + 2 data
	default:
		return 0
	}
}

// decodeMessage parses one already-length-delimited frame (sync byte
// through the last payload byte) into a Message.
func (d *Decoder) decodeMessage(data []byte) (*Message, error) {
	if len(data) < 9 {
		return nil, fmt.Errorf("beast: frame too short: %d bytes", len(data))
	}

	if data[0] != SyncByte {
		return nil, fmt.Errorf("beast: expected sync byte, got 0x%02x", data[0])
	}

	messageType := data[1]

	// 48-bit, 12MHz counter, big-endian
	var ticks uint64
	for i := 0; i < 6; i++ {
		ticks = (ticks << 8) | uint64(data[2+i])
	}

	// No external time sync is available in this path, so timestamps are
	// anchored to wall-clock now minus the elapsed tick count rather than
	// to the receiver's own clock.
	capturedAt := time.Now().Add(-time.Duration(ticks) * time.Microsecond / 12)

	signal := data[8]

	expectedLen := d.getMessageLength(messageType)
	if len(data) < expectedLen {
		return nil, fmt.Errorf("beast: short frame: got %d bytes, want %d", len(data), expectedLen)
	}

	payload := make([]byte, expectedLen-9) // header is sync+type+timestamp+signal = 9 bytes
	copy(payload, data[9:expectedLen])
	payload = d.unescapeData(payload)

	return &Message{
		MessageType: messageType,
		Timestamp:   capturedAt,
		Signal:      signal,
		Data:        payload,
		Raw:         data,
	}, nil
}

// unescapeData collapses Beast's doubled 0x1A escape sequences back into a
// single 0x1A byte.
func (d *Decoder) unescapeData(data []byte) []byte {
	result := make([]byte, 0, len(data))

	for i := 0; i < len(data); i++ {
		if data[i] == 0x1A && i+1 < len(data) {
			result = append(result, data[i+1])
			i++
		} else {
			result = append(result, data[i])
		}
	}

	return result
}
