package beast

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// buildFrame assembles a complete Beast wire frame: sync, type, a 6-byte
// timestamp, a signal byte, and the given unescaped payload.
func buildFrame(msgType byte, payload []byte) []byte {
	frame := []byte{SyncByte, msgType, 0, 0, 0, 0, 0, 1, 0x80}
	frame = append(frame, payload...)
	return frame
}

func TestDecoder_Decode_ModeSLongComplete(t *testing.T) {
	d := NewDecoder(discardLogger())
	payload := []byte{0x8D, 0x4B, 0x96, 0x96, 0x99, 0x15, 0x56, 0x00, 0xE8, 0x74, 0x06, 0xF5, 0xB6, 0x9F}
	frame := buildFrame(ModeSLong, payload)

	msgs, err := d.Decode(frame)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, ModeSLong, msgs[0].MessageType)
	assert.Equal(t, payload, msgs[0].Data)
	assert.Equal(t, byte(0x80), msgs[0].Signal)
	assert.Equal(t, uint32(0x4B9696), msgs[0].GetICAO())
	assert.Equal(t, byte(17), msgs[0].GetDF())
	assert.True(t, msgs[0].IsValid())
}

func TestDecoder_Decode_ModeSShortComplete(t *testing.T) {
	d := NewDecoder(discardLogger())
	payload := []byte{0x20, 0x00, 0x18, 0x38, 0xFA, 0x6D, 0x91}
	frame := buildFrame(ModeS, payload)

	msgs, err := d.Decode(frame)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, payload, msgs[0].Data)
	assert.Equal(t, byte(4), msgs[0].GetDF())
}

func TestDecoder_Decode_AccumulatesAcrossCalls(t *testing.T) {
	d := NewDecoder(discardLogger())
	payload := []byte{0x20, 0x00, 0x18, 0x38, 0xFA, 0x6D, 0x91}
	frame := buildFrame(ModeS, payload)

	msgs, err := d.Decode(frame[:5])
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = d.Decode(frame[5:])
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, payload, msgs[0].Data)
}

func TestDecoder_Decode_SkipsGarbageBeforeSync(t *testing.T) {
	d := NewDecoder(discardLogger())
	payload := []byte{0x20, 0x00, 0x18, 0x38, 0xFA, 0x6D, 0x91}
	frame := buildFrame(ModeS, payload)
	withGarbage := append([]byte{0xFF, 0xFF, 0xFF}, frame...)

	msgs, err := d.Decode(withGarbage)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, payload, msgs[0].Data)
}

func TestDecoder_Decode_SkipsUnknownMessageType(t *testing.T) {
	d := NewDecoder(discardLogger())
	payload := []byte{0x20, 0x00, 0x18, 0x38, 0xFA, 0x6D, 0x91}
	good := buildFrame(ModeS, payload)
	bogus := []byte{SyncByte, 0xFE}
	stream := append(bogus, good...)

	msgs, err := d.Decode(stream)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, payload, msgs[0].Data)
}

func TestDecoder_Decode_TwoMessagesBackToBack(t *testing.T) {
	d := NewDecoder(discardLogger())
	p1 := []byte{0x20, 0x00, 0x18, 0x38, 0xFA, 0x6D, 0x91}
	p2 := []byte{0x5D, 0x4B, 0x96, 0x96, 0x12, 0x34, 0x56}
	stream := append(buildFrame(ModeS, p1), buildFrame(ModeS, p2)...)

	msgs, err := d.Decode(stream)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, p1, msgs[0].Data)
	assert.Equal(t, p2, msgs[1].Data)
}

func TestUnescapeData_RemovesDoubled0x1A(t *testing.T) {
	d := NewDecoder(discardLogger())
	got := d.unescapeData([]byte{0x05, 0x1A, 0x1A, 0x06})
	assert.Equal(t, []byte{0x05, 0x1A, 0x06}, got)
}

func TestUnescapeData_NoEscapesUnchanged(t *testing.T) {
	d := NewDecoder(discardLogger())
	got := d.unescapeData([]byte{0x01, 0x02, 0x03})
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, got)
}

func TestMessage_GetICAO_WrongTypeReturnsZero(t *testing.T) {
	msg := &Message{MessageType: ModeAC, Data: []byte{0x12, 0x34}}
	assert.Equal(t, uint32(0), msg.GetICAO())
}

func TestMessage_GetSquawk_KnownBitPattern(t *testing.T) {
	// data {0x12,0x34} remapped from Beast's A1..D4 wire order into the
	// id13 field layout gives 0x0D24, which DecodeID13Field reads as the
	// four octal digits 1-1-6-2.
	msg := &Message{MessageType: ModeAC, Data: []byte{0x12, 0x34}}
	assert.Equal(t, 1162, msg.GetSquawk())
}

func TestMessage_GetSquawk_WrongTypeReturnsZero(t *testing.T) {
	msg := &Message{MessageType: ModeS, Data: []byte{0x12, 0x34}}
	assert.Equal(t, 0, msg.GetSquawk())
}

func TestMessage_ToRawFrame_ModeSLong(t *testing.T) {
	payload := []byte{0x8D, 0x4B, 0x96, 0x96, 0x99, 0x15, 0x56, 0x00, 0xE8, 0x74, 0x06, 0xF5, 0xB6, 0x9F}
	msg := &Message{MessageType: ModeSLong, Data: payload}

	frame, ok := msg.ToRawFrame()
	require.True(t, ok)
	assert.Equal(t, 112, frame.Bits)
	var want [14]byte
	copy(want[:], payload)
	assert.Equal(t, want, frame.Payload)
}

func TestMessage_ToRawFrame_RejectsNonModeS(t *testing.T) {
	msg := &Message{MessageType: ModeAC, Data: []byte{0x12, 0x34}}
	_, ok := msg.ToRawFrame()
	assert.False(t, ok)
}

func TestMessage_ToRawFrame_RejectsShortPayload(t *testing.T) {
	msg := &Message{MessageType: ModeS, Data: []byte{0x01, 0x02, 0x03}}
	_, ok := msg.ToRawFrame()
	assert.False(t, ok)
}

func TestMessage_IsValid_LengthThresholds(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
		want bool
	}{
		{"empty data always invalid", Message{MessageType: ModeS, Data: nil}, false},
		{"modeAC needs 2 bytes", Message{MessageType: ModeAC, Data: []byte{1}}, false},
		{"modeAC ok at 2 bytes", Message{MessageType: ModeAC, Data: []byte{1, 2}}, true},
		{"modeS needs 7 bytes", Message{MessageType: ModeS, Data: make([]byte, 6)}, false},
		{"modeS ok at 7 bytes", Message{MessageType: ModeS, Data: make([]byte, 7)}, true},
		{"modeSLong needs 14 bytes", Message{MessageType: ModeSLong, Data: make([]byte, 13)}, false},
		{"modeSLong ok at 14 bytes", Message{MessageType: ModeSLong, Data: make([]byte, 14)}, true},
		{"unknown type invalid", Message{MessageType: 0xFF, Data: []byte{1, 2}}, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.msg.IsValid(), c.name)
	}
}
