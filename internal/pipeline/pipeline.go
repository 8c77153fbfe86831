// Package pipeline implements the single-producer/single-consumer
// concurrency boundary between sample capture and demodulation: a
// double-buffer with a tail-copy so frames straddling a buffer boundary are
// detected exactly once, and a bounded ready signal in place of a literal
// busy-wait on a flag byte.
package pipeline

import "sync"

// DataLen is the nominal fresh-byte payload per buffer (256 KiB, 128 Ki
// complex samples at 2 Msps).
const DataLen = 256 * 1024

// tailBytes is copied from the end of the previous buffer into the head of
// the next one so a frame spanning the boundary is seen whole exactly once.
// fullLenSamples is the Demodulator's FullLen in magnitude samples (2 I/Q
// bytes per sample); the tail is 4*(fullLenSamples-1) bytes, which covers
// 2*(fullLenSamples-1) samples.
func tailBytes(fullLenSamples int) int {
	return 4 * (fullLenSamples - 1)
}

// DoubleBuffer holds two raw I/Q byte buffers and the tail-copy/append
// bookkeeping described by the spec: the producer writes into "next",
// copying the previous buffer's tail to the head first; the consumer reads
// the buffer most recently marked ready. The mutex scope is the minimum
// that protects the pair of buffer slots and the ready index — never held
// across a network send.
type DoubleBuffer struct {
	fullLen int // demodulator FullLen, in samples

	mu      sync.Mutex
	buf     [2][]byte
	readyAt int // index of the buffer last marked ready, or -1
	signal  chan struct{}
}

// NewDoubleBuffer returns a DoubleBuffer sized for a demodulator with the
// given FullLen (samples).
func NewDoubleBuffer(fullLen int) *DoubleBuffer {
	tail := tailBytes(fullLen)
	db := &DoubleBuffer{
		fullLen: fullLen,
		readyAt: -1,
		signal:  make(chan struct{}, 1),
	}
	db.buf[0] = make([]byte, 0, tail+DataLen)
	db.buf[1] = make([]byte, 0, tail+DataLen)
	return db
}

// Push appends fresh I/Q bytes to the inactive buffer slot, prefixed with
// the tail of whichever buffer was last published, and publishes it. If the
// consumer hasn't yet picked up the previous buffer, it is dropped — the
// spec's explicit "producer overtakes consumer" back-pressure policy.
func (db *DoubleBuffer) Push(fresh []byte) {
	db.mu.Lock()
	prev := db.readyAt
	next := 0
	if prev == 0 {
		next = 1
	}

	tail := tailBytes(db.fullLen)
	dst := db.buf[next][:0]
	if prev >= 0 {
		prevBuf := db.buf[prev]
		start := len(prevBuf) - tail
		if start < 0 {
			start = 0
		}
		dst = append(dst, prevBuf[start:]...)
	}
	dst = append(dst, fresh...)
	db.buf[next] = dst
	db.readyAt = next
	db.mu.Unlock()

	select {
	case db.signal <- struct{}{}:
	default:
		// a buffer is already pending pickup; the consumer will see the
		// latest readyAt when it next drains the signal, the older data
		// having already been overwritten per the drop-on-overtake policy.
	}
}

// Ready blocks until a buffer has been published, or the channel closes.
func (db *DoubleBuffer) Ready() <-chan struct{} {
	return db.signal
}

// Take returns a copy-free view of the most recently published buffer.
// Callers must not retain the slice past their next Take/Push cycle — the
// producer may overwrite it.
func (db *DoubleBuffer) Take() []byte {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.readyAt < 0 {
		return nil
	}
	return db.buf[db.readyAt]
}
