// Package netreactor implements the receiver's single cooperative network
// event loop and its protocol endpoints: raw-hex fan-out/fan-in,
// BaseStation (SBS) fan-out/fan-in, and an HTTP/JSON + WebSocket server.
package netreactor

import (
	"bytes"
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"go1090/internal/modes"
	"go1090/internal/registry"
)

// lineBufferCap is the fixed per-connection receive buffer size for the
// line-oriented protocols (RawIn/SbsIn); excess input is discarded rather
// than grown unboundedly.
const lineBufferCap = 1024

// Decoder is the subset of FrameDecoder the reactor needs to turn
// RawIn-injected hex frames back into Messages.
type Decoder interface {
	Decode(frame modes.RawFrame, nowEpochS uint32) *modes.Message
}

// Sink receives messages recovered from RawIn/SbsIn so they can be fed back
// into the AircraftRegistry exactly like demodulator output.
type Sink interface {
	Ingest(msg *modes.Message, nowMs int64) *registry.Aircraft
}

// Config configures which services the reactor starts.
type Config struct {
	RawOutAddr string // default ":30002"
	RawInAddr  string // default ":30001"
	SbsOutAddr string // default ":30003"
	SbsInAddr  string // same port as SbsOut in the historical protocol
	HTTPAddr   string // default ":8080"
	WebRoot    string
	WebPage    string
}

type connection struct {
	id        int
	service   string
	conn      net.Conn
	keepAlive bool
	buf       []byte
}

// Reactor is the single-threaded cooperative event loop described by the
// spec: listener Accept loops run in their own goroutines (the concurrency
// primitive Go offers in place of manual non-blocking accept()), but all
// protocol state mutation and fan-out happens inside Poll, called from the
// pipeline consumer at >=4Hz, so no two goroutines ever touch a
// connection's buffer concurrently.
type Reactor struct {
	cfg     Config
	logger  *logrus.Logger
	decoder Decoder
	sink    Sink

	mu        sync.Mutex
	nextID    int
	rawOut    map[int]*connection
	sbsOut    map[int]*connection
	listeners []net.Listener

	incoming chan incomingLine

	lastErr error
}

type incomingLine struct {
	service string
	line    string
}

// NewReactor returns a Reactor bound to the given decoder/sink for
// RawIn/SbsIn injection.
func NewReactor(cfg Config, logger *logrus.Logger, decoder Decoder, sink Sink) *Reactor {
	return &Reactor{
		cfg:      cfg,
		logger:   logger,
		decoder:  decoder,
		sink:     sink,
		rawOut:   make(map[int]*connection),
		sbsOut:   make(map[int]*connection),
		incoming: make(chan incomingLine, 256),
	}
}

// Start opens every configured listener and spawns one Accept goroutine per
// service. It returns once all listeners are bound, or the first bind
// error.
func (r *Reactor) Start(ctx context.Context) error {
	services := []struct {
		addr    string
		handler func(net.Conn)
	}{
		{r.cfg.RawOutAddr, r.acceptRawOut},
		{r.cfg.RawInAddr, r.acceptRawIn},
		{r.cfg.SbsOutAddr, r.acceptSbsOut},
	}

	for _, svc := range services {
		if svc.addr == "" {
			continue
		}
		ln, err := net.Listen("tcp", svc.addr)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.listeners = append(r.listeners, ln)
		r.mu.Unlock()

		go func(ln net.Listener, handler func(net.Conn)) {
			for {
				conn, err := ln.Accept()
				if err != nil {
					select {
					case <-ctx.Done():
						return
					default:
					}
					r.logger.WithError(err).Debug("accept failed")
					return
				}
				handler(conn)
			}
		}(ln, svc.handler)
	}

	go func() {
		<-ctx.Done()
		r.Close()
	}()

	return nil
}

func (r *Reactor) addConn(service string, c net.Conn) *connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	conn := &connection{
		id:      r.nextID,
		service: service,
		conn:    c,
		buf:     make([]byte, 0, lineBufferCap),
	}
	switch service {
	case "rawout":
		r.rawOut[conn.id] = conn
	case "sbsout":
		r.sbsOut[conn.id] = conn
	}
	return conn
}

func (r *Reactor) acceptRawOut(c net.Conn) { r.addConn("rawout", c) }
func (r *Reactor) acceptSbsOut(c net.Conn) { r.addConn("sbsout", c) }

// acceptRawIn runs the RawIn line-reader loop in its own goroutine (mirrors
// Go's usual per-connection-goroutine idiom) but only ever *enqueues*
// parsed lines onto r.incoming; decoding and registry mutation happen
// inside Poll, preserving the single-writer contract on the registry.
//
// Lines are accumulated by hand rather than via bufio.Scanner because
// Scanner treats ErrTooLong as a terminal error and stops the loop; §7
// requires a BufferOverflow on a line service to drop the current buffer
// and keep reading, not to close the client.
func (r *Reactor) acceptRawIn(c net.Conn) {
	go func() {
		defer c.Close()
		buf := make([]byte, 0, lineBufferCap)
		chunk := make([]byte, 512)
		for {
			n, err := c.Read(chunk)
			if n > 0 {
				buf = append(buf, chunk[:n]...)
				for {
					idx := bytes.IndexByte(buf, '\n')
					if idx < 0 {
						break
					}
					line := strings.TrimRight(string(buf[:idx]), "\r")
					r.incoming <- incomingLine{service: "rawin", line: line}
					buf = buf[idx+1:]
				}
				if len(buf) > lineBufferCap {
					buf = buf[:0]
				}
			}
			if err != nil {
				return
			}
		}
	}()
}

// Poll drains queued RawIn/SbsIn input and dispatches it to the decoder.
// It must be called at least at 4Hz from the pipeline consumer.
func (r *Reactor) Poll(now time.Time) {
	for {
		select {
		case l := <-r.incoming:
			r.dispatch(l, now)
		default:
			return
		}
	}
}

func (r *Reactor) dispatch(l incomingLine, now time.Time) {
	switch l.service {
	case "rawin":
		frame, ok := ParseRawLine(l.line)
		if !ok {
			return
		}
		msg := r.decoder.Decode(frame, uint32(now.Unix()))
		if msg != nil {
			r.sink.Ingest(msg, now.UnixMilli())
			r.BroadcastRaw(frame)
		}
	}
}

// BroadcastRaw writes "*" + upper_hex(payload) + ";\n" to every connected
// RawOut client.
func (r *Reactor) BroadcastRaw(frame modes.RawFrame) {
	line := FormatRawLine(frame)
	r.mu.Lock()
	conns := make([]*connection, 0, len(r.rawOut))
	for _, c := range r.rawOut {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		if _, err := c.conn.Write([]byte(line)); err != nil {
			r.removeConn("rawout", c.id)
		}
	}
}

// BroadcastSbs writes one BaseStation CSV line to every connected SbsOut
// client.
func (r *Reactor) BroadcastSbs(line string) {
	r.mu.Lock()
	conns := make([]*connection, 0, len(r.sbsOut))
	for _, c := range r.sbsOut {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	out := line + "\n"
	for _, c := range conns {
		if _, err := c.conn.Write([]byte(out)); err != nil {
			r.removeConn("sbsout", c.id)
		}
	}
}

func (r *Reactor) removeConn(service string, id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch service {
	case "rawout":
		if c, ok := r.rawOut[id]; ok {
			c.conn.Close()
			delete(r.rawOut, id)
		}
	case "sbsout":
		if c, ok := r.sbsOut[id]; ok {
			c.conn.Close()
			delete(r.sbsOut, id)
		}
	}
}

// Close shuts down every listener and open connection.
func (r *Reactor) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ln := range r.listeners {
		ln.Close()
	}
	for _, c := range r.rawOut {
		c.conn.Close()
	}
	for _, c := range r.sbsOut {
		c.conn.Close()
	}
}
