package netreactor

import (
	"bufio"
	"context"
	"net"
	"sync/atomic"
)

// sbsInCount tracks lines received on SbsIn connections. Per the resolved
// Open Question, SbsIn is a counts-only stub: BaseStation CSV carries no
// raw Mode S payload, so there's nothing to re-decode into a Message.
// Clients are still accepted and drained so they don't back up or see
// connection resets.
var sbsInCount uint64

// SbsInCount returns the number of lines received across all SbsIn
// connections since startup.
func SbsInCount() uint64 {
	return atomic.LoadUint64(&sbsInCount)
}

// StartSbsIn accepts SbsIn connections on addr for the lifetime of ctx,
// counting and discarding every line received.
func StartSbsIn(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go drainSbsIn(conn)
		}
	}()
	return nil
}

func drainSbsIn(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		atomic.AddUint64(&sbsInCount, 1)
	}
}
