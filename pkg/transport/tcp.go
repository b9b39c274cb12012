// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TCP talks to a logger on its TCP port (usually 8899)
type TCP struct {
	mu      sync.Mutex
	conn    net.Conn
	timeout time.Duration
	log     zerolog.Logger
}

// DialTCP connects to addr. timeout bounds the dial and every exchange.
func DialTCP(ctx context.Context, addr string, timeout time.Duration, log zerolog.Logger) (*TCP, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return nil, fmt.Errorf("%w: invalid address %q: %w", ErrConnection, addr, err)
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classify("dial "+addr, err)
	}

	log.Debug().Str("addr", addr).Dur("timeout", timeout).Msg("connected")
	return NewTCP(conn, timeout, log), nil
}

// NewTCP wraps an established connection
func NewTCP(conn net.Conn, timeout time.Duration, log zerolog.Logger) *TCP {
	return &TCP{conn: conn, timeout: timeout, log: log}
}

// SendReceive writes one frame and returns the bytes of one read.
// The exchange is bounded by the transport timeout and by ctx.
func (t *TCP) SendReceive(ctx context.Context, frame []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetDeadline(deadline); err != nil {
		return nil, classify("set deadline", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := t.conn.Write(frame); err != nil {
		return nil, t.fail(ctx, "write", err)
	}
	t.log.Trace().Int("bytes", len(frame)).Msg("sent")

	buf := make([]byte, MaxFrameSize)
	n, err := t.conn.Read(buf)
	if err != nil {
		return nil, t.fail(ctx, "read", err)
	}
	t.log.Trace().Int("bytes", n).Msg("received")
	return buf[:n], nil
}

func (t *TCP) fail(ctx context.Context, op string, err error) error {
	return classify(op, contextErr(ctx, err))
}

// Close closes the connection
func (t *TCP) Close() error {
	return t.conn.Close()
}
