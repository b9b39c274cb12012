// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

var (
	request  = []byte{0xa5, 0x17, 0x00, 0x10, 0x45}
	response = []byte{0xa5, 0x15, 0x00, 0x10, 0x15}
)

// ============================================================
// TCP
// ============================================================

// echoServer answers every read with reply; nil reply means never answer
func echoServer(t *testing.T, reply []byte) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, MaxFrameSize)
				for {
					if _, err := c.Read(buf); err != nil {
						return
					}
					if reply != nil {
						c.Write(reply)
					}
				}
			}(conn)
		}
	}()

	return ln.Addr().String()
}

func TestTCPSendReceive(t *testing.T) {
	addr := echoServer(t, response)

	tcp, err := DialTCP(context.Background(), addr, time.Second, zerolog.Nop())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tcp.Close()

	got, err := tcp.SendReceive(context.Background(), request)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, response) {
		t.Errorf("got % x, want % x", got, response)
	}
}

func TestTCPTimeout(t *testing.T) {
	addr := echoServer(t, nil)

	tcp, err := DialTCP(context.Background(), addr, 50*time.Millisecond, zerolog.Nop())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tcp.Close()

	_, err = tcp.SendReceive(context.Background(), request)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if errors.Is(err, ErrConnection) {
		t.Error("timeout also classified as connection error")
	}
}

func TestTCPContextCancel(t *testing.T) {
	addr := echoServer(t, nil)

	tcp, err := DialTCP(context.Background(), addr, 5*time.Second, zerolog.Nop())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tcp.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = tcp.SendReceive(ctx, request)
	if err == nil {
		t.Fatal("expected error")
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("context deadline ignored, took %v", time.Since(start))
	}
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestTCPConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = DialTCP(context.Background(), addr, time.Second, zerolog.Nop())
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestTCPInvalidAddress(t *testing.T) {
	_, err := DialTCP(context.Background(), "no-port-here", time.Second, zerolog.Nop())
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestTCPPeerClosed(t *testing.T) {
	client, server := net.Pipe()
	tcp := NewTCP(client, time.Second, zerolog.Nop())

	go func() {
		buf := make([]byte, 16)
		server.Read(buf)
		server.Close()
	}()

	_, err := tcp.SendReceive(context.Background(), request)
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

// ============================================================
// WebSocket
// ============================================================

func wsServer(t *testing.T, handler func(*websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); ok && (user != "admin" || pass != "secret") {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketSendReceive(t *testing.T) {
	url := wsServer(t, func(c *websocket.Conn) {
		_, data, err := c.ReadMessage()
		if err != nil || !bytes.Equal(data, request) {
			return
		}
		c.WriteMessage(websocket.TextMessage, []byte("bridge: forwarding"))
		c.WriteMessage(websocket.BinaryMessage, response)
	})

	ws, err := DialWebSocket(context.Background(), url, WebSocketOptions{
		Username: "admin",
		Password: "secret",
		Timeout:  time.Second,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	got, err := ws.SendReceive(context.Background(), request)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, response) {
		t.Errorf("got % x, want % x", got, response)
	}
}

func TestWebSocketTimeout(t *testing.T) {
	url := wsServer(t, func(c *websocket.Conn) {
		c.ReadMessage()
		time.Sleep(500 * time.Millisecond)
	})

	ws, err := DialWebSocket(context.Background(), url, WebSocketOptions{Timeout: 50 * time.Millisecond}, zerolog.Nop())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	_, err = ws.SendReceive(context.Background(), request)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestWebSocketRejectsScheme(t *testing.T) {
	_, err := DialWebSocket(context.Background(), "http://example.com", WebSocketOptions{Timeout: time.Second}, zerolog.Nop())
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestWebSocketBadCredentials(t *testing.T) {
	url := wsServer(t, func(c *websocket.Conn) {})

	_, err := DialWebSocket(context.Background(), url, WebSocketOptions{
		Username: "admin",
		Password: "wrong",
		Timeout:  time.Second,
	}, zerolog.Nop())
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("expected HTTP status in error, got %v", err)
	}
}

// ============================================================
// Serial
// ============================================================

// fakePort replays chunks, one per Read; an exhausted port times out
type fakePort struct {
	serial.Port
	written  []byte
	chunks   [][]byte
	timeouts []time.Duration
	closed   bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.chunks) == 0 {
		return 0, nil
	}
	n := copy(b, p.chunks[0])
	p.chunks = p.chunks[1:]
	return n, nil
}

func (p *fakePort) SetReadTimeout(d time.Duration) error {
	p.timeouts = append(p.timeouts, d)
	return nil
}

func (p *fakePort) ResetInputBuffer() error { return nil }

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func TestSerialCollectsChunks(t *testing.T) {
	port := &fakePort{chunks: [][]byte{response[:2], response[2:]}}
	s := NewSerial(port, time.Second, zerolog.Nop())

	got, err := s.SendReceive(context.Background(), request)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, response) {
		t.Errorf("got % x, want % x", got, response)
	}
	if !bytes.Equal(port.written, request) {
		t.Errorf("wrote % x, want % x", port.written, request)
	}
	if len(port.timeouts) < 2 || port.timeouts[0] != time.Second || port.timeouts[1] != FrameGap {
		t.Errorf("read timeouts = %v", port.timeouts)
	}

	s.Close()
	if !port.closed {
		t.Error("port not closed")
	}
}

func TestSerialTimeout(t *testing.T) {
	s := NewSerial(&fakePort{}, 10*time.Millisecond, zerolog.Nop())

	_, err := s.SendReceive(context.Background(), request)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}
