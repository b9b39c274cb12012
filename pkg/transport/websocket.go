// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WebSocketOptions configures a bridge connection
type WebSocketOptions struct {
	Username      string
	Password      string
	SkipSSLVerify bool
	Timeout       time.Duration
}

// WebSocket talks to a logger through a bridge that relays binary
// WebSocket messages to the logger's TCP port
type WebSocket struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
	log     zerolog.Logger
}

// DialWebSocket opens a bridge connection with optional HTTP Basic auth
func DialWebSocket(ctx context.Context, wsURL string, opts WebSocketOptions, log zerolog.Logger) (*WebSocket, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL: %w", ErrConnection, err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("%w: unsupported URL scheme: %s (use ws:// or wss://)", ErrConnection, u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: opts.Timeout,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: opts.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if opts.Username != "" && opts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, classify(fmt.Sprintf("websocket handshake (HTTP %d)", resp.StatusCode), err)
		}
		return nil, classify("websocket dial", err)
	}

	log.Debug().Str("url", wsURL).Msg("websocket connected")
	return NewWebSocket(conn, opts.Timeout, log), nil
}

// NewWebSocket wraps an established connection
func NewWebSocket(conn *websocket.Conn, timeout time.Duration, log zerolog.Logger) *WebSocket {
	return &WebSocket{conn: conn, timeout: timeout, log: log}
}

// SendReceive writes one binary message and returns the next binary
// message. Text messages from the bridge are logged and skipped.
func (w *WebSocket) SendReceive(ctx context.Context, frame []byte) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	deadline := time.Now().Add(w.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	stop := context.AfterFunc(ctx, func() {
		_ = w.conn.UnderlyingConn().SetDeadline(time.Now())
	})
	defer stop()

	_ = w.conn.SetWriteDeadline(deadline)
	if err := w.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil, classify("websocket write", contextErr(ctx, err))
	}

	_ = w.conn.SetReadDeadline(deadline)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			return nil, classify("websocket read", contextErr(ctx, err))
		}
		if messageType != websocket.BinaryMessage {
			w.log.Debug().Str("message", string(data)).Msg("skipping non-binary message")
			continue
		}
		if len(data) > MaxFrameSize {
			data = data[:MaxFrameSize]
		}
		return data, nil
	}
}

// Close sends a close message and closes the connection
func (w *WebSocket) Close() error {
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return w.conn.Close()
}

func contextErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
