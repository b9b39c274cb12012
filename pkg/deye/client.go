// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deye

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/deyestat/pkg/transport"
)

// Transport exchanges one request frame for one response buffer
type Transport interface {
	SendReceive(ctx context.Context, frame []byte) ([]byte, error)
	Close() error
}

// Client runs request/response exchanges with one logger
type Client struct {
	transport Transport
	encoder   *Encoder
	stats     *Statistics
	catalog   Catalog
	serial    uint32
	log       zerolog.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithSerial sets the logger serial, skipping discovery
func WithSerial(serial uint32) ClientOption {
	return func(c *Client) { c.serial = serial }
}

// WithCounter shares a sequence counter between clients
func WithCounter(counter *Counter) ClientOption {
	return func(c *Client) { c.encoder = NewEncoder(counter) }
}

// WithLogger sets the diagnostic logger
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// WithClientCatalog replaces the register map used to decode responses
func WithClientCatalog(catalog Catalog) ClientOption {
	return func(c *Client) { c.catalog = catalog }
}

// NewClient creates a client over t
func NewClient(t Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: t,
		encoder:   NewEncoder(nil),
		stats:     NewStatistics(),
		catalog:   DefaultCatalog(),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "client").Logger()
	return c
}

// Serial returns the logger serial in use (0 before discovery)
func (c *Client) Serial() uint32 {
	return c.serial
}

// Statistics returns the exchange statistics
func (c *Client) Statistics() *Statistics {
	return c.stats
}

// Discover reads one register addressed to serial 0. The logger answers
// with its own serial in the envelope, which the client adopts.
func (c *Client) Discover(ctx context.Context) (uint32, error) {
	req, err := NewReadRequest(0, 1)
	if err != nil {
		return 0, err
	}
	f, err := c.exchange(ctx, 0, req)
	if err != nil {
		return 0, fmt.Errorf("discovery failed: %w", err)
	}
	c.serial = f.Serial()
	c.log.Info().Str("serial", FormatSerial(c.serial)).Msg("discovered logger")
	return c.serial, nil
}

// ReadRegisters reads count holding registers starting at start and decodes
// them against the catalog. The frame is returned even when its checksums
// disagree; check Frame.Suspect.
func (c *Client) ReadRegisters(ctx context.Context, start, count uint16) (*Frame, error) {
	req, err := NewReadRequest(start, count)
	if err != nil {
		return nil, err
	}
	return c.exchange(ctx, c.serial, req)
}

// Exchange sends an arbitrary request to the configured serial
func (c *Client) Exchange(ctx context.Context, req *Request) (*Frame, error) {
	return c.exchange(ctx, c.serial, req)
}

func (c *Client) exchange(ctx context.Context, serial uint32, req *Request) (*Frame, error) {
	out, err := c.encoder.Encode(serial, req)
	if err != nil {
		return nil, err
	}

	log := c.log.With().Uint16("seq", out.Sequence()).Logger()
	log.Debug().Str("frame", HexDump(out.Bytes())).Msg("sending")

	raw, err := c.transport.SendReceive(ctx, out.Bytes())
	if err != nil {
		if errors.Is(err, transport.ErrTimeout) {
			c.stats.RecordTimeout()
		} else {
			c.stats.RecordTransportError()
		}
		log.Warn().Err(err).Msg("exchange failed")
		return nil, err
	}
	log.Debug().Str("frame", HexDump(raw)).Msg("received")

	f, err := DecodeFrame(raw, WithStartRegister(req.StartRegister()), WithCatalog(c.catalog))
	anomalies := []ValidationError{}
	if f != nil && err == nil {
		anomalies = ValidateFrame(f)
	}
	c.stats.Update(err, anomalies)
	if err != nil {
		log.Warn().Err(err).Msg("undecodable response")
		return f, err
	}

	for _, a := range anomalies {
		log.Warn().Str("anomaly", a.Type.String()).Msg(a.Message)
	}
	if !f.IsResponse() {
		return f, fmt.Errorf("%w: expected a response frame, got control code 0x%04X", ErrMalformedSchema, f.ControlCode())
	}
	if m := f.Message(); m != nil {
		if ex := m.Exception(); ex != nil {
			return f, ex
		}
	}
	return f, nil
}

// Close closes the transport
func (c *Client) Close() error {
	return c.transport.Close()
}
