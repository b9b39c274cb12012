// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// FrameGap is the line silence that ends a response on a serial link
const FrameGap = 50 * time.Millisecond

// Serial talks to a logger wired to a local serial port. A response ends
// at the first silence longer than FrameGap.
type Serial struct {
	mu      sync.Mutex
	port    serial.Port
	timeout time.Duration
	log     zerolog.Logger
}

// OpenSerial opens a serial port at 8N1
func OpenSerial(portName string, baudRate int, timeout time.Duration, log zerolog.Logger) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open serial port %s: %w", ErrConnection, portName, err)
	}

	log.Debug().Str("port", portName).Int("baud", baudRate).Msg("serial port open")
	return NewSerial(port, timeout, log), nil
}

// NewSerial wraps an open port
func NewSerial(port serial.Port, timeout time.Duration, log zerolog.Logger) *Serial {
	return &Serial{port: port, timeout: timeout, log: log}
}

// SendReceive writes one frame and collects the response
func (s *Serial) SendReceive(ctx context.Context, frame []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.port.ResetInputBuffer(); err != nil {
		return nil, classify("serial reset", err)
	}
	if _, err := s.port.Write(frame); err != nil {
		return nil, classify("serial write", err)
	}

	wait := s.timeout
	if d, ok := ctx.Deadline(); ok && time.Until(d) < wait {
		wait = time.Until(d)
	}
	if err := s.port.SetReadTimeout(wait); err != nil {
		return nil, classify("serial timeout", err)
	}

	buf := make([]byte, MaxFrameSize)
	total := 0
	for total < len(buf) {
		if err := ctx.Err(); err != nil {
			return nil, classify("serial read", err)
		}
		n, err := s.port.Read(buf[total:])
		if err != nil {
			return nil, classify("serial read", err)
		}
		if n == 0 {
			break
		}
		total += n
		if err := s.port.SetReadTimeout(FrameGap); err != nil {
			return nil, classify("serial timeout", err)
		}
	}

	if total == 0 {
		return nil, classify("serial read", fmt.Errorf("%w: no response within %v", ErrTimeout, wait))
	}
	s.log.Trace().Int("bytes", total).Msg("received")
	return buf[:total], nil
}

// Close closes the port
func (s *Serial) Close() error {
	return s.port.Close()
}
