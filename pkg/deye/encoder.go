// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deye

import (
	"fmt"
	"strconv"
	"sync/atomic"
)

// SerialDigits is the number of decimal digits in a logger serial
const SerialDigits = 10

// Counter hands out envelope sequence numbers. It is safe for concurrent
// use and wraps from 0xFFFF to 0.
type Counter struct {
	n atomic.Uint32
}

// NewCounter creates a counter whose first Next returns initial
func NewCounter(initial uint16) *Counter {
	c := &Counter{}
	c.n.Store(uint32(initial))
	return c
}

// Next returns the current sequence number and advances the counter
func (c *Counter) Next() uint16 {
	return uint16(c.n.Add(1) - 1)
}

// Peek returns the sequence number the next frame will carry
func (c *Counter) Peek() uint16 {
	return uint16(c.n.Load())
}

// Encoder wraps Modbus requests in logger envelopes.
// Every encoded frame takes the next value from the counter.
type Encoder struct {
	counter *Counter
}

// NewEncoder creates an encoder. A nil counter starts a fresh one at zero.
func NewEncoder(counter *Counter) *Encoder {
	if counter == nil {
		counter = NewCounter(0)
	}
	return &Encoder{counter: counter}
}

// Encode wraps req in a request envelope addressed to serial
func (e *Encoder) Encode(serial uint32, req *Request) (*Frame, error) {
	f, err := EncodeFrame(ControlRequest, e.counter.Next(), serial, req.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return f, nil
}

// EncodeRead builds a read request for count registers at start
func (e *Encoder) EncodeRead(serial uint32, start, count uint16) (*Frame, error) {
	req, err := NewReadRequest(start, count)
	if err != nil {
		return nil, err
	}
	return e.Encode(serial, req)
}

// ParseSerial converts a logger serial written in decimal to its wire value
func ParseSerial(s string) (uint32, error) {
	if s == "" || len(s) > SerialDigits {
		return 0, outOfRange(NameSerial, "%q is not a %d digit serial", s, SerialDigits)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, outOfRange(NameSerial, "%q is not a %d digit serial", s, SerialDigits)
		}
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, outOfRange(NameSerial, "%s does not fit 32 bits", s)
	}
	return uint32(n), nil
}

// FormatSerial renders a serial as the ten digits printed on the logger
func FormatSerial(serial uint32) string {
	return fmt.Sprintf("%0*d", SerialDigits, serial)
}
