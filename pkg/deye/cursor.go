// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deye

import "fmt"

// Cursor reads forward through an immutable byte buffer.
// Reading past the end is an error, never a silent zero.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor creates a cursor positioned at the start of buf
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Pos returns the current byte offset
func (c *Cursor) Pos() int {
	return c.pos
}

// Len returns the total buffer length
func (c *Cursor) Len() int {
	return len(c.buf)
}

// Remaining returns the number of unread bytes
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.pos
}

// Read consumes exactly n bytes. The returned slice is a copy.
func (c *Cursor) Read(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative read of %d bytes", ErrMalformedSchema, n)
	}
	if n > c.Remaining() {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, %d remaining", ErrTruncatedInput, n, c.pos, c.Remaining())
	}
	out := make([]byte, n)
	copy(out, c.buf[c.pos:c.pos+n])
	c.pos += n
	return out, nil
}

// Rest consumes and returns every unread byte (nil when none are left)
func (c *Cursor) Rest() []byte {
	if c.Remaining() == 0 {
		return nil
	}
	out, _ := c.Read(c.Remaining())
	return out
}
