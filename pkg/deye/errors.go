// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deye

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every decode or construction error unwraps to one of these.
var (
	ErrTruncatedInput   = errors.New("truncated input")
	ErrOutOfRange       = errors.New("value out of range")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrMalformedSchema  = errors.New("malformed schema")
)

// DecodeError reports where in a buffer a decode failed.
// Index is the schema entry index, or -1 when the error is not tied to a schema.
type DecodeError struct {
	Offset int
	Index  int
	Entry  string
	Err    error
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("decode %s (entry %d) at offset %d: %v", e.Entry, e.Index, e.Offset, e.Err)
	}
	return fmt.Sprintf("decode %s at offset %d: %v", e.Entry, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ChecksumKind identifies which of the two checksums failed
type ChecksumKind int

const (
	ChecksumEnvelope ChecksumKind = iota
	ChecksumModbus
)

func (k ChecksumKind) String() string {
	switch k {
	case ChecksumEnvelope:
		return "envelope checksum"
	case ChecksumModbus:
		return "modbus CRC"
	default:
		return "checksum"
	}
}

// ChecksumError reports a recomputed checksum that disagrees with the wire value.
// Offset is the position of the checksum within the buffer it was read from.
type ChecksumError struct {
	Kind     ChecksumKind
	Offset   int
	Expected uint16
	Got      uint16
}

// Error implements the error interface
func (e *ChecksumError) Error() string {
	if e.Kind == ChecksumEnvelope {
		return fmt.Sprintf("%s mismatch at offset %d: expected 0x%02X, got 0x%02X", e.Kind, e.Offset, e.Expected, e.Got)
	}
	return fmt.Sprintf("%s mismatch at offset %d: expected 0x%04X, got 0x%04X", e.Kind, e.Offset, e.Expected, e.Got)
}

func (e *ChecksumError) Unwrap() error {
	return ErrChecksumMismatch
}

func outOfRange(name string, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w: %s", name, ErrOutOfRange, fmt.Sprintf(format, args...))
}
