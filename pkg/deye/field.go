// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deye

import (
	"encoding/hex"
	"fmt"
	"math"
)

// Kind is the primitive representation of a field on the wire
type Kind int

const (
	KindUint      Kind = iota // fixed-width unsigned integer
	KindInt                   // fixed-width signed integer
	KindHex                   // opaque span rendered as lowercase hex
	KindBytes                 // opaque span kept as raw bytes
	KindDecimal               // signed 16-bit big-endian divided by a divisor
	KindDecimal32             // two registers, low word first, divided by a divisor
)

func (k Kind) String() string {
	switch k {
	case KindUint:
		return "uint"
	case KindInt:
		return "int"
	case KindHex:
		return "hex"
	case KindBytes:
		return "bytes"
	case KindDecimal:
		return "decimal"
	case KindDecimal32:
		return "decimal32"
	default:
		return "unknown"
	}
}

// ByteOrder of multi-byte integers
type ByteOrder int

const (
	BigEndian ByteOrder = iota
	LittleEndian
)

// Descriptor describes one field: its primitive type, width, and optional
// unit and legal range. Descriptors are values; the With* methods return
// modified copies.
type Descriptor struct {
	name        string
	description string
	unit        string
	kind        Kind
	size        int // bytes
	order       ByteOrder
	divisor     float64
	min         float64
	max         float64
	bounded     bool
}

// Uint describes an unsigned integer of the given bit width
func Uint(name string, bits int, order ByteOrder) Descriptor {
	return Descriptor{name: name, kind: KindUint, size: intWidth(name, bits), order: order}
}

// Int describes a two's complement signed integer of the given bit width
func Int(name string, bits int, order ByteOrder) Descriptor {
	return Descriptor{name: name, kind: KindInt, size: intWidth(name, bits), order: order}
}

// Hex describes an opaque span decoded to a hex string
func Hex(name string, bits int) Descriptor {
	if bits <= 0 || bits%8 != 0 {
		panic(fmt.Sprintf("deye: field %s: hex width %d is not a positive multiple of 8", name, bits))
	}
	return Descriptor{name: name, kind: KindHex, size: bits / 8}
}

// Bytes describes an opaque span of n bytes
func Bytes(name string, n int) Descriptor {
	if n <= 0 {
		panic(fmt.Sprintf("deye: field %s: byte span %d must be positive", name, n))
	}
	return Descriptor{name: name, kind: KindBytes, size: n}
}

// Decimal describes a scaled fixed-point value held in one register
func Decimal(name string, divisor float64) Descriptor {
	return Descriptor{name: name, kind: KindDecimal, size: RegisterSize, order: BigEndian, divisor: divisor}
}

// Decimal32 describes a scaled fixed-point value held in two consecutive
// registers, low word first.
func Decimal32(name string, divisor float64) Descriptor {
	return Descriptor{name: name, kind: KindDecimal32, size: 2 * RegisterSize, order: BigEndian, divisor: divisor}
}

func intWidth(name string, bits int) int {
	if bits <= 0 || bits > 64 || bits%8 != 0 {
		panic(fmt.Sprintf("deye: field %s: integer width %d not supported", name, bits))
	}
	return bits / 8
}

// WithUnit returns a copy carrying a unit label
func (d Descriptor) WithUnit(unit string) Descriptor {
	d.unit = unit
	return d
}

// WithRange returns a copy that rejects constructed values outside [min, max]
func (d Descriptor) WithRange(min, max float64) Descriptor {
	d.min, d.max, d.bounded = min, max, true
	return d
}

// WithDescription returns a copy carrying a free-form description
func (d Descriptor) WithDescription(description string) Descriptor {
	d.description = description
	return d
}

// Name returns the field name
func (d Descriptor) Name() string { return d.name }

// Description returns the free-form description
func (d Descriptor) Description() string { return d.description }

// Unit returns the unit label (may be empty)
func (d Descriptor) Unit() string { return d.unit }

// Kind returns the primitive kind
func (d Descriptor) Kind() Kind { return d.kind }

// Size returns the wire width in bytes
func (d Descriptor) Size() int { return d.size }

// Order returns the byte order used by integer kinds
func (d Descriptor) Order() ByteOrder { return d.order }

// Divisor returns the fixed-point divisor (0 for non-decimal kinds)
func (d Descriptor) Divisor() float64 { return d.divisor }

// Range returns the declared legal range, if any
func (d Descriptor) Range() (min, max float64, ok bool) {
	return d.min, d.max, d.bounded
}

// Registers returns how many Modbus registers the field spans
func (d Descriptor) Registers() int {
	return (d.size + RegisterSize - 1) / RegisterSize
}

// Decode reads the field from the cursor.
// On failure the cursor position is unspecified and the error is a *DecodeError.
func (d Descriptor) Decode(c *Cursor) (*Value, error) {
	start := c.Pos()
	raw, err := c.Read(d.size)
	if err != nil {
		return nil, &DecodeError{Offset: start, Index: -1, Entry: d.name, Err: err}
	}
	v, err := d.parse(raw)
	if err != nil {
		return nil, &DecodeError{Offset: start, Index: -1, Entry: d.name, Err: err}
	}
	return &Value{desc: d, value: v, raw: raw}, nil
}

// New constructs a value from a logical value, validating it against the
// declared range. No value is returned on error.
func (d Descriptor) New(x interface{}) (*Value, error) {
	n, err := d.normalize(x)
	if err != nil {
		return nil, err
	}
	return &Value{desc: d, value: n, stale: true}, nil
}

// Encode returns the wire bytes for a logical value
func (d Descriptor) Encode(x interface{}) ([]byte, error) {
	n, err := d.normalize(x)
	if err != nil {
		return nil, err
	}
	return d.encode(n), nil
}

// parse converts raw wire bytes to the logical value
func (d Descriptor) parse(raw []byte) (interface{}, error) {
	switch d.kind {
	case KindUint:
		return getUint(raw, d.order), nil
	case KindInt:
		shift := 64 - 8*uint(len(raw))
		return int64(getUint(raw, d.order)<<shift) >> shift, nil
	case KindHex:
		return hex.EncodeToString(raw), nil
	case KindBytes:
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	case KindDecimal:
		return float64(int16(getUint(raw, BigEndian))) / d.divisor, nil
	case KindDecimal32:
		scaled, err := d.decodeWords(raw)
		if err != nil {
			return nil, err
		}
		return float64(scaled) / d.divisor, nil
	}
	return nil, fmt.Errorf("%w: unknown field kind %d", ErrMalformedSchema, d.kind)
}

// words returns the register descriptors a two-register composite is built from.
// The low word is unsigned so that values with bit 15 set in the low register
// keep their magnitude; only the high word carries the sign.
func (d Descriptor) words() (low, high Descriptor) {
	return Uint(d.name+".low", 16, BigEndian), Int(d.name+".high", 16, BigEndian)
}

// decodeWords composes (high << 16) + low from two register reads
func (d Descriptor) decodeWords(raw []byte) (int32, error) {
	lowDesc, highDesc := d.words()
	c := NewCursor(raw)
	low, err := lowDesc.Decode(c)
	if err != nil {
		return 0, err
	}
	high, err := highDesc.Decode(c)
	if err != nil {
		return 0, err
	}
	return int32(uint32(high.Int())<<16 | uint32(low.Uint())), nil
}

// encode converts a normalized logical value to wire bytes
func (d Descriptor) encode(n interface{}) []byte {
	switch d.kind {
	case KindUint:
		return putUint(n.(uint64), d.size, d.order)
	case KindInt:
		return putUint(uint64(n.(int64)), d.size, d.order)
	case KindHex:
		raw, _ := hex.DecodeString(n.(string))
		return raw
	case KindBytes:
		out := make([]byte, d.size)
		copy(out, n.([]byte))
		return out
	case KindDecimal:
		return putUint(uint64(scale(n.(float64), d.divisor)), d.size, BigEndian)
	case KindDecimal32:
		scaled := uint32(int32(scale(n.(float64), d.divisor)))
		lowDesc, highDesc := d.words()
		out := lowDesc.encode(uint64(scaled & 0xFFFF))
		return append(out, highDesc.encode(int64(int16(scaled>>16)))...)
	}
	return nil
}

// normalize converts a caller value to the canonical logical type for the
// kind and enforces width and declared range.
func (d Descriptor) normalize(x interface{}) (interface{}, error) {
	switch d.kind {
	case KindUint:
		f, ok := toFloat(x)
		if !ok {
			return nil, fmt.Errorf("%s: cannot use %T as unsigned integer", d.name, x)
		}
		if f < 0 || f != math.Trunc(f) {
			return nil, outOfRange(d.name, "%v is not a non-negative integer", x)
		}
		u, ok := toUint(x)
		if !ok {
			return nil, outOfRange(d.name, "%v does not fit 64 bits", x)
		}
		if d.size < 8 && u >= 1<<(8*uint(d.size)) {
			return nil, outOfRange(d.name, "%d does not fit %d bits", u, 8*d.size)
		}
		if err := d.checkBounds(float64(u)); err != nil {
			return nil, err
		}
		return u, nil

	case KindInt:
		f, ok := toFloat(x)
		if !ok {
			return nil, fmt.Errorf("%s: cannot use %T as signed integer", d.name, x)
		}
		if f != math.Trunc(f) {
			return nil, outOfRange(d.name, "%v is not an integer", x)
		}
		i := int64(f)
		if v, ok := x.(int64); ok {
			i = v
		}
		bits := 8 * uint(d.size)
		if bits < 64 && (i < -(1<<(bits-1)) || i >= 1<<(bits-1)) {
			return nil, outOfRange(d.name, "%d does not fit %d bits", i, bits)
		}
		if err := d.checkBounds(float64(i)); err != nil {
			return nil, err
		}
		return i, nil

	case KindHex:
		var raw []byte
		switch v := x.(type) {
		case string:
			b, err := hex.DecodeString(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", d.name, err)
			}
			raw = b
		case []byte:
			raw = v
		default:
			return nil, fmt.Errorf("%s: cannot use %T as hex span", d.name, x)
		}
		if len(raw) != d.size {
			return nil, outOfRange(d.name, "hex span of %d bytes, want %d", len(raw), d.size)
		}
		return hex.EncodeToString(raw), nil

	case KindBytes:
		var raw []byte
		switch v := x.(type) {
		case []byte:
			raw = v
		case string:
			raw = []byte(v)
		default:
			return nil, fmt.Errorf("%s: cannot use %T as byte span", d.name, x)
		}
		if len(raw) != d.size {
			return nil, outOfRange(d.name, "byte span of %d bytes, want %d", len(raw), d.size)
		}
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil

	case KindDecimal, KindDecimal32:
		f, ok := toFloat(x)
		if !ok {
			return nil, fmt.Errorf("%s: cannot use %T as decimal", d.name, x)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, outOfRange(d.name, "%v is not finite", f)
		}
		if err := d.checkBounds(f); err != nil {
			return nil, err
		}
		scaled := scale(f, d.divisor)
		bits := uint(16)
		if d.kind == KindDecimal32 {
			bits = 32
		}
		if scaled < -(1<<(bits-1)) || scaled >= 1<<(bits-1) {
			return nil, outOfRange(d.name, "%v scaled by %v does not fit %d bits", f, d.divisor, bits)
		}
		return f, nil
	}
	return nil, fmt.Errorf("%w: unknown field kind %d", ErrMalformedSchema, d.kind)
}

func (d Descriptor) checkBounds(f float64) error {
	if d.bounded && (f < d.min || f > d.max) {
		return outOfRange(d.name, "%v outside [%v, %v]", f, d.min, d.max)
	}
	return nil
}

// scale multiplies back by the divisor and truncates toward zero. Products
// within 1e-6 of an integer are taken as that integer so that values exact
// at the field's precision survive binary floating point.
func scale(f, divisor float64) int64 {
	p := f * divisor
	if r := math.Round(p); math.Abs(p-r) < 1e-6 {
		return int64(r)
	}
	return int64(p)
}

func getUint(raw []byte, order ByteOrder) uint64 {
	var u uint64
	for i := range raw {
		b := raw[i]
		if order == LittleEndian {
			b = raw[len(raw)-1-i]
		}
		u = u<<8 | uint64(b)
	}
	return u
}

func putUint(u uint64, size int, order ByteOrder) []byte {
	out := make([]byte, size)
	for i := 0; i < size; i++ {
		b := byte(u >> (8 * uint(i)))
		if order == LittleEndian {
			out[i] = b
		} else {
			out[size-1-i] = b
		}
	}
	return out
}

func toFloat(x interface{}) (float64, bool) {
	switch v := x.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func toUint(x interface{}) (uint64, bool) {
	switch v := x.(type) {
	case uint:
		return uint64(v), true
	case uint8:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case uint64:
		return v, true
	}
	f, ok := toFloat(x)
	if !ok || f < 0 || f >= math.MaxUint64 {
		return 0, false
	}
	return uint64(f), true
}
