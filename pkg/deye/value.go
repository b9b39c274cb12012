// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deye

import (
	"encoding/hex"
	"fmt"
	"strconv"
)

// Value is the decoded or constructed data for one Descriptor together with
// its wire bytes. A decoded value keeps the exact bytes it was read from; a
// constructed or modified value computes them on first use and caches them.
type Value struct {
	desc  Descriptor
	value interface{}
	raw   []byte
	stale bool
}

// Descriptor returns the field descriptor
func (v *Value) Descriptor() Descriptor {
	return v.desc
}

// Name returns the field name
func (v *Value) Name() string {
	return v.desc.name
}

// Unit returns the unit label of the field
func (v *Value) Unit() string {
	return v.desc.unit
}

// Interface returns the logical value: uint64, int64, string (hex),
// []byte, or float64 depending on the kind.
func (v *Value) Interface() interface{} {
	if b, ok := v.value.([]byte); ok {
		out := make([]byte, len(b))
		copy(out, b)
		return out
	}
	return v.value
}

// Raw returns the wire bytes, re-encoding if the value changed
func (v *Value) Raw() []byte {
	if v.stale {
		v.raw = v.desc.encode(v.value)
		v.stale = false
	}
	out := make([]byte, len(v.raw))
	copy(out, v.raw)
	return out
}

// Size returns the wire width in bytes
func (v *Value) Size() int {
	return v.desc.size
}

// Set replaces the logical value. The wire cache is invalidated and
// recomputed on the next Raw call. Out-of-range values are rejected and
// leave the value unchanged.
func (v *Value) Set(x interface{}) error {
	n, err := v.desc.normalize(x)
	if err != nil {
		return err
	}
	v.value = n
	v.stale = true
	return nil
}

// Uint returns the value as an unsigned integer (0 for span kinds)
func (v *Value) Uint() uint64 {
	switch n := v.value.(type) {
	case uint64:
		return n
	case int64:
		return uint64(n)
	case float64:
		return uint64(n)
	}
	return 0
}

// Int returns the value as a signed integer (0 for span kinds)
func (v *Value) Int() int64 {
	switch n := v.value.(type) {
	case uint64:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

// Float returns the value as a float (0 for span kinds)
func (v *Value) Float() float64 {
	switch n := v.value.(type) {
	case uint64:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

// Hex returns the wire bytes as lowercase hex
func (v *Value) Hex() string {
	if s, ok := v.value.(string); ok {
		return s
	}
	return hex.EncodeToString(v.Raw())
}

// Numeric reports whether the value has a numeric interpretation
func (v *Value) Numeric() bool {
	switch v.desc.kind {
	case KindUint, KindInt, KindDecimal, KindDecimal32:
		return true
	}
	return false
}

// InRange reports whether the value lies inside the declared range.
// Values without a declared range are always in range.
func (v *Value) InRange() bool {
	if !v.desc.bounded || !v.Numeric() {
		return true
	}
	f := v.Float()
	return f >= v.desc.min && f <= v.desc.max
}

// Text renders the value without name or unit
func (v *Value) Text() string {
	switch n := v.value.(type) {
	case uint64:
		return strconv.FormatUint(n, 10)
	case int64:
		return strconv.FormatInt(n, 10)
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case string:
		return n
	case []byte:
		if printable(n) {
			return strconv.Quote(string(n))
		}
		return hex.EncodeToString(n)
	}
	return fmt.Sprintf("%v", v.value)
}

// String renders "name: value unit"
func (v *Value) String() string {
	if v.desc.unit == "" {
		return fmt.Sprintf("%s: %s", v.desc.name, v.Text())
	}
	return fmt.Sprintf("%s: %s %s", v.desc.name, v.Text(), v.desc.unit)
}

func printable(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c < 0x20 || c > 0x7E {
			return false
		}
	}
	return true
}
