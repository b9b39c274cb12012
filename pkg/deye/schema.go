// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deye

import (
	"errors"
	"fmt"
)

// Keys used for unnamed spans inside a Group
const (
	PaddingPrefix = "_pad"
	TrailingKey   = "_rest"
)

// Entry is one schema position: either a field or an opaque padding span
type Entry struct {
	desc    Descriptor
	pad     int
	isField bool
}

// Field makes a schema entry from a descriptor
func Field(d Descriptor) Entry {
	return Entry{desc: d, isField: true}
}

// Padding makes a schema entry for n opaque bytes kept verbatim
func Padding(n int) Entry {
	if n <= 0 {
		panic(fmt.Sprintf("deye: padding width %d must be positive", n))
	}
	return Entry{pad: n}
}

// IsField reports whether the entry is a field (as opposed to padding)
func (e Entry) IsField() bool { return e.isField }

// Descriptor returns the field descriptor of a field entry
func (e Entry) Descriptor() Descriptor { return e.desc }

// Size returns the wire width of the entry in bytes
func (e Entry) Size() int {
	if e.isField {
		return e.desc.size
	}
	return e.pad
}

// Schema is an ordered list of entries
type Schema []Entry

// Size returns the total wire width of the schema
func (s Schema) Size() int {
	n := 0
	for _, e := range s {
		n += e.Size()
	}
	return n
}

// Fields returns the number of field entries
func (s Schema) Fields() int {
	n := 0
	for _, e := range s {
		if e.isField {
			n++
		}
	}
	return n
}

type slot struct {
	key   string
	value *Value // nil for padding
	raw   []byte
}

func (s slot) bytes() []byte {
	if s.value != nil {
		return s.value.Raw()
	}
	return s.raw
}

// Group is the result of applying a Schema to a buffer: named values and
// opaque spans in schema order, plus any undeclared trailing bytes.
// Re-encoding an unmodified Group reproduces its input exactly.
//
// The schema of a Group may grow while it is being decoded; see extend.
type Group struct {
	name     string
	schema   Schema
	slots    []slot
	index    map[string]int
	trailing []byte
	err      error
}

// DecodeGroup applies schema to buf. On failure the returned group holds the
// entries decoded so far, is marked invalid, and the error is a *DecodeError.
func DecodeGroup(name string, buf []byte, schema Schema) (*Group, error) {
	g := newGroup(name, schema)
	c := NewCursor(buf)
	for g.pending() {
		if err := g.next(c); err != nil {
			return g, err
		}
	}
	g.finish(c)
	return g, nil
}

func newGroup(name string, schema Schema) *Group {
	s := make(Schema, len(schema))
	copy(s, schema)
	return &Group{
		name:   name,
		schema: s,
		index:  make(map[string]int),
	}
}

// pending reports whether schema entries remain to be decoded
func (g *Group) pending() bool {
	return g.err == nil && len(g.slots) < len(g.schema)
}

// next decodes the next pending schema entry
func (g *Group) next(c *Cursor) error {
	idx := len(g.slots)
	e := g.schema[idx]
	start := c.Pos()

	if e.isField {
		v, err := e.desc.Decode(c)
		if err != nil {
			de := &DecodeError{Offset: start, Index: idx, Entry: e.desc.name, Err: err}
			var inner *DecodeError
			if errors.As(err, &inner) {
				de.Err = inner.Err
			}
			g.err = de
			return de
		}
		g.addValue(v)
		return nil
	}

	key := fmt.Sprintf("%s%d", PaddingPrefix, idx)
	raw, err := c.Read(e.pad)
	if err != nil {
		de := &DecodeError{Offset: start, Index: idx, Entry: key, Err: err}
		g.err = de
		return de
	}
	g.slots = append(g.slots, slot{key: key, raw: raw})
	g.index[key] = idx
	return nil
}

// extend inserts entries immediately after the entries decoded so far
func (g *Group) extend(entries ...Entry) {
	at := len(g.slots)
	s := make(Schema, 0, len(g.schema)+len(entries))
	s = append(s, g.schema[:at]...)
	s = append(s, entries...)
	s = append(s, g.schema[at:]...)
	g.schema = s
}

// finish captures any unread bytes as the trailing span
func (g *Group) finish(c *Cursor) {
	g.trailing = c.Rest()
}

func (g *Group) addValue(v *Value) {
	g.index[v.Name()] = len(g.slots)
	g.slots = append(g.slots, slot{key: v.Name(), value: v})
	if len(g.schema) < len(g.slots) {
		g.schema = append(g.schema, Field(v.desc))
	}
}

func (g *Group) addPadding(raw []byte) {
	key := fmt.Sprintf("%s%d", PaddingPrefix, len(g.slots))
	g.index[key] = len(g.slots)
	g.slots = append(g.slots, slot{key: key, raw: raw})
	if len(g.schema) < len(g.slots) {
		g.schema = append(g.schema, Padding(len(raw)))
	}
}

// Name returns the group name
func (g *Group) Name() string {
	return g.name
}

// Valid reports whether every schema entry decoded
func (g *Group) Valid() bool {
	return g.err == nil && len(g.slots) == len(g.schema)
}

// Err returns the decode error that invalidated the group, if any
func (g *Group) Err() error {
	return g.err
}

// Schema returns a copy of the effective schema, including entries added
// while decoding
func (g *Group) Schema() Schema {
	s := make(Schema, len(g.schema))
	copy(s, g.schema)
	return s
}

// Get returns the named field value
func (g *Group) Get(name string) (*Value, bool) {
	i, ok := g.index[name]
	if !ok || g.slots[i].value == nil {
		return nil, false
	}
	return g.slots[i].value, true
}

// Has reports whether the key names a decoded field or padding span
func (g *Group) Has(key string) bool {
	_, ok := g.index[key]
	return ok
}

// Padding returns the bytes of a padding span by key
func (g *Group) Padding(key string) ([]byte, bool) {
	i, ok := g.index[key]
	if !ok || g.slots[i].value != nil {
		return nil, false
	}
	return g.slots[i].raw, true
}

// Set replaces the logical value of a named field
func (g *Group) Set(name string, x interface{}) error {
	v, ok := g.Get(name)
	if !ok {
		return fmt.Errorf("%s: no field %q", g.name, name)
	}
	return v.Set(x)
}

// Fields returns the decoded field values in schema order
func (g *Group) Fields() []*Value {
	out := make([]*Value, 0, len(g.slots))
	for _, s := range g.slots {
		if s.value != nil {
			out = append(out, s.value)
		}
	}
	return out
}

// Keys returns every decoded key (fields and padding) in schema order,
// followed by TrailingKey when trailing bytes are present
func (g *Group) Keys() []string {
	out := make([]string, 0, len(g.slots)+1)
	for _, s := range g.slots {
		out = append(out, s.key)
	}
	if len(g.trailing) > 0 {
		out = append(out, TrailingKey)
	}
	return out
}

// Trailing returns undeclared bytes found after the last schema entry
func (g *Group) Trailing() []byte {
	return g.trailing
}

// Offset returns the byte offset of a decoded key within the group
func (g *Group) Offset(key string) (int, bool) {
	i, ok := g.index[key]
	if !ok {
		return 0, false
	}
	off := 0
	for _, s := range g.slots[:i] {
		off += len(s.bytes())
	}
	return off, true
}

// Bytes re-encodes every entry in order followed by the trailing span
func (g *Group) Bytes() []byte {
	out := make([]byte, 0, g.Size())
	for _, s := range g.slots {
		out = append(out, s.bytes()...)
	}
	return append(out, g.trailing...)
}

// Size returns the encoded length of the group
func (g *Group) Size() int {
	n := len(g.trailing)
	for _, s := range g.slots {
		if s.value != nil {
			n += s.value.Size()
		} else {
			n += len(s.raw)
		}
	}
	return n
}

func (g *Group) uint(name string) uint64 {
	if v, ok := g.Get(name); ok {
		return v.Uint()
	}
	return 0
}
