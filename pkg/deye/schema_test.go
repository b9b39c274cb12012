// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deye

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func testSchema() Schema {
	return Schema{
		Field(Uint("Kind", 8, BigEndian)),
		Padding(2),
		Field(Decimal("Voltage", 10).WithUnit("V")),
		Field(Uint("Counter", 16, LittleEndian)),
	}
}

// ============================================================
// Decode
// ============================================================

func TestDecodeGroup(t *testing.T) {
	buf := []byte{0x02, 0xaa, 0xbb, 0x09, 0x01, 0x34, 0x12}

	g, err := DecodeGroup("test", buf, testSchema())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !g.Valid() {
		t.Fatal("group should be valid")
	}

	if v, ok := g.Get("Kind"); !ok || v.Uint() != 2 {
		t.Errorf("Kind = %v, %v", v, ok)
	}
	if v, ok := g.Get("Voltage"); !ok || v.Float() != 230.5 {
		t.Errorf("Voltage = %v, %v", v, ok)
	}
	if v, ok := g.Get("Counter"); !ok || v.Uint() != 0x1234 {
		t.Errorf("Counter = %v, %v", v, ok)
	}
	if pad, ok := g.Padding("_pad1"); !ok || !bytes.Equal(pad, []byte{0xaa, 0xbb}) {
		t.Errorf("_pad1 = % x, %v", pad, ok)
	}

	wantKeys := []string{"Kind", "_pad1", "Voltage", "Counter"}
	if !reflect.DeepEqual(g.Keys(), wantKeys) {
		t.Errorf("keys = %v, want %v", g.Keys(), wantKeys)
	}
	if len(g.Fields()) != 3 {
		t.Errorf("fields = %d, want 3", len(g.Fields()))
	}
	if len(g.Trailing()) != 0 {
		t.Errorf("unexpected trailing % x", g.Trailing())
	}
}

func TestDecodeGroupKeepsTrailing(t *testing.T) {
	buf := []byte{0x02, 0xaa, 0xbb, 0x09, 0x01, 0x34, 0x12, 0xde, 0xad}

	g, err := DecodeGroup("test", buf, testSchema())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(g.Trailing(), []byte{0xde, 0xad}) {
		t.Errorf("trailing = % x, want de ad", g.Trailing())
	}
	if !bytes.Equal(g.Bytes(), buf) {
		t.Errorf("re-encoded % x, want % x", g.Bytes(), buf)
	}
	if g.Keys()[len(g.Keys())-1] != TrailingKey {
		t.Errorf("last key = %q, want %q", g.Keys()[len(g.Keys())-1], TrailingKey)
	}
	if g.Size() != len(buf) {
		t.Errorf("size = %d, want %d", g.Size(), len(buf))
	}
}

func TestDecodeGroupTruncated(t *testing.T) {
	buf := []byte{0x02, 0xaa, 0xbb, 0x09}

	g, err := DecodeGroup("test", buf, testSchema())
	if !errors.Is(err, ErrTruncatedInput) {
		t.Fatalf("expected ErrTruncatedInput, got %v", err)
	}

	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DecodeError, got %T", err)
	}
	if de.Offset != 3 || de.Index != 2 || de.Entry != "Voltage" {
		t.Errorf("error at offset=%d index=%d entry=%q, want 3/2/Voltage", de.Offset, de.Index, de.Entry)
	}

	if g.Valid() {
		t.Error("group should be invalid")
	}
	if g.Err() != err {
		t.Error("Err() should return the decode error")
	}
	if v, ok := g.Get("Kind"); !ok || v.Uint() != 2 {
		t.Error("entries decoded before the failure should stay accessible")
	}
	if g.Has("Voltage") {
		t.Error("failed entry should not be stored")
	}
}

func TestDecodeGroupTruncatedPadding(t *testing.T) {
	_, err := DecodeGroup("test", []byte{0x02, 0xaa}, testSchema())

	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
	if de.Entry != "_pad1" || de.Offset != 1 {
		t.Errorf("error at %q offset %d, want _pad1 offset 1", de.Entry, de.Offset)
	}
}

// ============================================================
// Re-encode
// ============================================================

func TestGroupSetReencodes(t *testing.T) {
	buf := []byte{0x02, 0xaa, 0xbb, 0x09, 0x01, 0x34, 0x12, 0xff}

	g, err := DecodeGroup("test", buf, testSchema())
	if err != nil {
		t.Fatal(err)
	}

	if err := g.Set("Voltage", 231); err != nil {
		t.Fatalf("Set: %v", err)
	}
	want := []byte{0x02, 0xaa, 0xbb, 0x09, 0x06, 0x34, 0x12, 0xff}
	if !bytes.Equal(g.Bytes(), want) {
		t.Errorf("re-encoded % x, want % x", g.Bytes(), want)
	}

	if err := g.Set("Missing", 1); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestGroupOffset(t *testing.T) {
	g, err := DecodeGroup("test", []byte{0x02, 0xaa, 0xbb, 0x09, 0x01, 0x34, 0x12}, testSchema())
	if err != nil {
		t.Fatal(err)
	}

	tests := map[string]int{"Kind": 0, "_pad1": 1, "Voltage": 3, "Counter": 5}
	for key, want := range tests {
		if got, ok := g.Offset(key); !ok || got != want {
			t.Errorf("Offset(%q) = %d, %v; want %d", key, got, ok, want)
		}
	}
	if _, ok := g.Offset("Nope"); ok {
		t.Error("Offset of unknown key should fail")
	}
}

func TestGroupDoesNotShareSchema(t *testing.T) {
	s := testSchema()
	g, err := DecodeGroup("test", []byte{0x02, 0xaa, 0xbb, 0x09, 0x01, 0x34, 0x12}, s)
	if err != nil {
		t.Fatal(err)
	}

	s[0] = Padding(1)
	if !g.Schema()[0].IsField() {
		t.Error("group schema aliases the caller's slice")
	}
}

// ============================================================
// Dynamic extension
// ============================================================

func TestGroupExtendMidDecode(t *testing.T) {
	g := newGroup("dyn", Schema{Field(Uint("Count", 8, BigEndian)), Field(Uint("End", 8, BigEndian))})
	c := NewCursor([]byte{0x02, 0x10, 0x20, 0x15})

	if err := g.next(c); err != nil {
		t.Fatal(err)
	}
	n := int(g.uint("Count"))
	for i := 0; i < n; i++ {
		g.extend(Field(Uint(string(rune('A'+n-1-i)), 8, BigEndian)))
	}
	for g.pending() {
		if err := g.next(c); err != nil {
			t.Fatal(err)
		}
	}
	g.finish(c)

	wantKeys := []string{"Count", "A", "B", "End"}
	if !reflect.DeepEqual(g.Keys(), wantKeys) {
		t.Errorf("keys = %v, want %v", g.Keys(), wantKeys)
	}
	if v, _ := g.Get("B"); v.Uint() != 0x20 {
		t.Errorf("B = %v, want 0x20", v)
	}
	if len(g.Schema()) != 4 {
		t.Errorf("schema length = %d, want 4", len(g.Schema()))
	}
}

func TestSchemaSize(t *testing.T) {
	s := testSchema()
	if s.Size() != 7 {
		t.Errorf("Size() = %d, want 7", s.Size())
	}
	if s.Fields() != 3 {
		t.Errorf("Fields() = %d, want 3", s.Fields())
	}
}
