// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deye

import (
	"bytes"
	"errors"
	"testing"

	"github.com/goburrow/modbus"
)

// withCRC appends the Modbus CRC to a hand-written payload
func withCRC(b ...byte) []byte {
	return AppendModbusCRC(b)
}

// ============================================================
// Request
// ============================================================

func TestNewReadRequest(t *testing.T) {
	tests := []struct {
		start, count uint16
		want         []byte
	}{
		{0x3c, 1, []byte{0x01, 0x03, 0x00, 0x3c, 0x00, 0x01, 0x44, 0x06}},
		{0x00, 1, []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01, 0x84, 0x0a}},
	}

	for _, tt := range tests {
		req, err := NewReadRequest(tt.start, tt.count)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !bytes.Equal(req.Bytes(), tt.want) {
			t.Errorf("read(%d, %d) = % x, want % x", tt.start, tt.count, req.Bytes(), tt.want)
		}
		if len(req.Bytes()) != RequestSize {
			t.Errorf("request is %d bytes, want %d", len(req.Bytes()), RequestSize)
		}
		if err := req.VerifyCRC(); err != nil {
			t.Errorf("VerifyCRC: %v", err)
		}
	}
}

func TestNewReadRequestCount(t *testing.T) {
	for _, count := range []uint16{0, MaxReadRegisters + 1} {
		if _, err := NewReadRequest(0, count); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("count %d: expected ErrOutOfRange, got %v", count, err)
		}
	}
	if _, err := NewReadRequest(0, MaxReadRegisters); err != nil {
		t.Errorf("count %d: unexpected error: %v", MaxReadRegisters, err)
	}
}

func TestRequestSetRecomputesCRC(t *testing.T) {
	req, err := NewReadRequest(0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := req.Set(NameStartRegister, 0x3c); err != nil {
		t.Fatalf("Set: %v", err)
	}
	want := []byte{0x01, 0x03, 0x00, 0x3c, 0x00, 0x01, 0x44, 0x06}
	if !bytes.Equal(req.Bytes(), want) {
		t.Errorf("got % x, want % x", req.Bytes(), want)
	}
	if err := req.Set(NameCRC, 0); err == nil {
		t.Error("setting the CRC directly should fail")
	}
}

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest([]byte{0x01, 0x03, 0x00, 0x3c, 0x00, 0x01, 0x44, 0x06})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !req.IsRead() || req.StartRegister() != 0x3c || req.RegisterCount() != 1 || req.CRC() != 0x0644 {
		t.Errorf("decoded fn=0x%04X start=%d count=%d crc=0x%04X",
			req.FunctionCode(), req.StartRegister(), req.RegisterCount(), req.CRC())
	}

	bad, err := DecodeRequest([]byte{0x01, 0x03, 0x00, 0x3c, 0x00, 0x01, 0x44, 0x07})
	if err != nil {
		t.Fatalf("decode should succeed despite a bad CRC: %v", err)
	}
	var ce *ChecksumError
	if err := bad.VerifyCRC(); !errors.As(err, &ce) {
		t.Fatalf("expected *ChecksumError, got %v", err)
	}
	if ce.Kind != ChecksumModbus || ce.Expected != 0x0644 || ce.Got != 0x0744 || ce.Offset != 6 {
		t.Errorf("checksum error = %+v", ce)
	}
}

// ============================================================
// Response: dynamic extension
// ============================================================

func TestDecodeMessageZeroLength(t *testing.T) {
	m, err := DecodeMessage(withCRC(0x01, 0x03, 0x00))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.Readings()) != 0 {
		t.Errorf("expected no register entries, got %d", len(m.Readings()))
	}
	if !m.Complete() {
		t.Error("message should be complete")
	}
	if err := m.VerifyCRC(); err != nil {
		t.Errorf("VerifyCRC: %v", err)
	}
}

func TestDecodeMessageFullCatalog(t *testing.T) {
	regs := make([]byte, CatalogRegisters*RegisterSize)
	payload := append([]byte{0x01, 0x03, byte(len(regs))}, regs...)

	m, err := DecodeMessage(withCRC(payload...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names := DefaultCatalog().Names()
	readings := m.Readings()
	if len(readings) != len(names) {
		t.Fatalf("got %d readings, want %d", len(readings), len(names))
	}
	for i, v := range readings {
		if v.Name() != names[i] {
			t.Errorf("reading %d = %s, want %s", i, v.Name(), names[i])
		}
	}
	if m.RegisterCount() != CatalogRegisters {
		t.Errorf("register count = %d, want %d", m.RegisterCount(), CatalogRegisters)
	}
}

// The length byte counts bytes, not registers: 0x3c covers registers
// 0..29 and only the catalog fields inside them. The full catalog needs 0xF0.
func TestDecodeMessageLengthIsByteCount(t *testing.T) {
	catalog := DefaultCatalog()

	inWindow := 0
	for _, r := range catalog {
		if r.start()+r.Field.Size() <= 0x3c {
			inWindow++
		}
	}

	tests := []struct {
		name   string
		length byte
		want   int
	}{
		{"0x3c bytes", 0x3c, inWindow},
		{"0xF0 bytes", 0xF0, len(catalog)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := append([]byte{0x01, 0x03, tt.length}, make([]byte, tt.length)...)
			m, err := DecodeMessage(withCRC(payload...))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(m.Readings()) != tt.want {
				t.Errorf("readings = %d, want %d", len(m.Readings()), tt.want)
			}
			if m.RegisterCount() != int(tt.length)/RegisterSize {
				t.Errorf("register count = %d, want %d", m.RegisterCount(), int(tt.length)/RegisterSize)
			}
		})
	}

	if inWindow >= len(catalog) {
		t.Errorf("0x3c window should not hold the whole catalog (%d of %d)", inWindow, len(catalog))
	}
}

func TestDecodeMessagePartialWindow(t *testing.T) {
	// 0x3c bytes = registers 0..29
	regs := make([]byte, 0x3c)
	m, err := DecodeMessage(withCRC(append([]byte{0x01, 0x03, 0x3c}, regs...)...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := m.Get("DeviceType"); !ok {
		t.Error("DeviceType missing")
	}
	if _, ok := m.Get("GridVoltageLowerLimit"); !ok {
		t.Error("GridVoltageLowerLimit (register 28) missing")
	}
	if _, ok := m.Get("GridCurrentUpperLimit"); ok {
		t.Error("register 31 decoded from a 30 register window")
	}
}

func TestDecodeMessageCaptured(t *testing.T) {
	tests := []struct {
		name  string
		raw   []byte
		field string
		want  float64
		count int
	}{
		{"one register", []byte{0x01, 0x03, 0x02, 0x00, 0x6d, 0x79, 0xa9}, "DayActivePower", 10.9, 1},
		{"two registers", []byte{0x01, 0x03, 0x04, 0x00, 0x6e, 0x00, 0x00, 0x9b, 0xee}, "DayActivePower", 11.0, 1},
		{"three registers", []byte{0x01, 0x03, 0x06, 0x00, 0x6e, 0x00, 0x00, 0x00, 0x00, 0xc8, 0xbc}, "Uptime", 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := DecodeMessage(tt.raw, WithStartRegister(60))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			v, ok := m.Get(tt.field)
			if !ok {
				t.Fatalf("%s missing", tt.field)
			}
			if v.Float() != tt.want {
				t.Errorf("%s = %v, want %v", tt.field, v.Float(), tt.want)
			}
			if len(m.Readings()) != tt.count {
				t.Errorf("readings = %d, want %d", len(m.Readings()), tt.count)
			}
			if err := m.VerifyCRC(); err != nil {
				t.Errorf("VerifyCRC: %v", err)
			}
			if !bytes.Equal(m.Bytes(), tt.raw) {
				t.Errorf("re-encoded % x, want % x", m.Bytes(), tt.raw)
			}
		})
	}
}

func TestDecodeMessageDefaultStart(t *testing.T) {
	m, err := DecodeMessage([]byte{0x01, 0x03, 0x02, 0x00, 0x6d, 0x79, 0xa9})
	if err != nil {
		t.Fatal(err)
	}
	v, ok := m.Get("DeviceType")
	if !ok || v.Hex() != "006d" {
		t.Errorf("DeviceType = %v, %v", v, ok)
	}
}

// ============================================================
// Response: malformed input
// ============================================================

func TestDecodeMessageMissingLength(t *testing.T) {
	m, err := DecodeMessage([]byte{0x01, 0x03})
	if !errors.Is(err, ErrMalformedSchema) {
		t.Fatalf("expected ErrMalformedSchema, got %v", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) || de.Offset != 2 || de.Entry != NameByteCount {
		t.Errorf("error = %+v", de)
	}
	if m.FunctionCode() != FunctionRead {
		t.Errorf("function code should survive: 0x%04X", m.FunctionCode())
	}
	if m.Complete() {
		t.Error("message should be incomplete")
	}
}

func TestDecodeMessageTruncatedRegisters(t *testing.T) {
	_, err := DecodeMessage([]byte{0x01, 0x03, 0x04, 0x00, 0x6e}, WithStartRegister(60))
	if !errors.Is(err, ErrTruncatedInput) {
		t.Fatalf("expected ErrTruncatedInput, got %v", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) || de.Offset != 5 {
		t.Errorf("error = %+v", de)
	}
}

func TestDecodeMessageMissingCRC(t *testing.T) {
	m, err := DecodeMessage([]byte{0x06, 0x00})
	if !errors.Is(err, ErrTruncatedInput) {
		t.Fatalf("expected ErrTruncatedInput, got %v", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) || de.Entry != NameCRC || de.Offset != 2 {
		t.Errorf("error = %+v", de)
	}
	if err := m.VerifyCRC(); !errors.Is(err, ErrTruncatedInput) {
		t.Errorf("VerifyCRC on incomplete message = %v", err)
	}
}

func TestDecodeMessageEmpty(t *testing.T) {
	if _, err := DecodeMessage(nil); !errors.Is(err, ErrTruncatedInput) {
		t.Fatalf("expected ErrTruncatedInput, got %v", err)
	}
}

// ============================================================
// Response: other functions
// ============================================================

func TestDecodeMessageException(t *testing.T) {
	m, err := DecodeMessage(withCRC(0x01, 0x83, 0x02))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.IsException() {
		t.Fatal("expected exception response")
	}

	var err2 error = m.Exception()
	var me *modbus.ModbusError
	if !errors.As(err2, &me) {
		t.Fatalf("expected *modbus.ModbusError, got %T", err2)
	}
	if me.FunctionCode != 0x83 || me.ExceptionCode != modbus.ExceptionCodeIllegalDataAddress {
		t.Errorf("exception = %+v", me)
	}
}

func TestDecodeMessageWriteAck(t *testing.T) {
	raw := withCRC(0x01, 0x10, 0x00, 0x28, 0x00, 0x01)
	m, err := DecodeMessage(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok := m.Get(NameStartRegister)
	if !ok || v.Uint() != 0x28 {
		t.Errorf("StartRegister = %v, %v", v, ok)
	}
	if m.Exception() != nil {
		t.Error("write ack reported as exception")
	}
	if !bytes.Equal(m.Bytes(), raw) {
		t.Errorf("re-encoded % x, want % x", m.Bytes(), raw)
	}
}

func TestDecodeMessageOpaqueFunction(t *testing.T) {
	raw := withCRC(0x01, 0x06, 0x00, 0x28, 0x00, 0x64)
	m, err := DecodeMessage(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.Readings()) != 0 {
		t.Errorf("unexpected readings %v", m.Readings())
	}
	if !bytes.Equal(m.Bytes(), raw) {
		t.Errorf("re-encoded % x, want % x", m.Bytes(), raw)
	}
	if err := m.VerifyCRC(); err != nil {
		t.Errorf("VerifyCRC: %v", err)
	}
}

// ============================================================
// Response: modification
// ============================================================

func TestMessageSetRecomputesCRC(t *testing.T) {
	raw := []byte{0x01, 0x03, 0x02, 0x00, 0x6d, 0x79, 0xa9}
	m, err := DecodeMessage(raw, WithStartRegister(60))
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Set("DayActivePower", 11.0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := m.VerifyCRC(); err != nil {
		t.Errorf("CRC not recomputed: %v", err)
	}
	want := withCRC(0x01, 0x03, 0x02, 0x00, 0x6e)
	if !bytes.Equal(m.Bytes(), want) {
		t.Errorf("got % x, want % x", m.Bytes(), want)
	}

	if err := m.Set(NameByteCount, 4); err == nil {
		t.Error("structural fields should not be settable")
	}
}

func TestEncodeReadResponse(t *testing.T) {
	m, err := EncodeReadResponse(FunctionRead, []byte{0x00, 0x6d}, WithStartRegister(60))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{0x01, 0x03, 0x02, 0x00, 0x6d, 0x79, 0xa9}
	if !bytes.Equal(m.Bytes(), want) {
		t.Errorf("got % x, want % x", m.Bytes(), want)
	}

	if _, err := EncodeReadResponse(FunctionRead, make([]byte, 256)); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}
