// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deye

import (
	"strings"
	"testing"
)

func TestFormatFrameRequest(t *testing.T) {
	f, err := DecodeFrame(literalRequest)
	if err != nil {
		t.Fatal(err)
	}
	out := FormatFrame(f)
	for _, want := range []string{
		"REQUEST seq=0 serial=3972135441 len=23 checksum=0xB1",
		"READ_HOLDING_REGISTERS (slave=1 fn=0x03) start=60 count=1 crc=0x0644",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "SUSPECT") {
		t.Error("clean frame marked suspect")
	}
}

func TestFormatFrameResponse(t *testing.T) {
	f, err := DecodeFrame(mustHex(t, capturedResponses[0]), WithStartRegister(60))
	if err != nil {
		t.Fatal(err)
	}
	out := FormatFrame(f)
	for _, want := range []string{
		"RESPONSE seq=48",
		"TotalWorkingTime: 2d 21h 54m 30s",
		"PowerOnTime: 26m 54s",
		"start=60 registers=1",
		"DayActivePower: 10.9 kWh",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestFormatFrameSuspect(t *testing.T) {
	raw := append([]byte(nil), literalRequest...)
	raw[34] = 0
	f, err := DecodeFrame(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(FormatFrame(f), "[SUSPECT]") {
		t.Error("suspect marker missing")
	}
}

func TestFormatFunction(t *testing.T) {
	tests := []struct {
		code uint16
		want string
	}{
		{0x0103, "READ_HOLDING_REGISTERS (slave=1 fn=0x03)"},
		{0x0110, "WRITE_MULTIPLE_REGISTERS (slave=1 fn=0x10)"},
		{0x0183, "READ_HOLDING_REGISTERS_EXCEPTION (slave=1 fn=0x83)"},
		{0x0600, "UNKNOWN (slave=6 fn=0x00)"},
	}
	for _, tt := range tests {
		if got := FormatFunction(tt.code); got != tt.want {
			t.Errorf("FormatFunction(0x%04X) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestFormatControlCode(t *testing.T) {
	if FormatControlCode(0x1234) != "UNKNOWN(0x1234)" {
		t.Errorf("got %q", FormatControlCode(0x1234))
	}
}

func TestFormatValueRange(t *testing.T) {
	v, err := Uint("Flag", 16, BigEndian).WithRange(0, 1).Decode(NewCursor([]byte{0x00, 0x05}))
	if err != nil {
		t.Fatal(err)
	}
	if got := FormatValue(v); got != "Flag: 5 (out of range)" {
		t.Errorf("got %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds uint64
		want    string
	}{
		{0, "0s"},
		{59, "59s"},
		{60, "1m"},
		{3661, "1h 1m 1s"},
		{93784, "1d 2h 3m 4s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.seconds); got != tt.want {
			t.Errorf("formatDuration(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestHexDump(t *testing.T) {
	if got := HexDump([]byte{0xa5, 0x00, 0x15}); got != "a5 00 15" {
		t.Errorf("got %q", got)
	}
	if got := HexDump(nil); got != "" {
		t.Errorf("got %q", got)
	}
}
