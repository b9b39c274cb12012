// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deye

import (
	"bytes"
	"testing"
)

func TestModbusCRC_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{"check value", []byte("123456789"), 0x4B37},
		{"read 0x3c x1", []byte{0x01, 0x03, 0x00, 0x3c, 0x00, 0x01}, 0x0644},
		{"read 0x00 x1", []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}, 0x0A84},
		{"response one register", []byte{0x01, 0x03, 0x02, 0x00, 0x6d}, 0xA979},
		{"response two registers", []byte{0x01, 0x03, 0x04, 0x00, 0x6e, 0x00, 0x00}, 0xEE9B},
		{"empty", []byte{}, 0xFFFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if crc := ModbusCRC(tt.data); crc != tt.expected {
				t.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", tt.expected, crc)
			}
		})
	}
}

func TestAppendModbusCRC_ByteSwapped(t *testing.T) {
	got := AppendModbusCRC([]byte{0x01, 0x03, 0x00, 0x3c, 0x00, 0x01})
	want := []byte{0x01, 0x03, 0x00, 0x3c, 0x00, 0x01, 0x44, 0x06}
	if !bytes.Equal(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}
}

func TestEnvelopeChecksum(t *testing.T) {
	// Offsets 1..33 of the literal request frame
	if sum := EnvelopeChecksum(literalRequest[1:34]); sum != 0xb1 {
		t.Errorf("checksum = 0x%02X, want 0xB1", sum)
	}
}

func TestEnvelopeChecksum_Wraps(t *testing.T) {
	if sum := EnvelopeChecksum([]byte{0xff, 0x02}); sum != 0x01 {
		t.Errorf("checksum = 0x%02X, want 0x01", sum)
	}
	if sum := EnvelopeChecksum(nil); sum != 0 {
		t.Errorf("checksum of nothing = 0x%02X, want 0", sum)
	}
}
