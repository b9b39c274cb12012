// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deye

import (
	"fmt"
	"strings"

	"github.com/goburrow/modbus"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s seq=%d serial=%s len=%d checksum=0x%02X",
		FormatControlCode(f.ControlCode()), f.Sequence(), FormatSerial(f.Serial()), f.Length(), f.Checksum())
	if f.Suspect() {
		b.WriteString(" [SUSPECT]")
	}
	b.WriteString("\n")

	for _, v := range f.DataField() {
		b.WriteString("  " + FormatValue(v) + "\n")
	}

	switch {
	case f.Request() != nil:
		b.WriteString(FormatRequest(f.Request()))
	case f.Message() != nil:
		b.WriteString(FormatMessage(f.Message()))
	}

	if t := f.Trailing(); len(t) > 0 {
		fmt.Fprintf(&b, "  trailing: %s\n", HexDump(t))
	}

	return b.String()
}

// FormatControlCode returns the human-readable name for a control code
func FormatControlCode(code uint16) string {
	switch code {
	case ControlRequest:
		return "REQUEST"
	case ControlResponse:
		return "RESPONSE"
	default:
		return fmt.Sprintf("UNKNOWN(0x%04X)", code)
	}
}

// FormatFunction returns the human-readable name for a Modbus function word
func FormatFunction(code uint16) string {
	fn := functionOf(code)
	name := "UNKNOWN"
	switch fn & 0x7F {
	case modbus.FuncCodeReadHoldingRegisters:
		name = "READ_HOLDING_REGISTERS"
	case modbus.FuncCodeWriteMultipleRegisters:
		name = "WRITE_MULTIPLE_REGISTERS"
	}
	if fn&exceptionFlag != 0 {
		name += "_EXCEPTION"
	}
	return fmt.Sprintf("%s (slave=%d fn=0x%02X)", name, code>>8, fn)
}

// FormatRequest formats a Modbus request
func FormatRequest(r *Request) string {
	return fmt.Sprintf("  %s start=%d count=%d crc=0x%04X\n",
		FormatFunction(r.FunctionCode()), r.StartRegister(), r.RegisterCount(), r.CRC())
}

// FormatMessage formats a Modbus response and its decoded registers
func FormatMessage(m *Message) string {
	var b strings.Builder

	fmt.Fprintf(&b, "  %s", FormatFunction(m.FunctionCode()))
	if m.IsRead() {
		fmt.Fprintf(&b, " start=%d registers=%d", m.StartRegister(), m.RegisterCount())
	}
	if ex := m.Exception(); ex != nil {
		fmt.Fprintf(&b, " exception=%d", ex.ExceptionCode)
	}
	if m.Group().Has(NameCRC) {
		fmt.Fprintf(&b, " crc=0x%04X", m.CRC())
	}
	b.WriteString("\n")

	for _, v := range m.Readings() {
		b.WriteString("    " + FormatValue(v) + "\n")
	}

	if err := m.Group().Err(); err != nil {
		fmt.Fprintf(&b, "    (incomplete: %v)\n", err)
	}

	return b.String()
}

// FormatValue formats a single field as "Name: value unit"
func FormatValue(v *Value) string {
	switch v.Unit() {
	case unitSecond:
		if v.Uint() >= 60 {
			return fmt.Sprintf("%s: %s", v.Name(), formatDuration(v.Uint()))
		}
	case unitMinute:
		if v.Uint() >= 1 {
			return fmt.Sprintf("%s: %s", v.Name(), formatDuration(v.Uint()*60))
		}
	}
	s := v.String()
	if !v.InRange() {
		s += " (out of range)"
	}
	return s
}

// HexDump renders bytes as space-separated hex pairs
func HexDump(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, " ")
}

// formatDuration renders seconds as "1d 2h 3m 4s"
func formatDuration(seconds uint64) string {
	const (
		secondsPerMinute = 60
		secondsPerHour   = 60 * secondsPerMinute
		secondsPerDay    = 24 * secondsPerHour
	)

	days := seconds / secondsPerDay
	seconds %= secondsPerDay

	hours := seconds / secondsPerHour
	seconds %= secondsPerHour

	minutes := seconds / secondsPerMinute
	seconds %= secondsPerMinute

	parts := []string{}
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}
	return strings.Join(parts, " ")
}
