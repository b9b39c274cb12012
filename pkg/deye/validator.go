// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deye

import (
	"errors"
	"fmt"
)

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	AnomalyFraming AnomalyType = iota
	AnomalyLengthMismatch
	AnomalyChecksum
	AnomalyCRCError
	AnomalyControlCode
	AnomalyException
	AnomalyInvalidValue
	AnomalyDecodeError
)

func (a AnomalyType) String() string {
	switch a {
	case AnomalyFraming:
		return "framing"
	case AnomalyLengthMismatch:
		return "length mismatch"
	case AnomalyChecksum:
		return "envelope checksum"
	case AnomalyCRCError:
		return "modbus crc"
	case AnomalyControlCode:
		return "control code"
	case AnomalyException:
		return "modbus exception"
	case AnomalyInvalidValue:
		return "invalid value"
	case AnomalyDecodeError:
		return "decode error"
	default:
		return "unknown"
	}
}

// ValidationError represents a frame validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateFrame checks a decoded frame and detects anomalies
// Returns a slice of validation errors (empty if frame is valid)
func ValidateFrame(f *Frame) []ValidationError {
	errs := []ValidationError{}

	if err := f.Group().Err(); err != nil {
		errs = append(errs, ValidationError{
			Type:    AnomalyDecodeError,
			Message: fmt.Sprintf("Frame decode failed: %v", err),
			Details: map[string]interface{}{"error": err.Error()},
		})
	}

	var payloadErr error
	switch {
	case f.Message() != nil:
		payloadErr = f.Message().Group().Err()
	case f.Request() != nil:
		payloadErr = f.Request().Group().Err()
	}
	if payloadErr != nil {
		errs = append(errs, ValidationError{
			Type:    AnomalyDecodeError,
			Message: fmt.Sprintf("Modbus payload decode failed: %v", payloadErr),
			Details: map[string]interface{}{"error": payloadErr.Error()},
		})
	}

	errs = append(errs, validateEnvelope(f)...)
	errs = append(errs, validateChecksums(f)...)

	if m := f.Message(); m != nil {
		errs = append(errs, validateMessage(m)...)
	}

	return errs
}

// validateEnvelope checks the fixed framing bytes and the length field
func validateEnvelope(f *Frame) []ValidationError {
	errs := []ValidationError{}

	if v, ok := f.Get(NameStart); ok && v.Uint() != StartByte {
		errs = append(errs, ValidationError{
			Type:    AnomalyFraming,
			Message: fmt.Sprintf("Bad start byte 0x%02X (expected 0x%02X)", v.Uint(), StartByte),
			Details: map[string]interface{}{"start": v.Uint(), "expected": StartByte},
		})
	}

	if v, ok := f.Get(NameEnd); ok && v.Uint() != EndByte {
		errs = append(errs, ValidationError{
			Type:    AnomalyFraming,
			Message: fmt.Sprintf("Bad end byte 0x%02X (expected 0x%02X)", v.Uint(), EndByte),
			Details: map[string]interface{}{"end": v.Uint(), "expected": EndByte},
		})
	}

	if _, ok := f.Get(NameControlCode); ok {
		if _, known := dataFieldFor(f.ControlCode()); !known {
			errs = append(errs, ValidationError{
				Type:    AnomalyControlCode,
				Message: fmt.Sprintf("Unknown control code 0x%04X", f.ControlCode()),
				Details: map[string]interface{}{"control_code": f.ControlCode()},
			})
		}
	}

	if len(f.Trailing()) > 0 {
		errs = append(errs, ValidationError{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("%d bytes after end byte", len(f.Trailing())),
			Details: map[string]interface{}{"trailing": len(f.Trailing())},
		})
	}

	return errs
}

// validateChecksums reports envelope checksum and Modbus CRC mismatches
func validateChecksums(f *Frame) []ValidationError {
	errs := []ValidationError{}

	if !f.Valid() {
		return errs
	}

	var ce *ChecksumError
	if err := f.VerifyChecksum(); errors.As(err, &ce) {
		errs = append(errs, ValidationError{
			Type:    AnomalyChecksum,
			Message: ce.Error(),
			Details: map[string]interface{}{"expected": ce.Expected, "got": ce.Got, "offset": ce.Offset},
		})
	}

	if err := f.verifyPayload(); errors.As(err, &ce) {
		errs = append(errs, ValidationError{
			Type:    AnomalyCRCError,
			Message: ce.Error(),
			Details: map[string]interface{}{"expected": ce.Expected, "got": ce.Got, "offset": ce.Offset},
		})
	}

	return errs
}

// validateMessage checks the Modbus response body
func validateMessage(m *Message) []ValidationError {
	errs := []ValidationError{}

	if ex := m.Exception(); ex != nil {
		errs = append(errs, ValidationError{
			Type:    AnomalyException,
			Message: ex.Error(),
			Details: map[string]interface{}{"function": ex.FunctionCode, "exception": ex.ExceptionCode},
		})
		return errs
	}

	if m.IsRead() && m.Complete() && m.ByteCount()%RegisterSize != 0 {
		errs = append(errs, ValidationError{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("Odd register byte count %d", m.ByteCount()),
			Details: map[string]interface{}{"byte_count": m.ByteCount()},
		})
	}

	for _, v := range m.Readings() {
		if v.InRange() {
			continue
		}
		min, max, _ := v.Descriptor().Range()
		errs = append(errs, ValidationError{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("%s out of range (%s, valid: %v to %v)", v.Name(), v.Text(), min, max),
			Details: map[string]interface{}{"field": v.Name(), "value": v.Float(), "min": min, "max": max},
		})
	}

	return errs
}
