// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deye

import (
	"bytes"
	"errors"
	"fmt"
)

// Envelope field descriptors
var (
	startField    = Uint(NameStart, 8, BigEndian).WithRange(StartByte, StartByte)
	lengthField   = Uint(NameLength, 16, LittleEndian)
	controlField  = Uint(NameControlCode, 16, BigEndian)
	sequenceField = Uint(NameSequence, 16, BigEndian)
	serialField   = Uint(NameSerial, 32, LittleEndian)
	checksumField = Uint(NameChecksum, 8, BigEndian)
	endField      = Uint(NameEnd, 8, BigEndian).WithRange(EndByte, EndByte)
)

// Data field layouts
var (
	requestDataField = Schema{
		Field(Uint(NameFrameType, 8, BigEndian)),
		Field(Uint(NameSensorType, 16, LittleEndian)),
		Field(Uint(NameTotalWorkingTime, 32, LittleEndian).WithUnit(unitSecond)),
		Field(Uint(NamePowerOnTime, 32, LittleEndian).WithUnit(unitSecond)),
		Field(Uint(NameOffsetTime, 32, LittleEndian).WithUnit(unitSecond)),
	}
	responseDataField = Schema{
		Field(Uint(NameFrameType, 8, BigEndian)),
		Field(Uint(NameStatus, 8, BigEndian)),
		Field(Uint(NameTotalWorkingTime, 32, LittleEndian).WithUnit(unitSecond)),
		Field(Uint(NamePowerOnTime, 32, LittleEndian).WithUnit(unitSecond)),
		Field(Uint(NameOffsetTime, 32, LittleEndian).WithUnit(unitSecond)),
	}
)

// dataFieldFor returns the data field layout selected by a control code
func dataFieldFor(control uint16) (Schema, bool) {
	switch control {
	case ControlRequest:
		return requestDataField, true
	case ControlResponse:
		return responseDataField, true
	}
	return nil, false
}

// Frame is a decoded or assembled logger envelope
type Frame struct {
	group   *Group
	request *Request
	message *Message
}

// DecodeFrame parses a logger envelope and its Modbus payload. Requests are
// decoded as Request, responses as Message using opts.
//
// Checksums are not enforced: a frame whose envelope checksum or CRC is wrong
// still decodes and reports Suspect. On error the returned frame holds what
// was decoded before the failure.
func DecodeFrame(buf []byte, opts ...DecodeOption) (*Frame, error) {
	f := &Frame{
		group: newGroup("DeyeFrame", Schema{
			Field(startField),
			Field(lengthField),
			Field(controlField),
			Field(sequenceField),
			Field(serialField),
		}),
	}
	c := NewCursor(buf)

	for f.group.pending() {
		if err := f.group.next(c); err != nil {
			return f, err
		}
	}

	df, ok := dataFieldFor(f.ControlCode())
	if !ok {
		return f, f.malformed(offsetControl, NameControlCode,
			fmt.Sprintf("unknown control code 0x%04X", f.ControlCode()))
	}
	f.group.extend(df...)
	for f.group.pending() {
		if err := f.group.next(c); err != nil {
			return f, err
		}
	}

	n := f.Length() - df.Size()
	if n < 0 {
		return f, f.malformed(offsetLength, NameLength,
			fmt.Sprintf("length %d shorter than the %d byte data field", f.Length(), df.Size()))
	}
	tail := Schema{Field(checksumField), Field(endField)}
	if n > 0 {
		tail = append(Schema{Field(Bytes(NamePayload, n))}, tail...)
	}
	f.group.extend(tail...)
	for f.group.pending() {
		if err := f.group.next(c); err != nil {
			return f, err
		}
	}
	f.group.finish(c)

	if n > 0 {
		if err := f.decodePayload(opts); err != nil {
			return f, err
		}
	}
	return f, nil
}

func (f *Frame) decodePayload(opts []DecodeOption) error {
	base, _ := f.group.Offset(NamePayload)
	payload := f.Payload()

	var err error
	if f.IsResponse() {
		f.message, err = DecodeMessage(payload, opts...)
	} else {
		f.request, err = DecodeRequest(payload)
	}

	var de *DecodeError
	if errors.As(err, &de) {
		shifted := *de
		shifted.Offset += base
		return &shifted
	}
	return err
}

func (f *Frame) malformed(offset int, entry, reason string) error {
	de := &DecodeError{
		Offset: offset,
		Index:  -1,
		Entry:  entry,
		Err:    fmt.Errorf("%w: %s", ErrMalformedSchema, reason),
	}
	f.group.err = de
	return de
}

// EncodeFrame assembles an envelope around payload. The data field is the
// default for the control code, the length and checksum are computed.
func EncodeFrame(control, sequence uint16, serial uint32, payload []byte) (*Frame, error) {
	df, ok := dataFieldFor(control)
	if !ok {
		return nil, fmt.Errorf("%w: unknown control code 0x%04X", ErrMalformedSchema, control)
	}
	length := df.Size() + len(payload)
	if length > 0xFFFF {
		return nil, outOfRange(NameLength, "payload of %d bytes too long", len(payload))
	}

	buf := make([]byte, 0, EnvelopeOverhead+length)
	buf = append(buf, StartByte)
	buf = append(buf, byte(length), byte(length>>8))
	buf = append(buf, byte(control>>8), byte(control))
	buf = append(buf, byte(sequence>>8), byte(sequence))
	buf = append(buf, byte(serial), byte(serial>>8), byte(serial>>16), byte(serial>>24))
	buf = append(buf, defaultDataField(control)...)
	buf = append(buf, payload...)
	buf = append(buf, EnvelopeChecksum(buf[1:]), EndByte)

	return DecodeFrame(buf)
}

func defaultDataField(control uint16) []byte {
	df, _ := dataFieldFor(control)
	out := make([]byte, df.Size())
	out[0] = FrameTypeInverter
	if control == ControlResponse {
		out[1] = 0x01
	}
	return out
}

// seal recomputes the envelope checksum after a field change
func (f *Frame) seal() {
	if v, ok := f.group.Get(NameChecksum); ok {
		_ = v.Set(f.computeChecksum())
	}
}

// sync copies edits made through Request or Message into the payload slot
// and reseals. An unchanged or partially decoded payload is left alone so a
// received checksum is never overwritten.
func (f *Frame) sync() {
	var b []byte
	switch {
	case f.message != nil && f.message.Complete():
		b = f.message.Bytes()
	case f.request != nil && f.request.group.Valid():
		b = f.request.Bytes()
	default:
		return
	}
	v, ok := f.group.Get(NamePayload)
	if !ok || bytes.Equal(v.Raw(), b) {
		return
	}
	if err := v.Set(b); err != nil {
		return
	}
	f.seal()
}

// Set changes an envelope or data field and recomputes the checksum
func (f *Frame) Set(name string, x interface{}) error {
	switch name {
	case NameLength, NameChecksum, NamePayload:
		return fmt.Errorf("%s is computed", name)
	}
	if err := f.group.Set(name, x); err != nil {
		return err
	}
	f.seal()
	return nil
}

// Get returns an envelope or data field by name
func (f *Frame) Get(name string) (*Value, bool) {
	return f.group.Get(name)
}

// Length returns the length field: data field plus payload bytes
func (f *Frame) Length() int { return int(f.group.uint(NameLength)) }

// ControlCode returns the direction code of the frame
func (f *Frame) ControlCode() uint16 { return uint16(f.group.uint(NameControlCode)) }

// IsResponse reports whether the frame came from the logger
func (f *Frame) IsResponse() bool { return f.ControlCode() == ControlResponse }

// Sequence returns the request counter carried by the frame
func (f *Frame) Sequence() uint16 { return uint16(f.group.uint(NameSequence)) }

// Serial returns the logger serial number
func (f *Frame) Serial() uint32 { return uint32(f.group.uint(NameSerial)) }

// Checksum returns the envelope checksum carried by the frame
func (f *Frame) Checksum() byte {
	f.sync()
	return byte(f.group.uint(NameChecksum))
}

// Payload returns the Modbus bytes carried by the frame
func (f *Frame) Payload() []byte {
	f.sync()
	v, ok := f.group.Get(NamePayload)
	if !ok {
		return nil
	}
	return v.Raw()
}

// Request returns the decoded payload of a request frame
func (f *Frame) Request() *Request { return f.request }

// Message returns the decoded payload of a response frame
func (f *Frame) Message() *Message { return f.message }

// DataField returns the data field values in wire order
func (f *Frame) DataField() []*Value {
	df, _ := dataFieldFor(f.ControlCode())
	out := make([]*Value, 0, len(df))
	for _, e := range df {
		if v, ok := f.group.Get(e.Descriptor().Name()); ok {
			out = append(out, v)
		}
	}
	return out
}

// ComputeChecksum recomputes the envelope checksum over everything between
// the start byte and the checksum byte
func (f *Frame) ComputeChecksum() byte {
	f.sync()
	return f.computeChecksum()
}

func (f *Frame) computeChecksum() byte {
	off, ok := f.group.Offset(NameChecksum)
	if !ok {
		return 0
	}
	return EnvelopeChecksum(f.group.Bytes()[1:off])
}

// VerifyChecksum returns a *ChecksumError when the envelope checksum is wrong
func (f *Frame) VerifyChecksum() error {
	off, ok := f.group.Offset(NameChecksum)
	if !ok {
		return fmt.Errorf("%w: frame has no checksum", ErrTruncatedInput)
	}
	if got, want := f.Checksum(), f.ComputeChecksum(); got != want {
		return &ChecksumError{Kind: ChecksumEnvelope, Offset: off, Expected: uint16(want), Got: uint16(got)}
	}
	return nil
}

// Verify checks the envelope checksum and the Modbus CRC.
// Every failure is returned; errors.Is(err, ErrChecksumMismatch) matches either.
func (f *Frame) Verify() error {
	var errs []error
	if err := f.VerifyChecksum(); err != nil {
		errs = append(errs, err)
	}
	if err := f.verifyPayload(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (f *Frame) verifyPayload() error {
	base, _ := f.group.Offset(NamePayload)
	var err error
	switch {
	case f.message != nil:
		err = f.message.VerifyCRC()
	case f.request != nil:
		err = f.request.VerifyCRC()
	default:
		return nil
	}
	var ce *ChecksumError
	if errors.As(err, &ce) {
		shifted := *ce
		shifted.Offset += base
		return &shifted
	}
	return err
}

// Suspect reports whether either checksum disagrees with the frame contents
func (f *Frame) Suspect() bool {
	return f.Verify() != nil
}

// Valid reports whether every envelope field decoded
func (f *Frame) Valid() bool {
	return f.group.Valid()
}

// Trailing returns bytes found after the end byte
func (f *Frame) Trailing() []byte {
	return f.group.Trailing()
}

// Bytes re-encodes the frame
func (f *Frame) Bytes() []byte {
	f.sync()
	return f.group.Bytes()
}

// Size returns the encoded frame length
func (f *Frame) Size() int {
	return f.group.Size()
}

// Group exposes the underlying schema group
func (f *Frame) Group() *Group {
	return f.group
}
