// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deye

import (
	"fmt"

	"github.com/goburrow/modbus"
)

// Modbus field descriptors
var (
	functionCodeField  = Uint(NameFunctionCode, 16, BigEndian)
	byteCountField     = Uint(NameByteCount, 8, BigEndian)
	startRegisterField = Uint(NameStartRegister, 16, BigEndian)
	registerCountField = Uint(NameRegisterCount, 16, BigEndian)
	exceptionCodeField = Uint(NameExceptionCode, 8, BigEndian)
	crcField           = Uint(NameCRC, 16, LittleEndian)
)

// NameExceptionCode is the field holding a Modbus exception code
const NameExceptionCode = "ExceptionCode"

var metaFields = map[string]bool{
	NameFunctionCode:  true,
	NameByteCount:     true,
	NameStartRegister: true,
	NameRegisterCount: true,
	NameExceptionCode: true,
	NameCRC:           true,
}

func functionOf(code uint16) byte {
	return byte(code)
}

// ============================================================
// Request
// ============================================================

// Request is an assembled Modbus request:
// function code, start register, register count and CRC.
type Request struct {
	group *Group
}

// NewRequest assembles a request and appends its CRC
func NewRequest(function, start, count uint16) (*Request, error) {
	if functionOf(function) == modbus.FuncCodeReadHoldingRegisters && (count == 0 || count > MaxReadRegisters) {
		return nil, outOfRange(NameRegisterCount, "%d registers, want 1-%d", count, MaxReadRegisters)
	}

	g := newGroup("ModbusRequest", nil)
	for _, f := range []struct {
		desc  Descriptor
		value uint16
	}{
		{functionCodeField, function},
		{startRegisterField, start},
		{registerCountField, count},
		{crcField, 0},
	} {
		v, err := f.desc.New(f.value)
		if err != nil {
			return nil, err
		}
		g.addValue(v)
	}

	r := &Request{group: g}
	r.seal()
	return r, nil
}

// NewReadRequest assembles a read holding registers request
func NewReadRequest(start, count uint16) (*Request, error) {
	return NewRequest(FunctionRead, start, count)
}

// DecodeRequest parses a request payload. The CRC is not checked; see VerifyCRC.
func DecodeRequest(buf []byte) (*Request, error) {
	g, err := DecodeGroup("ModbusRequest", buf, Schema{
		Field(functionCodeField),
		Field(startRegisterField),
		Field(registerCountField),
		Field(crcField),
	})
	return &Request{group: g}, err
}

// seal recomputes the CRC over the preceding fields
func (r *Request) seal() {
	v, _ := r.group.Get(NameCRC)
	_ = v.Set(r.ComputeCRC())
}

// FunctionCode returns the slave address and function as one word
func (r *Request) FunctionCode() uint16 { return uint16(r.group.uint(NameFunctionCode)) }

// StartRegister returns the first register requested
func (r *Request) StartRegister() uint16 { return uint16(r.group.uint(NameStartRegister)) }

// RegisterCount returns the number of registers requested
func (r *Request) RegisterCount() uint16 { return uint16(r.group.uint(NameRegisterCount)) }

// CRC returns the CRC carried by the request
func (r *Request) CRC() uint16 { return uint16(r.group.uint(NameCRC)) }

// IsRead reports whether this is a read holding registers request
func (r *Request) IsRead() bool {
	return functionOf(r.FunctionCode()) == modbus.FuncCodeReadHoldingRegisters
}

// ComputeCRC recomputes the CRC over the function code, start and count
func (r *Request) ComputeCRC() uint16 {
	b := r.group.Bytes()
	return ModbusCRC(b[:RequestSize-2])
}

// VerifyCRC returns a *ChecksumError when the carried CRC is wrong
func (r *Request) VerifyCRC() error {
	if got, want := r.CRC(), r.ComputeCRC(); got != want {
		return &ChecksumError{Kind: ChecksumModbus, Offset: RequestSize - 2, Expected: want, Got: got}
	}
	return nil
}

// Set changes a request field and recomputes the CRC
func (r *Request) Set(name string, x interface{}) error {
	if name == NameCRC {
		return fmt.Errorf("%s is computed", NameCRC)
	}
	if err := r.group.Set(name, x); err != nil {
		return err
	}
	r.seal()
	return nil
}

// Bytes returns the wire form of the request
func (r *Request) Bytes() []byte {
	return r.group.Bytes()
}

// Group exposes the underlying schema group
func (r *Request) Group() *Group {
	return r.group
}

// ============================================================
// Response
// ============================================================

// DecodeOption tunes how a response payload is laid out
type DecodeOption func(*decodeConfig)

type decodeConfig struct {
	start   uint16
	catalog Catalog
}

// WithStartRegister sets the register the response window starts at.
// Responses carry no start address; it must come from the request.
func WithStartRegister(start uint16) DecodeOption {
	return func(c *decodeConfig) { c.start = start }
}

// WithCatalog replaces the register map used to name response registers
func WithCatalog(catalog Catalog) DecodeOption {
	return func(c *decodeConfig) { c.catalog = catalog }
}

func newDecodeConfig(opts []DecodeOption) decodeConfig {
	cfg := decodeConfig{catalog: defaultCatalog}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

type decodeState int

const (
	stateFunctionCode decodeState = iota
	stateLength
	statePayload
	stateCRC
	stateDone
)

func (s decodeState) String() string {
	switch s {
	case stateFunctionCode:
		return "function code"
	case stateLength:
		return "length"
	case statePayload:
		return "payload"
	case stateCRC:
		return "crc"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Message is a decoded Modbus response. The register table is named by the
// catalog window that the byte count and start register select.
type Message struct {
	group *Group
	start uint16
	state decodeState
}

// DecodeMessage parses a response payload. The layout after the function
// code depends on the values decoded so far:
//
//	read       function | byte count | registers | crc
//	write      function | start | count | crc
//	exception  function | exception code | crc
//	other      function | opaque | crc
//
// The CRC is not checked; see VerifyCRC. On error the returned message holds
// what was decoded before the failure.
func DecodeMessage(buf []byte, opts ...DecodeOption) (*Message, error) {
	cfg := newDecodeConfig(opts)
	m := &Message{
		group: newGroup("ModbusResponse", Schema{Field(functionCodeField)}),
		start: cfg.start,
		state: stateFunctionCode,
	}
	c := NewCursor(buf)

	for m.state != stateDone {
		switch m.state {
		case stateFunctionCode:
			if err := m.group.next(c); err != nil {
				return m, err
			}
			m.state = m.afterFunctionCode(c)

		case stateLength:
			if c.Remaining() == 0 {
				return m, m.malformed(c, NameByteCount, "read response without length byte")
			}
			if err := m.group.next(c); err != nil {
				return m, err
			}
			if n := m.ByteCount(); n > 0 {
				m.group.extend(cfg.catalog.Schema(m.start, n)...)
			}
			m.state = statePayload

		case statePayload:
			for m.group.pending() {
				if err := m.group.next(c); err != nil {
					return m, err
				}
			}
			m.group.extend(Field(crcField))
			m.state = stateCRC

		case stateCRC:
			if err := m.group.next(c); err != nil {
				return m, err
			}
			m.state = stateDone
		}
	}

	m.group.finish(c)
	return m, nil
}

// afterFunctionCode grows the schema for the decoded function and returns
// the next state
func (m *Message) afterFunctionCode(c *Cursor) decodeState {
	fn := functionOf(m.FunctionCode())
	switch {
	case fn == modbus.FuncCodeReadHoldingRegisters:
		m.group.extend(Field(byteCountField))
		return stateLength
	case fn&exceptionFlag != 0:
		m.group.extend(Field(exceptionCodeField))
	case fn == modbus.FuncCodeWriteMultipleRegisters:
		m.group.extend(Field(startRegisterField), Field(registerCountField))
	default:
		if n := c.Remaining() - crcField.Size(); n > 0 {
			m.group.extend(Padding(n))
		}
	}
	return statePayload
}

func (m *Message) malformed(c *Cursor, entry string, reason string) error {
	de := &DecodeError{
		Offset: c.Pos(),
		Index:  len(m.group.slots),
		Entry:  entry,
		Err:    fmt.Errorf("%w: %s", ErrMalformedSchema, reason),
	}
	m.group.err = de
	return de
}

// FunctionCode returns the slave address and function as one word
func (m *Message) FunctionCode() uint16 { return uint16(m.group.uint(NameFunctionCode)) }

// IsRead reports whether this is a read holding registers response
func (m *Message) IsRead() bool {
	return functionOf(m.FunctionCode()) == modbus.FuncCodeReadHoldingRegisters
}

// IsException reports whether the device answered with a Modbus exception
func (m *Message) IsException() bool {
	return m.group.Has(NameFunctionCode) && functionOf(m.FunctionCode())&exceptionFlag != 0
}

// Exception returns the device exception, or nil for a normal response
func (m *Message) Exception() *modbus.ModbusError {
	if !m.IsException() {
		return nil
	}
	return &modbus.ModbusError{
		FunctionCode:  functionOf(m.FunctionCode()),
		ExceptionCode: byte(m.group.uint(NameExceptionCode)),
	}
}

// ByteCount returns the announced register payload length in bytes
func (m *Message) ByteCount() int { return int(m.group.uint(NameByteCount)) }

// StartRegister returns the register the response window starts at
func (m *Message) StartRegister() uint16 { return m.start }

// RegisterCount returns the number of registers in a read response
func (m *Message) RegisterCount() int { return m.ByteCount() / RegisterSize }

// CRC returns the CRC carried by the response
func (m *Message) CRC() uint16 { return uint16(m.group.uint(NameCRC)) }

// Get returns a decoded field by name
func (m *Message) Get(name string) (*Value, bool) {
	return m.group.Get(name)
}

// Readings returns the decoded register fields in address order
func (m *Message) Readings() []*Value {
	var out []*Value
	for _, v := range m.group.Fields() {
		if !metaFields[v.Name()] {
			out = append(out, v)
		}
	}
	return out
}

// Complete reports whether the whole response decoded
func (m *Message) Complete() bool {
	return m.state == stateDone && m.group.Valid()
}

// ComputeCRC recomputes the CRC over everything before it
func (m *Message) ComputeCRC() uint16 {
	off, ok := m.group.Offset(NameCRC)
	if !ok {
		return ModbusCRC(m.group.Bytes())
	}
	return ModbusCRC(m.group.Bytes()[:off])
}

// VerifyCRC returns a *ChecksumError when the carried CRC is wrong.
// Incomplete messages report ErrTruncatedInput.
func (m *Message) VerifyCRC() error {
	off, ok := m.group.Offset(NameCRC)
	if !ok {
		return fmt.Errorf("%w: response has no CRC (stopped at %s)", ErrTruncatedInput, m.state)
	}
	if got, want := m.CRC(), m.ComputeCRC(); got != want {
		return &ChecksumError{Kind: ChecksumModbus, Offset: off, Expected: want, Got: got}
	}
	return nil
}

// Set changes a register field and recomputes the CRC
func (m *Message) Set(name string, x interface{}) error {
	if metaFields[name] {
		return fmt.Errorf("%s is structural and cannot be set", name)
	}
	if err := m.group.Set(name, x); err != nil {
		return err
	}
	if v, ok := m.group.Get(NameCRC); ok {
		_ = v.Set(m.ComputeCRC())
	}
	return nil
}

// Bytes re-encodes the response
func (m *Message) Bytes() []byte {
	return m.group.Bytes()
}

// Group exposes the underlying schema group
func (m *Message) Group() *Group {
	return m.group
}

// EncodeReadResponse builds the response a device sends for a read of the
// registers held in regs
func EncodeReadResponse(function uint16, regs []byte, opts ...DecodeOption) (*Message, error) {
	if len(regs) > 0xFF {
		return nil, outOfRange(NameByteCount, "%d register bytes do not fit one byte", len(regs))
	}
	buf := make([]byte, 0, 3+len(regs)+2)
	buf = append(buf, byte(function>>8), byte(function))
	buf = append(buf, byte(len(regs)))
	buf = append(buf, regs...)
	return DecodeMessage(AppendModbusCRC(buf), opts...)
}
