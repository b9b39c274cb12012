// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package deye implements the logger envelope used by Deye string inverters
// to tunnel Modbus requests over TCP.
//
// The package provides a small declarative binary codec (field descriptors,
// schema groups that may grow while decoding), the two checksums used on the
// wire, frame and Modbus message assembly, and a client that drives a
// request/response exchange over any Transport.
package deye

import "github.com/goburrow/modbus"

// Envelope framing bytes
const (
	StartByte = 0xA5
	EndByte   = 0x15
)

// Control codes (big-endian as they appear on the wire)
const (
	ControlRequest  = 0x1045
	ControlResponse = 0x1015
)

// Envelope layout
const (
	HeaderSize  = 11 // start + length + control + sequence + serial
	TrailerSize = 2  // checksum + end

	// EnvelopeOverhead is the fixed number of bytes around the data field
	// and the Modbus payload.
	EnvelopeOverhead = HeaderSize + TrailerSize

	RequestDataFieldSize  = 15
	ResponseDataFieldSize = 14

	// FrameTypeInverter is the first data-field byte for inverter traffic.
	FrameTypeInverter = 0x02

	// MaxResponseSize bounds a single transport read.
	MaxResponseSize = 1024
)

// Envelope offsets
const (
	offsetLength  = 1
	offsetControl = 3
)

// Modbus addressing. The logger forwards a two byte "function code" which is
// the slave address followed by the Modbus function.
const (
	DefaultSlaveID = 0x01

	FunctionRead  = DefaultSlaveID<<8 | modbus.FuncCodeReadHoldingRegisters
	FunctionWrite = DefaultSlaveID<<8 | modbus.FuncCodeWriteMultipleRegisters

	// RequestSize is the fixed size of an assembled read request.
	RequestSize = 8

	// RegisterSize is the width of one Modbus register in bytes.
	RegisterSize = 2

	// CatalogRegisters is the number of registers covered by DefaultCatalog.
	CatalogRegisters = 120

	// MaxReadRegisters is the largest count that fits the one byte length.
	MaxReadRegisters = 127

	exceptionFlag = 0x80
)

// Field names shared by the envelope and Modbus schemas
const (
	NameStart            = "Start"
	NameLength           = "Length"
	NameControlCode      = "ControlCode"
	NameSequence         = "Sequence"
	NameSerial           = "InverterSerial"
	NameFrameType        = "FrameType"
	NameSensorType       = "SensorType"
	NameStatus           = "Status"
	NameTotalWorkingTime = "TotalWorkingTime"
	NamePowerOnTime      = "PowerOnTime"
	NameOffsetTime       = "OffsetTime"
	NamePayload          = "ModbusFrame"
	NameChecksum         = "Checksum"
	NameEnd              = "End"

	NameFunctionCode  = "FunctionCode"
	NameByteCount     = "ByteCount"
	NameStartRegister = "StartRegister"
	NameRegisterCount = "RegisterCount"
	NameCRC           = "CRC"
)
