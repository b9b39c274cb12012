// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deye

import "github.com/sigurn/crc16"

var modbusTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// ModbusCRC computes CRC-16/MODBUS over data. The result is sent low byte
// first, so its wire form is the byte-swapped value.
func ModbusCRC(data []byte) uint16 {
	return crc16.Checksum(data, modbusTable)
}

// AppendModbusCRC appends the CRC of data to data in wire order
func AppendModbusCRC(data []byte) []byte {
	crc := ModbusCRC(data)
	return append(data, byte(crc), byte(crc>>8))
}

// EnvelopeChecksum computes the 8-bit additive checksum used by the envelope
func EnvelopeChecksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}
