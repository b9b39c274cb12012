// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deye

import "sort"

// RegisterField places a field descriptor in the inverter register map.
// Offset is the byte offset inside the first register (0 or 1).
type RegisterField struct {
	Address uint16
	Offset  int
	Field   Descriptor
}

func (r RegisterField) start() int {
	return int(r.Address)*RegisterSize + r.Offset
}

// Catalog is a register map ordered by address
type Catalog []RegisterField

// Units
const (
	unitVolt    = "V"
	unitAmp     = "A"
	unitHertz   = "Hz"
	unitWatt    = "W"
	unitKWh     = "kWh"
	unitSecond  = "s"
	unitMinute  = "min"
	unitPercent = "%"
	unitCelsius = "°C"
)

func volts(name string) Descriptor { return Decimal(name, 10).WithUnit(unitVolt) }
func amps(name string) Descriptor  { return Decimal(name, 10).WithUnit(unitAmp) }
func hertz(name string) Descriptor { return Decimal(name, 100).WithUnit(unitHertz) }
func kwh(name string) Descriptor   { return Decimal(name, 10).WithUnit(unitKWh) }
func kwh32(name string) Descriptor { return Decimal32(name, 10).WithUnit(unitKWh) }
func word(name string) Descriptor  { return Uint(name, 16, BigEndian) }
func flag(name string) Descriptor  { return word(name).WithRange(0, 1) }

var defaultCatalog = Catalog{
	// Device information
	{Address: 0, Field: Hex("DeviceType", 16)},
	{Address: 1, Field: Uint("ModbusAddress", 16, LittleEndian)},
	{Address: 2, Field: Bytes("ProtocolVersion", 2)},
	{Address: 3, Field: Bytes("DeviceSerial", 10)},
	{Address: 16, Field: Decimal32("RatedPower", 10).WithUnit(unitWatt)},
	{Address: 18, Field: Uint("MPPTCount", 8, BigEndian)},
	{Address: 18, Offset: 1, Field: Uint("PhaseCount", 8, BigEndian)},

	// Settings
	{Address: 19, Field: Hex("RatedGridVoltage", 16)},
	{Address: 20, Field: flag("RemoteLockEnabled")},
	{Address: 21, Field: word("PowerOnSelfTestTime").WithUnit(unitSecond)},
	{Address: 22, Field: Hex("SystemTime", 48)},
	{Address: 27, Field: volts("GridVoltageUpperLimit").WithRange(0, 3000)},
	{Address: 28, Field: volts("GridVoltageLowerLimit").WithRange(0, 3000)},
	{Address: 29, Field: hertz("GridFrequencyUpperLimit").WithRange(0, 100)},
	{Address: 30, Field: hertz("GridFrequencyLowerLimit").WithRange(0, 100)},
	{Address: 31, Field: amps("GridCurrentUpperLimit")},
	{Address: 40, Field: word("ActivePowerRegulation").WithUnit(unitPercent).WithRange(0, 100)},
	{Address: 43, Field: flag("SwitchEnable")},
	{Address: 44, Field: flag("FactoryResetEnable")},
	{Address: 45, Field: word("IslandSelfCheckTime").WithUnit(unitSecond)},
	{Address: 46, Field: flag("IslandProtectionEnable")},

	// Telemetry
	{Address: 59, Field: word("RunState")},
	{Address: 60, Field: kwh("DayActivePower")},
	{Address: 62, Field: word("Uptime").WithUnit(unitMinute)},
	{Address: 63, Field: kwh32("TotalActivePower")},
	{Address: 65, Field: kwh("Module1DayActivePower")},
	{Address: 66, Field: kwh("Module2DayActivePower")},
	{Address: 67, Field: kwh("Module3DayActivePower")},
	{Address: 68, Field: kwh("Module4DayActivePower")},
	{Address: 69, Field: kwh32("Module1TotalActivePower")},
	{Address: 71, Field: kwh32("Module2TotalActivePower")},
	{Address: 73, Field: volts("GridVoltage")},
	{Address: 74, Field: kwh32("Module3TotalActivePower")},
	{Address: 76, Field: amps("GridCurrent")},
	{Address: 77, Field: kwh32("Module4TotalActivePower")},
	{Address: 79, Field: hertz("GridFrequency")},
	{Address: 86, Field: Decimal32("ActivePower", 10).WithUnit(unitWatt)},
	{Address: 90, Field: Decimal("Temperature", 100).WithUnit(unitCelsius)},
	{Address: 109, Field: volts("Module1Voltage")},
	{Address: 110, Field: amps("Module1Current")},
	{Address: 111, Field: volts("Module2Voltage")},
	{Address: 112, Field: amps("Module2Current")},
	{Address: 113, Field: volts("Module3Voltage")},
	{Address: 114, Field: amps("Module3Current")},
	{Address: 115, Field: volts("Module4Voltage")},
	{Address: 116, Field: amps("Module4Current")},
}

// DefaultCatalog returns a fresh copy of the inverter register map
func DefaultCatalog() Catalog {
	c := make(Catalog, len(defaultCatalog))
	copy(c, defaultCatalog)
	return c
}

// Lookup finds a catalog entry by field name
func (c Catalog) Lookup(name string) (RegisterField, bool) {
	for _, r := range c {
		if r.Field.Name() == name {
			return r, true
		}
	}
	return RegisterField{}, false
}

// Names returns every field name in address order
func (c Catalog) Names() []string {
	sorted := c.sorted()
	out := make([]string, len(sorted))
	for i, r := range sorted {
		out[i] = r.Field.Name()
	}
	return out
}

// Schema lays out the register table for a response covering byteCount
// bytes starting at register start. Fields wholly inside the window are
// decoded; every other byte becomes register-aligned padding.
func (c Catalog) Schema(start uint16, byteCount int) Schema {
	from := int(start) * RegisterSize
	to := from + byteCount
	pos := from

	var s Schema
	for _, r := range c.sorted() {
		at := r.start()
		end := at + r.Field.Size()
		if at < pos || end > to {
			continue
		}
		s = append(s, padding(pos, at)...)
		s = append(s, Field(r.Field))
		pos = end
	}
	return append(s, padding(pos, to)...)
}

func (c Catalog) sorted() Catalog {
	out := make(Catalog, len(c))
	copy(out, c)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].start() < out[j].start()
	})
	return out
}

// padding covers [from, to) with spans that never cross a register boundary
func padding(from, to int) Schema {
	var s Schema
	for from < to {
		n := RegisterSize - from%RegisterSize
		if n > to-from {
			n = to - from
		}
		s = append(s, Padding(n))
		from += n
	}
	return s
}
