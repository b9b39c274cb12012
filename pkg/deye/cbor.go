// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deye

import (
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Reading is one named register value in a Snapshot
type Reading struct {
	Name  string      `cbor:"0,keyasint"`
	Value interface{} `cbor:"1,keyasint"`
	Unit  string      `cbor:"2,keyasint,omitempty"`
	Raw   []byte      `cbor:"3,keyasint"`
}

// Snapshot is a self-contained record of one register read
type Snapshot struct {
	Serial   uint32    `cbor:"0,keyasint"`
	Time     int64     `cbor:"1,keyasint"` // unix milliseconds
	Sequence uint16    `cbor:"2,keyasint"`
	Start    uint16    `cbor:"3,keyasint"`
	Suspect  bool      `cbor:"4,keyasint"`
	Readings []Reading `cbor:"5,keyasint"`
}

// Filter drops fields whose name contains any of its substrings
type Filter []string

// Keep reports whether name passes the filter
func (f Filter) Keep(name string) bool {
	for _, s := range f {
		if s != "" && strings.Contains(name, s) {
			return false
		}
	}
	return true
}

// Apply returns the values that pass the filter
func (f Filter) Apply(values []*Value) []*Value {
	out := make([]*Value, 0, len(values))
	for _, v := range values {
		if f.Keep(v.Name()) {
			out = append(out, v)
		}
	}
	return out
}

var snapshotEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("deye: cbor encoder options: %v", err))
	}
	return em
}()

// NewSnapshot records the readings of a response frame that pass filter
func NewSnapshot(f *Frame, filter Filter, at time.Time) (*Snapshot, error) {
	m := f.Message()
	if m == nil {
		return nil, fmt.Errorf("frame carries no Modbus response")
	}

	s := &Snapshot{
		Serial:   f.Serial(),
		Time:     at.UnixMilli(),
		Sequence: f.Sequence(),
		Start:    m.StartRegister(),
		Suspect:  f.Suspect(),
	}
	for _, v := range filter.Apply(m.Readings()) {
		s.Readings = append(s.Readings, Reading{
			Name:  v.Name(),
			Value: v.Interface(),
			Unit:  v.Unit(),
			Raw:   v.Raw(),
		})
	}
	return s, nil
}

// EncodeCBOR serialises the snapshot in deterministic CBOR
func (s *Snapshot) EncodeCBOR() ([]byte, error) {
	data, err := snapshotEncMode.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses a snapshot written by EncodeCBOR
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty CBOR payload")
	}
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	return &s, nil
}

// Timestamp returns the snapshot time
func (s *Snapshot) Timestamp() time.Time {
	return time.UnixMilli(s.Time)
}

// Lookup finds a reading by name
func (s *Snapshot) Lookup(name string) (Reading, bool) {
	for _, r := range s.Readings {
		if r.Name == name {
			return r, true
		}
	}
	return Reading{}, false
}

// Float returns a numeric reading as float64
func (r Reading) Float() (float64, bool) {
	switch v := r.Value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
