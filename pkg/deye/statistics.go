// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deye

import (
	"fmt"
	"sync"
	"time"
)

// Statistics tracks exchange statistics and error rates.
// It is safe for concurrent use; read the counters through Snapshot.
type Statistics struct {
	mu sync.Mutex
	Counters
}

// Counters is a point-in-time copy of the statistics
type Counters struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalExchanges  uint64
	ValidFrames     uint64
	ChecksumErrors  uint64
	CRCErrors       uint64
	DecodeErrors    uint64
	Exceptions      uint64
	AnomalousValues uint64
	FramingErrors   uint64
	Timeouts        uint64
	TransportErrors uint64

	// Rates (calculated)
	ExchangeRate float64 // exchanges/sec
	ErrorRate    float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{Counters: Counters{
		StartTime:      now,
		LastUpdateTime: now,
	}}
}

// Update records one decoded exchange with its decode error and anomalies
func (s *Statistics) Update(decodeErr error, anomalies []ValidationError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalExchanges++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		s.DecodeErrors++
		return
	}

	if len(anomalies) == 0 {
		s.ValidFrames++
		return
	}

	for _, a := range anomalies {
		switch a.Type {
		case AnomalyChecksum:
			s.ChecksumErrors++
		case AnomalyCRCError:
			s.CRCErrors++
		case AnomalyException:
			s.Exceptions++
		case AnomalyInvalidValue:
			s.AnomalousValues++
		case AnomalyFraming, AnomalyControlCode, AnomalyLengthMismatch:
			s.FramingErrors++
		case AnomalyDecodeError:
			s.DecodeErrors++
		}
	}
}

// RecordTimeout records an exchange that got no answer in time
func (s *Statistics) RecordTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalExchanges++
	s.Timeouts++
	s.LastUpdateTime = time.Now()
}

// RecordTransportError records an exchange that failed below the protocol
func (s *Statistics) RecordTransportError() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalExchanges++
	s.TransportErrors++
	s.LastUpdateTime = time.Now()
}

func (s *Counters) errorCount() uint64 {
	return s.ChecksumErrors + s.CRCErrors + s.DecodeErrors + s.Exceptions +
		s.AnomalousValues + s.FramingErrors + s.Timeouts + s.TransportErrors
}

// calculateRates calculates exchange and error rates
func (s *Counters) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.ExchangeRate = float64(s.TotalExchanges) / elapsed
		s.ErrorRate = float64(s.errorCount()) / elapsed
	}
}

// Snapshot returns a copy of the counters with rates filled in
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calculateRates()
	return s.Counters
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	snap := s.Snapshot()

	percent := func(n uint64) float64 {
		if snap.TotalExchanges == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(snap.TotalExchanges)
	}

	elapsed := time.Since(snap.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Exchanges: %8d\n", snap.TotalExchanges)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", snap.ValidFrames, percent(snap.ValidFrames))

	if snap.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d (%.1f%%)\n", snap.ChecksumErrors, percent(snap.ChecksumErrors))
	}
	if snap.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", snap.CRCErrors, percent(snap.CRCErrors))
	}
	if snap.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", snap.DecodeErrors, percent(snap.DecodeErrors))
	}
	if snap.FramingErrors > 0 {
		result += fmt.Sprintf("Framing Errors:  %8d (%.1f%%)\n", snap.FramingErrors, percent(snap.FramingErrors))
	}
	if snap.Exceptions > 0 {
		result += fmt.Sprintf("Exceptions:      %8d (%.1f%%)\n", snap.Exceptions, percent(snap.Exceptions))
	}
	if snap.AnomalousValues > 0 {
		result += fmt.Sprintf("Anomalous Values:%8d\n", snap.AnomalousValues)
	}
	if snap.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d (%.1f%%)\n", snap.Timeouts, percent(snap.Timeouts))
	}
	if snap.TransportErrors > 0 {
		result += fmt.Sprintf("Transport Errors:%8d (%.1f%%)\n", snap.TransportErrors, percent(snap.TransportErrors))
	}

	result += fmt.Sprintf("Exchange Rate:   %8.2f /sec\n", snap.ExchangeRate)
	result += fmt.Sprintf("Error Rate:      %8.2f errors/sec\n", snap.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.Counters = Counters{
		StartTime:      now,
		LastUpdateTime: now,
	}
}
