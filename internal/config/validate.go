// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"

	"github.com/Thermoquad/deyestat/pkg/deye"
)

// Validate checks configuration correctness.
// It performs declarative validation only and never mutates cfg.
func Validate(cfg *Config) error {
	switch cfg.Device.Transport {
	case TransportTCP, TransportWebSocket, TransportSerial:
	default:
		return fmt.Errorf("device.transport %q: want %s, %s or %s",
			cfg.Device.Transport, TransportTCP, TransportWebSocket, TransportSerial)
	}

	if cfg.Device.TimeoutMs <= 0 {
		return fmt.Errorf("device.timeout_ms must be positive, got %d", cfg.Device.TimeoutMs)
	}

	if cfg.Device.Transport == TransportSerial && cfg.Device.BaudRate <= 0 {
		return fmt.Errorf("device.baud_rate must be positive, got %d", cfg.Device.BaudRate)
	}

	if cfg.Device.Serial != "" {
		if _, err := deye.ParseSerial(cfg.Device.Serial); err != nil {
			return fmt.Errorf("device.serial: %w", err)
		}
	}

	if cfg.Read.Count == 0 || cfg.Read.Count > deye.MaxReadRegisters {
		return fmt.Errorf("read.count must be 1-%d, got %d", deye.MaxReadRegisters, cfg.Read.Count)
	}
	if int(cfg.Read.Start)+int(cfg.Read.Count) > 0x10000 {
		return fmt.Errorf("read window %d+%d passes the last register", cfg.Read.Start, cfg.Read.Count)
	}

	switch cfg.Output.Format {
	case FormatText, FormatCBOR, FormatRaw:
	default:
		return fmt.Errorf("output.format %q: want %s, %s or %s", cfg.Output.Format, FormatText, FormatCBOR, FormatRaw)
	}

	if cfg.Monitor.IntervalMs < 500 {
		return fmt.Errorf("monitor.interval_ms must be at least 500, got %d", cfg.Monitor.IntervalMs)
	}

	return nil
}
