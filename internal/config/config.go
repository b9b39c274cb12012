// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the deyestat YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport names accepted in device.transport
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
	TransportSerial    = "serial"
)

// Output formats accepted in output.format
const (
	FormatText = "text"
	FormatCBOR = "cbor"
	FormatRaw  = "raw"
)

type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Read    ReadConfig    `yaml:"read"`
	Output  OutputConfig  `yaml:"output"`
	Monitor MonitorConfig `yaml:"monitor"`
	Log     LogConfig     `yaml:"log"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	// Address is host:port for tcp, a ws:// URL for websocket, or a port
	// name for serial.
	Address   string `yaml:"address"`
	Transport string `yaml:"transport"`
	Serial    string `yaml:"serial"` // empty: discover
	TimeoutMs int    `yaml:"timeout_ms"`
	BaudRate  int    `yaml:"baud_rate"`
	Username  string `yaml:"username"`
	NoSSL     bool   `yaml:"no_ssl_verify"`
}

// Timeout returns the exchange timeout
func (d DeviceConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutMs) * time.Millisecond
}

// ---- READ ----

type ReadConfig struct {
	Start uint16 `yaml:"start"`
	Count uint16 `yaml:"count"`
}

// ---- OUTPUT ----

type OutputConfig struct {
	Format  string   `yaml:"format"`
	Exclude []string `yaml:"exclude"`
}

// ---- MONITOR ----

type MonitorConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

// Interval returns the polling interval
func (m MonitorConfig) Interval() time.Duration {
	return time.Duration(m.IntervalMs) * time.Millisecond
}

// ---- LOG ----

type LogConfig struct {
	Level   string `yaml:"level"`
	NoColor bool   `yaml:"no_color"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Transport: TransportTCP,
			TimeoutMs: 10000,
			BaudRate:  115200,
		},
		Read: ReadConfig{
			Start: 0,
			Count: 120,
		},
		Output: OutputConfig{
			Format:  FormatText,
			Exclude: []string{"Module3", "Module4"},
		},
		Monitor: MonitorConfig{
			IntervalMs: 5000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
