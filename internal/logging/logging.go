// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Environment overrides
const (
	EnvLevel   = "DEYESTAT_LOG_LEVEL"
	EnvNoColor = "DEYESTAT_LOG_NOCOLOR"
)

// Profile describes how diagnostics are written
type Profile struct {
	Level   string
	NoColor bool
	Out     io.Writer
}

var (
	once   sync.Once
	logger zerolog.Logger
)

// Configure builds the global logger from profile and the environment.
// Only the first call has any effect.
func Configure(p Profile) zerolog.Logger {
	once.Do(func() {
		logger = New(p)
		log.Logger = logger
	})
	return logger
}

// New builds a logger without touching the global one
func New(p Profile) zerolog.Logger {
	if v := os.Getenv(EnvLevel); v != "" {
		p.Level = v
	}
	if v := os.Getenv(EnvNoColor); v != "" && v != "0" {
		p.NoColor = true
	}
	if p.Out == nil {
		p.Out = os.Stderr
	}

	output := zerolog.ConsoleWriter{
		Out:        p.Out,
		TimeFormat: time.TimeOnly,
		NoColor:    p.NoColor,
	}
	return zerolog.New(output).Level(ParseLevel(p.Level)).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level; unknown names mean info
func ParseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return level
}

// Component returns a child logger tagged with a component name
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
