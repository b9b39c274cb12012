// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Deyestat - Deye Inverter Logger Client
//
// A CLI tool for reading and decoding Deye inverter telemetry through the
// data logger's Modbus tunnel.

package main

import (
	"os"

	"github.com/Thermoquad/deyestat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
