// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/deyestat/internal/config"
	"github.com/Thermoquad/deyestat/internal/logging"
)

var (
	configPath string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Device flags
	loggerSerial string
	timeoutMs    int
	logLevel     string
)

// cfg is the effective configuration: file, then flags
var cfg = config.Default()

// logger is the diagnostic logger, configured before any command runs
var logger = zerolog.Nop()

var rootCmd = &cobra.Command{
	Use:   "deyestat [host:port]",
	Short: "Deye Inverter Logger Client",
	Long: `Deyestat - A CLI tool for reading Deye string inverters through their
WiFi/Ethernet data logger.

The logger tunnels Modbus register reads inside its own envelope. Deyestat
discovers the logger serial, reads the holding registers and decodes them
into named telemetry fields.

With a single host:port argument it behaves like "deyestat read host:port".

Connection modes:
  TCP:       deyestat read 192.168.1.50:8899
  WebSocket: --url ws://host/path [--username user]
  Serial:    --port /dev/ttyUSB0 [--baud 115200]

For WebSocket authentication, the password is read from the DEYESTAT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	Args:              cobra.MaximumNArgs(1),
	PersistentPreRunE: loadConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runRead(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Device flags
	rootCmd.PersistentFlags().StringVarP(&loggerSerial, "serial", "s", "", "Logger serial (10 digits, discovered when empty)")
	rootCmd.PersistentFlags().IntVarP(&timeoutMs, "timeout", "t", 10000, "Exchange timeout in milliseconds")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
}

// Execute runs the root command. An interrupt cancels the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig reads the config file and applies explicitly set flags on top
func loadConfig(cmd *cobra.Command, args []string) error {
	loaded := config.Default()
	if configPath != "" {
		var err error
		if loaded, err = config.Load(configPath); err != nil {
			return err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		loaded.Device.Transport = config.TransportSerial
		loaded.Device.Address = portName
	}
	if flags.Changed("baud") {
		loaded.Device.BaudRate = baudRate
	}
	if flags.Changed("url") {
		loaded.Device.Transport = config.TransportWebSocket
		loaded.Device.Address = wsURL
	}
	if flags.Changed("username") {
		loaded.Device.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		loaded.Device.NoSSL = wsNoSSLVerify
	}
	if flags.Changed("serial") {
		loaded.Device.Serial = loggerSerial
	}
	if flags.Changed("timeout") {
		loaded.Device.TimeoutMs = timeoutMs
	}
	if flags.Changed("log-level") {
		loaded.Log.Level = logLevel
	}

	if err := config.Validate(loaded); err != nil {
		return err
	}

	cfg = loaded
	logger = logging.Configure(logging.Profile{Level: cfg.Log.Level, NoColor: cfg.Log.NoColor})
	return nil
}

// applyAddress points the configuration at a host:port given on the command line
func applyAddress(c *config.Config, arg string) error {
	addr, err := parseAddress(arg)
	if err != nil {
		return err
	}
	c.Device.Transport = config.TransportTCP
	c.Device.Address = addr
	return nil
}

// parseAddress validates a host:port argument
func parseAddress(arg string) (string, error) {
	host, port, err := net.SplitHostPort(arg)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: want host:port", arg)
	}
	if host == "" {
		return "", fmt.Errorf("invalid address %q: missing host", arg)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return "", fmt.Errorf("invalid address %q: port must be 1-65535", arg)
	}
	return arg, nil
}
