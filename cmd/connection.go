// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Thermoquad/deyestat/internal/config"
	"github.com/Thermoquad/deyestat/internal/logging"
	"github.com/Thermoquad/deyestat/pkg/deye"
	"github.com/Thermoquad/deyestat/pkg/transport"
)

// EnvPassword holds the WebSocket bridge password
const EnvPassword = "DEYESTAT_PASSWORD"

// GetPassword returns the bridge password from DEYESTAT_PASSWORD, or reads
// it from the terminal without echo
func GetPassword() (string, error) {
	if pw := os.Getenv(EnvPassword); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	pw, err := term.ReadPassword(int(syscall.Stdin))
	if err == nil {
		fmt.Fprintln(os.Stderr)
		return string(pw), nil
	}

	// stdin is not a terminal
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	fmt.Fprintln(os.Stderr)
	return strings.TrimSpace(line), nil
}

// OpenTransport opens the transport described by the device configuration
// and returns it together with a one-line description
func OpenTransport(ctx context.Context, dev config.DeviceConfig) (deye.Transport, string, error) {
	if dev.Address == "" {
		return nil, "", fmt.Errorf("no device address: pass host:port, --url or --port")
	}

	log := logging.Component(logger, "transport")

	switch dev.Transport {
	case config.TransportWebSocket:
		password := ""
		if dev.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		t, err := transport.DialWebSocket(ctx, dev.Address, transport.WebSocketOptions{
			Username:      dev.Username,
			Password:      password,
			SkipSSLVerify: dev.NoSSL,
			Timeout:       dev.Timeout(),
		}, log)
		if err != nil {
			return nil, "", err
		}
		return t, fmt.Sprintf("WebSocket: %s", dev.Address), nil

	case config.TransportSerial:
		t, err := transport.OpenSerial(dev.Address, dev.BaudRate, dev.Timeout(), log)
		if err != nil {
			return nil, "", err
		}
		return t, fmt.Sprintf("Serial: %s @ %d baud", dev.Address, dev.BaudRate), nil

	default:
		t, err := transport.DialTCP(ctx, dev.Address, dev.Timeout(), log)
		if err != nil {
			return nil, "", err
		}
		return t, fmt.Sprintf("TCP: %s", dev.Address), nil
	}
}

// OpenClient opens the configured transport and wraps it in a client.
// The logger serial is taken from the configuration when set.
func OpenClient(ctx context.Context) (*deye.Client, string, error) {
	t, connInfo, err := OpenTransport(ctx, cfg.Device)
	if err != nil {
		return nil, "", err
	}

	opts := []deye.ClientOption{deye.WithLogger(logger)}
	if cfg.Device.Serial != "" {
		serial, err := deye.ParseSerial(cfg.Device.Serial)
		if err != nil {
			t.Close()
			return nil, "", err
		}
		opts = append(opts, deye.WithSerial(serial))
	}
	return deye.NewClient(t, opts...), connInfo, nil
}

// ensureSerial discovers the logger serial unless one is configured
func ensureSerial(ctx context.Context, client *deye.Client) (uint32, error) {
	if client.Serial() != 0 {
		return client.Serial(), nil
	}
	return client.Discover(ctx)
}
