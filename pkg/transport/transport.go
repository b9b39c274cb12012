// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport carries logger frames over TCP, a WebSocket bridge or a
// serial line. Every transport performs one blocking write followed by one
// read; frames are never reassembled across reads.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

// MaxFrameSize bounds a single response read
const MaxFrameSize = 1024

// Sentinel errors. Transport failures unwrap to exactly one of these and
// to the underlying cause.
var (
	ErrTimeout    = errors.New("timeout")
	ErrConnection = errors.New("connection error")
)

// classify wraps err with the matching sentinel
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnection) {
		return err
	}
	if isTimeout(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrConnection, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
