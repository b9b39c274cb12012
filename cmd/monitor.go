// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/deyestat/pkg/deye"
)

var (
	monitorIntervalMs int
	monitorShowAll    bool
	monitorUseTUI     bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor [host:port]",
	Short: "Poll the inverter and display live telemetry",
	Long: `Poll the configured register window at a fixed interval and show the
decoded fields, exchange statistics and an event log.

Each poll is validated and the following are reported as events:
  - Envelope checksum and Modbus CRC mismatches
  - Modbus exceptions and undecodable responses
  - Register values outside their declared range
  - Timeouts and connection errors

By default only problems are logged. Use --show-all to log every poll.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().IntVar(&monitorIntervalMs, "interval", 5000, "Polling interval in milliseconds")
	monitorCmd.Flags().BoolVar(&monitorShowAll, "show-all", false, "Log every poll (not just errors)")
	monitorCmd.Flags().BoolVar(&monitorUseTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		if err := applyAddress(cfg, args[0]); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("interval") {
		cfg.Monitor.IntervalMs = monitorIntervalMs
	}
	if err := applyReadFlags(cmd, cfg); err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	client, connInfo, err := OpenClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if !monitorUseTUI {
		return runMonitorText(ctx, client)
	}

	m := initialModel(connInfo, cfg.Monitor.Interval(), monitorShowAll, deye.Filter(cfg.Output.Exclude), client.Statistics())
	p := tea.NewProgram(m, tea.WithAltScreen())

	go poll(ctx, client, func(msg tea.Msg) { p.Send(msg) })

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

// poll discovers the logger, then reads the configured window every
// interval until ctx ends. Results are delivered through send.
func poll(ctx context.Context, client *deye.Client, send func(tea.Msg)) {
	for client.Serial() == 0 {
		serial, err := client.Discover(ctx)
		send(discoveredMsg{serial: serial, err: err})
		if err == nil {
			break
		}
		if !sleep(ctx, cfg.Monitor.Interval()) {
			return
		}
	}
	if cfg.Device.Serial != "" {
		send(discoveredMsg{serial: client.Serial()})
	}

	for {
		at := time.Now()
		frame, err := client.ReadRegisters(ctx, cfg.Read.Start, cfg.Read.Count)
		if ctx.Err() != nil {
			return
		}
		msg := readingMsg{at: at, frame: frame, err: err}
		if frame != nil {
			msg.anomalies = deye.ValidateFrame(frame)
		}
		send(msg)

		if !sleep(ctx, cfg.Monitor.Interval()) {
			return
		}
	}
}

// sleep waits for d and reports false if ctx ended first
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// runMonitorText prints every poll and a statistics summary until interrupted
func runMonitorText(ctx context.Context, client *deye.Client) error {
	filter := deye.Filter(cfg.Output.Exclude)
	polls := 0

	poll(ctx, client, func(msg tea.Msg) {
		timestamp := time.Now().Format("15:04:05.000")
		switch msg := msg.(type) {
		case discoveredMsg:
			if msg.err != nil {
				fmt.Printf("[%s] \033[1;31mDISCOVERY FAILED:\033[0m %v\n", timestamp, msg.err)
				return
			}
			fmt.Printf("[%s] Logger serial %s\n", timestamp, deye.FormatSerial(msg.serial))

		case readingMsg:
			polls++
			if msg.frame == nil {
				fmt.Printf("[%s] \033[1;31mEXCHANGE FAILED:\033[0m %v\n", timestamp, msg.err)
			} else {
				for _, a := range msg.anomalies {
					fmt.Printf("[%s] \033[1;33m%s:\033[0m %s\n", timestamp, a.Type, a.Message)
				}
				if fm := msg.frame.Message(); fm != nil && (monitorShowAll || len(msg.anomalies) > 0) {
					for _, v := range filter.Apply(fm.Readings()) {
						fmt.Printf("  %s\n", deye.FormatValue(v))
					}
				}
			}
			if polls%10 == 0 {
				fmt.Print(client.Statistics().String())
			}
		}
	})
	return nil
}
