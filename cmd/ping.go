// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/deyestat/pkg/deye"
	"github.com/Thermoquad/deyestat/pkg/transport"
)

var pingCount int

var pingCmd = &cobra.Command{
	Use:   "ping [host:port]",
	Short: "Check that the logger answers",
	Long: `Send discovery requests (read register 0 addressed to serial 0) and
report the serial and round trip time of each answer.

This is useful for verifying:
  - The logger is reachable on its port
  - The envelope and CRC round trip cleanly
  - The serial to configure for later reads

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		if err := applyAddress(cfg, args[0]); err != nil {
			return err
		}
	}
	if pingCount < 1 {
		return fmt.Errorf("--count must be at least 1, got %d", pingCount)
	}
	cmd.SilenceUsage = true

	ctx := cmd.Context()

	client, connInfo, err := OpenClient(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer client.Close()

	fmt.Printf("Deyestat - Logger Ping Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %v per ping\n", cfg.Device.Timeout())
	fmt.Printf("Count: %d pings\n\n", pingCount)

	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		startTime := time.Now()
		serial, err := client.Discover(ctx)
		rtt := time.Since(startTime)

		switch {
		case err == nil:
			fmt.Printf("PONG from logger %s, rtt=%v\n", deye.FormatSerial(serial), rtt.Round(time.Millisecond))
			successCount++
		case errors.Is(err, transport.ErrTimeout):
			fmt.Printf("TIMEOUT (no response in %v)\n", cfg.Device.Timeout())
			failCount++
		default:
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		}

		// Small delay between pings
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	// Summary
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% packet loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
