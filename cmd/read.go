// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/deyestat/internal/config"
	"github.com/Thermoquad/deyestat/pkg/deye"
)

var (
	readStart   uint16
	readCount   uint16
	readFormat  string
	readExclude []string
	readOutput  string
)

var readCmd = &cobra.Command{
	Use:   "read [host:port]",
	Short: "Read and decode the inverter registers",
	Long: `Read a window of holding registers and print the decoded telemetry.

The logger serial is discovered first unless --serial or device.serial is set.
Fields whose name contains any --exclude substring are left out.

Output formats:
  text - serial followed by one "Name: value unit" line per field
  cbor - a deterministic CBOR snapshot (to --output or stdout)
  raw  - the response frame as hex`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRead,
}

func init() {
	rootCmd.AddCommand(readCmd)
	readCmd.Flags().Uint16Var(&readStart, "start", 0, "First register to read")
	readCmd.Flags().Uint16Var(&readCount, "count", deye.CatalogRegisters, "Number of registers to read")
	readCmd.Flags().StringVarP(&readFormat, "format", "f", config.FormatText, "Output format (text, cbor, raw)")
	readCmd.Flags().StringSliceVarP(&readExclude, "exclude", "x", nil, "Drop fields containing these substrings")
	readCmd.Flags().StringVarP(&readOutput, "output", "o", "", "Write output to a file instead of stdout")
}

// applyReadFlags copies explicitly set read flags into the configuration
func applyReadFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("start") {
		c.Read.Start = readStart
	}
	if flags.Changed("count") {
		c.Read.Count = readCount
	}
	if flags.Changed("format") {
		c.Output.Format = readFormat
	}
	if flags.Changed("exclude") {
		c.Output.Exclude = readExclude
	}
	return config.Validate(c)
}

func runRead(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		if err := applyAddress(cfg, args[0]); err != nil {
			return err
		}
	}
	if err := applyReadFlags(cmd, cfg); err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, cancel := context.WithTimeout(cmd.Context(), 4*cfg.Device.Timeout())
	defer cancel()

	client, connInfo, err := OpenClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	logger.Debug().Str("connection", connInfo).Msg("connected")

	serial, err := ensureSerial(ctx, client)
	if err != nil {
		return err
	}

	frame, err := client.ReadRegisters(ctx, cfg.Read.Start, cfg.Read.Count)
	if err != nil {
		return fmt.Errorf("read %d registers at %d: %w", cfg.Read.Count, cfg.Read.Start, err)
	}

	out := io.Writer(os.Stdout)
	if readOutput != "" {
		f, err := os.Create(readOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	return writeReading(out, cfg.Output, serial, frame, time.Now())
}

// writeReading renders one response in the configured output format
func writeReading(w io.Writer, output config.OutputConfig, serial uint32, frame *deye.Frame, at time.Time) error {
	filter := deye.Filter(output.Exclude)

	switch output.Format {
	case config.FormatCBOR:
		snap, err := deye.NewSnapshot(frame, filter, at)
		if err != nil {
			return err
		}
		data, err := snap.EncodeCBOR()
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err

	case config.FormatRaw:
		_, err := fmt.Fprintln(w, deye.HexDump(frame.Bytes()))
		return err

	default:
		fmt.Fprintf(w, "Serial: %s\n", deye.FormatSerial(serial))
		if frame.Suspect() {
			fmt.Fprintf(w, "Warning: checksum mismatch, values may be corrupt\n")
		}
		if m := frame.Message(); m != nil {
			for _, v := range filter.Apply(m.Readings()) {
				fmt.Fprintln(w, deye.FormatValue(v))
			}
		}
		return nil
	}
}
