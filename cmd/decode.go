// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/deyestat/pkg/deye"
)

var decodeStart uint16

var decodeCmd = &cobra.Command{
	Use:   "decode <hex>...",
	Short: "Decode a captured logger frame",
	Long: `Decode a logger frame given as hex and print the envelope, the Modbus
payload and any anomalies. Whitespace between hex digits is ignored, so a
capture can be pasted as several arguments.

Responses carry no start register; pass --start to name the registers of a
read that did not start at 0.

Example:
  deyestat decode a5 1500 1015 0030 11fac1ec 02 0116d703004e06000000000000 0103 0200 6d79 a9fe 15 --start 60`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().Uint16Var(&decodeStart, "start", 0, "Start register of the request the response answers")
}

func runDecode(cmd *cobra.Command, args []string) error {
	raw, err := parseHex(args)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true
	return printDecoded(os.Stdout, raw, decodeStart)
}

// parseHex joins arguments and decodes them as hex
func parseHex(args []string) ([]byte, error) {
	s := strings.Join(strings.Fields(strings.Join(args, " ")), "")
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %v", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no bytes to decode")
	}
	return raw, nil
}

// printDecoded writes the formatted frame followed by its anomalies.
// A decode error is reported after whatever was decoded before it.
func printDecoded(w io.Writer, raw []byte, start uint16) error {
	frame, decodeErr := deye.DecodeFrame(raw, deye.WithStartRegister(start))

	fmt.Fprintf(w, "%d bytes: %s\n", len(raw), deye.HexDump(raw))
	fmt.Fprint(w, deye.FormatFrame(frame))

	anomalies := deye.ValidateFrame(frame)
	if len(anomalies) == 0 {
		fmt.Fprintln(w, "No anomalies")
	} else {
		fmt.Fprintf(w, "%d anomalies:\n", len(anomalies))
		for i, a := range anomalies {
			fmt.Fprintf(w, "  Issue %d [%s]: %s\n", i+1, a.Type, a.Message)
		}
	}

	if decodeErr != nil {
		return fmt.Errorf("decode failed: %w", decodeErr)
	}
	return nil
}
