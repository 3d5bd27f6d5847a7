package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/OpenTraceLab/djtag/pkg/dirtyjtag"
	"github.com/OpenTraceLab/djtag/pkg/jtag"
	"github.com/spf13/cobra"
)

var (
	xferBits int
	xferTDI  string
)

var xferCmd = &cobra.Command{
	Use:   "xfer",
	Short: "Shift bits through TDI and capture TDO",
	Long: `Shift --bits bits of --tdi (hex, first byte shifted first) through the
scan chain and print the captured TDO bytes. Without --tdi zeros are shifted.
Long shifts are split into several XFER frames.

Examples:
  djtag xfer --bits 11 --tdi b760
  djtag xfer --bits 32                     # Shift 32 zero bits`,
	RunE: runXfer,
}

func init() {
	rootCmd.AddCommand(xferCmd)

	xferCmd.Flags().IntVarP(&xferBits, "bits", "b", 0, "number of bits to shift")
	xferCmd.Flags().StringVarP(&xferTDI, "tdi", "t", "", "TDI data as hex")

	xferCmd.MarkFlagRequired("bits")
}

func runXfer(cmd *cobra.Command, args []string) error {
	tdi, err := parseTDI(xferTDI, xferBits)
	if err != nil {
		return err
	}

	return withAdapter(cmd, func(ctx context.Context, adapter jtag.Adapter) error {
		tdo, err := adapter.Transfer(ctx, tdi, xferBits)
		if noResponse(err) {
			fmt.Println("No IN response")
			return nil
		}
		if err != nil {
			return err
		}
		if verbose {
			fmt.Printf("OUT: % x\n", tdi)
		}
		fmt.Printf("IN: % x\n", tdo)
		return nil
	})
}

// parseTDI decodes a hex TDI argument, accepting an optional 0x prefix and
// spaces. An empty string yields an all-zero buffer.
func parseTDI(s string, bits int) ([]byte, error) {
	if bits <= 0 || bits > 0xFFFF {
		return nil, fmt.Errorf("--bits must be between 1 and 65535, got %d", bits)
	}
	if s == "" {
		return make([]byte, dirtyjtag.ByteLen(bits)), nil
	}

	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	s = strings.ReplaceAll(s, " ", "")
	tdi, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid --tdi: %w", err)
	}
	if _, err := jtag.ValidateShiftBuffer(tdi, bits); err != nil {
		return nil, fmt.Errorf("invalid --tdi: %w", err)
	}
	return tdi, nil
}
