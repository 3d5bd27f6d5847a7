package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/OpenTraceLab/djtag/pkg/jtag"
	"github.com/spf13/cobra"
)

var freqCmd = &cobra.Command{
	Use:   "freq KHZ",
	Short: "Set the TCK frequency in kHz",
	Args:  cobra.ExactArgs(1),
	RunE:  runFreq,
}

func init() {
	rootCmd.AddCommand(freqCmd)
}

func runFreq(cmd *cobra.Command, args []string) error {
	khz, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid frequency %q: %w", args[0], err)
	}

	return withAdapter(cmd, func(ctx context.Context, adapter jtag.Adapter) error {
		if err := adapter.SetSpeed(ctx, khz*1000); err != nil {
			return err
		}
		fmt.Printf("TCK set to %d kHz\n", khz)
		return nil
	})
}
