package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/OpenTraceLab/djtag/pkg/jtag"
	"github.com/spf13/cobra"
)

var voltageCmd = &cobra.Command{
	Use:   "voltage LEVEL",
	Short: "Select the target I/O voltage",
	Long: `Send CMD_SETVOLTAGE with a board specific level byte. Boards without a
level shifter accept and ignore it.`,
	Args: cobra.ExactArgs(1),
	RunE: runVoltage,
}

var bootloaderCmd = &cobra.Command{
	Use:   "bootloader",
	Short: "Reboot the probe into its bootloader",
	Args:  cobra.NoArgs,
	RunE:  runBootloader,
}

func init() {
	rootCmd.AddCommand(voltageCmd)
	rootCmd.AddCommand(bootloaderCmd)
}

func runVoltage(cmd *cobra.Command, args []string) error {
	v, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		return fmt.Errorf("invalid level %q: %w", args[0], err)
	}
	level := uint8(v)

	return withProbe(cmd, func(ctx context.Context, probe *jtag.Probe) error {
		if err := probe.SetVoltage(ctx, level); err != nil {
			return err
		}
		fmt.Printf("Voltage level set to %d\n", level)
		return nil
	})
}

func runBootloader(cmd *cobra.Command, args []string) error {
	return withProbe(cmd, func(ctx context.Context, probe *jtag.Probe) error {
		if err := probe.EnterBootloader(ctx); err != nil {
			return err
		}
		fmt.Println("Probe rebooting into bootloader")
		return nil
	})
}
