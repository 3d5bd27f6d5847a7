package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/OpenTraceLab/djtag/pkg/dirtyjtag"
	"github.com/OpenTraceLab/djtag/pkg/jtag"
	"github.com/spf13/cobra"
)

var (
	sigMask   string
	sigStatus string
)

var setsigCmd = &cobra.Command{
	Use:   "setsig",
	Short: "Drive JTAG lines high or low",
	Long: `Drive the lines named in --mask. Lines also named in --status go high,
the rest go low. Names: tck, tdi, tdo, tms, trst, srst.

Examples:
  djtag setsig --mask srst                 # Assert SRST (low)
  djtag setsig --mask srst --status srst   # Release SRST`,
	RunE: runSetsig,
}

var getsigCmd = &cobra.Command{
	Use:   "getsig",
	Short: "Read the JTAG line state",
	RunE:  runGetsig,
}

func init() {
	rootCmd.AddCommand(setsigCmd)
	rootCmd.AddCommand(getsigCmd)

	setsigCmd.Flags().StringVarP(&sigMask, "mask", "m", "", "comma separated lines to drive")
	setsigCmd.Flags().StringVarP(&sigStatus, "status", "s", "", "comma separated lines to drive high")

	setsigCmd.MarkFlagRequired("mask")
}

func runSetsig(cmd *cobra.Command, args []string) error {
	mask, err := dirtyjtag.ParseSignals(strings.Split(sigMask, ","))
	if err != nil {
		return fmt.Errorf("invalid --mask: %w", err)
	}
	status, err := dirtyjtag.ParseSignals(strings.Split(sigStatus, ","))
	if err != nil {
		return fmt.Errorf("invalid --status: %w", err)
	}

	return withProbe(cmd, func(ctx context.Context, probe *jtag.Probe) error {
		if err := probe.SetSignals(ctx, mask, status&mask); err != nil {
			return err
		}
		fmt.Printf("Signals %s set to %s\n", mask, status&mask)
		return nil
	})
}

func runGetsig(cmd *cobra.Command, args []string) error {
	return withProbe(cmd, func(ctx context.Context, probe *jtag.Probe) error {
		sig, err := probe.Signals(ctx)
		if noResponse(err) {
			fmt.Println("No IN response")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("Signals: 0x%02X (%s)\n", uint8(sig), sig)
		return nil
	})
}
