package cmd

import (
	"context"
	"fmt"

	"github.com/OpenTraceLab/djtag/pkg/dirtyjtag"
	"github.com/OpenTraceLab/djtag/pkg/jtag"
	"github.com/spf13/cobra"
)

var (
	clkPulses  uint8
	clkTMS     bool
	clkTDI     bool
	clkReadout bool
)

var clkCmd = &cobra.Command{
	Use:   "clk",
	Short: "Pulse TCK with TMS and TDI held",
	Long: `Pulse TCK --pulses times with TMS and TDI held at the given levels.
With --readout the TDO level sampled after the pulses is printed.

Examples:
  djtag clk --pulses 5 --tms     # Walk the TAP to Test-Logic-Reset`,
	RunE: runClk,
}

func init() {
	rootCmd.AddCommand(clkCmd)

	clkCmd.Flags().Uint8VarP(&clkPulses, "pulses", "p", 1, "number of TCK pulses (1-255)")
	clkCmd.Flags().BoolVar(&clkTMS, "tms", false, "hold TMS high")
	clkCmd.Flags().BoolVar(&clkTDI, "tdi", false, "hold TDI high")
	clkCmd.Flags().BoolVarP(&clkReadout, "readout", "r", false, "read TDO after clocking")
}

func runClk(cmd *cobra.Command, args []string) error {
	var sig dirtyjtag.Signal
	if clkTMS {
		sig |= dirtyjtag.SigTMS
	}
	if clkTDI {
		sig |= dirtyjtag.SigTDI
	}

	return withProbe(cmd, func(ctx context.Context, probe *jtag.Probe) error {
		tdo, err := probe.Clock(ctx, sig, clkPulses, clkReadout)
		if clkReadout && noResponse(err) {
			fmt.Println("No IN response")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("Clocked %d pulse(s)\n", clkPulses)
		if clkReadout {
			if tdo {
				fmt.Println("TDO: 1")
			} else {
				fmt.Println("TDO: 0")
			}
		}
		return nil
	})
}
