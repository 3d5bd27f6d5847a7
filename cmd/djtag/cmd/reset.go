package cmd

import (
	"context"
	"fmt"

	"github.com/OpenTraceLab/djtag/pkg/jtag"
	"github.com/spf13/cobra"
)

var resetHard bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the TAP or the target",
	Long: `Without flags five TCK pulses are sent with TMS high, which puts every TAP
in the chain into Test-Logic-Reset. With --hard SRST is pulsed instead.`,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().BoolVar(&resetHard, "hard", false, "pulse SRST instead of a TMS reset")
}

func runReset(cmd *cobra.Command, args []string) error {
	return withAdapter(cmd, func(ctx context.Context, adapter jtag.Adapter) error {
		if err := adapter.ResetTAP(ctx, resetHard); err != nil {
			return err
		}
		if resetHard {
			fmt.Println("SRST pulsed")
		} else {
			fmt.Println("TAP reset")
		}
		return nil
	})
}
