package cmd

import (
	"context"
	"fmt"

	"github.com/OpenTraceLab/djtag/pkg/jtag"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show probe firmware and capabilities",
	Long:  `Query the probe with CMD_INFO and print the firmware version and limits.`,
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	return withAdapter(cmd, func(ctx context.Context, adapter jtag.Adapter) error {
		info, err := adapter.Info(ctx)
		if noResponse(err) {
			fmt.Println("No IN response")
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Println("Adapter Information:")
		fmt.Printf("  Name: %s\n", info.Name)
		fmt.Printf("  Vendor: %s\n", info.Vendor)
		fmt.Printf("  Model: %s\n", info.Model)
		fmt.Printf("  Firmware: %s\n", info.Firmware)
		fmt.Printf("  Speed: %d - %d Hz\n", info.MinFrequency, info.MaxFrequency)
		fmt.Printf("  Packet Size: %d bytes\n", info.PacketSize)
		fmt.Printf("  SRST: %v  TRST: %v\n", info.SupportsSRST, info.SupportsTRST)
		if info.Notes != "" {
			fmt.Printf("  Notes: %s\n", info.Notes)
		}
		return nil
	})
}
