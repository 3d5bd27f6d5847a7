package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/OpenTraceLab/djtag/pkg/jtag"
	"github.com/spf13/cobra"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List available DirtyJTAG probes",
	Long: `Scan the USB bus for DirtyJTAG probes and print a summary of what was found.
The built-in simulator is always listed last. Use this to verify connectivity
before running other commands.`,
	RunE: runInterfaces,
}

func init() {
	rootCmd.AddCommand(interfacesCmd)
}

func runInterfaces(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	infos, err := jtag.DiscoverInterfaces(ctx)
	if err != nil {
		return fmt.Errorf("discover interfaces: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No interfaces found.")
		return nil
	}

	fmt.Println("Detected interfaces:")
	for _, iface := range infos {
		if iface.Kind == jtag.InterfaceKindSim {
			fmt.Printf("  - %s [%s]\n", iface.Label(), iface.Kind)
			continue
		}
		fmt.Printf("  - %s [%s] (VID:PID %04X:%04X, bus %d addr %d)\n",
			iface.Label(), iface.Kind, iface.VendorID, iface.ProductID, iface.Bus, iface.Address)
	}

	return nil
}
