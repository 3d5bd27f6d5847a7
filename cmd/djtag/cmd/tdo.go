package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/OpenTraceLab/djtag/pkg/jtag"
	"github.com/spf13/cobra"
)

var (
	tdoCount    int
	tdoInterval time.Duration
)

var tdoCmd = &cobra.Command{
	Use:   "tdo",
	Short: "Read the TDO line",
	Long: `Send GETSIG to the probe and print the TDO level.

Examples:
  djtag tdo                               # Single read
  djtag tdo --count 10 --interval 100ms   # Poll ten times`,
	RunE: runTDO,
}

func init() {
	rootCmd.AddCommand(tdoCmd)

	tdoCmd.Flags().IntVarP(&tdoCount, "count", "n", 1, "number of reads")
	tdoCmd.Flags().DurationVar(&tdoInterval, "interval", 0, "delay between reads")
}

func runTDO(cmd *cobra.Command, args []string) error {
	if tdoCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	return withAdapter(cmd, func(ctx context.Context, adapter jtag.Adapter) error {
		for i := 0; i < tdoCount; i++ {
			if i > 0 && tdoInterval > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(tdoInterval):
				}
			}

			v, err := adapter.TDO(ctx)
			if noResponse(err) {
				fmt.Println("No IN response")
				continue
			}
			if err != nil {
				return err
			}
			if v {
				fmt.Println("TDO: 1")
			} else {
				fmt.Println("TDO: 0")
			}
		}
		return nil
	})
}
