package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/smilebooth/internal/frame"
)

var (
	snapFilter string
	snapOut    string
)

var snapCmd = &cobra.Command{
	Use:   "snap",
	Short: "Capture a single still from the camera",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := frame.Filter(snapFilter)
		if !filter.Valid() {
			return fmt.Errorf("unknown filter %q", snapFilter)
		}

		source := frame.NewSource(GetConfig().Device)
		if err := source.Open(context.Background()); err != nil {
			return err
		}
		defer source.Close()

		still, err := source.Still(filter)
		if err != nil {
			return fmt.Errorf("capturing still: %w", err)
		}

		if err := os.WriteFile(snapOut, still.Data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", snapOut, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d bytes, filter %s)\n", snapOut, len(still.Data), filter)
		return nil
	},
}

func init() {
	snapCmd.Flags().StringVar(&snapFilter, "filter", "none", "cosmetic filter: none, grayscale, sepia, blur, vivid")
	snapCmd.Flags().StringVarP(&snapOut, "output", "o", "snap.jpg", "output file")
	rootCmd.AddCommand(snapCmd)
}
