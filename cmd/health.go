package cmd

import (
	"context"
	"fmt"
	"io"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/smilebooth/internal/detect"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the smile-detection backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		client := detect.NewClient(cfg.BackendURL, charmlog.New(io.Discard))

		if err := client.Health(context.Background()); err != nil {
			return fmt.Errorf("%s: %w", cfg.BackendURL, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "backend healthy: %s\n", cfg.BackendURL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
