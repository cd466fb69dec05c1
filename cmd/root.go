package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/smilebooth/internal/config"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

// flag overrides shared by subcommands.
var (
	flagBackend string
	flagDevice  string
	flagOutDir  string
)

var rootCmd = &cobra.Command{
	Use:   "smilebooth",
	Short: "Webcam photobooth driven by a remote smile detector",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load and merge config files.
		global, err := config.LoadGlobal()
		if err != nil {
			return err
		}
		project, err := config.LoadProject()
		if err != nil {
			return err
		}
		cfg = config.Merge(global, project)

		// Flags win over files.
		if flagBackend != "" {
			cfg.BackendURL = flagBackend
		}
		if flagDevice != "" {
			cfg.Device = flagDevice
		}
		if flagOutDir != "" {
			cfg.OutputDir = flagOutDir
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "smile-detection service URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagDevice, "device", "", "camera device selector (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagOutDir, "output-dir", "", "output directory for strips (overrides config)")
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetConfig returns the merged configuration for use by subcommands.
func GetConfig() config.Config {
	return cfg
}
