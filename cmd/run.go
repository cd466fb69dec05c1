package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	charmlog "github.com/charmbracelet/log"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/smilebooth/internal/booth"
	"github.com/fakeyudi/smilebooth/internal/detect"
	"github.com/fakeyudi/smilebooth/internal/frame"
	"github.com/fakeyudi/smilebooth/internal/tui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the interactive photobooth",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(os.Stdin.Fd()) {
			return fmt.Errorf("the booth needs an interactive terminal")
		}

		cfg := GetConfig()

		// The TUI owns the screen; keep logs out of it.
		logFile, err := openLogFile(cfg.OutputDir)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer logFile.Close()
		logger := charmlog.New(logFile)

		client := detect.NewClient(cfg.BackendURL, logger)
		monitor := detect.NewMonitor(client)
		monitor.Start(context.Background())
		defer monitor.Stop()

		source := frame.NewSource(cfg.Device)
		orch := booth.New(source, booth.NewBackend(client, monitor), booth.WithLogger(logger))
		orch.SetFilter(frame.Filter(cfg.Filter))

		return tui.Run(orch, monitor, cfg.OutputDir)
	},
}

// openLogFile appends to smilebooth.log inside the configured output
// directory, so logs land next to the strips instead of wherever the
// booth happened to be launched from.
func openLogFile(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, "smilebooth.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

func init() {
	rootCmd.AddCommand(runCmd)
}
