package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/smilebooth/internal/frame"
	"github.com/fakeyudi/smilebooth/internal/session"
	"github.com/fakeyudi/smilebooth/internal/strip"
)

var composeCaption string

var composeCmd = &cobra.Command{
	Use:   "compose <photo1> <photo2> <photo3>",
	Short: "Compose three stills into a strip",
	Args:  cobra.ExactArgs(session.MaxPhotos),
	RunE: func(cmd *cobra.Command, args []string) error {
		photos := make([]frame.Frame, 0, session.MaxPhotos)
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			photos = append(photos, frame.Frame{Data: data, Filter: frame.FilterNone})
		}

		var composer strip.Composer
		artifact, err := composer.Compose(photos, composeCaption)
		if err != nil {
			return err
		}

		path, err := strip.SaveArtifact(GetConfig().OutputDir, artifact, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "strip saved: %s\n", path)
		return nil
	},
}

func init() {
	composeCmd.Flags().StringVarP(&composeCaption, "caption", "m", "", "caption rendered beneath the strip (max 60 chars)")
	rootCmd.AddCommand(composeCmd)
}
