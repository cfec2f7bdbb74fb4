package cli

import (
	"github.com/spf13/cobra"

	"tt-rates-dataset/internal/app"
)

var (
	buildMode      string
	buildMaxFiles  int
	buildStartDate string
	buildFormat    string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Fetch new rate documents and rebuild the dataset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.BuildOptions{
			Mode:      buildMode,
			StartDate: buildStartDate,
			Format:    buildFormat,
		}
		if cmd.Flags().Changed("max-files") {
			opts.MaxFiles = &buildMaxFiles
		}
		return getApp().Build(cmd.Context(), opts)
	},
}

func init() {
	buildCmd.Flags().StringVar(&buildMode, "mode", "", "incremental or full (defaults to config)")
	buildCmd.Flags().IntVar(&buildMaxFiles, "max-files", 0, "Process at most this many of the most recent dates (0 = unlimited)")
	buildCmd.Flags().StringVar(&buildStartDate, "start-date", "", "Skip dates before this YYYY-MM-DD")
	buildCmd.Flags().StringVar(&buildFormat, "format", "", "Converter output: text (pdftotext) or table (tabula)")
}
