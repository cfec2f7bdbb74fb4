package cli

import (
	"github.com/spf13/cobra"

	"tt-rates-dataset/internal/app"
)

var (
	extractFormat string
	extractRaw    bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract rates from one local document and print them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Extract(cmd.Context(), app.ExtractOptions{
			Path:   args[0],
			Format: extractFormat,
			Raw:    extractRaw,
		})
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractFormat, "format", "auto", "auto, text, or table")
	extractCmd.Flags().BoolVar(&extractRaw, "raw", false, "Treat the file as already converted text or CSV")
}
