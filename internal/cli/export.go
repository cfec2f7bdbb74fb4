package cli

import (
	"github.com/spf13/cobra"

	"tt-rates-dataset/internal/app"
)

var (
	exportCurrency string
	exportCSVPath  string
	exportFrom     string
	exportTo       string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export currency series as CSV",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Export(cmd.Context(), app.ExportOptions{
			Currency: exportCurrency,
			CSVPath:  exportCSVPath,
			From:     exportFrom,
			To:       exportTo,
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportCurrency, "currency", "", "Currency code to export (all when empty)")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data (stdout when empty)")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "First date (YYYY-MM-DD, inclusive)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "Last date (YYYY-MM-DD, inclusive)")
}
