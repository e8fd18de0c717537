package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lingua-desk/quoteflow/internal/export"
	"github.com/lingua-desk/quoteflow/internal/model"
	"github.com/lingua-desk/quoteflow/internal/store"
)

var (
	exportOut      string
	exportStatus   string
	exportCustomer string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the quote ledger to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("export"); err != nil {
			return err
		}

		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter := store.QuoteFilter{
			Status:      model.QuoteStatus(exportStatus),
			CustomerRef: exportCustomer,
		}
		n, err := export.New(st).LedgerFile(cmd.Context(), filter, exportOut)
		if err != nil {
			return err
		}
		zap.L().Info("ledger written",
			zap.String("path", exportOut),
			zap.Int("quotes", n),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "quotes.xlsx", "output file path")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "filter by quote status")
	exportCmd.Flags().StringVar(&exportCustomer, "customer", "", "filter by customer reference")
	rootCmd.AddCommand(exportCmd)
}
