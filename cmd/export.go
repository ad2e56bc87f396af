package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/joescharf/btcmap-triage/internal/models"
	"github.com/joescharf/btcmap-triage/internal/report"
	"github.com/joescharf/btcmap-triage/internal/store"
)

var (
	exportFormat         string
	exportOutput         string
	exportRecommendation string
	exportLimit          int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored verdicts as JSON, CSV or markdown",
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun(cmd.Context())
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", report.FormatJSON, "Output format: json, csv, markdown")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to file instead of stdout")
	exportCmd.Flags().StringVarP(&exportRecommendation, "recommendation", "r", "", "Filter by recommendation")
	exportCmd.Flags().IntVarP(&exportLimit, "limit", "l", 0, "Maximum number of verdicts (0 = all)")
	rootCmd.AddCommand(exportCmd)
}

func exportRun(ctx context.Context) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	verdicts, err := s.ListVerdicts(ctx, store.VerdictListFilter{
		Recommendation: models.Recommendation(exportRecommendation),
		Limit:          exportLimit,
	})
	if err != nil {
		return err
	}

	var w io.Writer = ui.Out
	if exportOutput != "" {
		if dryRun {
			ui.DryRunMsg("Would write %d verdicts to %s", len(verdicts), exportOutput)
			return nil
		}
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("create %s: %w", exportOutput, err)
		}
		defer f.Close()
		w = f
	}

	if err := report.Export(w, exportFormat, verdicts); err != nil {
		return err
	}
	if exportOutput != "" {
		ui.Success("Exported %d verdicts to %s", len(verdicts), exportOutput)
	}
	return nil
}
