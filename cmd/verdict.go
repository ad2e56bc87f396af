package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/btcmap-triage/internal/models"
	"github.com/joescharf/btcmap-triage/internal/output"
	"github.com/joescharf/btcmap-triage/internal/store"
)

var (
	verdictRecommendation string
	verdictLevel          string
	verdictReview         bool
	verdictLimit          int
	verdictJSON           bool
)

var verdictCmd = &cobra.Command{
	Use:     "verdict",
	Aliases: []string{"verdicts"},
	Short:   "Inspect stored verdicts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return verdictListRun(cmd.Context())
	},
}

var verdictListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List stored verdicts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return verdictListRun(cmd.Context())
	},
}

var verdictShowCmd = &cobra.Command{
	Use:   "show <verdict-or-submission-id>",
	Short: "Show a verdict with its score breakdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return verdictShowRun(cmd.Context(), args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{verdictCmd, verdictListCmd} {
		c.Flags().StringVarP(&verdictRecommendation, "recommendation", "r", "", "Filter by recommendation")
		c.Flags().StringVar(&verdictLevel, "level", "", "Filter by level (HIGH, MEDIUM, LOW, VERY_LOW)")
		c.Flags().BoolVar(&verdictReview, "review", false, "Only verdicts that need human review")
		c.Flags().IntVarP(&verdictLimit, "limit", "l", 50, "Maximum number of verdicts")
	}
	verdictShowCmd.Flags().BoolVar(&verdictJSON, "json", false, "Print the verdict as JSON")

	verdictCmd.AddCommand(verdictListCmd)
	verdictCmd.AddCommand(verdictShowCmd)
	rootCmd.AddCommand(verdictCmd)
}

func verdictListRun(ctx context.Context) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	verdicts, err := s.ListVerdicts(ctx, store.VerdictListFilter{
		Recommendation: models.Recommendation(verdictRecommendation),
		Level:          models.Level(verdictLevel),
		ReviewRequired: verdictReview,
		Limit:          verdictLimit,
	})
	if err != nil {
		return err
	}
	if len(verdicts) == 0 {
		ui.Info("No verdicts found")
		return nil
	}

	table := ui.Table([]string{"ID", "Issue", "Merchant", "Score", "Level", "Recommendation", "Created"})
	for _, v := range verdicts {
		table.Append([]string{
			v.ID,
			issueLabel(v),
			v.MerchantName,
			output.ScoreColor(v.FinalScore, cfg.Thresholds.Medium, cfg.Thresholds.Low),
			output.LevelColor(string(v.Level)),
			output.RecommendationColor(string(v.Recommendation)),
			v.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	table.Render()
	return nil
}

func verdictShowRun(ctx context.Context, id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	v, err := s.GetVerdict(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no verdict for %q", id)
	}
	if err != nil {
		return err
	}

	if verdictJSON {
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	fmt.Fprintf(ui.Out, "%s  %s  %s\n", output.Cyan(v.MerchantName), issueLabel(v), output.RecommendationColor(string(v.Recommendation)))
	fmt.Fprintf(ui.Out, "Verdict %s, created %s\n\n", v.ID, v.CreatedAt.Local().Format("2006-01-02 15:04"))
	printVerdict(v)
	return nil
}

func issueLabel(v *models.Verdict) string {
	if v.IssueNumber > 0 {
		return fmt.Sprintf("#%d", v.IssueNumber)
	}
	return v.SubmissionID
}
