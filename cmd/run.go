package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/btcmap-triage/internal/config"
	"github.com/joescharf/btcmap-triage/internal/gitea"
	"github.com/joescharf/btcmap-triage/internal/models"
	"github.com/joescharf/btcmap-triage/internal/output"
	"github.com/joescharf/btcmap-triage/internal/report"
	"github.com/joescharf/btcmap-triage/internal/triage"
)

var (
	runLimit           int
	runConcurrency     int
	runPost            bool
	runCloseDuplicates bool
	runLabels          []string
	runIncludeAssigned bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Triage open submissions from the issue tracker",
	Long: `Fetch open submission issues, gather evidence for each one in parallel,
store the verdicts and print a summary.

With --post the Phase 1 report is commented before outreach starts, and the
final report and triage labels are written back once a verdict is reached.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRun(cmd.Context())
	},
}

func init() {
	runCmd.Flags().IntVarP(&runLimit, "limit", "l", 10, "Maximum number of issues to triage")
	runCmd.Flags().IntVarP(&runConcurrency, "concurrency", "c", 4, "Submissions triaged in parallel")
	runCmd.Flags().BoolVar(&runPost, "post", false, "Post reports and labels back to the issues")
	runCmd.Flags().BoolVar(&runCloseDuplicates, "close-duplicates", false, "Close issues found to be duplicates (with --post)")
	runCmd.Flags().StringSliceVar(&runLabels, "label", nil, "Only triage issues with these labels (default gitea.labels)")
	runCmd.Flags().BoolVar(&runIncludeAssigned, "include-assigned", false, "Also triage issues already assigned to a reviewer")
	rootCmd.AddCommand(runCmd)
}

func newGiteaClient(cfg config.Config) (*gitea.Client, error) {
	token := viper.GetString("gitea.token")
	if token == "" {
		return nil, fmt.Errorf("gitea.token is not set (export BTCTRIAGE_GITEA_TOKEN or run 'btctriage config init')")
	}
	return gitea.NewClient(
		viper.GetString("gitea.url"),
		viper.GetString("gitea.repo"),
		token,
		gitea.WithRetry(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay),
	), nil
}

func runRun(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	issues, err := newGiteaClient(cfg)
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}

	logger := newLogger()
	pipeline, closeCache, err := buildPipeline(ctx, s, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	labels := runLabels
	if len(labels) == 0 {
		labels = viper.GetStringSlice("gitea.labels")
	}
	opts := triage.RunOptions{
		Filter: triage.IssueFilter{
			Labels:       labels,
			Limit:        runLimit,
			SkipAssigned: !runIncludeAssigned,
		},
		Concurrency:     runConcurrency,
		Post:            runPost && !dryRun,
		CloseDuplicates: runCloseDuplicates,
	}
	if runPost && dryRun {
		ui.DryRunMsg("Would post reports and labels to %s", viper.GetString("gitea.repo"))
	}

	runner := triage.NewRunner(issues, pipeline, s, report.New(), logger)
	summary, err := runner.Run(ctx, cfg, opts)
	if summary != nil {
		printRunSummary(summary, cfg)
	}
	return err
}

func printRunSummary(summary *triage.RunSummary, cfg config.Config) {
	if summary.Fetched == 0 {
		ui.Info("No open submissions matched")
		return
	}

	table := ui.Table([]string{"Issue", "Merchant", "Score", "Level", "Recommendation", "Note"})
	for _, res := range summary.Results {
		issue := res.Submission.ID
		if res.Submission.IssueNumber > 0 {
			issue = "#" + strconv.Itoa(res.Submission.IssueNumber)
		}
		if res.Err != nil {
			table.Append([]string{issue, res.Submission.MerchantName, "-", "-", "-", output.Red(res.Err.Error())})
			continue
		}
		v := res.Verdict
		table.Append([]string{
			issue,
			v.MerchantName,
			output.ScoreColor(v.FinalScore, cfg.Thresholds.Medium, cfg.Thresholds.Low),
			output.LevelColor(string(v.Level)),
			output.RecommendationColor(string(v.Recommendation)),
			verdictNote(v),
		})
	}
	table.Render()

	fmt.Fprintln(ui.Out)
	ui.Info("Triaged %d of %d submissions", len(summary.Results)-summary.Malformed-summary.Cancelled, summary.Fetched)
	for _, rec := range summary.Recommendations() {
		fmt.Fprintf(ui.Out, "  %-22s %d\n", rec, summary.ByRecommendation[rec])
	}
	if summary.Malformed > 0 {
		ui.Warning("%d submissions could not be parsed", summary.Malformed)
	}
	if summary.Cancelled > 0 {
		ui.Warning("%d submissions were cancelled", summary.Cancelled)
	}
	if summary.PostErrors > 0 {
		ui.Warning("%d issues could not be updated", summary.PostErrors)
	}
}

// verdictNote is the one-cell summary of why a verdict needs attention.
func verdictNote(v *models.Verdict) string {
	switch {
	case v.DuplicateOf != "":
		return "duplicate of " + v.DuplicateOf
	case v.FlagForRemoval:
		return "merchant denied accepting Bitcoin"
	case len(v.Conflicts) > 0:
		return v.Conflicts[0]
	case v.ReviewRequired:
		return "review required"
	default:
		return ""
	}
}
