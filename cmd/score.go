package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/btcmap-triage/internal/evidence"
	"github.com/joescharf/btcmap-triage/internal/models"
	"github.com/joescharf/btcmap-triage/internal/report"
	"github.com/joescharf/btcmap-triage/internal/triage"
)

var (
	scoreJSON bool
	scoreSave bool
)

var scoreCmd = &cobra.Command{
	Use:   "score <file.yaml>",
	Short: "Score one submission from recorded evidence",
	Long: `Score a single submission offline. The YAML file holds the submission,
the evidence recorded for each category and, optionally, the state of each
outreach channel:

  submission:
    id: "1234"
    merchant_name: Satoshi Coffee
    location: {lat: 40.7128, lon: -74.0060}
    contact_email: hello@satoshi.coffee
  evidence:
    osm: {osm: {exists: true, coordinates_match: true, name_matches: true, has_bitcoin_tag: true}}
    website: {status: error}
  outreach:
    email: confirmed

Categories left out are scored as missing evidence.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return scoreRun(cmd.Context(), args[0])
	},
}

func init() {
	scoreCmd.Flags().BoolVar(&scoreJSON, "json", false, "Print the verdict as JSON")
	scoreCmd.Flags().BoolVar(&scoreSave, "save", false, "Store the verdict in the database")
	rootCmd.AddCommand(scoreCmd)
}

// scoreFile is the YAML layout read by the score command.
type scoreFile struct {
	Submission models.Submission                       `yaml:"submission"`
	Evidence   map[models.Category]models.Evidence     `yaml:"evidence"`
	Outreach   map[models.Channel]models.OutreachState `yaml:"outreach"`
}

func readScoreFile(path string) (*scoreFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var f scoreFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for c := range f.Evidence {
		if !validCategory(c) {
			return nil, fmt.Errorf("unknown evidence category %q", c)
		}
	}
	return &f, nil
}

func validCategory(c models.Category) bool {
	for _, known := range models.Categories {
		if c == known {
			return true
		}
	}
	return false
}

// recordedOutreach replays outreach states from the score file. Channels
// without a recorded state are unavailable.
type recordedOutreach map[models.Channel]models.OutreachState

func (r recordedOutreach) SendAndWait(_ context.Context, ch models.Channel, _ models.Submission, _ time.Duration) (models.OutreachOutcome, error) {
	state, ok := r[ch]
	if !ok {
		return models.OutreachOutcome{}, fmt.Errorf("no recorded %s outcome: %w", ch, triage.ErrProviderUnavailable)
	}
	return models.OutreachOutcome{Channel: ch, State: state, Detail: "recorded"}, nil
}

func scoreRun(ctx context.Context, path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	f, err := readScoreFile(path)
	if err != nil {
		return err
	}

	pipeline := triage.NewPipeline(evidence.Static(f.Evidence),
		triage.WithOutreach(recordedOutreach(f.Outreach)),
		triage.WithLogger(newLogger()),
	)
	v, err := pipeline.Triage(ctx, cfg, f.Submission)
	if err != nil {
		return err
	}

	if scoreSave {
		if dryRun {
			ui.DryRunMsg("Would save verdict for %s", v.SubmissionID)
		} else {
			s, err := getStore()
			if err != nil {
				return err
			}
			if err := s.SaveVerdict(ctx, v); err != nil {
				return fmt.Errorf("save verdict: %w", err)
			}
			ui.VerboseLog("Saved verdict %s", v.ID)
		}
	}

	if scoreJSON {
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	printVerdict(v)
	return nil
}

// printVerdict writes the score breakdown followed by reasoning and actions.
func printVerdict(v *models.Verdict) {
	fmt.Fprint(ui.Out, report.Explain(v))
	if len(v.Reasoning) > 0 {
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "Reasoning:")
		for _, r := range v.Reasoning {
			fmt.Fprintf(ui.Out, "  - %s\n", r)
		}
	}
	if len(v.ActionItems) > 0 {
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "Action items:")
		for _, a := range v.ActionItems {
			fmt.Fprintf(ui.Out, "  - %s\n", a)
		}
	}
}
