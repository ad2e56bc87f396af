package triage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/joescharf/btcmap-triage/internal/config"
	"github.com/joescharf/btcmap-triage/internal/models"
)

// VerdictSink persists finished verdicts.
type VerdictSink interface {
	SaveVerdict(ctx context.Context, v *models.Verdict) error
}

// Reporter renders the comments and labels posted back to the issue store.
type Reporter interface {
	Phase1(sub models.Submission, p1 models.Phase1Result) (string, error)
	Final(sub models.Submission, v *models.Verdict) (string, error)
	Labels(v *models.Verdict) []string
}

// RunOptions controls a Runner pass.
type RunOptions struct {
	Filter          IssueFilter
	Concurrency     int
	Post            bool
	CloseDuplicates bool
}

// RunSummary counts what a pass produced.
type RunSummary struct {
	Fetched          int
	Results          []BatchResult
	ByRecommendation map[models.Recommendation]int
	Malformed        int
	Cancelled        int
	PostErrors       int
}

// Recommendations returns the recommendations seen, sorted for stable output.
func (s RunSummary) Recommendations() []models.Recommendation {
	recs := make([]models.Recommendation, 0, len(s.ByRecommendation))
	for r := range s.ByRecommendation {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i] < recs[j] })
	return recs
}

// Runner fetches open submissions, triages them and writes results back.
type Runner struct {
	issues   IssueStore
	pipeline *Pipeline
	sink     VerdictSink
	reporter Reporter
	logger   *slog.Logger
}

// NewRunner creates a Runner. sink and reporter may be nil.
func NewRunner(issues IssueStore, pipeline *Pipeline, sink VerdictSink, reporter Reporter, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{issues: issues, pipeline: pipeline, sink: sink, reporter: reporter, logger: logger}
}

// Run performs one fetch-triage-report pass.
func (r *Runner) Run(ctx context.Context, cfg config.Config, opts RunOptions) (*RunSummary, error) {
	subs, err := r.issues.Fetch(ctx, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("fetch submissions: %w", err)
	}

	pipeline := r.pipeline
	if opts.Post && r.reporter != nil {
		pipeline = pipeline.With(WithPhase1Hook(r.postPhase1))
	}

	summary := &RunSummary{
		Fetched:          len(subs),
		ByRecommendation: make(map[models.Recommendation]int),
	}
	summary.Results = pipeline.TriageBatch(ctx, cfg, subs, opts.Concurrency)

	for _, res := range summary.Results {
		switch {
		case IsMalformed(res.Err):
			summary.Malformed++
			r.logger.Warn("skipping malformed submission", "submission", res.Submission.ID, "error", res.Err)
			continue
		case res.Err != nil:
			summary.Cancelled++
			continue
		}

		v := res.Verdict
		summary.ByRecommendation[v.Recommendation]++
		if r.sink != nil {
			if err := r.sink.SaveVerdict(ctx, v); err != nil {
				return summary, fmt.Errorf("save verdict for %s: %w", v.SubmissionID, err)
			}
		}
		if opts.Post {
			if err := r.writeBack(ctx, res.Submission, v, opts); err != nil {
				summary.PostErrors++
				r.logger.Warn("failed to update issue", "submission", v.SubmissionID, "error", err)
			}
		}
	}
	return summary, nil
}

func (r *Runner) postPhase1(ctx context.Context, sub models.Submission, p1 models.Phase1Result) {
	text, err := r.reporter.Phase1(sub, p1)
	if err != nil {
		r.logger.Warn("render phase 1 report", "submission", sub.ID, "error", err)
		return
	}
	if err := r.issues.PostComment(ctx, sub.ID, text); err != nil {
		r.logger.Warn("post phase 1 report", "submission", sub.ID, "error", err)
	}
}

func (r *Runner) writeBack(ctx context.Context, sub models.Submission, v *models.Verdict, opts RunOptions) error {
	if r.reporter != nil {
		text, err := r.reporter.Final(sub, v)
		if err != nil {
			return fmt.Errorf("render report: %w", err)
		}
		if err := r.issues.PostComment(ctx, sub.ID, text); err != nil {
			return fmt.Errorf("post report: %w", err)
		}
		if labels := r.reporter.Labels(v); len(labels) > 0 {
			if err := r.issues.SetLabels(ctx, sub.ID, labels); err != nil {
				return fmt.Errorf("set labels: %w", err)
			}
		}
	}
	if opts.CloseDuplicates && v.State == models.StateDuplicate {
		if err := r.issues.Close(ctx, sub.ID); err != nil {
			return fmt.Errorf("close duplicate: %w", err)
		}
	}
	return nil
}
