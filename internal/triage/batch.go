package triage

import (
	"cmp"
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/joescharf/btcmap-triage/internal/config"
	"github.com/joescharf/btcmap-triage/internal/models"
)

// BatchResult pairs a submission with its verdict or its fatal error.
type BatchResult struct {
	Submission models.Submission
	Verdict    *models.Verdict
	Err        error
}

// OK reports whether the submission reached a verdict.
func (r BatchResult) OK() bool {
	return r.Err == nil && r.Verdict != nil
}

// TriageBatch triages submissions with at most limit running at once
// (limit <= 0 means unbounded). One submission's failure never stops the
// others. Results line up with the input slice.
//
// Duplicates are claimed before any worker starts, oldest issue first, so
// the lowest issue number for a merchant is the one kept.
func (p *Pipeline) TriageBatch(ctx context.Context, cfg config.Config, subs []models.Submission, limit int) []BatchResult {
	results := make([]BatchResult, len(subs))

	dupOf := p.claimDuplicates(ctx, subs)
	worker := p.With(WithDuplicates(nil))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, sub := range subs {
		if prior, ok := dupOf[i]; ok {
			results[i] = BatchResult{Submission: sub, Verdict: p.duplicateVerdict(sub, prior)}
			continue
		}
		g.Go(func() error {
			v, err := worker.Triage(ctx, cfg, sub)
			results[i] = BatchResult{Submission: sub, Verdict: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// claimDuplicates runs the duplicate lookup sequentially in issue-number
// order and returns the prior ID for each duplicate, keyed by input index.
// Malformed submissions are left for Triage to reject.
func (p *Pipeline) claimDuplicates(ctx context.Context, subs []models.Submission) map[int]string {
	dupOf := make(map[int]string)
	if p.duplicates == nil {
		return dupOf
	}

	order := make([]int, 0, len(subs))
	for i, sub := range subs {
		if Validate(sub) == nil {
			order = append(order, i)
		}
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(subs[a].IssueNumber, subs[b].IssueNumber)
	})

	for _, i := range order {
		if ctx.Err() != nil {
			break
		}
		prior, found, err := p.duplicates.FindDuplicate(ctx, subs[i])
		switch {
		case err != nil:
			p.logger.Warn("duplicate lookup failed", "submission", subs[i].ID, "error", err)
		case found:
			dupOf[i] = prior
		}
	}
	return dupOf
}
