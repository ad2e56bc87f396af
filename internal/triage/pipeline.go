package triage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/joescharf/btcmap-triage/internal/config"
	"github.com/joescharf/btcmap-triage/internal/models"
	"github.com/joescharf/btcmap-triage/internal/scoring"
)

// Pipeline runs the triage state machine. It holds no per-submission state,
// so one Pipeline may triage many submissions concurrently.
type Pipeline struct {
	providers  map[models.Category]EvidenceProvider
	outreach   OutreachProvider
	duplicates DuplicateLookup
	onPhase1   Phase1Hook
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithOutreach sets the outreach provider. Without one every channel is unavailable.
func WithOutreach(o OutreachProvider) Option {
	return func(p *Pipeline) { p.outreach = o }
}

// WithDuplicates sets the duplicate lookup. Without one no submission is a duplicate.
func WithDuplicates(d DuplicateLookup) Option {
	return func(p *Pipeline) { p.duplicates = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithClock overrides the verdict timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithPhase1Hook registers a callback run between Phase 1 and outreach.
func WithPhase1Hook(h Phase1Hook) Option {
	return func(p *Pipeline) { p.onPhase1 = h }
}

// NewPipeline creates a pipeline over the given evidence providers. A category
// with no provider is scored as missing evidence.
func NewPipeline(providers []EvidenceProvider, opts ...Option) *Pipeline {
	p := &Pipeline{
		providers: make(map[models.Category]EvidenceProvider, len(providers)),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
	}
	for _, pr := range providers {
		p.providers[pr.Category()] = pr
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// With returns a copy of the pipeline with extra options applied.
func (p *Pipeline) With(opts ...Option) *Pipeline {
	cp := *p
	for _, opt := range opts {
		opt(&cp)
	}
	return &cp
}

// run carries one submission through the state machine.
type run struct {
	verdict *models.Verdict
}

func (r *run) transition(s models.State) {
	r.verdict.State = s
	r.verdict.History = append(r.verdict.History, s)
}

// Triage produces the verdict for one submission. Only a malformed submission
// or cancellation makes it return an error; provider failures degrade the
// affected category instead. A cancelled run returns a CANCELLED verdict with
// no score alongside the context error.
func (p *Pipeline) Triage(ctx context.Context, cfg config.Config, sub models.Submission) (*models.Verdict, error) {
	if err := Validate(sub); err != nil {
		return nil, err
	}

	r := p.newRun(sub)
	log := p.logger.With("submission", sub.ID, "merchant", sub.MerchantName)

	if err := ctx.Err(); err != nil {
		return p.cancel(r, err)
	}

	if p.duplicates != nil {
		prior, found, err := p.duplicates.FindDuplicate(ctx, sub)
		switch {
		case err != nil && ctx.Err() != nil:
			return p.cancel(r, ctx.Err())
		case err != nil:
			log.Warn("duplicate lookup failed", "error", err)
		case found:
			p.markDuplicate(r, prior)
			log.Info("duplicate submission", "prior", prior)
			return r.verdict, nil
		}
	}

	// Phase 1
	evidence := p.collect(ctx, cfg, sub, log)
	if err := ctx.Err(); err != nil {
		return p.cancel(r, err)
	}
	p1 := scoring.ScorePhase1(sub, evidence, cfg)
	r.verdict.Phase1 = &p1
	r.transition(models.StatePhase1Scored)
	log.Debug("phase 1 scored", "total", p1.Total, "phase2_required", p1.Phase2Required)

	// Phase 2
	var p2 models.Phase2Result
	channels := sub.ContactChannels()
	switch {
	case p1.Phase2Required && len(channels) > 0:
		r.transition(models.StatePhase2Pending)
		if p.onPhase1 != nil {
			p.onPhase1(ctx, sub, p1)
		}
		outcomes := p.reach(ctx, cfg, sub, channels, log)
		if err := ctx.Err(); err != nil {
			return p.cancel(r, err)
		}
		p2 = scoring.ScorePhase2(outcomes, cfg)
	case p1.TrustedSource != "":
		r.transition(models.StatePhase2Skipped)
		p2 = scoring.SkippedPhase2(scoring.SkipTrustedSource)
	case !p1.Phase2Required:
		r.transition(models.StatePhase2Skipped)
		p2 = scoring.SkippedPhase2(scoring.SkipNotRequired)
	default:
		r.transition(models.StatePhase2Skipped)
		p2 = scoring.SkippedPhase2(scoring.SkipNoContact)
	}
	r.verdict.Phase2 = &p2

	conflict := scoring.DetectConflicts(evidence, p1, &p2, cfg)
	d := scoring.Decide(sub, p1, &p2, conflict, cfg)

	v := r.verdict
	v.ConflictPenalty = conflict.Penalty
	v.Conflicts = conflict.Notes
	v.FinalScore = d.FinalScore
	v.Level = d.Level
	v.Recommendation = d.Recommendation
	v.ReviewRequired = d.ReviewRequired
	v.FlagForRemoval = d.FlagForRemoval
	v.Reasoning = d.Reasoning
	v.ActionItems = d.ActionItems
	r.transition(models.StateFinalized)

	log.Info("triage finalized", "score", v.FinalScore, "level", v.Level, "recommendation", v.Recommendation)
	return v, nil
}

func (p *Pipeline) newRun(sub models.Submission) *run {
	r := &run{verdict: &models.Verdict{
		SubmissionID: sub.ID,
		IssueNumber:  sub.IssueNumber,
		MerchantName: sub.MerchantName,
		CreatedAt:    p.now().UTC(),
	}}
	r.transition(models.StateNew)
	return r
}

// duplicateVerdict is the verdict for a submission already claimed as a
// duplicate of prior.
func (p *Pipeline) duplicateVerdict(sub models.Submission, prior string) *models.Verdict {
	r := p.newRun(sub)
	p.markDuplicate(r, prior)
	p.logger.Info("duplicate submission", "submission", sub.ID, "merchant", sub.MerchantName, "prior", prior)
	return r.verdict
}

func (p *Pipeline) markDuplicate(r *run, prior string) {
	v := r.verdict
	v.DuplicateOf = prior
	v.Recommendation = models.RecommendDuplicate
	v.Reasoning = []string{fmt.Sprintf("Same merchant as previously processed submission %s", prior)}
	v.ActionItems = []string{fmt.Sprintf("Close as duplicate of %s", prior)}
	r.transition(models.StateDuplicate)
}

func (p *Pipeline) cancel(r *run, cause error) (*models.Verdict, error) {
	v := r.verdict
	v.Phase1 = nil
	v.Phase2 = nil
	v.FinalScore = 0
	v.Level = ""
	v.Recommendation = ""
	v.Reasoning = []string{"triage cancelled before a verdict was reached"}
	r.transition(models.StateCancelled)
	return v, fmt.Errorf("triage submission %s: %w", v.SubmissionID, cause)
}

// collect runs every provider concurrently and joins before returning.
func (p *Pipeline) collect(ctx context.Context, cfg config.Config, sub models.Submission, log *slog.Logger) map[models.Category]models.Evidence {
	results := make([]models.Evidence, len(models.Categories))

	var g errgroup.Group
	for i, c := range models.Categories {
		provider, ok := p.providers[c]
		if !ok {
			results[i] = models.MissingEvidence(c, "no provider configured")
			continue
		}
		g.Go(func() error {
			results[i] = p.check(ctx, cfg, provider, sub, log)
			return nil
		})
	}
	_ = g.Wait()

	evidence := make(map[models.Category]models.Evidence, len(results))
	for i, c := range models.Categories {
		ev := results[i]
		ev.Category = c
		evidence[c] = ev
	}
	return evidence
}

// check calls one provider with exponential backoff. Exhausted retries
// become error evidence; an unavailable provider becomes unavailable evidence.
func (p *Pipeline) check(ctx context.Context, cfg config.Config, provider EvidenceProvider, sub models.Submission, log *slog.Logger) models.Evidence {
	c := provider.Category()
	attempts := max(cfg.Retry.MaxAttempts, 1)
	base := cfg.Retry.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(base))

	var ev models.Evidence
	tries := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		tries++
		res, err := provider.Check(ctx, sub)
		if err == nil {
			ev = res
			return nil
		}
		if errors.Is(err, ErrProviderUnavailable) || ctx.Err() != nil {
			return err
		}
		log.Debug("evidence provider failed, retrying", "category", c, "attempt", tries, "error", err)
		return retry.RetryableError(err)
	})

	switch {
	case err == nil:
		if ev.Status == "" {
			ev.Status = models.EvidenceOK
		}
		return ev
	case errors.Is(err, ErrProviderUnavailable):
		return models.Evidence{Category: c, Status: models.EvidenceUnavailable, Note: err.Error()}
	case ctx.Err() != nil:
		return models.MissingEvidence(c, "cancelled")
	default:
		log.Warn("evidence provider failed", "category", c, "attempts", tries, "error", err)
		return models.Evidence{Category: c, Status: models.EvidenceError, Note: fmt.Sprintf("%v (after %d attempts)", err, tries)}
	}
}

// reach runs every outreach channel concurrently, each under its own timeout.
func (p *Pipeline) reach(ctx context.Context, cfg config.Config, sub models.Submission, channels []models.Channel, log *slog.Logger) []models.OutreachOutcome {
	outcomes := make([]models.OutreachOutcome, len(channels))

	var g errgroup.Group
	for i, ch := range channels {
		g.Go(func() error {
			outcomes[i] = p.contact(ctx, cfg, sub, ch, log)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (p *Pipeline) contact(ctx context.Context, cfg config.Config, sub models.Submission, ch models.Channel, log *slog.Logger) models.OutreachOutcome {
	if p.outreach == nil {
		return models.OutreachOutcome{Channel: ch, State: models.OutreachUnavailable, Detail: "no outreach provider configured"}
	}

	cctx, cancel := context.WithTimeout(ctx, cfg.OutreachTimeout)
	defer cancel()

	out, err := p.outreach.SendAndWait(cctx, ch, sub, cfg.OutreachTimeout)
	switch {
	case err == nil:
		out.Channel = ch
		if out.State == "" {
			out.State = models.OutreachNoResponse
		}
		return out
	case errors.Is(err, ErrProviderUnavailable):
		return models.OutreachOutcome{Channel: ch, State: models.OutreachUnavailable, Detail: err.Error()}
	case ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded):
		return models.OutreachOutcome{Channel: ch, State: models.OutreachNoResponse, Detail: fmt.Sprintf("no reply within %s", cfg.OutreachTimeout)}
	default:
		if ctx.Err() == nil {
			log.Warn("outreach failed", "channel", ch, "error", err)
		}
		return models.OutreachOutcome{Channel: ch, State: models.OutreachNoResponse, Detail: "outreach failed: " + err.Error()}
	}
}
