package outreach

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/joescharf/btcmap-triage/internal/llm"
	"github.com/joescharf/btcmap-triage/internal/models"
)

// Classifier decides what a merchant's reply means.
type Classifier interface {
	Classify(ctx context.Context, merchant string, ch models.Channel, reply string) (models.OutreachState, string, error)
}

var (
	denyRe = regexp.MustCompile(`(?i)\b(no longer|stopped|don't|do not|doesn't|does not|never|cannot|can't|not) (accept(ing)?|take|taking|support(ing)?)\b|\bnot accepted\b|\b(we|i) don'?t\b|^\s*no\b`)
	yesRe  = regexp.MustCompile(`(?i)^\s*(yes|yep|yeah|correct|confirmed|absolutely|of course)\b|\b(we|i) (do )?(accept|take|support)\b|\bwe (still )?(do|are)\b`)
)

// KeywordClassifier recognises plain yes/no answers. Anything it cannot place
// is no_response so a reviewer looks at it.
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(_ context.Context, _ string, _ models.Channel, reply string) (models.OutreachState, string, error) {
	switch {
	case denyRe.MatchString(reply):
		return models.OutreachDenied, "reply denies accepting Bitcoin", nil
	case yesRe.MatchString(reply):
		return models.OutreachConfirmed, "reply confirms accepting Bitcoin", nil
	default:
		return models.OutreachNoResponse, "reply does not answer the question", nil
	}
}

// ReplyClassifier is the subset of the LLM client used here.
type ReplyClassifier interface {
	ClassifyReply(ctx context.Context, merchant string, ch models.Channel, reply string) (*llm.Classification, error)
}

// LLMClassifier asks a model and falls back to keywords when the call fails
// or the model is unsure.
type LLMClassifier struct {
	Model    ReplyClassifier
	Fallback Classifier
	Logger   *slog.Logger
}

func (c LLMClassifier) Classify(ctx context.Context, merchant string, ch models.Channel, reply string) (models.OutreachState, string, error) {
	fallback := c.Fallback
	if fallback == nil {
		fallback = KeywordClassifier{}
	}
	res, err := c.Model.ClassifyReply(ctx, merchant, ch, reply)
	if err != nil {
		if c.Logger != nil {
			c.Logger.Warn("llm reply classification failed, using keywords", "error", err)
		}
		return fallback.Classify(ctx, merchant, ch, reply)
	}
	if !res.Confident {
		state, _, ferr := fallback.Classify(ctx, merchant, ch, reply)
		if ferr == nil && state == res.State {
			return state, res.Reason, nil
		}
		return models.OutreachNoResponse, "ambiguous reply: " + res.Reason, nil
	}
	return res.State, res.Reason, nil
}
