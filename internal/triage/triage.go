// Package triage drives one submission, or a batch of them, from NEW to a
// final verdict: evidence collection, both scoring phases, outreach and the
// duplicate short-circuit.
package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joescharf/btcmap-triage/internal/models"
)

// ErrProviderUnavailable is returned by providers that lack the capability to
// answer at all. It is recorded as a skip with an action item, never retried.
var ErrProviderUnavailable = errors.New("provider unavailable")

// MalformedSubmissionError reports a submission whose required fields are
// absent or unparseable. It is never retried.
type MalformedSubmissionError struct {
	SubmissionID string
	Problems     []string
}

func (e *MalformedSubmissionError) Error() string {
	id := e.SubmissionID
	if id == "" {
		id = "(no id)"
	}
	return fmt.Sprintf("malformed submission %s: %s", id, strings.Join(e.Problems, "; "))
}

// IsMalformed reports whether err is, or wraps, a MalformedSubmissionError.
func IsMalformed(err error) bool {
	var m *MalformedSubmissionError
	return errors.As(err, &m)
}

// Validate checks the fields triage cannot run without.
func Validate(sub models.Submission) error {
	var problems []string
	if strings.TrimSpace(sub.MerchantName) == "" {
		problems = append(problems, "merchant name is missing")
	}
	switch {
	case sub.Location == nil:
		problems = append(problems, "coordinates are missing")
	case !sub.Location.Valid():
		problems = append(problems, fmt.Sprintf("coordinates %s are out of range", sub.Location))
	}
	if len(problems) > 0 {
		return &MalformedSubmissionError{SubmissionID: sub.ID, Problems: problems}
	}
	return nil
}

// IssueFilter selects which issues Fetch returns.
type IssueFilter struct {
	Labels       []string
	Limit        int
	SkipAssigned bool
}

// IssueStore is the tracker submissions arrive through. Fetch pages through
// the store until the filter is satisfied; the result is finite.
type IssueStore interface {
	Fetch(ctx context.Context, filter IssueFilter) ([]models.Submission, error)
	PostComment(ctx context.Context, id string, text string) error
	SetLabels(ctx context.Context, id string, labels []string) error
	Close(ctx context.Context, id string) error
}

// EvidenceProvider produces the evidence for one category. Implementations
// must be safe for concurrent use and do their own rate limiting.
type EvidenceProvider interface {
	Category() models.Category
	Check(ctx context.Context, sub models.Submission) (models.Evidence, error)
}

// OutreachProvider contacts the merchant on one channel and waits for an answer.
// Returning because timeout elapsed is reported as no_response.
type OutreachProvider interface {
	SendAndWait(ctx context.Context, ch models.Channel, sub models.Submission, timeout time.Duration) (models.OutreachOutcome, error)
}

// DuplicateLookup finds an already-processed record for the same merchant.
// A lookup that reports no duplicate claims the submission, so a later match
// in the same batch is reported as its duplicate.
type DuplicateLookup interface {
	FindDuplicate(ctx context.Context, sub models.Submission) (priorID string, found bool, err error)
}

// Phase1Hook is called after Phase 1 when outreach is about to start.
type Phase1Hook func(ctx context.Context, sub models.Submission, p1 models.Phase1Result)
