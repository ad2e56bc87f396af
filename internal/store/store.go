package store

import (
	"context"
	"errors"

	"github.com/joescharf/btcmap-triage/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// VerdictListFilter specifies filters for listing verdicts.
type VerdictListFilter struct {
	Recommendation models.Recommendation
	Level          models.Level
	SubmissionID   string
	ReviewRequired bool
	Limit          int
}

// Store defines the persistence interface for btcmap-triage.
type Store interface {
	// Submissions (processed registry used for duplicate detection)
	RecordSubmission(ctx context.Context, sub models.Submission) error
	ListSubmissions(ctx context.Context) ([]models.Submission, error)

	// Verdicts
	SaveVerdict(ctx context.Context, v *models.Verdict) error
	GetVerdict(ctx context.Context, id string) (*models.Verdict, error)
	ListVerdicts(ctx context.Context, filter VerdictListFilter) ([]*models.Verdict, error)

	// Outreach
	CreateOutreachMessage(ctx context.Context, msg *models.OutreachMessage) error
	GetLatestOutreach(ctx context.Context, submissionID string, ch models.Channel) (*models.OutreachMessage, error)
	ListOutreach(ctx context.Context, submissionID string) ([]*models.OutreachMessage, error)
	RecordOutreachReply(ctx context.Context, submissionID string, ch models.Channel, reply string, state models.OutreachState) (*models.OutreachMessage, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
