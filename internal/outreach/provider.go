package outreach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/joescharf/btcmap-triage/internal/models"
	"github.com/joescharf/btcmap-triage/internal/store"
	"github.com/joescharf/btcmap-triage/internal/triage"
)

// MessageStore persists outreach messages and the replies recorded against them.
type MessageStore interface {
	CreateOutreachMessage(ctx context.Context, msg *models.OutreachMessage) error
	GetLatestOutreach(ctx context.Context, submissionID string, ch models.Channel) (*models.OutreachMessage, error)
}

// Sender delivers a drafted message. Without one, drafts wait for a human to send them.
type Sender interface {
	Send(ctx context.Context, d Draft) error
}

// Provider implements triage.OutreachProvider on top of a MessageStore. The
// reply is written to the store out of band (CLI, API) and picked up by polling.
type Provider struct {
	store      MessageStore
	classifier Classifier
	sender     Sender
	channels   map[models.Channel]bool
	interval   time.Duration
	noWait     bool
	logger     *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithClassifier sets the reply classifier. The default is KeywordClassifier.
func WithClassifier(c Classifier) Option {
	return func(p *Provider) { p.classifier = c }
}

// WithSender delivers drafts instead of leaving them for manual sending.
func WithSender(s Sender) Option {
	return func(p *Provider) { p.sender = s }
}

// WithChannels limits outreach to the given channels. Other channels report unavailable.
func WithChannels(chs ...models.Channel) Option {
	return func(p *Provider) {
		p.channels = make(map[models.Channel]bool, len(chs))
		for _, c := range chs {
			p.channels[c] = true
		}
	}
}

// WithPollInterval sets how often the store is checked for a reply.
func WithPollInterval(d time.Duration) Option {
	return func(p *Provider) { p.interval = d }
}

// WithoutWaiting makes SendAndWait return as soon as the message is recorded.
// An unanswered message yields a pending no_response outcome.
func WithoutWaiting() Option {
	return func(p *Provider) { p.noWait = true }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// NewProvider creates a provider with both channels enabled.
func NewProvider(s MessageStore, opts ...Option) *Provider {
	p := &Provider{
		store:      s,
		classifier: KeywordClassifier{},
		channels:   map[models.Channel]bool{models.ChannelEmail: true, models.ChannelSocialDM: true},
		interval:   time.Minute,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SendAndWait drafts and records a message, then waits until a reply is
// recorded or ctx ends. A message still awaiting a reply from an earlier run
// is reused rather than sent again.
func (p *Provider) SendAndWait(ctx context.Context, ch models.Channel, sub models.Submission, timeout time.Duration) (models.OutreachOutcome, error) {
	if !p.channels[ch] {
		return models.OutreachOutcome{}, fmt.Errorf("%s outreach disabled: %w", ch, triage.ErrProviderUnavailable)
	}

	msg, err := p.pending(ctx, ch, sub)
	if err != nil {
		return models.OutreachOutcome{}, err
	}
	if msg.Reply != "" {
		return p.outcome(ctx, sub, msg)
	}
	if p.noWait {
		return models.OutreachOutcome{Channel: ch, State: models.OutreachNoResponse, Detail: "awaiting reply", Pending: true}, nil
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return models.OutreachOutcome{}, ctx.Err()
		case <-ticker.C:
		}

		latest, err := p.store.GetLatestOutreach(ctx, sub.ID, ch)
		if err != nil {
			if ctx.Err() != nil {
				return models.OutreachOutcome{}, ctx.Err()
			}
			p.logger.Warn("poll outreach reply", "submission", sub.ID, "channel", ch, "error", err)
			continue
		}
		if latest.ID == msg.ID && latest.Reply != "" {
			return p.outcome(ctx, sub, latest)
		}
	}
}

// pending returns the message to wait on, creating and sending one if needed.
func (p *Provider) pending(ctx context.Context, ch models.Channel, sub models.Submission) (*models.OutreachMessage, error) {
	latest, err := p.store.GetLatestOutreach(ctx, sub.ID, ch)
	switch {
	case err == nil:
		return latest, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("load outreach: %w", err)
	}

	d, err := DraftMessage(ch, sub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", triage.ErrProviderUnavailable, err)
	}

	msg := &models.OutreachMessage{
		SubmissionID: sub.ID,
		Channel:      ch,
		Recipient:    d.Recipient,
		Subject:      d.Subject,
		Body:         d.Body,
		Status:       models.MessageDrafted,
	}
	if p.sender != nil {
		if err := p.sender.Send(ctx, d); err != nil {
			return nil, fmt.Errorf("send %s: %w", ch, err)
		}
		msg.Status = models.MessageSent
	}
	if err := p.store.CreateOutreachMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("record outreach: %w", err)
	}
	p.logger.Info("outreach recorded", "submission", sub.ID, "channel", ch, "recipient", d.Recipient, "status", msg.Status)
	return msg, nil
}

func (p *Provider) outcome(ctx context.Context, sub models.Submission, msg *models.OutreachMessage) (models.OutreachOutcome, error) {
	out := models.OutreachOutcome{Channel: msg.Channel, State: msg.ReplyState}
	if out.State != "" {
		out.Detail = "reply recorded by reviewer"
		return out, nil
	}
	state, reason, err := p.classifier.Classify(ctx, sub.MerchantName, msg.Channel, msg.Reply)
	if err != nil {
		return models.OutreachOutcome{}, fmt.Errorf("classify reply: %w", err)
	}
	out.State = state
	out.Detail = reason
	return out, nil
}

var _ triage.OutreachProvider = (*Provider)(nil)
