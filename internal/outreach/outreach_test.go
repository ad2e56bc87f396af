package outreach

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/btcmap-triage/internal/llm"
	"github.com/joescharf/btcmap-triage/internal/models"
	"github.com/joescharf/btcmap-triage/internal/store"
	"github.com/joescharf/btcmap-triage/internal/triage"
)

type memStore struct {
	mu   sync.Mutex
	msgs []*models.OutreachMessage
}

func (s *memStore) CreateOutreachMessage(_ context.Context, msg *models.OutreachMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.ID = fmt.Sprintf("m%d", len(s.msgs)+1)
	cp := *msg
	s.msgs = append(s.msgs, &cp)
	return nil
}

func (s *memStore) GetLatestOutreach(_ context.Context, id string, ch models.Channel) (*models.OutreachMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.msgs) - 1; i >= 0; i-- {
		if m := s.msgs[i]; m.SubmissionID == id && m.Channel == ch {
			cp := *m
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *memStore) reply(id string, ch models.Channel, text string, state models.OutreachState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.msgs) - 1; i >= 0; i-- {
		if m := s.msgs[i]; m.SubmissionID == id && m.Channel == ch {
			m.Reply, m.ReplyState, m.Status = text, state, models.MessageReplied
			return
		}
	}
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func testSubmission() models.Submission {
	return models.Submission{
		ID:            "17",
		IssueNumber:   17,
		MerchantName:  "Satoshi Cafe",
		Address:       "1 Main St",
		ContactEmail:  "owner@satoshi.example",
		SocialHandles: map[string]string{"instagram": "satoshicafe", "nostr": "npub1xyz"},
	}
}

func TestDraftMessage(t *testing.T) {
	sub := testSubmission()

	d, err := DraftMessage(models.ChannelEmail, sub)
	require.NoError(t, err)
	assert.Equal(t, "owner@satoshi.example", d.Recipient)
	assert.Equal(t, "Verification Request: Satoshi Cafe", d.Subject)
	assert.Contains(t, d.Body, "Dear Satoshi Cafe Team")
	assert.Contains(t, d.Body, "(1 Main St)")
	assert.Contains(t, d.Body, "Issue Reference: #17")

	d, err = DraftMessage(models.ChannelSocialDM, sub)
	require.NoError(t, err)
	assert.Equal(t, "instagram:satoshicafe", d.Recipient)
	assert.Contains(t, d.Body, "Hi Satoshi Cafe!")
	assert.Empty(t, d.Subject)

	_, err = DraftMessage(models.ChannelEmail, models.Submission{ID: "1"})
	require.Error(t, err)
}

func TestSocialRecipient(t *testing.T) {
	assert.Equal(t, "", SocialRecipient(models.Submission{}))
	assert.Equal(t, "twitter:btc", SocialRecipient(models.Submission{SocialHandles: map[string]string{"twitter": "btc", "facebook": "f"}}))
	assert.Equal(t, "mastodon:m", SocialRecipient(models.Submission{SocialHandles: map[string]string{"mastodon": "m"}}))
}

func TestKeywordClassifier(t *testing.T) {
	tests := []struct {
		reply string
		want  models.OutreachState
	}{
		{"Yes! We accept Lightning at the till.", models.OutreachConfirmed},
		{"We do, since 2021.", models.OutreachConfirmed},
		{"We take bitcoin on-chain and lightning", models.OutreachConfirmed},
		{"No, sorry.", models.OutreachDenied},
		{"We stopped accepting bitcoin last year", models.OutreachDenied},
		{"Yes, but we no longer accept bitcoin", models.OutreachDenied},
		{"Who is this?", models.OutreachNoResponse},
		{"I am out of office until Monday.", models.OutreachNoResponse},
	}
	for _, tt := range tests {
		state, _, err := KeywordClassifier{}.Classify(context.Background(), "", models.ChannelEmail, tt.reply)
		require.NoError(t, err)
		assert.Equal(t, tt.want, state, tt.reply)
	}
}

type fakeModel struct {
	res *llm.Classification
	err error
}

func (f fakeModel) ClassifyReply(context.Context, string, models.Channel, string) (*llm.Classification, error) {
	return f.res, f.err
}

func TestLLMClassifier(t *testing.T) {
	ctx := context.Background()

	c := LLMClassifier{Model: fakeModel{res: &llm.Classification{State: models.OutreachConfirmed, Reason: "says yes", Confident: true}}}
	state, reason, err := c.Classify(ctx, "", models.ChannelEmail, "sure thing, bring your sats")
	require.NoError(t, err)
	assert.Equal(t, models.OutreachConfirmed, state)
	assert.Equal(t, "says yes", reason)

	c = LLMClassifier{Model: fakeModel{err: errors.New("rate limited")}}
	state, _, err = c.Classify(ctx, "", models.ChannelEmail, "No, sorry.")
	require.NoError(t, err)
	assert.Equal(t, models.OutreachDenied, state, "falls back to keywords")

	c = LLMClassifier{Model: fakeModel{res: &llm.Classification{State: models.OutreachConfirmed, Reason: "maybe"}}}
	state, _, err = c.Classify(ctx, "", models.ChannelEmail, "hmm we might")
	require.NoError(t, err)
	assert.Equal(t, models.OutreachNoResponse, state, "unsure model and keywords disagree")
}

type recordingSender struct {
	mu    sync.Mutex
	sent  []Draft
	fails bool
}

func (s *recordingSender) Send(_ context.Context, d Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails {
		return errors.New("smtp down")
	}
	s.sent = append(s.sent, d)
	return nil
}

func TestProvider_ReplyRecorded(t *testing.T) {
	ms := &memStore{}
	sender := &recordingSender{}
	p := NewProvider(ms, WithSender(sender), WithPollInterval(time.Millisecond))
	sub := testSubmission()

	go func() {
		for ms.count() == 0 {
			time.Sleep(time.Millisecond)
		}
		ms.reply(sub.ID, models.ChannelEmail, "Yes, we accept bitcoin", "")
	}()

	out, err := p.SendAndWait(context.Background(), models.ChannelEmail, sub, time.Second)
	require.NoError(t, err)
	assert.Equal(t, models.OutreachConfirmed, out.State)
	assert.Equal(t, models.ChannelEmail, out.Channel)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "owner@satoshi.example", sender.sent[0].Recipient)

	msg, err := ms.GetLatestOutreach(context.Background(), sub.ID, models.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, models.MessageReplied, msg.Status)
}

func TestProvider_ReviewerStateWins(t *testing.T) {
	ms := &memStore{}
	sub := testSubmission()
	require.NoError(t, ms.CreateOutreachMessage(context.Background(), &models.OutreachMessage{SubmissionID: sub.ID, Channel: models.ChannelSocialDM}))
	ms.reply(sub.ID, models.ChannelSocialDM, "👍", models.OutreachConfirmed)

	p := NewProvider(ms)
	out, err := p.SendAndWait(context.Background(), models.ChannelSocialDM, sub, time.Second)
	require.NoError(t, err)
	assert.Equal(t, models.OutreachConfirmed, out.State)
	assert.Equal(t, 1, ms.count(), "answered message is not sent again")
}

func TestProvider_Timeout(t *testing.T) {
	ms := &memStore{}
	p := NewProvider(ms, WithPollInterval(time.Millisecond))

	_, err := p.SendAndWait(context.Background(), models.ChannelEmail, testSubmission(), 20*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	msg, err := ms.GetLatestOutreach(context.Background(), "17", models.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, models.MessageDrafted, msg.Status, "no sender leaves a draft")

	_, err = p.SendAndWait(context.Background(), models.ChannelEmail, testSubmission(), 5*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, ms.count(), "pending message is reused")
}

func TestProvider_Unavailable(t *testing.T) {
	p := NewProvider(&memStore{}, WithChannels(models.ChannelEmail))

	_, err := p.SendAndWait(context.Background(), models.ChannelSocialDM, testSubmission(), time.Second)
	require.ErrorIs(t, err, triage.ErrProviderUnavailable)

	_, err = p.SendAndWait(context.Background(), models.ChannelEmail, models.Submission{ID: "2"}, time.Second)
	require.ErrorIs(t, err, triage.ErrProviderUnavailable, "no contact on channel")
}

func TestProvider_SendFailure(t *testing.T) {
	ms := &memStore{}
	p := NewProvider(ms, WithSender(&recordingSender{fails: true}))
	_, err := p.SendAndWait(context.Background(), models.ChannelEmail, testSubmission(), time.Second)
	require.Error(t, err)
	assert.Equal(t, 0, ms.count())
}

func TestProvider_WithoutWaiting(t *testing.T) {
	ms := &memStore{}
	p := NewProvider(ms, WithoutWaiting(), WithPollInterval(time.Hour))
	sub := testSubmission()

	out, err := p.SendAndWait(context.Background(), models.ChannelEmail, sub, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, models.OutreachNoResponse, out.State)
	assert.True(t, out.Pending)
	assert.Equal(t, 1, ms.count(), "draft recorded")

	_, err = p.SendAndWait(context.Background(), models.ChannelEmail, sub, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, ms.count(), "pending message is reused")

	ms.reply(sub.ID, models.ChannelEmail, "We do not take bitcoin", "")
	out, err = p.SendAndWait(context.Background(), models.ChannelEmail, sub, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, models.OutreachDenied, out.State)
	assert.False(t, out.Pending)
}
