package models

import "time"

// Channel is an outreach channel.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSocialDM Channel = "social_dm"
)

// OutreachState is the tri-state answer of a merchant plus the "could not ask" case.
type OutreachState string

const (
	OutreachConfirmed   OutreachState = "confirmed"
	OutreachDenied      OutreachState = "denied"
	OutreachNoResponse  OutreachState = "no_response"
	OutreachUnavailable OutreachState = "unavailable"
)

// OutreachOutcome is the result of contacting the merchant on one channel.
type OutreachOutcome struct {
	Channel Channel       `json:"channel"`
	State   OutreachState `json:"state"`
	Bonus   int           `json:"bonus"`
	Detail  string        `json:"detail,omitempty"`
	// Pending marks a message that was recorded but not waited on.
	Pending bool `json:"pending,omitempty"`
}

// Phase2Result aggregates outreach outcomes.
type Phase2Result struct {
	Outcomes       []OutreachOutcome `json:"outcomes,omitempty"`
	Bonus          int               `json:"bonus"`
	FlagForRemoval bool              `json:"flag_for_removal"`
	Skipped        bool              `json:"skipped"`
	SkipReason     string            `json:"skip_reason,omitempty"`
	ActionItems    []string          `json:"action_items,omitempty"`
}

// Outcome returns the outcome for a channel, if one was recorded.
func (p Phase2Result) Outcome(c Channel) (OutreachOutcome, bool) {
	for _, o := range p.Outcomes {
		if o.Channel == c {
			return o, true
		}
	}
	return OutreachOutcome{}, false
}

// OutreachMessageStatus tracks a stored outreach message.
type OutreachMessageStatus string

const (
	MessageDrafted OutreachMessageStatus = "drafted"
	MessageSent    OutreachMessageStatus = "sent"
	MessageReplied OutreachMessageStatus = "replied"
)

// OutreachMessage is a persisted outreach attempt and its reply, if any.
type OutreachMessage struct {
	ID           string                `json:"id"`
	SubmissionID string                `json:"submission_id"`
	Channel      Channel               `json:"channel"`
	Recipient    string                `json:"recipient"`
	Subject      string                `json:"subject,omitempty"`
	Body         string                `json:"body"`
	Status       OutreachMessageStatus `json:"status"`
	Reply        string                `json:"reply,omitempty"`
	ReplyState   OutreachState         `json:"reply_state,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	RepliedAt    *time.Time            `json:"replied_at,omitempty"`
}
