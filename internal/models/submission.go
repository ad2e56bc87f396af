package models

import (
	"fmt"
	"strings"
)

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Valid reports whether both components are within their bounds.
func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// String formats the point the way OSM links do.
func (c Coordinates) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// SubmissionSource identifies the issue template a submission came from.
type SubmissionSource string

const (
	SourceManual  SubmissionSource = "manual"
	SourceSquare  SubmissionSource = "square"
	SourceUnknown SubmissionSource = "unknown"
)

// Submission is a crowd-submitted claim that a merchant accepts Bitcoin.
// It is built once per incoming issue and passed by value through a triage run.
type Submission struct {
	ID             string            `json:"id" yaml:"id"`
	IssueNumber    int               `json:"issue_number,omitempty" yaml:"issue_number"`
	MerchantName   string            `json:"merchant_name" yaml:"merchant_name"`
	Location       *Coordinates      `json:"location,omitempty" yaml:"location"`
	Address        string            `json:"address,omitempty" yaml:"address"`
	Phone          string            `json:"phone,omitempty" yaml:"phone"`
	Category       string            `json:"category,omitempty" yaml:"category"`
	PaymentMethods []string          `json:"payment_methods,omitempty" yaml:"payment_methods"`
	Website        string            `json:"website,omitempty" yaml:"website"`
	SocialHandles  map[string]string `json:"social_handles,omitempty" yaml:"social_handles"`
	ContactEmail   string            `json:"contact_email,omitempty" yaml:"contact_email"`
	OpeningHours   string            `json:"opening_hours,omitempty" yaml:"opening_hours"`
	TrustLabels    []string          `json:"trust_labels,omitempty" yaml:"trust_labels"`
	Source         SubmissionSource  `json:"source,omitempty" yaml:"source"`
}

// HasLabel reports whether the submission carries the given trust label (case-insensitive).
func (s Submission) HasLabel(label string) bool {
	for _, l := range s.TrustLabels {
		if strings.EqualFold(strings.TrimSpace(l), strings.TrimSpace(label)) {
			return true
		}
	}
	return false
}

// HasSocial reports whether at least one non-empty social handle is known.
func (s Submission) HasSocial() bool {
	for _, h := range s.SocialHandles {
		if strings.TrimSpace(h) != "" {
			return true
		}
	}
	return false
}

// ContactChannels returns the outreach channels usable for this submission, in a fixed order.
func (s Submission) ContactChannels() []Channel {
	var channels []Channel
	if strings.TrimSpace(s.ContactEmail) != "" {
		channels = append(channels, ChannelEmail)
	}
	if s.HasSocial() {
		channels = append(channels, ChannelSocialDM)
	}
	return channels
}
