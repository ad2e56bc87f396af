// Package outreach drafts verification requests to merchants, records them,
// and waits for a reviewer to record the merchant's reply.
package outreach

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/joescharf/btcmap-triage/internal/models"
)

const emailTemplate = `Dear {{.Name}} Team,

I'm writing to verify information about your business for BTC Map (https://btcmap.org), a community-driven project that maps businesses accepting Bitcoin worldwide.

We have received a submission indicating that {{.Name}}{{with .Address}} ({{.}}){{end}} accepts Bitcoin payments. To make sure our data is accurate, we would appreciate your confirmation:

Do you currently accept Bitcoin as a form of payment?

If yes, we would also appreciate knowing:
- Do you accept on-chain Bitcoin payments?
- Do you accept Lightning Network payments?
- Is a companion app required for payment?

If you do NOT currently accept Bitcoin, please let us know so we can update our records.

Thank you for your time!

Best regards,
BTC Map Verification Team

---
This is an automated verification request. Please reply to confirm or correct the information.
{{- if .IssueNumber}}
Issue Reference: #{{.IssueNumber}}
{{- end}}
`

const dmTemplate = `Hi {{.Name}}! We're updating BTC Map (btcmap.org) and have a report that you accept Bitcoin{{with .Address}} at {{.}}{{end}}. Could you confirm whether you take Bitcoin or Lightning today? A quick yes or no is perfect. Thanks!`

var (
	emailTmpl = template.Must(template.New("email").Parse(emailTemplate))
	dmTmpl    = template.Must(template.New("dm").Parse(dmTemplate))
)

// Draft is a message ready to be sent on one channel.
type Draft struct {
	Channel   models.Channel
	Recipient string
	Subject   string
	Body      string
}

type draftData struct {
	Name        string
	Address     string
	IssueNumber int
}

// DraftMessage renders the verification request for a channel. It fails when
// the submission has no contact for that channel.
func DraftMessage(ch models.Channel, sub models.Submission) (Draft, error) {
	data := draftData{Name: sub.MerchantName, Address: sub.Address, IssueNumber: sub.IssueNumber}
	d := Draft{Channel: ch}

	var tmpl *template.Template
	switch ch {
	case models.ChannelEmail:
		if sub.ContactEmail == "" {
			return Draft{}, fmt.Errorf("no contact email for %s", sub.ID)
		}
		d.Recipient = sub.ContactEmail
		d.Subject = "Verification Request: " + sub.MerchantName
		tmpl = emailTmpl
	case models.ChannelSocialDM:
		r := SocialRecipient(sub)
		if r == "" {
			return Draft{}, fmt.Errorf("no social handle for %s", sub.ID)
		}
		d.Recipient = r
		tmpl = dmTmpl
	default:
		return Draft{}, fmt.Errorf("unknown channel %q", ch)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return Draft{}, fmt.Errorf("render %s draft: %w", ch, err)
	}
	d.Body = buf.String()
	return d, nil
}

// socialPreference orders the platforms a DM is sent on.
var socialPreference = []string{"twitter", "instagram", "facebook", "nostr"}

// SocialRecipient picks the handle a DM goes to, formatted "platform:handle".
func SocialRecipient(sub models.Submission) string {
	for _, p := range socialPreference {
		if h := strings.TrimSpace(sub.SocialHandles[p]); h != "" {
			return p + ":" + h
		}
	}
	var rest []string
	for p, h := range sub.SocialHandles {
		if strings.TrimSpace(h) != "" {
			rest = append(rest, p+":"+h)
		}
	}
	if len(rest) == 0 {
		return ""
	}
	sort.Strings(rest)
	return rest[0]
}
