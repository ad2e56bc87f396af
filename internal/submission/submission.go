// Package submission extracts structured submissions from issue text.
//
// Two issue templates are understood: the automated Square import
// ("Origin: square") and the manual web form ("Merchant name: ...").
// Parsing is lenient; fields that cannot be read are left empty and
// triage.Validate decides whether the result is usable.
package submission

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/joescharf/btcmap-triage/internal/models"
)

// Issue is the raw tracker issue a submission is parsed from.
type Issue struct {
	Number int
	Title  string
	Body   string
	Labels []string
}

// SquareLabel is the trust label given to Square imports.
const SquareLabel = "square"

var (
	// squareOrigin is the marker line only the Square importer writes.
	squareOrigin = regexp.MustCompile(`(?im)^\s*Origin:\s*square\s*$`)

	osmLinkRe = regexp.MustCompile(`openstreetmap\.org\S*map=\d+/(-?\d+(?:\.\d+)?)/(-?\d+(?:\.\d+)?)`)

	squareFields = map[string]*regexp.Regexp{
		"id":            regexp.MustCompile(`(?i)\bId:\s*(\d+)`),
		"origin":        regexp.MustCompile(`(?i)Origin:\s*(\w+)`),
		"name":          regexp.MustCompile(`(?im)^\s*Name:\s*(.+?)\s*$`),
		"category":      regexp.MustCompile(`(?im)Category:\s*(.+?)\s*$`),
		"address":       regexp.MustCompile(`(?i)"address":\s*"([^"]+)"`),
		"lat":           regexp.MustCompile(`(?i)\blat[=:]\s*(-?\d+\.\d+)`),
		"lon":           regexp.MustCompile(`(?i)\blon[=:]\s*(-?\d+\.\d+)`),
		"opening_hours": regexp.MustCompile(`(?i)"opening_hours":\s*"([^"]+)"`),
		"website":       regexp.MustCompile(`(?i)website[=:]\s*"?(https?://[^\s"]+)`),
		"phone":         regexp.MustCompile(`(?i)"phone":\s*"([^"]+)"`),
		"email":         regexp.MustCompile(`(?i)"email":\s*"([^"@\s]+@[^"\s]+)"`),
	}

	manualFields = map[string]*regexp.Regexp{
		"name":            regexp.MustCompile(`(?im)Merchant name:\s*(.+?)\s*$`),
		"address":         regexp.MustCompile(`(?im)Address:\s*(.+?)\s*(?:Lat:|$)`),
		"lat":             regexp.MustCompile(`(?i)\bLat:\s*(-?\d+\.\d+)`),
		"lon":             regexp.MustCompile(`(?i)\bLong?:\s*(-?\d+\.\d+)`),
		"category":        regexp.MustCompile(`(?im)Category:\s*(.+?)\s*$`),
		"payment_methods": regexp.MustCompile(`(?im)Payment methods:\s*(.+?)\s*$`),
		"website":         regexp.MustCompile(`(?im)Website:\s*(https?://\S+|\S+\.\S+)`),
		"phone":           regexp.MustCompile(`(?im)Phone:\s*([\d\s\-+()]+?)\s*$`),
		"opening_hours":   regexp.MustCompile(`(?im)Opening hours:\s*(.+?)\s*$`),
		"email":           regexp.MustCompile(`(?im)Contact:\s*(\S+@\S+)`),
	}

	socialRe = map[string]*regexp.Regexp{
		"twitter":   regexp.MustCompile(`(?i)\b(?:twitter|x)\.com/@?(\w{1,30})`),
		"instagram": regexp.MustCompile(`(?i)instagram\.com/([\w.]{1,30})`),
		"facebook":  regexp.MustCompile(`(?i)facebook\.com/([\w.]{1,50})`),
		"nostr":     regexp.MustCompile(`(?i)\b(npub1[02-9ac-hj-np-z]{58})\b`),
	}
)

// emptyValues are placeholders the manual form leaves in unanswered fields.
var emptyValues = map[string]bool{"": true, "n/a": true, "na": true, "none": true, "-": true}

// DetectSource reports which template an issue body follows.
func DetectSource(body string) models.SubmissionSource {
	lower := strings.ToLower(body)
	switch {
	case squareOrigin.MatchString(body):
		return models.SourceSquare
	case strings.Contains(lower, "merchant name:"):
		return models.SourceManual
	default:
		return models.SourceUnknown
	}
}

func extract(body string, patterns map[string]*regexp.Regexp) map[string]string {
	fields := make(map[string]string, len(patterns))
	for field, re := range patterns {
		m := re.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		v := strings.TrimSpace(m[1])
		if emptyValues[strings.ToLower(v)] {
			continue
		}
		fields[field] = v
	}
	return fields
}

// Parse converts an issue into a submission.
func Parse(issue Issue) models.Submission {
	sub := models.Submission{
		ID:           strconv.Itoa(issue.Number),
		IssueNumber:  issue.Number,
		MerchantName: strings.TrimSpace(issue.Title),
		TrustLabels:  append([]string(nil), issue.Labels...),
		Source:       DetectSource(issue.Body),
	}

	var fields map[string]string
	switch sub.Source {
	case models.SourceSquare:
		fields = extract(issue.Body, squareFields)
		if !hasLabel(sub.TrustLabels, SquareLabel) {
			sub.TrustLabels = append(sub.TrustLabels, SquareLabel)
		}
	case models.SourceManual:
		fields = extract(issue.Body, manualFields)
	default:
		fields = map[string]string{}
	}

	if name := fields["name"]; name != "" {
		sub.MerchantName = name
	}
	sub.Address = fields["address"]
	sub.Category = fields["category"]
	sub.Phone = fields["phone"]
	sub.OpeningHours = fields["opening_hours"]
	sub.ContactEmail = strings.TrimRight(fields["email"], ".,;")
	sub.Website = NormalizeURL(fields["website"])
	if pm := fields["payment_methods"]; pm != "" {
		sub.PaymentMethods = splitList(pm)
	}

	lat, lon := fields["lat"], fields["lon"]
	if m := osmLinkRe.FindStringSubmatch(issue.Body); m != nil {
		lat, lon = m[1], m[2]
	}
	sub.Location = parseCoordinates(lat, lon)

	for provider, re := range socialRe {
		if m := re.FindStringSubmatch(issue.Body); m != nil {
			if sub.SocialHandles == nil {
				sub.SocialHandles = make(map[string]string)
			}
			sub.SocialHandles[provider] = m[1]
		}
	}
	return sub
}

func parseCoordinates(lat, lon string) *models.Coordinates {
	if lat == "" || lon == "" {
		return nil
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return nil
	}
	return &models.Coordinates{Lat: la, Lon: lo}
}

// NormalizeURL adds an https scheme to bare domains.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return "https://" + raw
	}
	return raw
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '/' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func hasLabel(labels []string, want string) bool {
	for _, l := range labels {
		if strings.EqualFold(l, want) {
			return true
		}
	}
	return false
}
