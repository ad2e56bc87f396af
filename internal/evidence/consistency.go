package evidence

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/joescharf/btcmap-triage/internal/models"
	"github.com/joescharf/btcmap-triage/internal/triage"
)

var (
	hoursRe = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^24/7$`),
		regexp.MustCompile(`(?i)\b(mo|tu|we|th|fr|sa|su|ph)\b`),
		regexp.MustCompile(`\d{1,2}:\d{2}\s*-\s*\d{1,2}:\d{2}`),
		regexp.MustCompile(`(?i)\d{1,2}\s*(am|pm)\s*(to|-)\s*\d{1,2}\s*(am|pm)`),
	}
	phoneCharsRe = regexp.MustCompile(`^\+?[\d\s\-().]+$`)
)

// ConsistencyProvider validates the submission's own fields. It never calls
// out and never fails.
type ConsistencyProvider struct{}

func (ConsistencyProvider) Category() models.Category { return models.CategoryConsistency }

func (ConsistencyProvider) Check(_ context.Context, sub models.Submission) (models.Evidence, error) {
	return models.Evidence{
		Category: models.CategoryConsistency,
		Status:   models.EvidenceOK,
		Consistency: &models.ConsistencyEvidence{
			AddressValid:     ValidAddress(sub.Address),
			PhoneValid:       ValidPhone(sub.Phone),
			HoursValid:       ValidHours(sub.OpeningHours),
			CoordinatesValid: sub.Location != nil && sub.Location.Valid() && (sub.Location.Lat != 0 || sub.Location.Lon != 0),
			CategoryValid:    ValidCategory(sub.Category),
		},
	}, nil
}

// ValidAddress wants something longer than a placeholder that contains letters.
func ValidAddress(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) >= 5 && strings.IndexFunc(s, unicode.IsLetter) >= 0
}

// ValidPhone accepts 7 to 15 digits with common separators.
func ValidPhone(s string) bool {
	s = strings.TrimSpace(s)
	if !phoneCharsRe.MatchString(s) {
		return false
	}
	digits := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits >= 7 && digits <= 15
}

// ValidHours accepts OSM opening_hours style values and simple am/pm ranges.
func ValidHours(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, re := range hoursRe {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// ValidCategory wants a short word-like category.
func ValidCategory(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 64 {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsSpace(r) || r == '_' || r == '-' || r == '&' || r == '/')
	}) < 0
}

var _ triage.EvidenceProvider = ConsistencyProvider{}
