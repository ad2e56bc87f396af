// Package scoring turns evidence into bounded confidence scores and verdicts.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/joescharf/btcmap-triage/internal/models"
)

// Scorer maps one category's evidence to a CheckScore bounded by maxWeight.
type Scorer interface {
	Category() models.Category
	Score(ev models.Evidence, maxWeight int) models.CheckScore
}

// pct returns round(w*f), rounding half away from zero.
func pct(w int, f float64) int {
	return int(math.Round(float64(w) * f))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// statusFor derives pass/partial/fail from the share of the weight earned.
func statusFor(score, maxWeight int) models.CheckStatus {
	switch {
	case maxWeight <= 0 || score <= 0:
		return models.CheckFail
	case score*2 >= maxWeight:
		return models.CheckPass
	default:
		return models.CheckPartial
	}
}

func newScore(c models.Category, score, maxWeight int, detail string) models.CheckScore {
	if maxWeight < 0 {
		maxWeight = 0
	}
	score = clamp(score, 0, maxWeight)
	return models.CheckScore{
		Category:  c,
		Score:     score,
		MaxWeight: maxWeight,
		Status:    statusFor(score, maxWeight),
		Detail:    detail,
	}
}

// --- OSM ---

// OSMScorer scores map presence. Absence is common, so it only costs part of the weight.
type OSMScorer struct {
	AbsentMin int
}

func (OSMScorer) Category() models.Category { return models.CategoryOSM }

func (s OSMScorer) Score(ev models.Evidence, w int) models.CheckScore {
	osm := ev.OSMOrZero()
	floor := max(s.AbsentMin, pct(w, 0.25))

	if !osm.Exists {
		return newScore(models.CategoryOSM, floor, w, "not found on OpenStreetMap")
	}

	score := pct(w, 0.5)
	notes := []string{"found on OpenStreetMap"}
	if osm.CoordinatesMatch {
		score += pct(w, 0.15)
		notes = append(notes, "coordinates match")
	}
	if osm.NameMatches {
		score += pct(w, 0.15)
		notes = append(notes, "name matches")
	}
	if osm.HasBitcoinTag {
		score += pct(w, 0.2)
		notes = append(notes, "already tagged for Bitcoin")
	}
	if osm.CoordinatesMatch && osm.NameMatches && osm.HasBitcoinTag {
		score = w
	}
	return newScore(models.CategoryOSM, max(score, floor), w, strings.Join(notes, ", "))
}

// --- Website ---

// WebsiteScorer scores what the merchant website says about Bitcoin.
type WebsiteScorer struct{}

func (WebsiteScorer) Category() models.Category { return models.CategoryWebsite }

func (WebsiteScorer) Score(ev models.Evidence, w int) models.CheckScore {
	site := ev.WebsiteOrZero()
	if !site.HasURL {
		return newScore(models.CategoryWebsite, 0, w, "no website provided")
	}
	if !site.Accessible {
		return newScore(models.CategoryWebsite, pct(w, 0.08), w, "website listed but not accessible")
	}

	base := int(math.Round(float64(w) / 6))
	remaining := w - base
	switch {
	case site.BitcoinMentioned:
		return newScore(models.CategoryWebsite, base+remaining, w, "website mentions Bitcoin")
	case site.CryptoMentioned:
		return newScore(models.CategoryWebsite, base+pct(remaining, 0.6), w, "website mentions cryptocurrency but not Bitcoin")
	default:
		return newScore(models.CategoryWebsite, base+pct(remaining, 0.1), w, "website accessible, no payment mention")
	}
}

// --- Social ---

// SocialScorer scores social media presence and activity.
type SocialScorer struct{}

func (SocialScorer) Category() models.Category { return models.CategorySocial }

func (SocialScorer) Score(ev models.Evidence, w int) models.CheckScore {
	social := ev.SocialOrZero()
	if !social.HasAccount {
		return newScore(models.CategorySocial, 0, w, "no social account found")
	}

	account := pct(w, 0.5)
	active := pct(w, 0.25)
	score := account
	notes := []string{"account found"}
	if social.IsActive {
		score += active
		notes = append(notes, "recently active")
	}
	if social.BitcoinPosts {
		// Bitcoin-specific posts earn whatever the account and activity terms leave.
		score += max(w-account-active, 0)
		notes = append(notes, "posts about Bitcoin")
	}
	return newScore(models.CategorySocial, score, w, strings.Join(notes, ", "))
}

// --- Cross-reference ---

// CrossRefScorer scores listings on other platforms.
type CrossRefScorer struct{}

func (CrossRefScorer) Category() models.Category { return models.CategoryCrossRef }

func (CrossRefScorer) Score(ev models.Evidence, w int) models.CheckScore {
	xref := ev.CrossRefOrZero()

	var score int
	switch {
	case xref.PlatformCount <= 0:
		return newScore(models.CategoryCrossRef, 0, w, "not listed on other platforms")
	case xref.PlatformCount == 1:
		score = pct(w, 0.25)
	case xref.PlatformCount == 2:
		score = pct(w, 0.5)
	default:
		score = pct(w, 0.75)
	}

	detail := fmt.Sprintf("listed on %d platform(s)", xref.PlatformCount)
	if xref.InformationConsistent {
		score += pct(w, 0.25)
		detail += ", information consistent"
	}
	return newScore(models.CategoryCrossRef, score, w, detail)
}

// --- Consistency ---

// Fractions of the consistency weight earned by each valid field.
const (
	consistencyAddress     = 0.25
	consistencyCoordinates = 0.30
	consistencyPhone       = 0.20
	consistencyHours       = 0.15
	consistencyCategory    = 0.10
)

// ConsistencyScorer scores field validity of the submission itself.
type ConsistencyScorer struct{}

func (ConsistencyScorer) Category() models.Category { return models.CategoryConsistency }

func (ConsistencyScorer) Score(ev models.Evidence, w int) models.CheckScore {
	c := ev.ConsistencyOrZero()

	score := 0
	var valid, invalid []string
	add := func(ok bool, name string, frac float64) {
		if ok {
			score += pct(w, frac)
			valid = append(valid, name)
		} else {
			invalid = append(invalid, name)
		}
	}
	add(c.AddressValid, "address", consistencyAddress)
	add(c.CoordinatesValid, "coordinates", consistencyCoordinates)
	add(c.PhoneValid, "phone", consistencyPhone)
	add(c.HoursValid, "hours", consistencyHours)
	add(c.CategoryValid, "category", consistencyCategory)
	if len(invalid) == 0 {
		score = w
	}

	detail := "valid: none"
	if len(valid) > 0 {
		detail = "valid: " + strings.Join(valid, ", ")
	}
	if len(invalid) > 0 {
		detail += "; missing or invalid: " + strings.Join(invalid, ", ")
	}
	return newScore(models.CategoryConsistency, score, w, detail)
}

// --- Registry ---

// Scorers returns the scorer for every category, in report order.
func Scorers(osmAbsentMin int) map[models.Category]Scorer {
	return map[models.Category]Scorer{
		models.CategoryOSM:         OSMScorer{AbsentMin: osmAbsentMin},
		models.CategoryWebsite:     WebsiteScorer{},
		models.CategorySocial:      SocialScorer{},
		models.CategoryCrossRef:    CrossRefScorer{},
		models.CategoryConsistency: ConsistencyScorer{},
	}
}
