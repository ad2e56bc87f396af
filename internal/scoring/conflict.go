package scoring

import (
	"fmt"
	"strings"

	"github.com/joescharf/btcmap-triage/internal/config"
	"github.com/joescharf/btcmap-triage/internal/models"
)

// ConflictResult is the outcome of cross-checking Bitcoin acceptance signals.
type ConflictResult struct {
	Penalty  int
	Positive []string
	Negative []string
	Notes    []string
}

// Conflicting reports whether at least one source affirms and one denies.
func (c ConflictResult) Conflicting() bool {
	return len(c.Positive) > 0 && len(c.Negative) > 0
}

func usable(evidence map[models.Category]models.Evidence, c models.Category) (models.Evidence, bool) {
	ev, ok := evidence[c]
	if !ok || ev.Status != models.EvidenceOK {
		return models.Evidence{}, false
	}
	return ev, true
}

// DetectConflicts finds sources that disagree on Bitcoin acceptance. A
// disagreement costs ConflictPenalty once, however many sources are involved.
// It composes with the denial override rather than replacing it.
func DetectConflicts(evidence map[models.Category]models.Evidence, p1 models.Phase1Result, p2 *models.Phase2Result, cfg config.Config) ConflictResult {
	var res ConflictResult

	if p1.TrustedSource != "" {
		res.Positive = append(res.Positive, "trusted source "+p1.TrustedSource)
	}
	if ev, ok := usable(evidence, models.CategoryOSM); ok {
		if osm := ev.OSMOrZero(); osm.Exists && osm.HasBitcoinTag {
			res.Positive = append(res.Positive, "OSM tag")
		}
	}
	if ev, ok := usable(evidence, models.CategoryWebsite); ok {
		site := ev.WebsiteOrZero()
		if site.Accessible && site.BitcoinMentioned {
			res.Positive = append(res.Positive, "website")
		}
		if site.Accessible && site.DeniesBitcoin {
			res.Negative = append(res.Negative, "website")
		}
	}
	if ev, ok := usable(evidence, models.CategorySocial); ok {
		social := ev.SocialOrZero()
		if social.HasAccount && social.BitcoinPosts {
			res.Positive = append(res.Positive, "social media")
		}
		if social.HasAccount && social.DeniesBitcoin {
			res.Negative = append(res.Negative, "social media")
		}
	}
	if p2 != nil {
		for _, o := range p2.Outcomes {
			switch o.State {
			case models.OutreachConfirmed:
				res.Positive = append(res.Positive, channelLabel(o.Channel)+" outreach")
			case models.OutreachDenied:
				res.Negative = append(res.Negative, channelLabel(o.Channel)+" outreach")
			}
		}
	}

	if res.Conflicting() {
		res.Penalty = cfg.ConflictPenalty
		res.Notes = append(res.Notes, fmt.Sprintf("conflicting evidence on Bitcoin acceptance: %s affirm, %s deny",
			strings.Join(res.Positive, ", "), strings.Join(res.Negative, ", ")))
	}
	return res
}
