package scoring

import (
	"fmt"
	"slices"

	"github.com/joescharf/btcmap-triage/internal/config"
	"github.com/joescharf/btcmap-triage/internal/models"
)

// WeightFor returns the configured max weight of a category.
func WeightFor(cfg config.Config, c models.Category) int {
	switch c {
	case models.CategoryOSM:
		return cfg.Weights.OSM
	case models.CategoryWebsite:
		return cfg.Weights.Website
	case models.CategorySocial:
		return cfg.Weights.Social
	case models.CategoryCrossRef:
		return cfg.Weights.CrossRef
	case models.CategoryConsistency:
		return cfg.Weights.Consistency
	default:
		return 0
	}
}

// TrustedLabel returns the first submission label recognized as a trusted source.
func TrustedLabel(sub models.Submission, cfg config.Config) string {
	for _, l := range sub.TrustLabels {
		if cfg.IsTrustedLabel(l) {
			return l
		}
	}
	return ""
}

// ScorePhase1 scores every category and aggregates the Phase 1 total.
//
// A category whose evidence has status error is excluded from the sum and its
// weight is removed from MaxAttainable. Missing categories score as the weakest
// evidence. A trusted-source label forces the website score to its maximum,
// floors the total at TrustedSourceFloor and makes Phase 2 unnecessary.
func ScorePhase1(sub models.Submission, evidence map[models.Category]models.Evidence, cfg config.Config) models.Phase1Result {
	scorers := Scorers(cfg.OSMAbsentMin)
	trusted := TrustedLabel(sub, cfg)

	result := models.Phase1Result{MaxAttainable: 100}
	for _, c := range models.Categories {
		w := WeightFor(cfg, c)
		ev, ok := evidence[c]
		if !ok {
			ev = models.MissingEvidence(c, "no evidence collected")
		}

		if c == models.CategoryWebsite && trusted != "" {
			result.Checks = append(result.Checks, models.CheckScore{
				Category:  c,
				Score:     w,
				MaxWeight: w,
				Status:    models.CheckTrusted,
				Detail:    fmt.Sprintf("Bitcoin acceptance established by trusted source %q", trusted),
			})
			continue
		}

		if ev.Status == models.EvidenceError {
			result.Checks = append(result.Checks, models.CheckScore{
				Category:  c,
				Score:     0,
				MaxWeight: w,
				Status:    models.CheckSkippedError,
				Detail:    "skipped - provider error: " + ev.Note,
			})
			result.Skipped = append(result.Skipped, c)
			result.MaxAttainable -= w
			continue
		}

		cs := scorers[c].Score(ev, w)
		if ev.Status == models.EvidenceMissing || ev.Status == models.EvidenceUnavailable {
			if ev.Note != "" {
				cs.Detail += " (" + ev.Note + ")"
			}
		}
		result.Checks = append(result.Checks, cs)
	}

	result.Total = clamp(result.Sum(), 0, 100)
	if trusted != "" {
		result.TrustedSource = trusted
		result.Total = clamp(max(result.Total, cfg.TrustedSourceFloor), 0, 100)
	}
	result.Phase2Required = result.Total < cfg.Phase1Threshold && trusted == ""
	return result
}

// IsSkipped reports whether the category was excluded because its provider failed.
func IsSkipped(p models.Phase1Result, c models.Category) bool {
	return slices.Contains(p.Skipped, c)
}
