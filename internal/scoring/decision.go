package scoring

import (
	"fmt"
	"strings"

	"github.com/joescharf/btcmap-triage/internal/config"
	"github.com/joescharf/btcmap-triage/internal/models"
)

// Action items attached to verdicts.
const (
	ActionPhysicalVerification = "Consider physical verification by local tagger"
	ActionRequestWebsite       = "Request website URL"
	ActionRequestSocial        = "Request social handles"
	ActionRequestContact       = "Request an email address or social handle for outreach"
	ActionFlagForRemoval       = "Remove or untag the location: the merchant denied accepting Bitcoin"
	ActionResolveConflict      = "Resolve conflicting evidence before approving"
)

// LevelFor maps a final score onto a confidence level. Breakpoints are inclusive
// lower bounds.
func LevelFor(score int, t config.Thresholds) models.Level {
	switch {
	case score >= t.High:
		return models.LevelHigh
	case score >= t.Medium:
		return models.LevelMedium
	case score >= t.Low:
		return models.LevelLow
	default:
		return models.LevelVeryLow
	}
}

// RecommendationFor is the level-based recommendation before overrides.
func RecommendationFor(level models.Level) models.Recommendation {
	switch level {
	case models.LevelHigh:
		return models.RecommendApprove
	case models.LevelMedium:
		return models.RecommendApproveWithNotes
	case models.LevelLow:
		return models.RecommendNeedsReview
	default:
		return models.RecommendRejectOrMoreInfo
	}
}

// Decision is the outcome of the decision engine for one submission.
type Decision struct {
	FinalScore     int
	Level          models.Level
	Recommendation models.Recommendation
	ReviewRequired bool
	FlagForRemoval bool
	Reasoning      []string
	ActionItems    []string
}

// Decide combines both phases and the conflict policy into the final score,
// level and recommendation. p2 may be nil when Phase 2 never ran.
func Decide(sub models.Submission, p1 models.Phase1Result, p2 *models.Phase2Result, conflict ConflictResult, cfg config.Config) Decision {
	bonus := 0
	flag := false
	if p2 != nil {
		bonus = p2.Bonus
		flag = p2.FlagForRemoval
	}

	d := Decision{
		FinalScore:     clamp(p1.Total+bonus-conflict.Penalty, 0, 100),
		FlagForRemoval: flag,
	}
	d.Level = LevelFor(d.FinalScore, cfg.Thresholds)
	d.Recommendation = RecommendationFor(d.Level)

	if conflict.Conflicting() {
		d.ReviewRequired = true
		if d.Recommendation == models.RecommendApprove || d.Recommendation == models.RecommendApproveWithNotes {
			d.Recommendation = models.RecommendNeedsReview
		}
	}
	if flag {
		d.Recommendation = models.RecommendFlagForRemoval
		d.ReviewRequired = true
	}
	if d.Recommendation == models.RecommendNeedsReview || len(p1.Skipped) > 0 {
		d.ReviewRequired = true
	}

	d.Reasoning = reasoning(p1, p2, conflict)
	d.ActionItems = actionItems(sub, p1, p2, conflict, d, cfg)
	return d
}

func reasoning(p1 models.Phase1Result, p2 *models.Phase2Result, conflict ConflictResult) []string {
	var out []string
	if p1.TrustedSource != "" {
		out = append(out, fmt.Sprintf("Trusted source %q establishes Bitcoin acceptance", p1.TrustedSource))
	}
	for _, cs := range p1.Checks {
		switch {
		case cs.Status == models.CheckSkippedError:
			out = append(out, fmt.Sprintf("%s: skipped after provider error, excluded from the total (max attainable %d)",
				cs.Category.Label(), p1.MaxAttainable))
		case cs.Score*2 < cs.MaxWeight:
			out = append(out, fmt.Sprintf("%s: %d/%d - %s", cs.Category.Label(), cs.Score, cs.MaxWeight, cs.Detail))
		}
	}
	if p2 != nil {
		if p2.Skipped {
			out = append(out, "Outreach: "+p2.SkipReason)
		}
		for _, o := range p2.Outcomes {
			out = append(out, fmt.Sprintf("Outreach via %s: %s (%+d)", channelLabel(o.Channel), o.State, o.Bonus))
		}
	}
	out = append(out, conflict.Notes...)
	return out
}

func actionItems(sub models.Submission, p1 models.Phase1Result, p2 *models.Phase2Result, conflict ConflictResult, d Decision, cfg config.Config) []string {
	var out []string
	if d.FlagForRemoval {
		out = append(out, ActionFlagForRemoval)
	}
	if conflict.Conflicting() {
		out = append(out, ActionResolveConflict)
	}
	for _, c := range p1.Skipped {
		out = append(out, fmt.Sprintf("Re-run the %s check (provider error)", c.Label()))
	}
	if p2 != nil {
		out = append(out, p2.ActionItems...)
		if p2.Skipped && p2.SkipReason == SkipNoContact {
			out = append(out, ActionRequestContact)
		}
	}

	if d.FinalScore < cfg.Thresholds.Medium && !d.FlagForRemoval {
		out = append(out, ActionPhysicalVerification)
		if cs, ok := p1.Check(models.CategoryWebsite); ok && cs.Score == 0 && cs.Status != models.CheckSkippedError && strings.TrimSpace(sub.Website) == "" {
			out = append(out, ActionRequestWebsite)
		}
		if cs, ok := p1.Check(models.CategorySocial); ok && cs.Score == 0 && cs.Status != models.CheckSkippedError && len(sub.SocialHandles) == 0 {
			out = append(out, ActionRequestSocial)
		}
	}
	return out
}

// Explain renders a plain-text breakdown of how a verdict's score was built.
func Explain(v models.Verdict) string {
	var b strings.Builder
	b.WriteString("Confidence Score Breakdown\n")
	b.WriteString("==========================\n")
	if v.DuplicateOf != "" {
		fmt.Fprintf(&b, "Duplicate of %s; no checks were scored.\n", v.DuplicateOf)
		return b.String()
	}
	if v.Phase1 != nil {
		b.WriteString("\nPhase 1 (automated checks):\n")
		for _, cs := range v.Phase1.Checks {
			fmt.Fprintf(&b, "  %-14s %3d/%-3d %-13s %s\n", cs.Category.Label()+":", cs.Score, cs.MaxWeight, cs.Status, cs.Detail)
		}
		fmt.Fprintf(&b, "  Subtotal: %d/%d\n", v.Phase1.Total, v.Phase1.MaxAttainable)
	}
	if v.Phase2 != nil {
		b.WriteString("\nPhase 2 (outreach):\n")
		if v.Phase2.Skipped {
			fmt.Fprintf(&b, "  %s\n", v.Phase2.SkipReason)
		}
		for _, o := range v.Phase2.Outcomes {
			fmt.Fprintf(&b, "  %-14s %+d (%s)\n", channelLabel(o.Channel)+":", o.Bonus, o.State)
		}
		fmt.Fprintf(&b, "  Bonus: %+d\n", v.Phase2.Bonus)
	}
	if v.ConflictPenalty > 0 {
		fmt.Fprintf(&b, "\nConflict penalty: -%d\n", v.ConflictPenalty)
	}
	fmt.Fprintf(&b, "\nFinal score: %d/100 (%s)\n", v.FinalScore, v.Level)
	fmt.Fprintf(&b, "Recommendation: %s\n", v.Recommendation.Headline())
	return b.String()
}
