package scoring

import (
	"fmt"

	"github.com/joescharf/btcmap-triage/internal/config"
	"github.com/joescharf/btcmap-triage/internal/models"
)

// Phase 2 skip reasons recorded on the result.
const (
	SkipNotRequired   = "not required - phase 1 score meets threshold"
	SkipTrustedSource = "not required - trusted source"
	SkipNoContact     = "skipped - no contact info"
)

// ChannelWeight returns the confirmation bonus configured for a channel.
func ChannelWeight(cfg config.Config, ch models.Channel) int {
	switch ch {
	case models.ChannelEmail:
		return cfg.Phase2Weights.Email
	case models.ChannelSocialDM:
		return cfg.Phase2Weights.SocialDM
	default:
		return 0
	}
}

// OutcomeBonus returns the signed contribution of one outreach state.
func OutcomeBonus(cfg config.Config, ch models.Channel, state models.OutreachState) int {
	switch state {
	case models.OutreachConfirmed:
		return ChannelWeight(cfg, ch)
	case models.OutreachDenied:
		return -cfg.DenialPenalty
	default:
		return 0
	}
}

func channelLabel(ch models.Channel) string {
	switch ch {
	case models.ChannelEmail:
		return "email"
	case models.ChannelSocialDM:
		return "social DM"
	default:
		return string(ch)
	}
}

// ScorePhase2 sums the outreach outcomes into a bonus. The sum is not clamped;
// the final clamp happens in Decide.
func ScorePhase2(outcomes []models.OutreachOutcome, cfg config.Config) models.Phase2Result {
	result := models.Phase2Result{}
	for _, o := range outcomes {
		o.Bonus = OutcomeBonus(cfg, o.Channel, o.State)
		result.Bonus += o.Bonus

		switch o.State {
		case models.OutreachDenied:
			result.FlagForRemoval = true
		case models.OutreachUnavailable:
			result.ActionItems = append(result.ActionItems,
				fmt.Sprintf("Agent lacks outreach capability for %s: contact the merchant manually", channelLabel(o.Channel)))
		case models.OutreachNoResponse:
			if o.Pending {
				result.ActionItems = append(result.ActionItems,
					fmt.Sprintf("Waiting for %s response", channelLabel(o.Channel)))
				break
			}
			result.ActionItems = append(result.ActionItems,
				fmt.Sprintf("No %s response received before timeout", channelLabel(o.Channel)))
		}
		result.Outcomes = append(result.Outcomes, o)
	}
	return result
}

// SkippedPhase2 records that Phase 2 did not run and why.
func SkippedPhase2(reason string) models.Phase2Result {
	return models.Phase2Result{Skipped: true, SkipReason: reason}
}
