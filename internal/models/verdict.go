package models

import "time"

// State is a node of the per-submission triage state machine.
type State string

const (
	StateNew           State = "NEW"
	StatePhase1Scored  State = "PHASE1_SCORED"
	StatePhase2Pending State = "PHASE2_PENDING"
	StatePhase2Skipped State = "PHASE2_SKIPPED"
	StateFinalized     State = "FINALIZED"
	StateDuplicate     State = "DUPLICATE"
	StateCancelled     State = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateFinalized || s == StateDuplicate || s == StateCancelled
}

// Level is the confidence band of a final score.
type Level string

const (
	LevelHigh    Level = "HIGH"
	LevelMedium  Level = "MEDIUM"
	LevelLow     Level = "LOW"
	LevelVeryLow Level = "VERY_LOW"
)

// Recommendation is the action proposed to the human reviewer.
type Recommendation string

const (
	RecommendApprove          Recommendation = "approve"
	RecommendApproveWithNotes Recommendation = "approve_with_notes"
	RecommendNeedsReview      Recommendation = "needs_review"
	RecommendRejectOrMoreInfo Recommendation = "reject_or_more_info"
	RecommendFlagForRemoval   Recommendation = "flag_for_removal"
	RecommendDuplicate        Recommendation = "duplicate"
)

// Headline returns the long-form recommendation used in reports.
func (r Recommendation) Headline() string {
	switch r {
	case RecommendApprove:
		return "HIGH CONFIDENCE - Recommend Approval"
	case RecommendApproveWithNotes:
		return "MEDIUM CONFIDENCE - Recommend Approval with Notes"
	case RecommendNeedsReview:
		return "LOW CONFIDENCE - Needs Human Review"
	case RecommendRejectOrMoreInfo:
		return "VERY LOW CONFIDENCE - Recommend Rejection or More Info"
	case RecommendFlagForRemoval:
		return "MERCHANT DENIED - Flag for Removal"
	case RecommendDuplicate:
		return "DUPLICATE - Already Tracked"
	default:
		return string(r)
	}
}

// Verdict is the auditable outcome of one triage run.
type Verdict struct {
	ID              string         `json:"id,omitempty"`
	SubmissionID    string         `json:"submission_id"`
	IssueNumber     int            `json:"issue_number,omitempty"`
	MerchantName    string         `json:"merchant_name"`
	State           State          `json:"state"`
	History         []State        `json:"history"`
	Phase1          *Phase1Result  `json:"phase1,omitempty"`
	Phase2          *Phase2Result  `json:"phase2,omitempty"`
	ConflictPenalty int            `json:"conflict_penalty,omitempty"`
	Conflicts       []string       `json:"conflicts,omitempty"`
	FinalScore      int            `json:"final_score"`
	Level           Level          `json:"level,omitempty"`
	Recommendation  Recommendation `json:"recommendation,omitempty"`
	ReviewRequired  bool           `json:"review_required"`
	FlagForRemoval  bool           `json:"flag_for_removal"`
	DuplicateOf     string         `json:"duplicate_of,omitempty"`
	Reasoning       []string       `json:"reasoning,omitempty"`
	ActionItems     []string       `json:"action_items,omitempty"`
	CreatedAt       time.Time      `json:"created_at,omitzero"`
}
