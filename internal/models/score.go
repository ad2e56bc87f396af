package models

// CheckStatus summarizes how a single check went.
type CheckStatus string

const (
	CheckPass         CheckStatus = "pass"
	CheckPartial      CheckStatus = "partial"
	CheckFail         CheckStatus = "fail"
	CheckSkippedError CheckStatus = "skipped_error"
	CheckTrusted      CheckStatus = "trusted"
)

// CheckScore is the bounded point value one scorer assigned to one category.
type CheckScore struct {
	Category  Category    `json:"category"`
	Score     int         `json:"score"`
	MaxWeight int         `json:"max_weight"`
	Status    CheckStatus `json:"status"`
	Detail    string      `json:"detail"`
}

// Phase1Result aggregates the five automated checks.
type Phase1Result struct {
	Checks         []CheckScore `json:"checks"`
	Total          int          `json:"total"`
	MaxAttainable  int          `json:"max_attainable"`
	Phase2Required bool         `json:"phase2_required"`
	TrustedSource  string       `json:"trusted_source,omitempty"`
	Skipped        []Category   `json:"skipped,omitempty"`
}

// Check returns the score for a category, if present.
func (p Phase1Result) Check(c Category) (CheckScore, bool) {
	for _, cs := range p.Checks {
		if cs.Category == c {
			return cs, true
		}
	}
	return CheckScore{}, false
}

// Sum returns the plain sum of all check scores.
func (p Phase1Result) Sum() int {
	total := 0
	for _, cs := range p.Checks {
		total += cs.Score
	}
	return total
}
