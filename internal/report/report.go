// Package report renders the markdown comments posted to submission issues
// and the labels derived from a verdict.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/joescharf/btcmap-triage/internal/models"
	"github.com/joescharf/btcmap-triage/internal/osm"
	"github.com/joescharf/btcmap-triage/internal/scoring"
	"github.com/joescharf/btcmap-triage/internal/triage"
)

const phase1Template = `## Phase 1 Verification Report

**Merchant**: {{.Sub.MerchantName}}  
{{if .Sub.IssueNumber}}**Issue**: #{{.Sub.IssueNumber}}  
{{end}}**Generated**: {{.Generated}}

### Phase 1 Confidence Score: {{.P1.Total}}/{{.P1.MaxAttainable}}
{{- if .P1.TrustedSource}}

Trusted source ({{.P1.TrustedSource}}): outreach is not required.
{{- end}}

#### Automated Checks:

| Check | Status | Score | Detail |
|-------|--------|-------|--------|
{{- range .P1.Checks}}
| {{.Category.Label}} | {{.Status}} | {{.Score}}/{{.MaxWeight}} | {{cell .Detail}} |
{{- end}}

---

{{if .P1.Phase2Required}}*This is an automated Phase 1 report. Phase 2 outreach will follow.*{{else}}*This is an automated Phase 1 report. No outreach is needed.*{{end}}
`

const finalTemplate = `## Final Verification Report

**Merchant**: {{.Sub.MerchantName}}  
{{if .Sub.IssueNumber}}**Issue**: #{{.Sub.IssueNumber}}  
{{end}}**Generated**: {{.Generated}}

{{- if .V.DuplicateOf}}

### Duplicate of #{{.V.DuplicateOf}}
**Recommendation**: {{.V.Recommendation.Headline}}
{{- else}}

### Final Confidence Score: {{.V.FinalScore}}/100 ({{.V.Level}})
**Recommendation**: {{.V.Recommendation.Headline}}
{{- if .V.ReviewRequired}}  
**Human review required**
{{- end}}
{{- with .V.Phase1}}

### Phase 1 Score: {{.Total}}/{{.MaxAttainable}}

| Check | Status | Score |
|-------|--------|-------|
{{- range .Checks}}
| {{.Category.Label}} | {{.Status}} | {{.Score}}/{{.MaxWeight}} |
{{- end}}
{{- end}}
{{- with .V.Phase2}}

### Phase 2 Outreach:
{{- if .Skipped}}
- {{.SkipReason}}
{{- end}}
{{- range .Outcomes}}
- {{channel .Channel}}: {{.State}} ({{printf "%+d" .Bonus}}){{with .Detail}} - {{.}}{{end}}
{{- end}}
{{- end}}
{{- if .V.Conflicts}}

### Conflicts (-{{.V.ConflictPenalty}})
{{- range .V.Conflicts}}
- {{.}}
{{- end}}
{{- end}}
{{- if .V.Reasoning}}

### Reasoning
{{- range .V.Reasoning}}
- {{.}}
{{- end}}
{{- end}}
{{- end}}
{{- if .V.ActionItems}}

### Action Items
{{- range .V.ActionItems}}
- [ ] {{.}}
{{- end}}
{{- end}}
{{- if .ShowMap}}

### Map
- [View location]({{.ViewURL}}) | [Edit in iD]({{.EditURL}})
{{- if .Tags}}
- Suggested tags:
` + "```" + `
{{- range .Tags}}
{{.}}
{{- end}}
` + "```" + `
{{- end}}
{{- end}}

---

*Verification complete.*
`

var funcs = template.FuncMap{
	"cell": func(s string) string {
		return strings.ReplaceAll(strings.ReplaceAll(s, "|", "\\|"), "\n", " ")
	},
	"channel": func(c models.Channel) string {
		if c == models.ChannelEmail {
			return "Email Verification"
		}
		return "Social DM"
	},
}

var (
	phase1Tmpl = template.Must(template.New("phase1").Funcs(funcs).Parse(phase1Template))
	finalTmpl  = template.Must(template.New("final").Funcs(funcs).Parse(finalTemplate))
)

// Labels applied to issues by recommendation.
const (
	LabelApprove       = "triage:approve"
	LabelApproveNotes  = "triage:approve-with-notes"
	LabelNeedsReview   = "triage:needs-review"
	LabelReject        = "triage:reject-or-more-info"
	LabelFlagRemoval   = "triage:flag-for-removal"
	LabelDuplicate     = "duplicate"
	LabelReviewPending = "needs-human-review"
)

// Reporter renders issue comments. It implements triage.Reporter.
type Reporter struct {
	now func() time.Time
}

// New creates a Reporter.
func New() *Reporter {
	return &Reporter{now: time.Now}
}

func (r *Reporter) generated() string {
	return r.now().UTC().Format("2006-01-02 15:04:05 UTC")
}

// Phase1 renders the report posted after automated checks.
func (r *Reporter) Phase1(sub models.Submission, p1 models.Phase1Result) (string, error) {
	var buf bytes.Buffer
	err := phase1Tmpl.Execute(&buf, map[string]any{
		"Sub":       sub,
		"P1":        p1,
		"Generated": r.generated(),
	})
	if err != nil {
		return "", fmt.Errorf("render phase 1 report: %w", err)
	}
	return buf.String(), nil
}

// Final renders the report posted once the verdict is finalized.
func (r *Reporter) Final(sub models.Submission, v *models.Verdict) (string, error) {
	data := map[string]any{
		"Sub":       sub,
		"V":         v,
		"Generated": r.generated(),
		"ShowMap":   false,
	}
	if sub.Location != nil && v.DuplicateOf == "" {
		data["ShowMap"] = true
		data["ViewURL"] = osm.ViewURL(*sub.Location)
		data["EditURL"] = osm.EditURL(*sub.Location)
		if v.Recommendation == models.RecommendApprove || v.Recommendation == models.RecommendApproveWithNotes {
			data["Tags"] = osm.SuggestTags(sub, r.now())
		}
	}

	var buf bytes.Buffer
	if err := finalTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render final report: %w", err)
	}
	return buf.String(), nil
}

// Labels returns the issue labels for a verdict.
func (r *Reporter) Labels(v *models.Verdict) []string {
	var labels []string
	switch v.Recommendation {
	case models.RecommendApprove:
		labels = append(labels, LabelApprove)
	case models.RecommendApproveWithNotes:
		labels = append(labels, LabelApproveNotes)
	case models.RecommendNeedsReview:
		labels = append(labels, LabelNeedsReview)
	case models.RecommendRejectOrMoreInfo:
		labels = append(labels, LabelReject)
	case models.RecommendFlagForRemoval:
		labels = append(labels, LabelFlagRemoval)
	case models.RecommendDuplicate:
		labels = append(labels, LabelDuplicate)
	}
	if v.ReviewRequired && v.Recommendation != models.RecommendNeedsReview {
		labels = append(labels, LabelReviewPending)
	}
	return labels
}

// Explain returns the plain-text score breakdown of a verdict.
func Explain(v *models.Verdict) string {
	return scoring.Explain(*v)
}

var _ triage.Reporter = (*Reporter)(nil)
