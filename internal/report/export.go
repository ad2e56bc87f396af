package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/joescharf/btcmap-triage/internal/models"
)

// Formats accepted by Export.
const (
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
)

var csvHeader = []string{"submission_id", "issue", "merchant", "state", "final_score", "level", "recommendation", "review_required", "action_items"}

// Export writes verdicts in the given format.
func Export(w io.Writer, format string, verdicts []*models.Verdict) error {
	switch strings.ToLower(format) {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if verdicts == nil {
			verdicts = []*models.Verdict{}
		}
		return enc.Encode(verdicts)
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
		for _, v := range verdicts {
			row := []string{
				v.SubmissionID,
				issueRef(v),
				v.MerchantName,
				string(v.State),
				strconv.Itoa(v.FinalScore),
				string(v.Level),
				string(v.Recommendation),
				strconv.FormatBool(v.ReviewRequired),
				strings.Join(v.ActionItems, "; "),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	case FormatMarkdown, "md":
		fmt.Fprintln(w, "| Issue | Merchant | Score | Level | Recommendation | Review |")
		fmt.Fprintln(w, "|-------|----------|-------|-------|----------------|--------|")
		for _, v := range verdicts {
			review := ""
			if v.ReviewRequired {
				review = "yes"
			}
			fmt.Fprintf(w, "| %s | %s | %d | %s | %s | %s |\n",
				issueRef(v), strings.ReplaceAll(v.MerchantName, "|", "\\|"), v.FinalScore, v.Level, v.Recommendation, review)
		}
		return nil
	default:
		return fmt.Errorf("unknown export format %q (want json, csv or markdown)", format)
	}
}

func issueRef(v *models.Verdict) string {
	if v.IssueNumber > 0 {
		return "#" + strconv.Itoa(v.IssueNumber)
	}
	return v.SubmissionID
}
