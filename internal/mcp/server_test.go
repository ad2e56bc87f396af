package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/btcmap-triage/internal/config"
	"github.com/joescharf/btcmap-triage/internal/evidence"
	"github.com/joescharf/btcmap-triage/internal/models"
	"github.com/joescharf/btcmap-triage/internal/store"
	"github.com/joescharf/btcmap-triage/internal/triage"
)

func weakEvidence() map[models.Category]models.Evidence {
	return map[models.Category]models.Evidence{
		models.CategoryOSM:         {OSM: &models.OSMEvidence{}},
		models.CategoryWebsite:     {Website: &models.WebsiteEvidence{}},
		models.CategorySocial:      {Social: &models.SocialEvidence{}},
		models.CategoryCrossRef:    {CrossRef: &models.CrossRefEvidence{PlatformCount: 1}},
		models.CategoryConsistency: {Consistency: &models.ConsistencyEvidence{CoordinatesValid: true}},
	}
}

func newTestServer(t *testing.T) (*Server, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	p := triage.NewPipeline(evidence.Static(weakEvidence()))
	srv := NewServer(s, p, config.Default(), "test")
	require.NotNil(t, srv)
	return srv, s
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

const manualBody = "Merchant name: Corner Shop\nAddress: 1 High St\nLat: 51.5\nLong: -0.12\n"

func TestMCPServer(t *testing.T) {
	srv, _ := newTestServer(t)
	require.NotNil(t, srv.MCPServer())
}

func TestTriageSubmission_RawIssue(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	res, err := srv.handleTriageSubmission(ctx, callToolReq("triage_submission", map[string]any{
		"issue_number": float64(31),
		"title":        "Corner Shop",
		"body":         manualBody,
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	var v models.Verdict
	resultJSON(t, res, &v)
	assert.Equal(t, "31", v.SubmissionID)
	assert.Equal(t, models.StateFinalized, v.State)
	assert.Equal(t, models.RecommendRejectOrMoreInfo, v.Recommendation)
	assert.NotEmpty(t, v.ID, "verdict is stored")
}

func TestTriageSubmission_JSON(t *testing.T) {
	srv, _ := newTestServer(t)

	res, err := srv.handleTriageSubmission(context.Background(), callToolReq("triage_submission", map[string]any{
		"submission": `{"id":"s1","merchant_name":"Cafe","location":{"lat":1,"lon":2},"trust_labels":["square"]}`,
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	var v models.Verdict
	resultJSON(t, res, &v)
	require.NotNil(t, v.Phase1)
	assert.Equal(t, "square", v.Phase1.TrustedSource)
}

func TestTriageSubmission_Errors(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"nothing", map[string]any{}, "either submission or body is required"},
		{"bad json", map[string]any{"submission": "{"}, "invalid submission JSON"},
		{"no id", map[string]any{"body": manualBody}, "needs an id"},
		{"malformed", map[string]any{"submission": `{"id":"x"}`}, "triage failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := srv.handleTriageSubmission(ctx, callToolReq("triage_submission", tt.args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Contains(t, resultText(t, res), tt.want)
		})
	}
}

func seedVerdict(t *testing.T, s *store.SQLiteStore, subID string, rec models.Recommendation) *models.Verdict {
	t.Helper()
	p1 := models.Phase1Result{
		Checks: []models.CheckScore{{Category: models.CategoryOSM, Score: 8, MaxWeight: 30, Status: models.CheckFail, Detail: "not on map"}},
		Total:  8, MaxAttainable: 100,
	}
	v := &models.Verdict{SubmissionID: subID, MerchantName: "M" + subID, State: models.StateFinalized, Phase1: &p1, FinalScore: 8, Level: models.LevelVeryLow, Recommendation: rec}
	require.NoError(t, s.SaveVerdict(context.Background(), v))
	return v
}

func TestListVerdicts(t *testing.T) {
	srv, s := newTestServer(t)
	seedVerdict(t, s, "1", models.RecommendRejectOrMoreInfo)
	seedVerdict(t, s, "2", models.RecommendNeedsReview)

	res, err := srv.handleListVerdicts(context.Background(), callToolReq("triage_list_verdicts", map[string]any{}))
	require.NoError(t, err)
	var all []map[string]any
	resultJSON(t, res, &all)
	assert.Len(t, all, 2)

	res, err = srv.handleListVerdicts(context.Background(), callToolReq("triage_list_verdicts", map[string]any{"recommendation": "needs_review"}))
	require.NoError(t, err)
	var filtered []map[string]any
	resultJSON(t, res, &filtered)
	require.Len(t, filtered, 1)
	assert.Equal(t, "2", filtered[0]["submission_id"])
}

func TestGetVerdictAndExplain(t *testing.T) {
	srv, s := newTestServer(t)
	v := seedVerdict(t, s, "9", models.RecommendRejectOrMoreInfo)
	ctx := context.Background()

	res, err := srv.handleGetVerdict(ctx, callToolReq("triage_get_verdict", map[string]any{"id": v.ID}))
	require.NoError(t, err)
	var got models.Verdict
	resultJSON(t, res, &got)
	assert.Equal(t, "9", got.SubmissionID)

	res, err = srv.handleExplainScore(ctx, callToolReq("triage_explain_score", map[string]any{"id": "9"}))
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, "Confidence Score Breakdown")
	assert.Contains(t, text, "not on map")

	res, err = srv.handleGetVerdict(ctx, callToolReq("triage_get_verdict", map[string]any{"id": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "verdict not found")

	res, err = srv.handleExplainScore(ctx, callToolReq("triage_explain_score", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
