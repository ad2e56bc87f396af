package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/btcmap-triage/internal/models"
)

const strongScoreFile = `submission:
  id: "101"
  issue_number: 101
  merchant_name: Satoshi Coffee
  location: {lat: 40.7128, lon: -74.0060}
evidence:
  osm: {osm: {exists: true, coordinates_match: true, name_matches: true, has_bitcoin_tag: true}}
  website: {website: {has_url: true, accessible: true, bitcoin_mentioned: true}}
  social: {social: {has_account: true, is_active: true, bitcoin_posts: true}}
  crossref: {crossref: {platform_count: 3, information_consistent: true}}
  consistency: {consistency: {address_valid: true, phone_valid: true, hours_valid: true, coordinates_valid: true, category_valid: true}}
`

const deniedScoreFile = `submission:
  id: "202"
  merchant_name: Corner Bakery
  location: {lat: 51.5072, lon: -0.1276}
  contact_email: owner@cornerbakery.example
evidence:
  crossref: {crossref: {platform_count: 1}}
outreach:
  email: denied
`

// cmdEnv extends testEnv with an isolated database and captured output.
func cmdEnv(t *testing.T) (string, *bytes.Buffer) {
	t.Helper()
	dir := testEnv(t)
	dataStore = nil
	t.Cleanup(func() {
		if dataStore != nil {
			_ = dataStore.Close()
			dataStore = nil
		}
	})
	return dir, ui.Out.(*bytes.Buffer)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func resetScoreFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		scoreJSON = false
		scoreSave = false
	})
}

func TestScoreRun_Breakdown(t *testing.T) {
	dir, out := cmdEnv(t)
	resetScoreFlags(t)

	path := writeFile(t, dir, "strong.yaml", strongScoreFile)
	require.NoError(t, scoreRun(context.Background(), path))

	assert.Contains(t, out.String(), "Confidence Score Breakdown")
	assert.Contains(t, out.String(), "100")
}

func TestScoreRun_JSONAndSave(t *testing.T) {
	dir, out := cmdEnv(t)
	resetScoreFlags(t)
	scoreJSON = true
	scoreSave = true

	path := writeFile(t, dir, "strong.yaml", strongScoreFile)
	require.NoError(t, scoreRun(context.Background(), path))

	var v models.Verdict
	require.NoError(t, json.Unmarshal(out.Bytes(), &v))
	assert.Equal(t, 100, v.FinalScore)
	assert.Equal(t, models.LevelHigh, v.Level)
	assert.Equal(t, models.RecommendApprove, v.Recommendation)

	s, err := getStore()
	require.NoError(t, err)
	saved, err := s.GetVerdict(context.Background(), "101")
	require.NoError(t, err)
	assert.Equal(t, v.ID, saved.ID)
}

func TestScoreRun_RecordedDenial(t *testing.T) {
	dir, out := cmdEnv(t)
	resetScoreFlags(t)
	scoreJSON = true

	path := writeFile(t, dir, "denied.yaml", deniedScoreFile)
	require.NoError(t, scoreRun(context.Background(), path))

	var v models.Verdict
	require.NoError(t, json.Unmarshal(out.Bytes(), &v))
	assert.True(t, v.FlagForRemoval)
	assert.Equal(t, models.RecommendFlagForRemoval, v.Recommendation)
	require.NotNil(t, v.Phase2)
	o, ok := v.Phase2.Outcome(models.ChannelEmail)
	require.True(t, ok)
	assert.Equal(t, models.OutreachDenied, o.State)
}

func TestScoreRun_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "unknown category", content: "submission: {id: \"1\", merchant_name: X, location: {lat: 1, lon: 1}}\nevidence:\n  yelp: {}\n", wantErr: "unknown evidence category"},
		{name: "malformed submission", content: "submission: {id: \"1\"}\n", wantErr: "merchant"},
		{name: "invalid yaml", content: "submission: [\n", wantErr: "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, _ := cmdEnv(t)
			resetScoreFlags(t)
			path := writeFile(t, dir, "bad.yaml", tt.content)

			err := scoreRun(context.Background(), path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestScoreRun_InvalidConfig(t *testing.T) {
	dir, _ := cmdEnv(t)
	resetScoreFlags(t)
	viper.Set("weights.osm", 50)

	path := writeFile(t, dir, "strong.yaml", strongScoreFile)
	err := scoreRun(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum to 100")
}

func seedVerdict(t *testing.T, v *models.Verdict) {
	t.Helper()
	s, err := getStore()
	require.NoError(t, err)
	require.NoError(t, s.SaveVerdict(context.Background(), v))
}

func TestVerdictListAndShow(t *testing.T) {
	_, out := cmdEnv(t)
	t.Cleanup(func() { verdictJSON = false })

	require.NoError(t, verdictListRun(context.Background()))
	assert.Contains(t, out.String(), "No verdicts found")
	out.Reset()

	seedVerdict(t, &models.Verdict{
		SubmissionID:   "303",
		IssueNumber:    303,
		MerchantName:   "Lightning Tacos",
		State:          models.StateFinalized,
		FinalScore:     72,
		Level:          models.LevelMedium,
		Recommendation: models.RecommendApproveWithNotes,
		Reasoning:      []string{"Social Media: 5/20 - no recent posts"},
	})

	require.NoError(t, verdictListRun(context.Background()))
	assert.Contains(t, out.String(), "Lightning Tacos")
	assert.Contains(t, out.String(), "#303")
	out.Reset()

	require.NoError(t, verdictShowRun(context.Background(), "303"))
	assert.Contains(t, out.String(), "Lightning Tacos")
	assert.Contains(t, out.String(), "no recent posts")
	out.Reset()

	verdictJSON = true
	require.NoError(t, verdictShowRun(context.Background(), "303"))
	var v models.Verdict
	require.NoError(t, json.Unmarshal(out.Bytes(), &v))
	assert.Equal(t, 72, v.FinalScore)

	err := verdictShowRun(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no verdict")
}

func TestExportRun(t *testing.T) {
	dir, out := cmdEnv(t)
	t.Cleanup(func() {
		exportFormat = "json"
		exportOutput = ""
	})

	seedVerdict(t, &models.Verdict{SubmissionID: "404", IssueNumber: 404, MerchantName: "Node Books", FinalScore: 95, Level: models.LevelHigh, Recommendation: models.RecommendApprove})

	exportFormat = "csv"
	require.NoError(t, exportRun(context.Background()))
	assert.Contains(t, out.String(), "submission_id,issue,merchant")
	assert.Contains(t, out.String(), "404,#404,Node Books")
	out.Reset()

	exportFormat = "markdown"
	exportOutput = filepath.Join(dir, "verdicts.md")
	require.NoError(t, exportRun(context.Background()))
	data, err := os.ReadFile(exportOutput)
	require.NoError(t, err)
	assert.Contains(t, string(data), "| #404 | Node Books | 95 |")

	exportOutput = ""
	exportFormat = "xml"
	assert.Error(t, exportRun(context.Background()))
}

func TestOutreachReplyRun(t *testing.T) {
	_, out := cmdEnv(t)
	t.Cleanup(func() {
		outreachChannel = "email"
		outreachText = ""
		outreachState = ""
		outreachBody = false
	})

	s, err := getStore()
	require.NoError(t, err)
	require.NoError(t, s.CreateOutreachMessage(context.Background(), &models.OutreachMessage{
		SubmissionID: "505",
		Channel:      models.ChannelEmail,
		Recipient:    "owner@example.com",
		Subject:      "Verification Request: Sats Bar",
		Body:         "Do you accept Bitcoin?",
		Status:       models.MessageDrafted,
	}))

	outreachChannel = "email"
	outreachText = "Yes, we take Lightning."
	outreachState = "confirmed"
	require.NoError(t, outreachReplyRun(context.Background(), "505"))
	assert.Contains(t, out.String(), "Recorded email reply")

	msg, err := s.GetLatestOutreach(context.Background(), "505", models.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, models.MessageReplied, msg.Status)
	assert.Equal(t, models.OutreachConfirmed, msg.ReplyState)
	out.Reset()

	outreachBody = true
	require.NoError(t, outreachListRun(context.Background(), "505"))
	assert.Contains(t, out.String(), "owner@example.com")
	assert.Contains(t, out.String(), "Do you accept Bitcoin?")
}

func TestOutreachReplyRun_Errors(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		text    string
		state   string
		wantErr string
	}{
		{name: "unknown channel", channel: "sms", text: "yes", wantErr: "unknown channel"},
		{name: "unknown state", channel: "email", text: "yes", state: "maybe", wantErr: "unknown state"},
		{name: "empty text", channel: "email", text: "  ", wantErr: "empty"},
		{name: "no message", channel: "social_dm", text: "yes", wantErr: "no social_dm outreach message"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmdEnv(t)
			t.Cleanup(func() {
				outreachChannel = "email"
				outreachText = ""
				outreachState = ""
			})
			outreachChannel, outreachText, outreachState = tt.channel, tt.text, tt.state

			err := outreachReplyRun(context.Background(), "606")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunRun_RequiresToken(t *testing.T) {
	cmdEnv(t)

	err := runRun(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gitea.token")
}

func TestNewOutreachProvider(t *testing.T) {
	cmdEnv(t)
	s, err := getStore()
	require.NoError(t, err)

	p, err := newOutreachProvider(s, newLogger())
	require.NoError(t, err)
	assert.Nil(t, p, "outreach is off by default")

	viper.Set("outreach.enabled", true)
	p, err = newOutreachProvider(s, newLogger())
	require.NoError(t, err)
	assert.NotNil(t, p)

	viper.Set("outreach.channels", []string{"carrier-pigeon"})
	_, err = newOutreachProvider(s, newLogger())
	assert.Error(t, err)
}

func TestVerdictNote(t *testing.T) {
	tests := []struct {
		name string
		v    models.Verdict
		want string
	}{
		{name: "duplicate", v: models.Verdict{DuplicateOf: "12"}, want: "duplicate of 12"},
		{name: "denied", v: models.Verdict{FlagForRemoval: true}, want: "merchant denied accepting Bitcoin"},
		{name: "conflict", v: models.Verdict{Conflicts: []string{"website denies Bitcoin"}, ReviewRequired: true}, want: "website denies Bitcoin"},
		{name: "review", v: models.Verdict{ReviewRequired: true}, want: "review required"},
		{name: "clean", v: models.Verdict{}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, verdictNote(&tt.v))
		})
	}
}
