package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/btcmap-triage/internal/config"
	"github.com/joescharf/btcmap-triage/internal/evidence"
	"github.com/joescharf/btcmap-triage/internal/models"
	"github.com/joescharf/btcmap-triage/internal/outreach"
	"github.com/joescharf/btcmap-triage/internal/store"
	"github.com/joescharf/btcmap-triage/internal/triage"
)

func strongEvidence() map[models.Category]models.Evidence {
	return map[models.Category]models.Evidence{
		models.CategoryOSM:         {OSM: &models.OSMEvidence{Exists: true, CoordinatesMatch: true, NameMatches: true, HasBitcoinTag: true}},
		models.CategoryWebsite:     {Website: &models.WebsiteEvidence{HasURL: true, Accessible: true, BitcoinMentioned: true}},
		models.CategorySocial:      {Social: &models.SocialEvidence{HasAccount: true, IsActive: true, BitcoinPosts: true}},
		models.CategoryCrossRef:    {CrossRef: &models.CrossRefEvidence{PlatformCount: 3, InformationConsistent: true}},
		models.CategoryConsistency: {Consistency: &models.ConsistencyEvidence{AddressValid: true, PhoneValid: true, HoursValid: true, CoordinatesValid: true, CategoryValid: true}},
	}
}

func setupTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	p := triage.NewPipeline(evidence.Static(strongEvidence()))
	srv := NewServer(s, p, config.Default(), nil)
	return srv, s
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthzAndConfig(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	w := do(t, router, "GET", "/api/v1/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, "GET", "/api/v1/config", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var cfg config.Config
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, 30, cfg.Weights.OSM)
}

func TestListVerdicts_Empty(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv.Router(), "GET", "/api/v1/verdicts", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestTriage_Submission(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	body := `{"submission":{"id":"5","merchant_name":"Satoshi Cafe","location":{"lat":47.37,"lon":8.54}}}`
	w := do(t, router, "POST", "/api/v1/triage", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var v models.Verdict
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, 100, v.FinalScore)
	assert.Equal(t, models.RecommendApprove, v.Recommendation)
	assert.NotEmpty(t, v.ID)

	// Stored and retrievable by verdict and submission ID
	for _, id := range []string{v.ID, "5"} {
		w = do(t, router, "GET", "/api/v1/verdicts/"+id, "")
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w = do(t, router, "GET", "/api/v1/verdicts/5/explain", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Confidence Score Breakdown")

	w = do(t, router, "GET", "/api/v1/verdicts?recommendation=approve", "")
	var list []models.Verdict
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = do(t, router, "GET", "/api/v1/verdicts?recommendation=needs_review", "")
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestTriage_Issue(t *testing.T) {
	srv, _ := setupTestServer(t)

	body := `{"issue":{"number":12,"title":"Corner Shop","body":"Merchant name: Corner Shop\nLat: 51.5\nLong: -0.12\n"}}`
	w := do(t, srv.Router(), "POST", "/api/v1/triage", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var v models.Verdict
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, "12", v.SubmissionID)
	assert.Equal(t, "Corner Shop", v.MerchantName)
}

func TestTriage_Errors(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	tests := []struct {
		name string
		body string
		code int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"empty", `{}`, http.StatusBadRequest},
		{"no id", `{"submission":{"merchant_name":"x"}}`, http.StatusBadRequest},
		{"malformed", `{"submission":{"id":"9","merchant_name":""}}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", "/api/v1/triage", tt.body)
			assert.Equal(t, tt.code, w.Code)
		})
	}

	w := do(t, router, "POST", "/api/v1/triage", `{"submission":{"id":"9"}}`)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp["problems"], 2)
}

func TestGetVerdict_NotFound(t *testing.T) {
	srv, _ := setupTestServer(t)
	w := do(t, srv.Router(), "GET", "/api/v1/verdicts/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOutreachReply(t *testing.T) {
	srv, s := setupTestServer(t)
	router := srv.Router()
	ctx := context.Background()

	w := do(t, router, "POST", "/api/v1/outreach/3/reply", `{"channel":"email","text":"yes"}`)
	assert.Equal(t, http.StatusNotFound, w.Code, "no message to reply to")

	require.NoError(t, s.CreateOutreachMessage(ctx, &models.OutreachMessage{SubmissionID: "3", Channel: models.ChannelEmail, Body: "?"}))

	w = do(t, router, "POST", "/api/v1/outreach/3/reply", `{"channel":"fax","text":"yes"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, router, "POST", "/api/v1/outreach/3/reply", `{"state":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, router, "POST", "/api/v1/outreach/3/reply", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, "POST", "/api/v1/outreach/3/reply", `{"text":"Yes we do!","state":"confirmed"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, "GET", "/api/v1/outreach/3", "")
	var msgs []models.OutreachMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, models.OutreachConfirmed, msgs[0].ReplyState)
	assert.Equal(t, "Yes we do!", msgs[0].Reply)
}

func TestCORS(t *testing.T) {
	srv, _ := setupTestServer(t)
	w := do(t, srv.Router(), "OPTIONS", "/api/v1/verdicts", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestTriage_OutreachDoesNotBlock(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewSQLiteStore(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	weak := map[models.Category]models.Evidence{
		models.CategoryConsistency: {Consistency: &models.ConsistencyEvidence{AddressValid: true, PhoneValid: true}},
	}
	op := outreach.NewProvider(s, outreach.WithoutWaiting(), outreach.WithPollInterval(time.Hour))
	p := triage.NewPipeline(evidence.Static(weak), triage.WithOutreach(op))
	router := NewServer(s, p, config.Default(), nil).Router()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	body := `{"submission":{"id":"9","merchant_name":"Quiet Deli","location":{"lat":52.52,"lon":13.40},"contact_email":"owner@quietdeli.example"}}`
	req := httptest.NewRequest("POST", "/api/v1/triage", bytes.NewBufferString(body)).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var v models.Verdict
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, models.StateFinalized, v.State)
	require.NotNil(t, v.Phase2)
	o, ok := v.Phase2.Outcome(models.ChannelEmail)
	require.True(t, ok)
	assert.Equal(t, models.OutreachNoResponse, o.State)
	assert.True(t, o.Pending)
	assert.Contains(t, v.ActionItems, "Waiting for email response")

	msg, err := s.GetLatestOutreach(context.Background(), "9", models.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, models.MessageDrafted, msg.Status)
}
