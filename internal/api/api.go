package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/joescharf/btcmap-triage/internal/config"
	"github.com/joescharf/btcmap-triage/internal/models"
	"github.com/joescharf/btcmap-triage/internal/scoring"
	"github.com/joescharf/btcmap-triage/internal/store"
	"github.com/joescharf/btcmap-triage/internal/submission"
	"github.com/joescharf/btcmap-triage/internal/triage"
)

// Server provides the REST API handlers.
type Server struct {
	store    store.Store
	pipeline *triage.Pipeline
	cfg      config.Config
	logger   *slog.Logger
}

// NewServer creates a new API server. logger may be nil.
func NewServer(s store.Store, p *triage.Pipeline, cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: s, pipeline: p, cfg: cfg, logger: logger}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", s.healthz)
		r.Get("/config", s.getConfig)

		r.Post("/triage", s.triageSubmission)

		r.Get("/verdicts", s.listVerdicts)
		r.Get("/verdicts/{id}", s.getVerdict)
		r.Get("/verdicts/{id}/explain", s.explainVerdict)

		r.Get("/outreach/{submission}", s.listOutreach)
		r.Post("/outreach/{submission}/reply", s.recordReply)
	})
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg)
}

// --- Triage ---

// triageRequest carries either a structured submission or a raw issue to parse.
type triageRequest struct {
	Submission *models.Submission `json:"submission,omitempty"`
	Issue      *struct {
		Number int      `json:"number"`
		Title  string   `json:"title"`
		Body   string   `json:"body"`
		Labels []string `json:"labels"`
	} `json:"issue,omitempty"`
}

func (s *Server) triageSubmission(w http.ResponseWriter, r *http.Request) {
	var req triageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	var sub models.Submission
	switch {
	case req.Submission != nil:
		sub = *req.Submission
	case req.Issue != nil:
		sub = submission.Parse(submission.Issue{
			Number: req.Issue.Number,
			Title:  req.Issue.Title,
			Body:   req.Issue.Body,
			Labels: req.Issue.Labels,
		})
	default:
		writeError(w, http.StatusBadRequest, "submission or issue is required")
		return
	}
	if sub.ID == "" {
		writeError(w, http.StatusBadRequest, "submission id is required")
		return
	}

	v, err := s.pipeline.Triage(r.Context(), s.cfg, sub)
	if err != nil {
		var malformed *triage.MalformedSubmissionError
		if errors.As(err, &malformed) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":    err.Error(),
				"problems": malformed.Problems,
			})
			return
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	if err := s.store.SaveVerdict(r.Context(), v); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("triaged submission", "submission", v.SubmissionID, "score", v.FinalScore, "recommendation", v.Recommendation)
	writeJSON(w, http.StatusOK, v)
}

// --- Verdicts ---

func (s *Server) listVerdicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.VerdictListFilter{
		Recommendation: models.Recommendation(q.Get("recommendation")),
		Level:          models.Level(strings.ToUpper(q.Get("level"))),
		SubmissionID:   q.Get("submission"),
		ReviewRequired: q.Get("review") == "true",
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	verdicts, err := s.store.ListVerdicts(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if verdicts == nil {
		verdicts = []*models.Verdict{}
	}
	writeJSON(w, http.StatusOK, verdicts)
}

func (s *Server) loadVerdict(w http.ResponseWriter, r *http.Request) (*models.Verdict, bool) {
	v, err := s.store.GetVerdict(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return v, true
}

func (s *Server) getVerdict(w http.ResponseWriter, r *http.Request) {
	if v, ok := s.loadVerdict(w, r); ok {
		writeJSON(w, http.StatusOK, v)
	}
}

func (s *Server) explainVerdict(w http.ResponseWriter, r *http.Request) {
	v, ok := s.loadVerdict(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, scoring.Explain(*v))
}

// --- Outreach ---

func (s *Server) listOutreach(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.ListOutreach(r.Context(), chi.URLParam(r, "submission"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if msgs == nil {
		msgs = []*models.OutreachMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

type replyRequest struct {
	Channel models.Channel       `json:"channel"`
	Text    string               `json:"text"`
	State   models.OutreachState `json:"state,omitempty"`
}

func (s *Server) recordReply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Channel == "" {
		req.Channel = models.ChannelEmail
	}
	if req.Channel != models.ChannelEmail && req.Channel != models.ChannelSocialDM {
		writeError(w, http.StatusBadRequest, "channel must be email or social_dm")
		return
	}
	switch req.State {
	case "", models.OutreachConfirmed, models.OutreachDenied, models.OutreachNoResponse:
	default:
		writeError(w, http.StatusBadRequest, "state must be confirmed, denied or no_response")
		return
	}
	if strings.TrimSpace(req.Text) == "" && req.State == "" {
		writeError(w, http.StatusBadRequest, "text or state is required")
		return
	}
	if req.Text == "" {
		req.Text = string(req.State)
	}

	msg, err := s.store.RecordOutreachReply(r.Context(), chi.URLParam(r, "submission"), req.Channel, req.Text, req.State)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// ReadHeaderTimeout bounds slow clients on the API listener.
const ReadHeaderTimeout = 10 * time.Second
