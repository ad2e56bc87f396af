package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/btcmap-triage/internal/config"
	"github.com/joescharf/btcmap-triage/internal/models"
	"github.com/joescharf/btcmap-triage/internal/scoring"
	"github.com/joescharf/btcmap-triage/internal/store"
	"github.com/joescharf/btcmap-triage/internal/submission"
	"github.com/joescharf/btcmap-triage/internal/triage"
)

// Server exposes triage and stored verdicts as MCP tools.
type Server struct {
	store    store.Store
	pipeline *triage.Pipeline
	cfg      config.Config
	version  string
}

// NewServer creates the MCP server wrapper.
func NewServer(s store.Store, p *triage.Pipeline, cfg config.Config, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{store: s, pipeline: p, cfg: cfg, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("btcmap-triage", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.triageSubmissionTool())
	srv.AddTool(s.listVerdictsTool())
	srv.AddTool(s.getVerdictTool())
	srv.AddTool(s.explainScoreTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.MCPServer())
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// triage_submission
func (s *Server) triageSubmissionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("triage_submission",
		mcp.WithDescription("Score a BTC Map submission and return the verdict (score, level, recommendation, reasoning, action items). Pass either a raw issue (title and body) or a JSON-encoded submission."),
		mcp.WithNumber("issue_number", mcp.Description("Issue number; used as the submission ID for raw issues")),
		mcp.WithString("title", mcp.Description("Issue title (merchant name)")),
		mcp.WithString("body", mcp.Description("Issue body in the Square or manual submission template")),
		mcp.WithString("labels", mcp.Description("Comma-separated issue labels")),
		mcp.WithString("submission", mcp.Description("JSON-encoded submission; takes precedence over title/body")),
	)
	return tool, s.handleTriageSubmission
}

func (s *Server) handleTriageSubmission(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var sub models.Submission
	if raw := request.GetString("submission", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid submission JSON: %v", err)), nil
		}
	} else {
		body := request.GetString("body", "")
		if body == "" {
			return mcp.NewToolResultError("either submission or body is required"), nil
		}
		var labels []string
		for _, l := range strings.Split(request.GetString("labels", ""), ",") {
			if l = strings.TrimSpace(l); l != "" {
				labels = append(labels, l)
			}
		}
		sub = submission.Parse(submission.Issue{
			Number: request.GetInt("issue_number", 0),
			Title:  request.GetString("title", ""),
			Body:   body,
			Labels: labels,
		})
	}
	if sub.ID == "" || sub.ID == "0" {
		return mcp.NewToolResultError("submission needs an id or issue_number"), nil
	}

	v, err := s.pipeline.Triage(ctx, s.cfg, sub)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("triage failed: %v", err)), nil
	}
	if err := s.store.SaveVerdict(ctx, v); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save verdict: %v", err)), nil
	}
	return jsonResult(v)
}

// triage_list_verdicts
func (s *Server) listVerdictsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("triage_list_verdicts",
		mcp.WithDescription("List stored verdicts, newest first. Returns a compact JSON array."),
		mcp.WithString("recommendation", mcp.Description("Filter by recommendation"),
			mcp.Enum("approve", "approve_with_notes", "needs_review", "reject_or_more_info", "flag_for_removal", "duplicate")),
		mcp.WithString("level", mcp.Description("Filter by level"), mcp.Enum("HIGH", "MEDIUM", "LOW", "VERY_LOW")),
		mcp.WithBoolean("review_required", mcp.Description("Only verdicts that need a human reviewer")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of verdicts (default 50)")),
	)
	return tool, s.handleListVerdicts
}

func (s *Server) handleListVerdicts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.VerdictListFilter{
		Recommendation: models.Recommendation(request.GetString("recommendation", "")),
		Level:          models.Level(request.GetString("level", "")),
		ReviewRequired: request.GetBool("review_required", false),
		Limit:          request.GetInt("limit", 50),
	}
	verdicts, err := s.store.ListVerdicts(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list verdicts: %v", err)), nil
	}

	type verdictOut struct {
		ID             string `json:"id"`
		SubmissionID   string `json:"submission_id"`
		Merchant       string `json:"merchant"`
		Score          int    `json:"score"`
		Level          string `json:"level"`
		Recommendation string `json:"recommendation"`
		ReviewRequired bool   `json:"review_required"`
	}
	out := make([]verdictOut, len(verdicts))
	for i, v := range verdicts {
		out[i] = verdictOut{
			ID:             v.ID,
			SubmissionID:   v.SubmissionID,
			Merchant:       v.MerchantName,
			Score:          v.FinalScore,
			Level:          string(v.Level),
			Recommendation: string(v.Recommendation),
			ReviewRequired: v.ReviewRequired,
		}
	}
	return jsonResult(out)
}

// triage_get_verdict
func (s *Server) getVerdictTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("triage_get_verdict",
		mcp.WithDescription("Get a full stored verdict by verdict ID or submission ID (latest verdict)."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Verdict ID or submission ID")),
	)
	return tool, s.handleGetVerdict
}

func (s *Server) lookup(ctx context.Context, request mcp.CallToolRequest) (*models.Verdict, *mcp.CallToolResult) {
	id, err := request.RequireString("id")
	if err != nil {
		return nil, mcp.NewToolResultError("missing required parameter: id")
	}
	v, err := s.store.GetVerdict(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, mcp.NewToolResultError(fmt.Sprintf("verdict not found: %s", id))
	}
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("failed to load verdict: %v", err))
	}
	return v, nil
}

func (s *Server) handleGetVerdict(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v, errResult := s.lookup(ctx, request)
	if errResult != nil {
		return errResult, nil
	}
	return jsonResult(v)
}

// triage_explain_score
func (s *Server) explainScoreTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("triage_explain_score",
		mcp.WithDescription("Explain how a verdict's confidence score was built, check by check."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Verdict ID or submission ID")),
	)
	return tool, s.handleExplainScore
}

func (s *Server) handleExplainScore(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v, errResult := s.lookup(ctx, request)
	if errResult != nil {
		return errResult, nil
	}
	return mcp.NewToolResultText(scoring.Explain(*v)), nil
}
