// Package gitea talks to the Gitea REST API where submissions are filed as issues.
package gitea

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/joescharf/btcmap-triage/internal/models"
	"github.com/joescharf/btcmap-triage/internal/submission"
	"github.com/joescharf/btcmap-triage/internal/triage"
)

// DefaultBaseURL is the BTC Map Gitea instance.
const DefaultBaseURL = "https://gitea.btcmap.org"

const defaultPageSize = 50

// APIError is a non-2xx response from Gitea.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gitea %s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Temporary reports whether the request is worth retrying.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Issue is the subset of a Gitea issue the triage tool reads.
type Issue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	HTMLURL   string    `json:"html_url"`
	State     string    `json:"state"`
	Labels    []Label   `json:"labels"`
	Assignees []User    `json:"assignees"`
	CreatedAt time.Time `json:"created_at"`
}

// Label is a Gitea issue label.
type Label struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// User is a Gitea account reference.
type User struct {
	Login string `json:"login"`
}

// Comment is an issue comment.
type Comment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
}

// LabelNames returns the issue's label names.
func (i Issue) LabelNames() []string {
	names := make([]string, 0, len(i.Labels))
	for _, l := range i.Labels {
		names = append(names, l.Name)
	}
	return names
}

// Client is a Gitea API client scoped to one repository ("owner/name").
type Client struct {
	baseURL  string
	repo     string
	token    string
	http     *http.Client
	pageSize int
	attempts int
	delay    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithPageSize sets the issue page size.
func WithPageSize(n int) Option { return func(c *Client) { c.pageSize = n } }

// WithRetry sets attempts and base backoff for temporary failures.
func WithRetry(attempts int, base time.Duration) Option {
	return func(c *Client) { c.attempts, c.delay = attempts, base }
}

// NewClient creates a client. baseURL defaults to DefaultBaseURL.
func NewClient(baseURL, repo, token string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		repo:     repo,
		token:    token,
		http:     &http.Client{Timeout: 30 * time.Second},
		pageSize: defaultPageSize,
		attempts: 3,
		delay:    time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + "/api/v1/repos/" + c.repo + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	backoff := retry.WithMaxRetries(uint64(max(c.attempts, 1)-1), retry.NewExponential(max(c.delay, time.Millisecond)))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, body)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "token "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			err = fmt.Errorf("gitea %s %s: %w", method, path, err)
			// A POST may have been applied before the connection dropped.
			if ctx.Err() != nil || !idempotent(method) {
				return err
			}
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
			if apiErr.Temporary() {
				return retry.RetryableError(apiErr)
			}
			return apiErr
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
		return nil
	})
}

// ListIssues pages through open issues carrying all of labels.
// limit <= 0 returns every matching issue.
func (c *Client) ListIssues(ctx context.Context, labels []string, limit int, skipAssigned bool) ([]Issue, error) {
	var issues []Issue
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("state", "open")
		q.Set("type", "issues")
		q.Set("page", strconv.Itoa(page))
		q.Set("limit", strconv.Itoa(c.pageSize))
		if len(labels) > 0 {
			q.Set("labels", strings.Join(labels, ","))
		}

		var batch []Issue
		if err := c.do(ctx, http.MethodGet, "/issues", q, nil, &batch); err != nil {
			return nil, fmt.Errorf("list issues page %d: %w", page, err)
		}
		for _, is := range batch {
			if skipAssigned && len(is.Assignees) > 0 {
				continue
			}
			issues = append(issues, is)
			if limit > 0 && len(issues) >= limit {
				return issues, nil
			}
		}
		if len(batch) < c.pageSize {
			return issues, nil
		}
	}
}

// Fetch returns open submissions as parsed from their issues.
func (c *Client) Fetch(ctx context.Context, filter triage.IssueFilter) ([]models.Submission, error) {
	issues, err := c.ListIssues(ctx, filter.Labels, filter.Limit, filter.SkipAssigned)
	if err != nil {
		return nil, err
	}
	subs := make([]models.Submission, 0, len(issues))
	for _, is := range issues {
		subs = append(subs, submission.Parse(submission.Issue{
			Number: is.Number,
			Title:  is.Title,
			Body:   is.Body,
			Labels: is.LabelNames(),
		}))
	}
	return subs, nil
}

func issuePath(id string) (string, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(id, "#"))
	if err != nil || n <= 0 {
		return "", fmt.Errorf("invalid issue number %q", id)
	}
	return "/issues/" + strconv.Itoa(n), nil
}

// PostComment adds a markdown comment to an issue.
func (c *Client) PostComment(ctx context.Context, id, text string) error {
	_, err := c.CreateComment(ctx, id, text)
	return err
}

// CreateComment adds a comment and returns it.
func (c *Client) CreateComment(ctx context.Context, id, text string) (*Comment, error) {
	p, err := issuePath(id)
	if err != nil {
		return nil, err
	}
	var cm Comment
	if err := c.do(ctx, http.MethodPost, p+"/comments", nil, map[string]string{"body": text}, &cm); err != nil {
		return nil, fmt.Errorf("post comment: %w", err)
	}
	return &cm, nil
}

// UpdateComment replaces the body of an existing comment.
func (c *Client) UpdateComment(ctx context.Context, commentID int64, text string) error {
	p := "/issues/comments/" + strconv.FormatInt(commentID, 10)
	if err := c.do(ctx, http.MethodPatch, p, nil, map[string]string{"body": text}, nil); err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	return nil
}

// SetLabels replaces an issue's labels by name.
func (c *Client) SetLabels(ctx context.Context, id string, labels []string) error {
	p, err := issuePath(id)
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodPut, p+"/labels", nil, map[string][]string{"labels": labels}, nil); err != nil {
		return fmt.Errorf("set labels: %w", err)
	}
	return nil
}

// Close closes an issue.
func (c *Client) Close(ctx context.Context, id string) error {
	p, err := issuePath(id)
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodPatch, p, nil, map[string]string{"state": "closed"}, nil); err != nil {
		return fmt.Errorf("close issue: %w", err)
	}
	return nil
}

// IsNotFound reports whether err is a 404 from Gitea.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

var _ triage.IssueStore = (*Client)(nil)

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
