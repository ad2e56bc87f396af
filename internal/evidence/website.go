// Package evidence holds the evidence providers that do not need a package of
// their own, plus the caching decorator shared by all providers.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/joescharf/btcmap-triage/internal/models"
	"github.com/joescharf/btcmap-triage/internal/triage"
)

const maxPageBytes = 2 << 20

var (
	bitcoinRe = regexp.MustCompile(`(?i)\b(bitcoin|btc|lightning network|lightning payments?|sats|satoshis?)\b|₿`)
	cryptoRe  = regexp.MustCompile(`(?i)\b(crypto|cryptocurrenc(y|ies)|digital currenc(y|ies))\b`)
	denialRe  = regexp.MustCompile(`(?i)\b(no longer|do not|don't|does not|doesn't|cannot|can't|not) (accept|take|support)(ing)? (bitcoin|btc|crypto|cryptocurrency)\b|\b(bitcoin|btc|crypto) (is )?not accepted\b`)
)

// Keywords is the result of scanning page text for payment mentions.
type Keywords struct {
	Bitcoin bool
	Crypto  bool
	Denial  bool
}

// ScanText looks for Bitcoin, generic crypto and explicit denial phrases.
func ScanText(text string) Keywords {
	return Keywords{
		Bitcoin: bitcoinRe.MatchString(text),
		Crypto:  cryptoRe.MatchString(text),
		Denial:  denialRe.MatchString(text),
	}
}

// WebsiteProvider fetches the merchant website and scans its text.
type WebsiteProvider struct {
	http      *http.Client
	sanitizer *bluemonday.Policy
	userAgent string
}

// NewWebsiteProvider creates the provider. httpClient may be nil.
func NewWebsiteProvider(httpClient *http.Client, userAgent string) *WebsiteProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	if userAgent == "" {
		userAgent = "btcmap-triage"
	}
	return &WebsiteProvider{http: httpClient, sanitizer: bluemonday.StrictPolicy(), userAgent: userAgent}
}

func (p *WebsiteProvider) Category() models.Category { return models.CategoryWebsite }

// Check fetches the site. Unreachable hosts and 4xx responses count as an
// inaccessible site; 5xx responses and timeouts are returned as errors so the
// caller retries them.
func (p *WebsiteProvider) Check(ctx context.Context, sub models.Submission) (models.Evidence, error) {
	ev := models.Evidence{Category: models.CategoryWebsite, Status: models.EvidenceOK, Website: &models.WebsiteEvidence{}}
	if strings.TrimSpace(sub.Website) == "" {
		ev.Note = "no website on submission"
		return ev, nil
	}
	ev.Website.HasURL = true

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sub.Website, nil)
	if err != nil {
		ev.Note = fmt.Sprintf("invalid website URL: %v", err)
		return ev, nil
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := p.http.Do(req)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return models.Evidence{}, fmt.Errorf("fetch %s: %w", sub.Website, err)
		}
		ev.Note = fmt.Sprintf("website unreachable: %v", err)
		return ev, nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return models.Evidence{}, fmt.Errorf("fetch %s: status %d", sub.Website, resp.StatusCode)
	case resp.StatusCode >= 400:
		ev.Note = fmt.Sprintf("website returned %d", resp.StatusCode)
		return ev, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return models.Evidence{}, fmt.Errorf("read %s: %w", sub.Website, err)
	}

	kw := ScanText(p.Text(string(body)))
	ev.Website.Accessible = true
	ev.Website.BitcoinMentioned = kw.Bitcoin && !kw.Denial
	ev.Website.CryptoMentioned = kw.Crypto
	ev.Website.DeniesBitcoin = kw.Denial
	return ev, nil
}

// Text reduces an HTML page to plain text.
func (p *WebsiteProvider) Text(page string) string {
	return html.UnescapeString(p.sanitizer.Sanitize(page))
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

var _ triage.EvidenceProvider = (*WebsiteProvider)(nil)
