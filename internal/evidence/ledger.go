package evidence

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/btcmap-triage/internal/models"
	"github.com/joescharf/btcmap-triage/internal/triage"
)

// SocialRecord is what a reviewer found on the merchant's social accounts.
type SocialRecord struct {
	HasAccount    bool       `yaml:"has_account"`
	LastPost      *time.Time `yaml:"last_post,omitempty"`
	BitcoinPosts  bool       `yaml:"bitcoin_posts"`
	DeniesBitcoin bool       `yaml:"denies_bitcoin,omitempty"`
}

// CrossRefRecord lists the other platforms the merchant appears on.
type CrossRefRecord struct {
	Platforms             []string `yaml:"platforms"`
	InformationConsistent bool     `yaml:"information_consistent"`
}

// LedgerEntry holds recorded findings for one submission or domain.
type LedgerEntry struct {
	Social   *SocialRecord   `yaml:"social,omitempty"`
	CrossRef *CrossRefRecord `yaml:"crossref,omitempty"`
}

// Ledger is the reviewer-maintained YAML file of social and cross-reference
// findings, keyed by submission ID and by website domain.
type Ledger struct {
	mu          sync.RWMutex
	Submissions map[string]LedgerEntry `yaml:"submissions"`
	Domains     map[string]LedgerEntry `yaml:"domains"`
}

// LoadLedger reads a ledger file. A missing file yields an empty ledger.
func LoadLedger(path string) (*Ledger, error) {
	l := &Ledger{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if err := yaml.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", path, err)
	}
	return l, nil
}

// Save writes the ledger back to path.
func (l *Ledger) Save(path string) error {
	l.mu.RLock()
	data, err := yaml.Marshal(l)
	l.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

// Record stores an entry for a submission ID.
func (l *Ledger) Record(id string, e LedgerEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Submissions == nil {
		l.Submissions = make(map[string]LedgerEntry)
	}
	l.Submissions[id] = e
}

// Lookup finds the entry for a submission, falling back to its website's
// registrable domain.
func (l *Ledger) Lookup(sub models.Submission) (LedgerEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if e, ok := l.Submissions[sub.ID]; ok {
		return e, true
	}
	if d := RegistrableDomain(sub.Website); d != "" {
		if e, ok := l.Domains[d]; ok {
			return e, true
		}
	}
	return LedgerEntry{}, false
}

// RegistrableDomain returns the eTLD+1 of a website URL, or "" if it has none.
func RegistrableDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

// SocialProvider reads social findings from the ledger. Activity is judged
// against the recency window at check time.
type SocialProvider struct {
	ledger *Ledger
	window time.Duration
	now    func() time.Time
}

// NewSocialProvider creates the provider.
func NewSocialProvider(l *Ledger, recencyWindow time.Duration) *SocialProvider {
	return &SocialProvider{ledger: l, window: recencyWindow, now: time.Now}
}

func (p *SocialProvider) Category() models.Category { return models.CategorySocial }

func (p *SocialProvider) Check(_ context.Context, sub models.Submission) (models.Evidence, error) {
	e, ok := p.ledger.Lookup(sub)
	if !ok || e.Social == nil {
		note := "no recorded social findings"
		if !sub.HasSocial() {
			note = "no social handles on submission"
		}
		return models.MissingEvidence(models.CategorySocial, note), nil
	}
	r := e.Social
	active := r.LastPost != nil && p.now().Sub(*r.LastPost) <= p.window
	return models.Evidence{
		Category: models.CategorySocial,
		Status:   models.EvidenceOK,
		Social: &models.SocialEvidence{
			HasAccount:    r.HasAccount,
			IsActive:      r.HasAccount && active,
			BitcoinPosts:  r.HasAccount && r.BitcoinPosts,
			DeniesBitcoin: r.DeniesBitcoin,
		},
	}, nil
}

// CrossRefProvider reads cross-reference findings from the ledger.
type CrossRefProvider struct {
	ledger *Ledger
}

// NewCrossRefProvider creates the provider.
func NewCrossRefProvider(l *Ledger) *CrossRefProvider {
	return &CrossRefProvider{ledger: l}
}

func (p *CrossRefProvider) Category() models.Category { return models.CategoryCrossRef }

func (p *CrossRefProvider) Check(_ context.Context, sub models.Submission) (models.Evidence, error) {
	e, ok := p.ledger.Lookup(sub)
	if !ok || e.CrossRef == nil {
		return models.MissingEvidence(models.CategoryCrossRef, "no recorded cross-references"), nil
	}
	return models.Evidence{
		Category: models.CategoryCrossRef,
		Status:   models.EvidenceOK,
		CrossRef: &models.CrossRefEvidence{
			PlatformCount:         len(e.CrossRef.Platforms),
			InformationConsistent: e.CrossRef.InformationConsistent,
		},
		Note: strings.Join(e.CrossRef.Platforms, ", "),
	}, nil
}

var (
	_ triage.EvidenceProvider = (*SocialProvider)(nil)
	_ triage.EvidenceProvider = (*CrossRefProvider)(nil)
)
