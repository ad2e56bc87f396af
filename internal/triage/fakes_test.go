package triage

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joescharf/btcmap-triage/internal/config"
	"github.com/joescharf/btcmap-triage/internal/models"
)

type fakeProvider struct {
	category  models.Category
	ev        models.Evidence
	err       error
	failTimes int // fail this many calls, then succeed; 0 = always fail when err is set
	delay     time.Duration

	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeProvider) Category() models.Category { return f.category }

func (f *fakeProvider) Check(ctx context.Context, _ models.Submission) (models.Evidence, error) {
	n := f.calls.Add(1)
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if cur <= p || f.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return models.Evidence{}, ctx.Err()
		}
	}
	if f.err != nil && (f.failTimes == 0 || int(n) <= f.failTimes) {
		return models.Evidence{}, f.err
	}
	return f.ev, nil
}

type evidenceSet map[models.Category]models.Evidence

func (e evidenceSet) providers() ([]EvidenceProvider, map[models.Category]*fakeProvider) {
	var list []EvidenceProvider
	byCat := make(map[models.Category]*fakeProvider)
	for _, c := range models.Categories {
		ev, ok := e[c]
		if !ok {
			continue
		}
		fp := &fakeProvider{category: c, ev: ev}
		list = append(list, fp)
		byCat[c] = fp
	}
	return list, byCat
}

func okEv(c models.Category) models.Evidence {
	return models.Evidence{Category: c, Status: models.EvidenceOK}
}

func osmEv(o models.OSMEvidence) models.Evidence {
	ev := okEv(models.CategoryOSM)
	ev.OSM = &o
	return ev
}

func websiteEv(w models.WebsiteEvidence) models.Evidence {
	ev := okEv(models.CategoryWebsite)
	ev.Website = &w
	return ev
}

func socialEv(s models.SocialEvidence) models.Evidence {
	ev := okEv(models.CategorySocial)
	ev.Social = &s
	return ev
}

func crossRefEv(c models.CrossRefEvidence) models.Evidence {
	ev := okEv(models.CategoryCrossRef)
	ev.CrossRef = &c
	return ev
}

func consistencyEv(c models.ConsistencyEvidence) models.Evidence {
	ev := okEv(models.CategoryConsistency)
	ev.Consistency = &c
	return ev
}

var allValid = models.ConsistencyEvidence{AddressValid: true, PhoneValid: true, HoursValid: true, CoordinatesValid: true, CategoryValid: true}

func strongEvidence() evidenceSet {
	return evidenceSet{
		models.CategoryOSM:         osmEv(models.OSMEvidence{Exists: true, CoordinatesMatch: true, NameMatches: true, HasBitcoinTag: true}),
		models.CategoryWebsite:     websiteEv(models.WebsiteEvidence{HasURL: true, Accessible: true, BitcoinMentioned: true}),
		models.CategorySocial:      socialEv(models.SocialEvidence{HasAccount: true, IsActive: true, BitcoinPosts: true}),
		models.CategoryCrossRef:    crossRefEv(models.CrossRefEvidence{PlatformCount: 3, InformationConsistent: true}),
		models.CategoryConsistency: consistencyEv(allValid),
	}
}

// middlingEvidence totals 66 with the default weights.
func middlingEvidence() evidenceSet {
	return evidenceSet{
		models.CategoryOSM:         osmEv(models.OSMEvidence{}),
		models.CategoryWebsite:     websiteEv(models.WebsiteEvidence{HasURL: true, Accessible: true, BitcoinMentioned: true}),
		models.CategorySocial:      socialEv(models.SocialEvidence{HasAccount: true, IsActive: true}),
		models.CategoryCrossRef:    crossRefEv(models.CrossRefEvidence{PlatformCount: 2}),
		models.CategoryConsistency: consistencyEv(allValid),
	}
}

func weakEvidence() evidenceSet {
	return evidenceSet{
		models.CategoryOSM:         osmEv(models.OSMEvidence{}),
		models.CategoryWebsite:     websiteEv(models.WebsiteEvidence{}),
		models.CategorySocial:      socialEv(models.SocialEvidence{}),
		models.CategoryCrossRef:    crossRefEv(models.CrossRefEvidence{}),
		models.CategoryConsistency: consistencyEv(models.ConsistencyEvidence{CoordinatesValid: true}),
	}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.OutreachTimeout = time.Second
	return cfg
}

func testSubmission(id, name string) models.Submission {
	return models.Submission{
		ID:           id,
		IssueNumber:  len(id),
		MerchantName: name,
		Location:     &models.Coordinates{Lat: 46.0207, Lon: 7.7491},
		Address:      "Bahnhofstrasse 1, Zermatt",
		Website:      "https://example.com",
		ContactEmail: "owner@example.com",
	}
}

type fakeOutreach struct {
	outcomes map[models.Channel]models.OutreachState
	errs     map[models.Channel]error
	block    bool // wait for the context instead of answering
	started  chan struct{}

	mu    sync.Mutex
	calls []models.Channel
}

func (f *fakeOutreach) SendAndWait(ctx context.Context, ch models.Channel, _ models.Submission, _ time.Duration) (models.OutreachOutcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, ch)
	f.mu.Unlock()
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block {
		<-ctx.Done()
		return models.OutreachOutcome{}, ctx.Err()
	}
	if err := f.errs[ch]; err != nil {
		return models.OutreachOutcome{}, err
	}
	state, ok := f.outcomes[ch]
	if !ok {
		state = models.OutreachNoResponse
	}
	return models.OutreachOutcome{Channel: ch, State: state}, nil
}

func (f *fakeOutreach) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeDuplicates struct {
	mu   sync.Mutex
	seen map[string]string // normalized name -> submission id
	err  error
}

func (f *fakeDuplicates) FindDuplicate(_ context.Context, sub models.Submission) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = make(map[string]string)
	}
	key := strings.ToLower(strings.TrimSpace(sub.MerchantName))
	if prior, ok := f.seen[key]; ok {
		return prior, true, nil
	}
	f.seen[key] = sub.ID
	return "", false, nil
}

type fakeIssues struct {
	subs []models.Submission

	mu       sync.Mutex
	comments map[string][]string
	labels   map[string][]string
	closed   []string
}

func (f *fakeIssues) Fetch(_ context.Context, filter IssueFilter) ([]models.Submission, error) {
	if filter.Limit > 0 && filter.Limit < len(f.subs) {
		return f.subs[:filter.Limit], nil
	}
	return f.subs, nil
}

func (f *fakeIssues) PostComment(_ context.Context, id, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.comments == nil {
		f.comments = make(map[string][]string)
	}
	f.comments[id] = append(f.comments[id], text)
	return nil
}

func (f *fakeIssues) SetLabels(_ context.Context, id string, labels []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.labels == nil {
		f.labels = make(map[string][]string)
	}
	f.labels[id] = labels
	return nil
}

func (f *fakeIssues) Close(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
	return nil
}

type fakeSink struct {
	mu       sync.Mutex
	verdicts []*models.Verdict
}

func (f *fakeSink) SaveVerdict(_ context.Context, v *models.Verdict) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verdicts = append(f.verdicts, v)
	return nil
}

type fakeReporter struct{}

func (fakeReporter) Phase1(sub models.Submission, p1 models.Phase1Result) (string, error) {
	return "phase1 " + sub.ID, nil
}

func (fakeReporter) Final(sub models.Submission, v *models.Verdict) (string, error) {
	return "final " + string(v.Recommendation), nil
}

func (fakeReporter) Labels(v *models.Verdict) []string {
	return []string{string(v.Recommendation)}
}
