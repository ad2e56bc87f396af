// Package dedupe detects submissions that describe an already-processed merchant.
package dedupe

import (
	"context"
	"fmt"
	"sync"

	"github.com/joescharf/btcmap-triage/internal/geo"
	"github.com/joescharf/btcmap-triage/internal/models"
)

// DefaultRadiusMeters is how close two same-named submissions must be to match.
const DefaultRadiusMeters = 100.0

// Store persists the processed-submission registry across runs.
type Store interface {
	ListSubmissions(ctx context.Context) ([]models.Submission, error)
	RecordSubmission(ctx context.Context, sub models.Submission) error
}

// Registry matches submissions by name and proximity. The first submission
// to be looked up claims its merchant; later matches are duplicates of it.
type Registry struct {
	radius float64
	store  Store

	mu      sync.Mutex
	loaded  bool
	entries []models.Submission
}

// NewRegistry creates a registry. store may be nil for an in-memory registry.
func NewRegistry(radiusMeters float64, store Store) *Registry {
	if radiusMeters <= 0 {
		radiusMeters = DefaultRadiusMeters
	}
	return &Registry{radius: radiusMeters, store: store}
}

func (r *Registry) load(ctx context.Context) error {
	if r.loaded || r.store == nil {
		r.loaded = true
		return nil
	}
	subs, err := r.store.ListSubmissions(ctx)
	if err != nil {
		return fmt.Errorf("load processed submissions: %w", err)
	}
	r.entries = append(r.entries, subs...)
	r.loaded = true
	return nil
}

// Match returns the ID of a registered submission for the same merchant.
// A submission never matches itself.
func (r *Registry) Match(sub models.Submission) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.match(sub)
}

func (r *Registry) match(sub models.Submission) (string, bool) {
	if sub.Location == nil {
		return "", false
	}
	for _, e := range r.entries {
		if e.ID == sub.ID || e.Location == nil {
			continue
		}
		if geo.SameName(e.MerchantName, sub.MerchantName) && geo.DistanceMeters(*e.Location, *sub.Location) <= r.radius {
			return e.ID, true
		}
	}
	return "", false
}

func (r *Registry) known(id string) bool {
	for _, e := range r.entries {
		if e.ID == id {
			return true
		}
	}
	return false
}

// FindDuplicate checks sub against the registry and, when it is new, claims
// it. Check and claim happen under one lock.
func (r *Registry) FindDuplicate(ctx context.Context, sub models.Submission) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.load(ctx); err != nil {
		return "", false, err
	}
	if prior, ok := r.match(sub); ok {
		return prior, true, nil
	}
	if r.known(sub.ID) {
		return "", false, nil
	}
	if r.store != nil {
		if err := r.store.RecordSubmission(ctx, sub); err != nil {
			return "", false, fmt.Errorf("record submission %s: %w", sub.ID, err)
		}
	}
	r.entries = append(r.entries, sub)
	return "", false, nil
}

// Len returns the number of registered submissions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
