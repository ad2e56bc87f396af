package dedupe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/btcmap-triage/internal/models"
)

type memStore struct {
	mu      sync.Mutex
	subs    []models.Submission
	listErr error
}

func (m *memStore) ListSubmissions(context.Context) ([]models.Submission, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Submission(nil), m.subs...), nil
}

func (m *memStore) RecordSubmission(_ context.Context, sub models.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, sub)
	return nil
}

func at(id, name string, lat, lon float64) models.Submission {
	return models.Submission{ID: id, MerchantName: name, Location: &models.Coordinates{Lat: lat, Lon: lon}}
}

func TestFindDuplicate(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(100, nil)

	_, found, err := r.FindDuplicate(ctx, at("1", "Satoshi Coffee", 47.3769, 8.5417))
	require.NoError(t, err)
	assert.False(t, found, "first submission claims the merchant")

	tests := []struct {
		name      string
		sub       models.Submission
		wantFound bool
	}{
		{"same name nearby", at("2", "satoshi coffee", 47.3772, 8.5418), true},
		{"same name far away", at("3", "Satoshi Coffee", 46.9480, 7.4474), false},
		{"other name same spot", at("4", "Hal's Bakery", 47.3769, 8.5417), false},
		{"same id is not its own duplicate", at("1", "Satoshi Coffee", 47.3769, 8.5417), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prior, found, err := r.FindDuplicate(ctx, tt.sub)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFound, found)
			if tt.wantFound {
				assert.Equal(t, "1", prior)
			}
		})
	}
	assert.Equal(t, 3, r.Len(), "duplicates and re-runs are not registered")
}

func TestFindDuplicate_UsesStoredHistory(t *testing.T) {
	store := &memStore{subs: []models.Submission{at("old", "Corner Shop", 10, 10)}}
	r := NewRegistry(0, store)

	prior, found, err := r.FindDuplicate(context.Background(), at("new", "Corner Shop", 10.0001, 10))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "old", prior)

	_, found, err = r.FindDuplicate(context.Background(), at("fresh", "Elsewhere", 0, 0))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Len(t, store.subs, 2, "new merchants are recorded")
}

func TestFindDuplicate_StoreError(t *testing.T) {
	r := NewRegistry(100, &memStore{listErr: errors.New("disk gone")})
	_, _, err := r.FindDuplicate(context.Background(), at("1", "X Shop", 0, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestFindDuplicate_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	r := NewRegistry(100, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, found, err := r.FindDuplicate(context.Background(), at(fmt.Sprint(i), "Race Cafe", 1, 1))
			assert.NoError(t, err)
			if !found {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}
