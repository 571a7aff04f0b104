package store

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestStoreEmpty(t *testing.T) {
	sut := setupTestStore(t)

	entries, err := sut.Entries(t.Context(), "techlife_pro")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStoreCreate(t *testing.T) {
	sut := setupTestStore(t)
	created := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	require.NoError(t, sut.Create(t.Context(), Entry{
		ID:        "one",
		Domain:    "techlife_pro",
		Title:     "TechLife Pro",
		Version:   1,
		CreatedAt: created,
	}))

	entries, err := sut.Entries(t.Context(), "techlife_pro")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, Entry{
		ID:        "one",
		Domain:    "techlife_pro",
		Title:     "TechLife Pro",
		Version:   1,
		Data:      map[string]any{},
		CreatedAt: created,
	}, entries[0])

	others, err := sut.Entries(t.Context(), "other")
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestStoreCreateDuplicateDomain(t *testing.T) {
	sut := setupTestStore(t)

	require.NoError(t, sut.Create(t.Context(), Entry{ID: "one", Domain: "techlife_pro", Title: "a", Version: 1}))
	require.ErrorIs(t, sut.Create(t.Context(), Entry{ID: "two", Domain: "techlife_pro", Title: "b", Version: 1}), ErrEntryExists)

	entries, err := sut.Entries(t.Context(), "techlife_pro")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "one", entries[0].ID)
}

func TestStoreCreateConcurrent(t *testing.T) {
	sut := setupTestStore(t)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)

	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			err := sut.Create(t.Context(), Entry{ID: string(rune('a' + i)), Domain: "techlife_pro", Title: "t", Version: 1})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrEntryExists)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "techlife.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Create(t.Context(), Entry{ID: "one", Domain: "techlife_pro", Title: "TechLife Pro", Version: 1, Data: map[string]any{"k": "v"}}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	entries, err := s.Entries(t.Context(), "techlife_pro")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, map[string]any{"k": "v"}, entries[0].Data)
}
