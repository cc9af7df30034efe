package library

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgnsrekt/narrator/internal/index"
)

// MemoryStore is a Store that lives only as long as the process.
type MemoryStore struct {
	mu    sync.RWMutex
	books map[string]BookRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{books: make(map[string]BookRecord)}
}

// GetBook implements Store. The returned record is a copy.
func (m *MemoryStore) GetBook(_ context.Context, path string) (*BookRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.books[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBookNotFound, path)
	}
	rec.AudioChapters = copyEntries(rec.AudioChapters)
	return &rec, nil
}

// UpsertBook implements Store.
func (m *MemoryStore) UpsertBook(_ context.Context, rec *BookRecord) error {
	if rec == nil || rec.Path == "" {
		return errors.New("book record requires a path")
	}
	rec.UpdatedAt = time.Now().UTC()

	stored := *rec
	stored.AudioChapters = copyEntries(rec.AudioChapters)

	m.mu.Lock()
	m.books[rec.Path] = stored
	m.mu.Unlock()
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}

func copyEntries(in []index.Entry) []index.Entry {
	if in == nil {
		return nil
	}
	return index.FromEntries(in).Entries()
}

// Open returns a SQLiteStore for path, or a MemoryStore for MemoryPath.
func Open(ctx context.Context, path string) (Store, error) {
	if path == MemoryPath || path == "" {
		return NewMemoryStore(), nil
	}
	return OpenSQLite(ctx, path)
}
