package memory

import (
	"context"
	"sync"

	"options-ledger/internal/domain"
	"options-ledger/internal/storage"
)

// SyncMetaStore is an in-memory implementation of storage.SyncMetaStore.
type SyncMetaStore struct {
	mu   sync.RWMutex
	meta *domain.SyncMeta
}

// NewSyncMetaStore creates a new in-memory metadata store.
func NewSyncMetaStore() *SyncMetaStore {
	return &SyncMetaStore{}
}

var _ storage.SyncMetaStore = (*SyncMetaStore)(nil)

// LoadMeta returns a copy of the stored record.
func (s *SyncMetaStore) LoadMeta(_ context.Context) (*domain.SyncMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.meta == nil {
		return nil, storage.ErrNotFound
	}
	return s.meta.Clone(), nil
}

// SaveMeta replaces the stored record.
func (s *SyncMetaStore) SaveMeta(_ context.Context, meta *domain.SyncMeta) error {
	if meta == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.meta = meta.Clone()
	return nil
}
