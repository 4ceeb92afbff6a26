package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"options-ledger/internal/domain"
	"options-ledger/internal/storage"
)

// SyncMetaStore is a PostgreSQL implementation of storage.SyncMetaStore.
// The record is kept as a JSONB document in the single row of ledger_meta.
type SyncMetaStore struct {
	pool *Pool
}

// NewSyncMetaStore creates a new PostgreSQL metadata store.
func NewSyncMetaStore(pool *Pool) *SyncMetaStore {
	return &SyncMetaStore{pool: pool}
}

var _ storage.SyncMetaStore = (*SyncMetaStore)(nil)

// LoadMeta returns the metadata record.
func (s *SyncMetaStore) LoadMeta(ctx context.Context) (*domain.SyncMeta, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT doc
		FROM ledger_meta
		WHERE id = 1
	`)

	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load ledger meta: %w", err)
	}

	meta := domain.NewSyncMeta()
	if err := json.Unmarshal(doc, meta); err != nil {
		return nil, fmt.Errorf("decode ledger meta: %w", err)
	}
	meta.EnsureMaps()
	return meta, nil
}

// SaveMeta saves the metadata record.
// Uses upsert to handle initial insert and subsequent updates.
func (s *SyncMetaStore) SaveMeta(ctx context.Context, meta *domain.SyncMeta) error {
	if meta == nil {
		return storage.ErrInvalidInput
	}

	doc, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode ledger meta: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO ledger_meta (id, doc, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE
		SET doc = EXCLUDED.doc,
		    updated_at = NOW()
	`, string(doc))
	if err != nil {
		return fmt.Errorf("save ledger meta: %w", err)
	}
	return nil
}
