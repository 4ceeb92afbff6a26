package storage

import (
	"context"
	"errors"

	"options-ledger/internal/domain"
)

// LoadOrInitMeta returns the stored metadata record, or a fresh one if
// none has been saved yet.
func LoadOrInitMeta(ctx context.Context, store SyncMetaStore) (*domain.SyncMeta, error) {
	meta, err := store.LoadMeta(ctx)
	if errors.Is(err, ErrNotFound) {
		return domain.NewSyncMeta(), nil
	}
	if err != nil {
		return nil, err
	}
	meta.EnsureMaps()
	return meta, nil
}
