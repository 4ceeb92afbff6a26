package ingestion

import (
	"context"

	"options-ledger/internal/domain"
)

// TransactionSource provides pages of raw exchange transactions.
type TransactionSource interface {
	// FetchTransactions returns one page for the query.
	// An empty NextCursor means no further pages.
	FetchTransactions(ctx context.Context, q domain.Query) (*domain.Page, error)
}

// CredentialedSource is implemented by sources that need API credentials.
type CredentialedSource interface {
	Configured() bool
}

// BatchApplier folds newly persisted trades into the calculated ledger.
// It updates meta in place; the caller persists meta.
type BatchApplier interface {
	ApplyBatch(ctx context.Context, meta *domain.SyncMeta, batch []*domain.TradeRecord) error
}

func sourceConfigured(src TransactionSource) bool {
	if src == nil {
		return false
	}
	if c, ok := src.(CredentialedSource); ok {
		return c.Configured()
	}
	return true
}
