// Package view keeps a most-recent-first window of ledger trades for paging.
package view

import (
	"context"
	"fmt"
	"sync"

	"options-ledger/internal/domain"
	"options-ledger/internal/storage"
)

// DefaultPageSize is the number of trades loaded per store round trip.
const DefaultPageSize = 100

// PagedCache grows a newest-first window of trades from a (timestamp, id)
// cursor. Growing never reorders items already returned, and trades
// ingested after the first load only appear after Reset.
type PagedCache struct {
	mu        sync.Mutex
	store     storage.LedgerStore
	pageSize  int
	items     []*domain.TradeRecord
	exhausted bool
}

// NewPagedCache creates a paged cache over store.
func NewPagedCache(store storage.LedgerStore, pageSize int) *PagedCache {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &PagedCache{store: store, pageSize: pageSize}
}

// EnsureRange loads older trades until the window covers [offset, offset+limit)
// or the ledger has no more trades.
func (c *PagedCache) EnsureRange(ctx context.Context, offset, limit int) error {
	if offset < 0 || limit < 0 {
		return fmt.Errorf("%w: negative range", storage.ErrInvalidInput)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	need := offset + limit
	for len(c.items) < need && !c.exhausted {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := need - len(c.items)
		if n < c.pageSize {
			n = c.pageSize
		}

		var ts *int64
		var id *string
		if len(c.items) > 0 {
			last := c.items[len(c.items)-1]
			lastTs, lastID := last.Timestamp, last.ID
			ts, id = &lastTs, &lastID
		}

		page, err := c.store.LoadBefore(ctx, ts, id, n)
		if err != nil {
			return fmt.Errorf("load before cursor: %w", err)
		}
		c.items = append(c.items, page...)
		if len(page) < n {
			c.exhausted = true
		}
	}
	return nil
}

// GetRange returns the loaded trades in [offset, offset+limit), newest first.
// The result is shorter than limit when the window does not reach that far.
func (c *PagedCache) GetRange(offset, limit int) []*domain.TradeRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	if offset < 0 || limit <= 0 || offset >= len(c.items) {
		return nil
	}
	end := offset + limit
	if end > len(c.items) {
		end = len(c.items)
	}
	return append([]*domain.TradeRecord(nil), c.items[offset:end]...)
}

// Len returns the number of loaded trades.
func (c *PagedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Exhausted reports whether the oldest trade has been loaded.
func (c *PagedCache) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exhausted
}

// Reset drops the window; the next EnsureRange starts from the latest trade.
func (c *PagedCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
	c.exhausted = false
}
