package domain

import (
	"errors"
	"sort"
)

// ErrInvalidOrdering is returned when trades are not in replay order.
var ErrInvalidOrdering = errors.New("trades are not in deterministic order")

// SortTrades orders trades by (timestamp ASC, id ASC).
func SortTrades(trades []*TradeRecord) {
	sort.Slice(trades, func(i, j int) bool {
		return CompareTrades(trades[i], trades[j]) < 0
	})
}

// ValidateTradeOrdering checks that trades are strictly ascending.
// Returns ErrInvalidOrdering if not.
func ValidateTradeOrdering(trades []*TradeRecord) error {
	for i := 1; i < len(trades); i++ {
		if CompareTrades(trades[i-1], trades[i]) >= 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// CompareTrades returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (timestamp ASC, id ASC)
func CompareTrades(a, b *TradeRecord) int {
	return CompareCursors(a.Cursor(), b.Cursor())
}

// CompareCursors orders cursors the same way trades are ordered.
func CompareCursors(a, b TradeCursor) int {
	if a.Timestamp != b.Timestamp {
		if a.Timestamp < b.Timestamp {
			return -1
		}
		return 1
	}
	if a.ID != b.ID {
		if a.ID < b.ID {
			return -1
		}
		return 1
	}
	return 0
}
