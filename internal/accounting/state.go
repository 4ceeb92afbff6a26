package accounting

import (
	"sort"

	"github.com/shopspring/decimal"

	"options-ledger/internal/domain"
)

// SymbolState is the replay state of one instrument.
// AvgPrice is zero whenever Position is flat.
type SymbolState struct {
	Position decimal.Decimal
	AvgPrice decimal.Decimal
}

// State is the complete replay state threaded through Replay.
type State struct {
	Symbols    map[domain.InstrumentKey]SymbolState
	Cumulative map[string]decimal.Decimal // settle coin -> realized PnL net of fees
	// Through is the last trade folded into this state, nil for an empty state.
	Through *domain.TradeCursor
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		Symbols:    make(map[domain.InstrumentKey]SymbolState),
		Cumulative: make(map[string]decimal.Decimal),
	}
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	c := &State{
		Symbols:    make(map[domain.InstrumentKey]SymbolState, len(s.Symbols)),
		Cumulative: make(map[string]decimal.Decimal, len(s.Cumulative)),
	}
	for k, v := range s.Symbols {
		c.Symbols[k] = v
	}
	for k, v := range s.Cumulative {
		c.Cumulative[k] = v
	}
	if s.Through != nil {
		through := *s.Through
		c.Through = &through
	}
	return c
}

// Symbol returns the state of an instrument (zero value if unseen).
func (s *State) Symbol(key domain.InstrumentKey) SymbolState {
	return s.Symbols[key]
}

// CumulativeFor returns the cumulative realized PnL of a settle coin.
func (s *State) CumulativeFor(coin string) decimal.Decimal {
	return s.Cumulative[coin]
}

// Equal reports whether two states hold the same positions and accumulators.
// Flat instruments compare equal to unseen ones.
func (s *State) Equal(o *State) bool {
	if !sameSymbols(s, o) || !sameSymbols(o, s) {
		return false
	}
	for coin, v := range s.Cumulative {
		if !v.Equal(o.Cumulative[coin]) {
			return false
		}
	}
	for coin, v := range o.Cumulative {
		if !v.Equal(s.Cumulative[coin]) {
			return false
		}
	}
	return true
}

func sameSymbols(a, b *State) bool {
	for k, v := range a.Symbols {
		w := b.Symbols[k]
		if !v.Position.Equal(w.Position) || !v.AvgPrice.Equal(w.AvgPrice) {
			return false
		}
	}
	return true
}

// Snapshot converts the state into its persisted form.
// Positions are sorted by (category, symbol).
func (s *State) Snapshot() *domain.LedgerSnapshot {
	snap := &domain.LedgerSnapshot{
		Positions:  make([]domain.PositionSnapshot, 0, len(s.Symbols)),
		Cumulative: make(map[string]decimal.Decimal, len(s.Cumulative)),
	}
	for k, v := range s.Symbols {
		snap.Positions = append(snap.Positions, domain.PositionSnapshot{
			Category: k.Category,
			Symbol:   k.Symbol,
			Position: v.Position,
			AvgPrice: v.AvgPrice,
		})
	}
	sort.Slice(snap.Positions, func(i, j int) bool {
		a, b := snap.Positions[i], snap.Positions[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Symbol < b.Symbol
	})
	for k, v := range s.Cumulative {
		snap.Cumulative[k] = v
	}
	if s.Through != nil {
		snap.Through = *s.Through
	}
	return snap
}

// StateFromSnapshot restores a state from its persisted form.
// A nil snapshot yields an empty state.
func StateFromSnapshot(snap *domain.LedgerSnapshot) *State {
	s := NewState()
	if snap == nil {
		return s
	}
	for _, p := range snap.Positions {
		s.Symbols[domain.InstrumentKey{Category: p.Category, Symbol: p.Symbol}] = SymbolState{
			Position: p.Position,
			AvgPrice: p.AvgPrice,
		}
	}
	for k, v := range snap.Cumulative {
		s.Cumulative[k] = v
	}
	if snap.Through.ID != "" || snap.Through.Timestamp != 0 {
		through := snap.Through
		s.Through = &through
	}
	return s
}

// StateFromCalculated reconstructs a state from already calculated trades,
// taking the last Calculated value per instrument and per settle coin.
// Trades must be ascending. ok is false if any trade lacks Calculated.
func StateFromCalculated(trades []*domain.TradeRecord) (*State, bool) {
	s := NewState()
	for _, t := range trades {
		if t.Calculated == nil {
			return nil, false
		}
		s.Symbols[t.Key()] = SymbolState{
			Position: t.Calculated.PositionAfter,
			AvgPrice: t.Calculated.AvgPriceAfter,
		}
		s.Cumulative[t.SettleCoin] = t.Calculated.CumulativeAfter
		cur := t.Cursor()
		s.Through = &cur
	}
	return s, true
}
