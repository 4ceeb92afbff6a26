// Package accounting implements the weighted-average cost-basis replay.
//
// Replay is a pure fold: it never mutates its inputs and never touches
// storage. Callers thread State explicitly between passes.
package accounting

import (
	"fmt"

	"github.com/shopspring/decimal"

	"options-ledger/internal/domain"
)

// Result is the output of a replay pass.
type Result struct {
	// State is the state after the last input trade.
	State *State
	// Calculated holds one value per input trade, in input order.
	Calculated []domain.Calculated
	// Diagnostics lists recoverable data problems found during the pass.
	Diagnostics []Diagnostic
}

// Replay folds trades over a copy of initial and returns the resulting state
// together with the calculated fields of every trade.
// Trades must be strictly ascending by (timestamp, id); otherwise
// domain.ErrInvalidOrdering is returned. A nil initial state means empty.
func Replay(trades []*domain.TradeRecord, initial *State) (*Result, error) {
	if err := domain.ValidateTradeOrdering(trades); err != nil {
		return nil, err
	}

	state := NewState()
	if initial != nil {
		state = initial.Clone()
	}

	res := &Result{
		State:      state,
		Calculated: make([]domain.Calculated, len(trades)),
	}

	for i, t := range trades {
		if t == nil {
			return nil, fmt.Errorf("replay: nil trade at index %d", i)
		}
		calc, diags := apply(state, t)
		res.Calculated[i] = calc
		res.Diagnostics = append(res.Diagnostics, diags...)
	}

	return res, nil
}

// apply folds one trade into state and returns its calculated fields.
func apply(state *State, t *domain.TradeRecord) (domain.Calculated, []Diagnostic) {
	qty, price, diags := effectiveQuantityPrice(t)
	signed := signQuantity(qty, t.Side)

	key := t.Key()
	prior := state.Symbols[key]

	tradeSign := decimal.NewFromInt(int64(signed.Sign()))

	closing := decimal.Zero
	if !prior.Position.IsZero() && !signed.IsZero() && signed.Sign() != prior.Position.Sign() {
		closing = decimal.Min(signed.Abs(), prior.Position.Abs())
	}
	opening := signed.Sub(closing.Mul(tradeSign))

	realized := decimal.Zero
	if closing.IsPositive() {
		if prior.Position.IsPositive() {
			realized = closing.Mul(price.Sub(prior.AvgPrice))
		} else {
			realized = closing.Mul(prior.AvgPrice.Sub(price))
		}
	}
	realized = Round(realized)

	cashBefore := prior.AvgPrice.Neg().Mul(prior.Position)
	cashAfter := cashBefore.
		Add(prior.AvgPrice.Neg().Mul(closing).Mul(tradeSign)).
		Add(price.Neg().Mul(opening))

	newPos := Round(prior.Position.Add(signed))
	newAvg := decimal.Zero
	if IsFlat(newPos) {
		newPos = decimal.Zero
	} else {
		newAvg = Round(cashAfter.Neg().DivRound(newPos, Scale))
	}

	cumulative := Round(state.Cumulative[t.SettleCoin].Add(realized).Sub(t.Fee))

	state.Symbols[key] = SymbolState{Position: newPos, AvgPrice: newAvg}
	state.Cumulative[t.SettleCoin] = cumulative
	cur := t.Cursor()
	state.Through = &cur

	return domain.Calculated{
		PositionAfter:   newPos,
		AvgPriceAfter:   newAvg,
		Realized:        realized,
		CumulativeAfter: cumulative,
	}, diags
}

// effectiveQuantityPrice classifies a trade by type and returns the
// unsigned quantity and price used for replay.
func effectiveQuantityPrice(t *domain.TradeRecord) (decimal.Decimal, decimal.Decimal, []Diagnostic) {
	qty := Round(t.Quantity)
	price := Round(t.Price)

	switch t.Type {
	case domain.TypeTrade:
		return qty, price, nil
	case domain.TypeDelivery:
		intrinsic, override, diag := deliveryValuation(t)
		if diag != nil {
			return qty, price, []Diagnostic{*diag}
		}
		if override.Valid {
			qty = Round(override.Decimal.Abs())
		}
		return qty, intrinsic, nil
	case domain.TypeSettlement:
		return decimal.Zero, decimal.Zero, nil
	default:
		return decimal.Zero, price, nil
	}
}

// deliveryValuation derives the intrinsic settlement price of an expiring
// option and the optional quantity override from the payload position.
func deliveryValuation(t *domain.TradeRecord) (decimal.Decimal, decimal.NullDecimal, *Diagnostic) {
	contract, err := ParseOptionSymbol(t.Symbol)
	if err != nil {
		return decimal.Zero, decimal.NullDecimal{}, newDiagnostic(t, DiagDeliverySymbol, err.Error())
	}

	strike := contract.Strike
	if !strike.Valid {
		strike = t.Payload.Strike
	}
	if !strike.Valid {
		return decimal.Zero, decimal.NullDecimal{}, newDiagnostic(t, DiagDeliveryStrike,
			fmt.Sprintf("no strike in symbol %q or payload", t.Symbol))
	}

	settlement, ok := t.Payload.SettlementPrice()
	if !ok {
		return decimal.Zero, decimal.NullDecimal{}, newDiagnostic(t, DiagDeliveryPrice,
			"no delivery price in payload")
	}

	return IntrinsicValue(contract.Type, strike.Decimal, settlement), t.Payload.Position, nil
}

// signQuantity applies the side convention: SELL negative, BUY positive,
// unsided entries keep their upstream sign.
func signQuantity(qty decimal.Decimal, side domain.Side) decimal.Decimal {
	switch side {
	case domain.SideSell:
		return qty.Abs().Neg()
	case domain.SideBuy:
		return qty.Abs()
	default:
		return qty
	}
}
