package accounting

import (
	"fmt"

	"options-ledger/internal/domain"
)

// DiagnosticKind classifies a recoverable data problem.
type DiagnosticKind string

const (
	DiagDeliverySymbol DiagnosticKind = "delivery_symbol"
	DiagDeliveryStrike DiagnosticKind = "delivery_strike"
	DiagDeliveryPrice  DiagnosticKind = "delivery_price"
)

// Diagnostic reports a trade whose data could not be fully interpreted.
// The trade was still replayed using its recorded values.
type Diagnostic struct {
	TradeID   string
	Timestamp int64
	Symbol    string
	Kind      DiagnosticKind
	Message   string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %s@%d: %s", d.Kind, d.TradeID, d.Timestamp, d.Message)
}

func newDiagnostic(t *domain.TradeRecord, kind DiagnosticKind, msg string) *Diagnostic {
	return &Diagnostic{
		TradeID:   t.ID,
		Timestamp: t.Timestamp,
		Symbol:    t.Symbol,
		Kind:      kind,
		Message:   msg,
	}
}
