package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"options-ledger/internal/accounting"
	"options-ledger/internal/domain"
	"options-ledger/internal/idhash"
)

// Diagnostic reports a raw transaction field that could not be parsed.
// The record is still ingested with the field defaulted.
type Diagnostic struct {
	UniqueKey string
	Field     string
	Value     string
	Message   string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s.%s=%q: %s", d.UniqueKey, d.Field, d.Value, d.Message)
}

// payloadKeys lists the optional payload fields extracted at ingestion.
var payloadKeys = []string{"position", "strike", "deliveryPrice", "tradePrice", "price", "execPrice"}

// Normalize converts a raw exchange item into a TradeRecord.
// Unparseable numbers default to zero (or null for payload fields) and are
// reported as diagnostics. Missing unique keys are replaced by a derived id.
func Normalize(raw domain.RawTransaction) (*domain.TradeRecord, []Diagnostic) {
	n := normalizer{key: raw.UniqueKey}

	ts := n.timestamp(raw.TransactionTime)
	trade := &domain.TradeRecord{
		ID:          raw.UniqueKey,
		Timestamp:   ts,
		Symbol:      raw.Symbol,
		Category:    raw.Category,
		Type:        domain.TransactionType(strings.ToUpper(strings.TrimSpace(raw.Type))),
		Side:        domain.ParseSide(raw.Side),
		Quantity:    n.number("qty", raw.Qty),
		Price:       n.number("tradePrice", raw.TradePrice),
		Fee:         n.number("fee", raw.Fee),
		SettleCoin:  raw.Currency,
		Change:      n.number("change", raw.Change),
		CashFlow:    n.number("cashFlow", raw.CashFlow),
		OrderID:     raw.OrderID,
		OrderLinkID: raw.OrderLinkID,
		ExecID:      raw.TradeID,
		Payload:     n.payload(raw.Payload),
	}
	if len(raw.Payload) > 0 {
		trade.Raw = append(json.RawMessage(nil), raw.Payload...)
	}

	if trade.ID == "" {
		trade.ID = idhash.ComputeTransactionID(idhash.TransactionKey{
			Category:  string(raw.Category),
			Symbol:    raw.Symbol,
			Timestamp: ts,
			Type:      string(trade.Type),
			Side:      string(trade.Side),
			Qty:       raw.Qty,
			Price:     raw.TradePrice,
			OrderID:   raw.OrderID,
		})
	}

	for i := range n.diags {
		n.diags[i].UniqueKey = trade.ID
	}
	return trade, n.diags
}

// NormalizeAll converts a batch, dropping duplicate ids (last wins), and
// returns the records sorted by (timestamp, id).
func NormalizeAll(raws []domain.RawTransaction) ([]*domain.TradeRecord, []Diagnostic) {
	byID := make(map[string]*domain.TradeRecord, len(raws))
	var diags []Diagnostic
	for _, raw := range raws {
		trade, d := Normalize(raw)
		diags = append(diags, d...)
		byID[trade.ID] = trade
	}

	trades := make([]*domain.TradeRecord, 0, len(byID))
	for _, t := range byID {
		trades = append(trades, t)
	}
	domain.SortTrades(trades)
	return trades, diags
}

type normalizer struct {
	key   string
	diags []Diagnostic
}

func (n *normalizer) report(field, value, msg string) {
	n.diags = append(n.diags, Diagnostic{UniqueKey: n.key, Field: field, Value: value, Message: msg})
}

func (n *normalizer) timestamp(s string) int64 {
	ts, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		n.report("transactionTime", s, "invalid timestamp, using 0")
		return 0
	}
	return ts
}

// number parses a wire decimal. Empty strings are zero without a diagnostic.
func (n *normalizer) number(field, s string) decimal.Decimal {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero
	}
	v, ok := accounting.ParseNumber(s)
	if !ok {
		n.report(field, s, "invalid number, using 0")
		return decimal.Zero
	}
	return v
}

// payload extracts the typed optional fields from the raw item.
func (n *normalizer) payload(raw json.RawMessage) domain.PayloadFields {
	var fields domain.PayloadFields
	if len(bytes.TrimSpace(raw)) == 0 {
		return fields
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		n.report("payload", truncate(string(raw), 64), "malformed payload: "+err.Error())
		return fields
	}

	values := make(map[string]decimal.NullDecimal, len(payloadKeys))
	for _, key := range payloadKeys {
		v, ok := obj[key]
		if !ok {
			continue
		}
		values[key] = n.payloadNumber(key, v)
	}

	fields.Position = values["position"]
	fields.Strike = values["strike"]
	fields.DeliveryPrice = values["deliveryPrice"]
	fields.TradePrice = values["tradePrice"]
	fields.Price = values["price"]
	fields.ExecPrice = values["execPrice"]
	return fields
}

// payloadNumber accepts JSON strings or numbers. Null and empty values are
// absent; anything else unparseable is absent with a diagnostic.
func (n *normalizer) payloadNumber(key string, v json.RawMessage) decimal.NullDecimal {
	text := strings.TrimSpace(string(v))
	if text == "null" {
		return decimal.NullDecimal{}
	}
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			n.report("payload."+key, text, "invalid string")
			return decimal.NullDecimal{}
		}
		text = strings.TrimSpace(s)
		if text == "" {
			return decimal.NullDecimal{}
		}
	}
	out := accounting.ParseNullNumber(text)
	if !out.Valid {
		n.report("payload."+key, text, "invalid number, treated as absent")
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
