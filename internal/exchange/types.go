package exchange

import (
	"encoding/json"
	"fmt"

	"options-ledger/internal/domain"
)

// APIError is a non-zero retCode returned by the exchange.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange error %d: %s", e.Code, e.Message)
}

// envelope is the common v5 response wrapper.
type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
	Time    int64           `json:"time"`
}

type transactionLogResult struct {
	NextPageCursor string            `json:"nextPageCursor"`
	List           []json.RawMessage `json:"list"`
}

// transactionLogItem holds the fields read from one transaction-log entry.
// Numeric values are strings on the wire.
type transactionLogItem struct {
	ID              string `json:"id"`
	Symbol          string `json:"symbol"`
	Category        string `json:"category"`
	Side            string `json:"side"`
	TransactionTime string `json:"transactionTime"`
	Type            string `json:"type"`
	Qty             string `json:"qty"`
	TradePrice      string `json:"tradePrice"`
	Fee             string `json:"fee"`
	Currency        string `json:"currency"`
	Change          string `json:"change"`
	CashFlow        string `json:"cashFlow"`
	OrderID         string `json:"orderId"`
	OrderLinkID     string `json:"orderLinkId"`
	TradeID         string `json:"tradeId"`
}

func (it transactionLogItem) toRaw(category domain.Category, payload json.RawMessage) domain.RawTransaction {
	return domain.RawTransaction{
		UniqueKey:       it.ID,
		TransactionTime: it.TransactionTime,
		Symbol:          it.Symbol,
		Category:        category,
		Type:            it.Type,
		Side:            it.Side,
		Qty:             it.Qty,
		TradePrice:      it.TradePrice,
		Fee:             it.Fee,
		Currency:        it.Currency,
		Change:          it.Change,
		CashFlow:        it.CashFlow,
		OrderID:         it.OrderID,
		OrderLinkID:     it.OrderLinkID,
		TradeID:         it.TradeID,
		Payload:         append(json.RawMessage(nil), payload...),
	}
}
