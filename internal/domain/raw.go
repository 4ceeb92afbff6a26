package domain

import "encoding/json"

// RawTransaction is one item of an exchange transaction-log page.
// Numeric fields keep their wire representation and are parsed at ingestion.
type RawTransaction struct {
	UniqueKey       string
	TransactionTime string // ms epoch
	Symbol          string
	Category        Category
	Type            string
	Side            string
	Qty             string
	TradePrice      string
	Fee             string
	Currency        string
	Change          string
	CashFlow        string
	OrderID         string
	OrderLinkID     string
	TradeID         string
	Payload         json.RawMessage
}

// Query selects one page of exchange transactions.
type Query struct {
	AccountType string
	Category    Category
	Limit       int
	Cursor      string
	StartTime   *int64 // ms, inclusive
	EndTime     *int64 // ms, inclusive
}

// Page is one page of exchange transactions.
// An empty NextCursor means no further pages.
type Page struct {
	Items      []RawTransaction
	NextCursor string
}
