package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// TransactionKey holds the fields identifying an exchange transaction
// that arrived without a unique key.
type TransactionKey struct {
	Category  string
	Symbol    string
	Timestamp int64
	Type      string
	Side      string
	Qty       string
	Price     string
	OrderID   string
}

// ComputeTransactionID computes a deterministic transaction id using SHA256.
// Formula: SHA256(category|symbol|timestamp|type|side|qty|price|order_id)
// Returns hex-encoded hash (64 characters).
func ComputeTransactionID(k TransactionKey) string {
	data := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s|%s",
		k.Category,
		k.Symbol,
		k.Timestamp,
		k.Type,
		k.Side,
		k.Qty,
		k.Price,
		k.OrderID,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
