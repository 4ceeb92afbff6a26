package idhash

import (
	"testing"
)

func TestComputeTransactionID(t *testing.T) {
	tests := []struct {
		name string
		key  TransactionKey
	}{
		{
			name: "option delivery",
			key: TransactionKey{
				Category:  "option",
				Symbol:    "BTC-27DEC24-30000-C",
				Timestamp: 1735286400000,
				Type:      "DELIVERY",
				Qty:       "1",
			},
		},
		{
			name: "linear trade",
			key: TransactionKey{
				Category:  "linear",
				Symbol:    "BTCUSDT",
				Timestamp: 1704067234567,
				Type:      "TRADE",
				Side:      "SELL",
				Qty:       "0.01",
				Price:     "42000",
				OrderID:   "o-1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTransactionID(tt.key)

			if len(got) != 64 {
				t.Errorf("ComputeTransactionID() length = %d, want 64", len(got))
			}

			got2 := ComputeTransactionID(tt.key)
			if got != got2 {
				t.Errorf("ComputeTransactionID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeTransactionID_Uniqueness(t *testing.T) {
	base := TransactionKey{Category: "linear", Symbol: "BTCUSDT", Timestamp: 1, Type: "TRADE", Side: "BUY", Qty: "1", Price: "100"}

	variants := []TransactionKey{base}
	for _, mutate := range []func(*TransactionKey){
		func(k *TransactionKey) { k.Category = "inverse" },
		func(k *TransactionKey) { k.Symbol = "ETHUSDT" },
		func(k *TransactionKey) { k.Timestamp = 2 },
		func(k *TransactionKey) { k.Side = "SELL" },
		func(k *TransactionKey) { k.Qty = "2" },
		func(k *TransactionKey) { k.Price = "101" },
		func(k *TransactionKey) { k.OrderID = "x" },
	} {
		k := base
		mutate(&k)
		variants = append(variants, k)
	}

	seen := make(map[string]int)
	for i, k := range variants {
		id := ComputeTransactionID(k)
		if j, dup := seen[id]; dup {
			t.Errorf("variants %d and %d collide: %s", j, i, id)
		}
		seen[id] = i
	}
}
