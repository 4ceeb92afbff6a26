package domain

import (
	"fmt"
	"strings"
)

// Category is an exchange instrument category.
type Category string

const (
	CategoryLinear  Category = "linear"
	CategoryInverse Category = "inverse"
	CategorySpot    Category = "spot"
	CategoryOption  Category = "option"
)

// AllCategories returns the categories synchronized by default.
func AllCategories() []Category {
	return []Category{CategoryLinear, CategoryInverse, CategorySpot, CategoryOption}
}

// ParseCategory parses a category name (case-insensitive).
func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryLinear, CategoryInverse, CategorySpot, CategoryOption:
		return c, nil
	default:
		return "", fmt.Errorf("unknown category %q", s)
	}
}

// ParseCategories parses a comma-separated category list.
func ParseCategories(s string) ([]Category, error) {
	var out []Category
	seen := make(map[Category]bool)
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		c, err := ParseCategory(part)
		if err != nil {
			return nil, err
		}
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out, nil
}

// TransactionType classifies a transaction for replay.
type TransactionType string

const (
	TypeTrade      TransactionType = "TRADE"
	TypeDelivery   TransactionType = "DELIVERY"
	TypeSettlement TransactionType = "SETTLEMENT"
)

// Side is the trade direction. Empty for unsided entries.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
	SideNone Side = ""
)

// ParseSide normalizes exchange side strings ("Buy", "sell", "").
func ParseSide(s string) Side {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return SideBuy
	case "SELL":
		return SideSell
	default:
		return SideNone
	}
}
