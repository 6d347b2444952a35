package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnknownValue fills user and merchant fields that arrive empty, so rules
// can group by them without special-casing missing data.
const UnknownValue = "Unknown"

// Transaction is a single normalized row of an uploaded batch. Instances are
// built once by the ingest layer and never mutated afterwards; rules and the
// aggregator treat batches as read-only.
type Transaction struct {
	ID           string            `json:"transaction_id"`
	UserID       string            `json:"user_id"`
	Timestamp    time.Time         `json:"timestamp"`
	MerchantName string            `json:"merchant_name"`
	Amount       decimal.Decimal   `json:"amount"`
	Extra        map[string]string `json:"extra,omitempty"`
}

func (tx *Transaction) AddExtra(key, value string) {
	if tx.Extra == nil {
		tx.Extra = make(map[string]string)
	}
	tx.Extra[key] = value
}

// FlaggedTransaction pairs a transaction with the names of every rule that
// fired on it. Reasons follow rule registration order and contain no
// duplicates.
type FlaggedTransaction struct {
	Transaction
	Reasons []string `json:"reasons"`
}
