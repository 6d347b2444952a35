package domain

import "time"

// RuleVerdict records that a named rule flagged a transaction. Verdicts are
// the only thing rules hand back; the aggregator folds them into
// FlaggedTransaction reasons.
type RuleVerdict struct {
	TransactionID string `json:"transaction_id"`
	RuleName      string `json:"rule_name"`
}

// RowError describes a batch row that could not be normalized. Line counts
// from 1 and includes the header row, matching what an operator sees in the
// uploaded file.
type RowError struct {
	Line int    `json:"line"`
	Err  string `json:"error"`
}

// ScreeningReport is the full outcome of screening one batch.
type ScreeningReport struct {
	BatchSize    int                  `json:"batch_size"`
	Flagged      []FlaggedTransaction `json:"flagged_transactions"`
	RowErrors    []RowError           `json:"row_errors,omitempty"`
	ScreenedAt   time.Time            `json:"screened_at"`
	ScreeningDur time.Duration        `json:"-"`
}
