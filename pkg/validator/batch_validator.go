package validator

import (
	"errors"
	"fmt"
	"fraud_detector/internal/domain"
	"fraud_detector/internal/ingest"
)

var (
	ErrMissingID        = errors.New("transaction id required")
	ErrMissingTimestamp = errors.New("transaction timestamp required")
	ErrDuplicateID      = errors.New("duplicate transaction id")
)

// BatchValidator enforces the invariants a normalized batch must satisfy
// before screening: every row carries an id and a timestamp, and no id
// appears twice. A fresh validator is used per batch; the duplicate check
// does not span batches.
type BatchValidator struct {
	seen map[string]struct{}
}

func NewBatchValidator() *BatchValidator {
	return &BatchValidator{
		seen: make(map[string]struct{}),
	}
}

// ValidateRow checks a single normalized transaction, including whether its
// id was already seen by this validator.
func (v *BatchValidator) ValidateRow(tx domain.Transaction) error {
	if tx.ID == "" {
		return ErrMissingID
	}
	if tx.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}

	if _, ok := v.seen[tx.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, tx.ID)
	}
	v.seen[tx.ID] = struct{}{}

	return nil
}

// ValidateBatch filters a batch down to its valid rows. Rows failing a check
// come back as row errors; on duplicate ids the first occurrence survives and
// the later ones are reported.
func (v *BatchValidator) ValidateBatch(rows []ingest.Row) ([]ingest.Row, []domain.RowError) {
	var (
		valid   []ingest.Row
		rowErrs []domain.RowError
	)
	for _, row := range rows {
		if err := v.ValidateRow(row.Tx); err != nil {
			rowErrs = append(rowErrs, domain.RowError{Line: row.Line, Err: err.Error()})
			continue
		}
		valid = append(valid, row)
	}
	return valid, rowErrs
}
