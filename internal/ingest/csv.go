package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"fraud_detector/internal/domain"
	"io"
	"strings"
)

var (
	// ErrInvalidInput marks a batch that cannot be screened at all: empty
	// input, unreadable CSV or a header lacking a required column.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMalformedRow marks a batch aborted in strict mode because at least
	// one row could not be normalized.
	ErrMalformedRow = errors.New("malformed transaction")
)

const (
	colTransactionID = "transaction_id"
	colUserID        = "user_id"
	colTimestamp     = "timestamp"
	colMerchantName  = "merchant_name"
	colAmount        = "amount"
)

var requiredColumns = []string{colUserID, colTimestamp, colMerchantName, colAmount}

// Mode selects how row-level failures are handled. Lenient screening drops
// bad rows and reports them alongside the results; strict screening rejects
// the whole batch on the first bad row.
type Mode string

const (
	ModeLenient Mode = "lenient"
	ModeStrict  Mode = "strict"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLenient, ModeStrict:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown ingest mode %q", s)
	}
}

// Record is one data row of an uploaded batch, keyed by header column.
// Line is the 1-based position in the source file; the header is line 1.
type Record struct {
	Line   int
	Fields map[string]string
}

// ParseCSV reads a whole batch into records. The first row must be a header
// carrying at least user_id, timestamp, merchant_name and amount; a
// transaction_id column is optional. Rows whose field count does not match
// the header come back as row errors, everything structurally worse fails
// the batch with ErrInvalidInput. A header with no data rows is an empty
// batch, not an error.
func ParseCSV(r io.Reader) ([]Record, []domain.RowError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: empty batch", ErrInvalidInput)
	}

	header := rows[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if err := checkHeader(header); err != nil {
		return nil, nil, err
	}

	var (
		records []Record
		rowErrs []domain.RowError
	)
	for i, row := range rows[1:] {
		line := i + 2
		if len(row) != len(header) {
			rowErrs = append(rowErrs, domain.RowError{
				Line: line,
				Err:  fmt.Sprintf("expected %d fields, got %d", len(header), len(row)),
			})
			continue
		}
		fields := make(map[string]string, len(header))
		for j, col := range header {
			fields[col] = row[j]
		}
		records = append(records, Record{Line: line, Fields: fields})
	}

	return records, rowErrs, nil
}

func checkHeader(header []string) error {
	have := make(map[string]struct{}, len(header))
	for _, col := range header {
		have[col] = struct{}{}
	}
	for _, col := range requiredColumns {
		if _, ok := have[col]; !ok {
			return fmt.Errorf("%w: missing required column %q", ErrInvalidInput, col)
		}
	}
	return nil
}
