package ingest

import (
	"fmt"
	"fraud_detector/internal/domain"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Row pairs a normalized transaction with the source line it came from, so
// later pipeline stages can still point at the uploaded file.
type Row struct {
	Line int
	Tx   domain.Transaction
}

// timestampLayouts are tried in order. Rows matching none of them are
// malformed; guessing a timestamp would silently move transactions between
// windows.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalizer turns raw records into screening-ready transactions: generated
// ids where the id column is absent or empty, the sentinel value for missing
// user and merchant fields, zero for missing amounts.
type Normalizer struct {
	Sentinel string
	NewID    func() string
}

func NewNormalizer() *Normalizer {
	return &Normalizer{
		Sentinel: domain.UnknownValue,
		NewID:    uuid.NewString,
	}
}

// Normalize converts every record it can and reports the rest as row errors.
// Policy for those errors belongs to the caller; Normalize itself never
// rejects a batch.
func (n *Normalizer) Normalize(records []Record) ([]Row, []domain.RowError) {
	var (
		rows    []Row
		rowErrs []domain.RowError
	)
	for _, rec := range records {
		tx, err := n.normalizeRecord(rec)
		if err != nil {
			rowErrs = append(rowErrs, domain.RowError{Line: rec.Line, Err: err.Error()})
			continue
		}
		rows = append(rows, Row{Line: rec.Line, Tx: tx})
	}
	return rows, rowErrs
}

func (n *Normalizer) normalizeRecord(rec Record) (domain.Transaction, error) {
	ts, err := parseTimestamp(rec.Fields[colTimestamp])
	if err != nil {
		return domain.Transaction{}, err
	}

	amount, err := parseAmount(rec.Fields[colAmount])
	if err != nil {
		return domain.Transaction{}, err
	}

	id := rec.Fields[colTransactionID]
	if id == "" {
		id = n.NewID()
	}

	tx := domain.Transaction{
		ID:           id,
		UserID:       n.orSentinel(rec.Fields[colUserID]),
		Timestamp:    ts,
		MerchantName: n.orSentinel(rec.Fields[colMerchantName]),
		Amount:       amount,
	}
	for col, val := range rec.Fields {
		switch col {
		case colTransactionID, colUserID, colTimestamp, colMerchantName, colAmount:
		default:
			tx.AddExtra(col, val)
		}
	}
	return tx, nil
}

func (n *Normalizer) orSentinel(v string) string {
	if v == "" {
		return n.Sentinel
	}
	return v
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("timestamp required")
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}
