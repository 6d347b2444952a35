package detector

import (
	"context"
	"fmt"
	"fraud_detector/internal/domain"
	"fraud_detector/internal/ingest"
	"fraud_detector/internal/repository"
	"fraud_detector/pkg/validator"
	"io"
	"log/slog"
	"sort"
	"time"
)

// Screener runs the full pipeline for one uploaded batch: parse, normalize,
// validate, snapshot, detect. The snapshot is taken once per batch, before
// any rule runs, so concurrent reference updates never bleed into an
// evaluation already under way.
type Screener struct {
	refRepo    repository.ReferenceRepository
	detector   *FraudDetector
	normalizer *ingest.Normalizer
	mode       ingest.Mode
	logger     *slog.Logger
}

func NewScreener(
	refRepo repository.ReferenceRepository,
	det *FraudDetector,
	mode ingest.Mode,
	logger *slog.Logger,
) *Screener {
	if logger == nil {
		logger = slog.Default()
	}
	if mode == "" {
		mode = ingest.ModeLenient
	}

	return &Screener{
		refRepo:    refRepo,
		detector:   det,
		normalizer: ingest.NewNormalizer(),
		mode:       mode,
		logger:     logger,
	}
}

// ScreenBatch screens one CSV batch. Row failures are dropped and reported in
// lenient mode; in strict mode the first one aborts the batch with
// ErrMalformedRow and no partial results. The context deadline is checked
// here, at the submission boundary, never mid-rule.
func (s *Screener) ScreenBatch(ctx context.Context, r io.Reader) (*domain.ScreeningReport, error) {
	start := time.Now()

	records, rowErrs, err := ingest.ParseCSV(r)
	if err != nil {
		return nil, err
	}

	rows, normErrs := s.normalizer.Normalize(records)
	rowErrs = append(rowErrs, normErrs...)

	rows, dupErrs := validator.NewBatchValidator().ValidateBatch(rows)
	rowErrs = append(rowErrs, dupErrs...)

	sort.Slice(rowErrs, func(i, j int) bool { return rowErrs[i].Line < rowErrs[j].Line })

	if s.mode == ingest.ModeStrict && len(rowErrs) > 0 {
		first := rowErrs[0]
		return nil, fmt.Errorf("%w: line %d: %s", ingest.ErrMalformedRow, first.Line, first.Err)
	}

	if len(rowErrs) > 0 {
		s.logger.WarnContext(ctx, "Dropped rows from batch",
			slog.Int("dropped", len(rowErrs)))
	}

	batch := make([]domain.Transaction, len(rows))
	for i, row := range rows {
		batch[i] = row.Tx
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap, err := s.refRepo.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot reference data: %w", err)
	}

	flagged := s.detector.DetectFraud(ctx, batch, snap)

	return &domain.ScreeningReport{
		BatchSize:    len(batch),
		Flagged:      flagged,
		RowErrors:    rowErrs,
		ScreenedAt:   time.Now().UTC(),
		ScreeningDur: time.Since(start),
	}, nil
}
