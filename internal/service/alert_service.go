package service

import (
	"context"
	"fmt"
	"fraud_detector/internal/domain"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Alert is one outgoing fraud alert for a flagged transaction.
type Alert struct {
	TransactionID string
	UserID        string
	MerchantName  string
	Amount        decimal.Decimal
	Reasons       []string
	CreatedAt     time.Time
}

// Sink delivers alerts to some destination. Implementations must be safe for
// concurrent use; the alert service calls them from multiple workers.
type Sink interface {
	Deliver(alert Alert) error
}

// AlertService fans out alerts for flagged transactions through a bounded
// queue and a fixed pool of workers. Only transactions flagged by at least
// minReasons rules produce an alert; single-rule hits stay in the report.
type AlertService struct {
	sinks        []Sink
	alertQueue   chan Alert
	minReasons   int
	workers      int
	shutdownChan chan struct{}
	wg           sync.WaitGroup
	logger       *slog.Logger
}

func NewAlertService(sinks []Sink, minReasons, workers int, logger *slog.Logger) *AlertService {
	if logger == nil {
		logger = slog.Default()
	}
	if minReasons < 1 {
		minReasons = 1
	}
	if workers < 1 {
		workers = 1
	}

	s := &AlertService{
		sinks:        sinks,
		alertQueue:   make(chan Alert, 1000),
		minReasons:   minReasons,
		workers:      workers,
		shutdownChan: make(chan struct{}),
		logger:       logger,
	}

	s.startWorkers()

	return s
}

// NotifyReport queues alerts for every flagged transaction in the report that
// crossed the reason threshold.
func (s *AlertService) NotifyReport(ctx context.Context, report *domain.ScreeningReport) error {
	for _, ft := range report.Flagged {
		if len(ft.Reasons) < s.minReasons {
			continue
		}

		alert := Alert{
			TransactionID: ft.ID,
			UserID:        ft.UserID,
			MerchantName:  ft.MerchantName,
			Amount:        ft.Amount,
			Reasons:       ft.Reasons,
			CreatedAt:     time.Now(),
		}

		select {
		case s.alertQueue <- alert:
			s.logger.WarnContext(ctx, "Fraud alert queued",
				slog.String("transaction_id", alert.TransactionID),
				slog.String("user_id", alert.UserID),
				slog.Int("reasons", len(alert.Reasons)))
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func (s *AlertService) startWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *AlertService) worker(id int) {
	defer s.wg.Done()

	s.logger.Info("Alert worker started", slog.Int("worker_id", id))

	for {
		select {
		case alert := <-s.alertQueue:
			s.deliverAlert(alert, id)
		case <-s.shutdownChan:
			s.logger.Info("Alert worker stopping", slog.Int("worker_id", id))
			return
		}
	}
}

func (s *AlertService) deliverAlert(alert Alert, workerID int) {
	startTime := time.Now()

	for _, sink := range s.sinks {
		if err := sink.Deliver(alert); err != nil {
			s.logger.Error("Failed to deliver alert",
				slog.String("transaction_id", alert.TransactionID),
				slog.String("error", err.Error()),
				slog.Int("worker_id", workerID),
				slog.Duration("duration", time.Since(startTime)))
			continue
		}
	}
}

func (s *AlertService) Shutdown(ctx context.Context) error {
	close(s.shutdownChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Alert service shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSink writes alerts to the service log. It is the default sink when no
// external destination is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (l *LogSink) Deliver(alert Alert) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Warn("Fraud alert",
		slog.String("transaction_id", alert.TransactionID),
		slog.String("user_id", alert.UserID),
		slog.String("merchant_name", alert.MerchantName),
		slog.String("amount", alert.Amount.String()),
		slog.String("reasons", strings.Join(alert.Reasons, ",")))

	return nil
}

// MockSink records delivered alerts for tests.
type MockSink struct {
	mu        sync.Mutex
	delivered []Alert
	FailWith  error
}

func (m *MockSink) Deliver(alert Alert) error {
	if m.FailWith != nil {
		return fmt.Errorf("mock sink: %w", m.FailWith)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered = append(m.delivered, alert)
	return nil
}

func (m *MockSink) Delivered() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Alert(nil), m.delivered...)
}
