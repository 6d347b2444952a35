package memory

import (
	"context"
	"fmt"
	"fraud_detector/internal/domain"
	"fraud_detector/internal/repository"
	"sync"

	"github.com/shopspring/decimal"
)

// ReferenceRepository is the in-memory reference store. One mutex guards all
// three collections so Snapshot observes them at a single point in time;
// mutations serialize against each other and against snapshot reads.
type ReferenceRepository struct {
	mu             sync.RWMutex
	fraudMerchants map[string]struct{}
	whitelist      map[string]struct{}
	creditLimits   map[string]decimal.Decimal
}

func NewReferenceRepository() *ReferenceRepository {
	return &ReferenceRepository{
		fraudMerchants: make(map[string]struct{}),
		whitelist:      make(map[string]struct{}),
		creditLimits:   make(map[string]decimal.Decimal),
	}
}

func (r *ReferenceRepository) AddFraudMerchant(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: merchant name required", repository.ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.fraudMerchants[name] = struct{}{}
	return nil
}

func (r *ReferenceRepository) RemoveFraudMerchant(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: merchant name required", repository.ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.fraudMerchants[name]; !exists {
		return fmt.Errorf("%w: merchant %s not on fraud list", repository.ErrNotFound, name)
	}

	delete(r.fraudMerchants, name)
	return nil
}

func (r *ReferenceRepository) AddWhitelistMerchant(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: merchant name required", repository.ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.whitelist[name] = struct{}{}
	return nil
}

func (r *ReferenceRepository) RemoveWhitelistMerchant(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: merchant name required", repository.ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.whitelist[name]; !exists {
		return fmt.Errorf("%w: merchant %s not on whitelist", repository.ErrNotFound, name)
	}

	delete(r.whitelist, name)
	return nil
}

func (r *ReferenceRepository) SetCreditLimit(ctx context.Context, userID string, limit decimal.Decimal) error {
	if userID == "" {
		return fmt.Errorf("%w: user id required", repository.ErrInvalidArgument)
	}
	if limit.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: credit limit must be positive, got %s", repository.ErrInvalidArgument, limit)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.creditLimits[userID] = limit
	return nil
}

// Snapshot returns a deep copy of the reference data. Later mutations of the
// store never show through a snapshot already handed out.
func (r *ReferenceRepository) Snapshot(ctx context.Context) (*domain.ReferenceSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := &domain.ReferenceSnapshot{
		FraudMerchants:     make(map[string]struct{}, len(r.fraudMerchants)),
		WhitelistMerchants: make(map[string]struct{}, len(r.whitelist)),
		CreditLimits:       make(map[string]decimal.Decimal, len(r.creditLimits)),
	}
	for name := range r.fraudMerchants {
		snap.FraudMerchants[name] = struct{}{}
	}
	for name := range r.whitelist {
		snap.WhitelistMerchants[name] = struct{}{}
	}
	for userID, limit := range r.creditLimits {
		snap.CreditLimits[userID] = limit
	}

	return snap, nil
}
