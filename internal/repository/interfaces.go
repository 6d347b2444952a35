package repository

import (
	"context"
	"errors"
	"fraud_detector/internal/domain"

	"github.com/shopspring/decimal"
)

// ReferenceRepository holds the mutable reference data screening depends on:
// the fraudulent merchant list, the merchant whitelist and per-user credit
// limits. Mutations take effect for batches screened after them; an in-flight
// batch keeps the snapshot it already took.
type ReferenceRepository interface {
	AddFraudMerchant(ctx context.Context, name string) error
	RemoveFraudMerchant(ctx context.Context, name string) error
	AddWhitelistMerchant(ctx context.Context, name string) error
	RemoveWhitelistMerchant(ctx context.Context, name string) error
	SetCreditLimit(ctx context.Context, userID string, limit decimal.Decimal) error
	Snapshot(ctx context.Context) (*domain.ReferenceSnapshot, error)
}

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
)
