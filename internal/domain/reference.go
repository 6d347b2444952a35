package domain

import (
	"github.com/shopspring/decimal"
)

// ReferenceSnapshot is a point-in-time copy of the reference data a batch is
// screened against: the fraudulent merchant list, the merchant whitelist and
// per-user credit limits. A batch takes exactly one snapshot before any rule
// runs, so every rule observes the same state even while the underlying store
// keeps accepting updates.
type ReferenceSnapshot struct {
	FraudMerchants     map[string]struct{}
	WhitelistMerchants map[string]struct{}
	CreditLimits       map[string]decimal.Decimal
}

func (s *ReferenceSnapshot) IsFraudMerchant(name string) bool {
	_, ok := s.FraudMerchants[name]
	return ok
}

func (s *ReferenceSnapshot) IsWhitelisted(name string) bool {
	_, ok := s.WhitelistMerchants[name]
	return ok
}

// CreditLimit reports the configured limit for a user. The second return
// value is false when the user has no explicit limit; callers decide which
// default applies.
func (s *ReferenceSnapshot) CreditLimit(userID string) (decimal.Decimal, bool) {
	limit, ok := s.CreditLimits[userID]
	return limit, ok
}
