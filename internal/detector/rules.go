package detector

import (
	"fraud_detector/internal/domain"
	"time"

	"github.com/shopspring/decimal"
)

// Rule inspects a whole normalized batch against one reference snapshot and
// returns the IDs of the transactions it flags. Implementations are read-only
// with respect to both arguments and hold no state between batches, which is
// what allows the detector to run them concurrently.
type Rule interface {
	Name() string
	Check(batch []domain.Transaction, snap *domain.ReferenceSnapshot) []string
}

var (
	defaultHighAmountThreshold    = decimal.NewFromInt(10000)
	defaultTotalSpendingThreshold = decimal.NewFromInt(50000)
	defaultCreditUtilization      = decimal.NewFromFloat(0.3)

	// DefaultCreditLimit applies to users without an explicit limit.
	DefaultCreditLimit = decimal.NewFromInt(5000)
)

var (
	_ Rule = (*HighAmountRule)(nil)
	_ Rule = (*TotalSpendingRule)(nil)
	_ Rule = (*FraudulentMerchantRule)(nil)
	_ Rule = (*HighTransactionCountRule)(nil)
	_ Rule = (*WhitelistMerchantRule)(nil)
	_ Rule = (*RapidFireTransactionRule)(nil)
	_ Rule = (*CreditLimitRule)(nil)
)

// DefaultRules returns the standard rule set in its fixed registration order.
// Reason lists on flagged transactions follow this order.
func DefaultRules() []Rule {
	return []Rule{
		NewHighAmountRule(),
		NewTotalSpendingRule(),
		NewFraudulentMerchantRule(),
		NewHighTransactionCountRule(),
		NewWhitelistMerchantRule(),
		NewRapidFireTransactionRule(),
		NewCreditLimitRule(),
	}
}

// HighAmountRule flags any single transaction whose amount strictly exceeds
// the threshold.
type HighAmountRule struct {
	Threshold decimal.Decimal
}

func NewHighAmountRule() *HighAmountRule {
	return &HighAmountRule{Threshold: defaultHighAmountThreshold}
}

func (r *HighAmountRule) Name() string { return "HighAmountRule" }

func (r *HighAmountRule) Check(batch []domain.Transaction, _ *domain.ReferenceSnapshot) []string {
	var flagged []string
	for _, tx := range batch {
		if tx.Amount.GreaterThan(r.Threshold) {
			flagged = append(flagged, tx.ID)
		}
	}
	return flagged
}

// TotalSpendingRule flags every transaction of a user whose trailing 24h
// spending, measured at that transaction, strictly exceeds the threshold.
type TotalSpendingRule struct {
	Threshold decimal.Decimal
	Window    time.Duration
}

func NewTotalSpendingRule() *TotalSpendingRule {
	return &TotalSpendingRule{
		Threshold: defaultTotalSpendingThreshold,
		Window:    24 * time.Hour,
	}
}

func (r *TotalSpendingRule) Name() string { return "TotalSpendingRule" }

func (r *TotalSpendingRule) Check(batch []domain.Transaction, _ *domain.ReferenceSnapshot) []string {
	sums := RollingSum(batch, r.Window, byUser)
	var flagged []string
	for i, tx := range batch {
		if sums[i].GreaterThan(r.Threshold) {
			flagged = append(flagged, tx.ID)
		}
	}
	return flagged
}

// FraudulentMerchantRule flags transactions whose merchant appears on the
// fraudulent merchant list of the snapshot.
type FraudulentMerchantRule struct{}

func NewFraudulentMerchantRule() *FraudulentMerchantRule {
	return &FraudulentMerchantRule{}
}

func (r *FraudulentMerchantRule) Name() string { return "FraudulentMerchantRule" }

func (r *FraudulentMerchantRule) Check(batch []domain.Transaction, snap *domain.ReferenceSnapshot) []string {
	var flagged []string
	for _, tx := range batch {
		if snap.IsFraudMerchant(tx.MerchantName) {
			flagged = append(flagged, tx.ID)
		}
	}
	return flagged
}

// HighTransactionCountRule flags every transaction of a user with strictly
// more than MaxCount transactions inside the trailing window.
type HighTransactionCountRule struct {
	MaxCount int
	Window   time.Duration
}

func NewHighTransactionCountRule() *HighTransactionCountRule {
	return &HighTransactionCountRule{MaxCount: 10, Window: time.Hour}
}

func (r *HighTransactionCountRule) Name() string { return "HighTransactionCountRule" }

func (r *HighTransactionCountRule) Check(batch []domain.Transaction, _ *domain.ReferenceSnapshot) []string {
	counts := RollingCount(batch, r.Window, byUser)
	var flagged []string
	for i, tx := range batch {
		if counts[i] > r.MaxCount {
			flagged = append(flagged, tx.ID)
		}
	}
	return flagged
}

// WhitelistMerchantRule flags bursts of activity at merchants that are not on
// the whitelist: MinCount or more transactions at one merchant inside the
// trailing window. Whitelisted merchants are exempt however busy they get.
type WhitelistMerchantRule struct {
	MinCount int
	Window   time.Duration
}

func NewWhitelistMerchantRule() *WhitelistMerchantRule {
	return &WhitelistMerchantRule{MinCount: 100, Window: time.Hour}
}

func (r *WhitelistMerchantRule) Name() string { return "WhitelistMerchantRule" }

func (r *WhitelistMerchantRule) Check(batch []domain.Transaction, snap *domain.ReferenceSnapshot) []string {
	counts := RollingCount(batch, r.Window, byMerchant)
	var flagged []string
	for i, tx := range batch {
		if snap.IsWhitelisted(tx.MerchantName) {
			continue
		}
		if counts[i] >= r.MinCount {
			flagged = append(flagged, tx.ID)
		}
	}
	return flagged
}

// RapidFireTransactionRule flags every transaction of a user who made
// MinCount or more transactions within the trailing window. The window is a
// minute by default, so a flagged run reads as machine-speed activity.
type RapidFireTransactionRule struct {
	MinCount int
	Window   time.Duration
}

func NewRapidFireTransactionRule() *RapidFireTransactionRule {
	return &RapidFireTransactionRule{MinCount: 5, Window: time.Minute}
}

func (r *RapidFireTransactionRule) Name() string { return "RapidFireTransactionRule" }

func (r *RapidFireTransactionRule) Check(batch []domain.Transaction, _ *domain.ReferenceSnapshot) []string {
	counts := RollingCount(batch, r.Window, byUser)
	var flagged []string
	for i, tx := range batch {
		if counts[i] >= r.MinCount {
			flagged = append(flagged, tx.ID)
		}
	}
	return flagged
}

// CreditLimitRule flags every transaction of a user whose trailing 24h
// spending strictly exceeds the utilization share of their credit limit.
// Users without a configured limit fall back to DefaultLimit.
type CreditLimitRule struct {
	Utilization  decimal.Decimal
	Window       time.Duration
	DefaultLimit decimal.Decimal
}

func NewCreditLimitRule() *CreditLimitRule {
	return &CreditLimitRule{
		Utilization:  defaultCreditUtilization,
		Window:       24 * time.Hour,
		DefaultLimit: DefaultCreditLimit,
	}
}

func (r *CreditLimitRule) Name() string { return "CreditLimitRule" }

func (r *CreditLimitRule) Check(batch []domain.Transaction, snap *domain.ReferenceSnapshot) []string {
	sums := RollingSum(batch, r.Window, byUser)
	var flagged []string
	for i, tx := range batch {
		limit, ok := snap.CreditLimit(tx.UserID)
		if !ok {
			limit = r.DefaultLimit
		}
		if sums[i].GreaterThan(limit.Mul(r.Utilization)) {
			flagged = append(flagged, tx.ID)
		}
	}
	return flagged
}

func byUser(tx domain.Transaction) string     { return tx.UserID }
func byMerchant(tx domain.Transaction) string { return tx.MerchantName }
