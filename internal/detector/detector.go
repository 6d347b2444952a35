package detector

import (
	"context"
	"fraud_detector/internal/domain"
	"log/slog"
	"slices"
	"sync"
)

// FraudDetector runs a fixed set of rules over a batch and folds their
// verdicts into one report. It keeps no state between batches: screening the
// same batch against the same snapshot twice yields identical output.
type FraudDetector struct {
	rules  []Rule
	logger *slog.Logger
}

func NewFraudDetector(rules []Rule, logger *slog.Logger) *FraudDetector {
	if logger == nil {
		logger = slog.Default()
	}
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &FraudDetector{
		rules:  rules,
		logger: logger,
	}
}

// DetectFraud evaluates every rule against the batch and the snapshot and
// returns the flagged transactions in batch order. Each rule runs in its own
// goroutine and writes into its own slot; the merge afterwards walks the
// slots in registration order, so reason lists are deterministic no matter
// how the goroutines interleave.
func (d *FraudDetector) DetectFraud(ctx context.Context, batch []domain.Transaction, snap *domain.ReferenceSnapshot) []domain.FlaggedTransaction {
	results := make([][]string, len(d.rules))

	var wg sync.WaitGroup
	for i, rule := range d.rules {
		wg.Add(1)
		go func(slot int, rule Rule) {
			defer wg.Done()
			results[slot] = rule.Check(batch, snap)
		}(i, rule)
	}
	wg.Wait()

	var verdicts []domain.RuleVerdict
	for i, ids := range results {
		name := d.rules[i].Name()
		d.logger.DebugContext(ctx, "Rule evaluated",
			slog.String("rule", name),
			slog.Int("hits", len(ids)))
		for _, id := range ids {
			verdicts = append(verdicts, domain.RuleVerdict{TransactionID: id, RuleName: name})
		}
	}

	reasons := make(map[string][]string)
	for _, v := range verdicts {
		if !slices.Contains(reasons[v.TransactionID], v.RuleName) {
			reasons[v.TransactionID] = append(reasons[v.TransactionID], v.RuleName)
		}
	}

	var flagged []domain.FlaggedTransaction
	for _, tx := range batch {
		ruleNames, ok := reasons[tx.ID]
		if !ok {
			continue
		}
		delete(reasons, tx.ID)
		flagged = append(flagged, domain.FlaggedTransaction{
			Transaction: tx,
			Reasons:     ruleNames,
		})
	}

	d.logger.InfoContext(ctx, "Batch screened",
		slog.Int("batch_size", len(batch)),
		slog.Int("flagged", len(flagged)))

	return flagged
}

// Rules exposes the registered rules in registration order.
func (d *FraudDetector) Rules() []Rule {
	return d.rules
}
