// Package reconciler matches a merchant ledger against a bank ledger.
//
// Records are paired by normalized transaction identifier. Each merchant
// record produces exactly one MatchRecord; every bank record left unpaired
// afterwards produces a missing_in_merchant record. Amount differences up to
// the configured tolerance count as matched.
//
// Reconcile is a pure function over well-formed input: it performs no I/O,
// does not log, and never fails. Validating identifiers, dates and amounts is
// the job of the parsers package.
//
// Example usage:
//
//	result := reconciler.Reconcile(merchant, bank, reconciler.Config{
//		AmountTolerance: decimal.RequireFromString("0.05"),
//	})
//	fmt.Println(result.Totals.Matched)
package reconciler

import (
	"fmt"
	"strings"

	"ledger-reconciler/internal/models"

	"github.com/shopspring/decimal"
)

// Config holds the matching options for one reconciliation
type Config struct {
	// AmountTolerance is the largest absolute difference, after rounding to
	// cents, that still counts as matched. The zero value requires an exact match.
	AmountTolerance decimal.Decimal `json:"amountTolerance" mapstructure:"amount_tolerance"`
}

// DefaultConfig returns a configuration that only accepts exact amounts
func DefaultConfig() Config {
	return Config{AmountTolerance: decimal.Zero}
}

// Validate rejects settings that Reconcile would silently misinterpret
func (c Config) Validate() error {
	if c.AmountTolerance.IsNegative() {
		return fmt.Errorf("amount tolerance cannot be negative, got %s", c.AmountTolerance.String())
	}
	return nil
}

// NormalizeID returns the matching key for a transaction identifier:
// surrounding whitespace removed and lowercased. An empty or blank
// identifier yields the empty key, so blank identifiers match each other.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// bankLookup maps normalized identifiers to bank records and remembers the
// order in which keys were first seen. A repeated key replaces the stored
// record but keeps its original position.
type bankLookup struct {
	keys    []string
	records map[string]*models.BankTransaction
}

func newBankLookup(bank []models.BankTransaction) *bankLookup {
	lookup := &bankLookup{
		keys:    make([]string, 0, len(bank)),
		records: make(map[string]*models.BankTransaction, len(bank)),
	}
	for i := range bank {
		key := NormalizeID(bank[i].TransactionID)
		if _, seen := lookup.records[key]; !seen {
			lookup.keys = append(lookup.keys, key)
		}
		lookup.records[key] = &bank[i]
	}
	return lookup
}

// take returns and consumes the record stored under key
func (l *bankLookup) take(key string) (*models.BankTransaction, bool) {
	record, ok := l.records[key]
	if ok {
		delete(l.records, key)
	}
	return record, ok
}

// remaining returns unconsumed records in first-seen key order
func (l *bankLookup) remaining() []*models.BankTransaction {
	var out []*models.BankTransaction
	for _, key := range l.keys {
		if record, ok := l.records[key]; ok {
			out = append(out, record)
		}
	}
	return out
}

// Reconcile pairs merchant and bank records and computes run totals.
//
// When several bank records share a normalized identifier the last one wins
// and the earlier ones are dropped from the result and from the bank totals.
// The returned records reference the elements of the input slices; callers
// must not mutate the inputs while the result is in use.
func Reconcile(merchant []models.MerchantTransaction, bank []models.BankTransaction, cfg Config) *models.ReconciliationResult {
	lookup := newBankLookup(bank)
	matches := make([]models.MatchRecord, 0, len(merchant)+len(bank))

	for i := range merchant {
		m := &merchant[i]
		b, ok := lookup.take(NormalizeID(m.TransactionID))
		if !ok {
			matches = append(matches, models.MatchRecord{
				TransactionID: m.TransactionID,
				Merchant:      m,
				Status:        models.StatusMissingInBank,
				Diff:          decimal.Zero,
				Reason:        models.ReasonMissingInBank,
			})
			continue
		}
		matches = append(matches, compare(m, b, cfg.AmountTolerance))
	}

	for _, b := range lookup.remaining() {
		matches = append(matches, models.MatchRecord{
			TransactionID: b.TransactionID,
			Bank:          b,
			Status:        models.StatusMissingInMerchant,
			Diff:          decimal.Zero,
			Reason:        models.ReasonMissingInMerchant,
		})
	}

	return &models.ReconciliationResult{
		Matches: matches,
		Totals:  ComputeTotals(matches),
	}
}

// compare classifies a merchant record against the bank record sharing its key
func compare(m *models.MerchantTransaction, b *models.BankTransaction, tolerance decimal.Decimal) models.MatchRecord {
	record := models.MatchRecord{
		TransactionID: m.TransactionID,
		Merchant:      m,
		Bank:          b,
		Diff:          decimal.Zero,
	}

	diff := models.Round2(b.Amount.Sub(m.Amount))
	switch {
	case diff.IsZero():
		record.Status = models.StatusMatched
		record.Reason = models.ReasonExactID
	case diff.Abs().LessThanOrEqual(tolerance):
		record.Status = models.StatusMatched
		record.Reason = models.ReasonAmountTolerance
	default:
		record.Status = models.StatusAmountMismatch
		record.Reason = models.ReasonAmountMismatch
		record.Diff = diff
	}
	return record
}

// ComputeTotals aggregates match records in a single pass. Each side is
// counted and summed only from records that carry that side.
func ComputeTotals(matches []models.MatchRecord) models.Totals {
	totals := models.Totals{
		SumMerchant: decimal.Zero,
		SumBank:     decimal.Zero,
	}

	for _, m := range matches {
		if m.Merchant != nil {
			totals.MerchantCount++
			totals.SumMerchant = totals.SumMerchant.Add(m.Merchant.Amount)
		}
		if m.Bank != nil {
			totals.BankCount++
			totals.SumBank = totals.SumBank.Add(m.Bank.Amount)
		}

		switch m.Status {
		case models.StatusMatched:
			totals.Matched++
		case models.StatusMissingInBank:
			totals.MissingInBank++
		case models.StatusMissingInMerchant:
			totals.MissingInMerchant++
		case models.StatusAmountMismatch:
			totals.AmountMismatch++
		}
	}

	totals.SumDiff = models.Round2(totals.SumBank.Sub(totals.SumMerchant))
	totals.SumMerchant = models.Round2(totals.SumMerchant)
	totals.SumBank = models.Round2(totals.SumBank)

	return totals
}
