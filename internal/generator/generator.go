// Package generator produces seeded sample ledgers for demos and load tests.
//
// A Scenario describes how many merchant records to create and how often each
// kind of discrepancy should appear. The same seed always produces the same
// files, and Dataset.Expected records what was injected so callers can check a
// reconciliation run against it.
package generator

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"ledger-reconciler/internal/models"
	"ledger-reconciler/internal/parsers"
	"ledger-reconciler/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// MerchantFileName and BankFileName are the names used by WriteFiles
	MerchantFileName = "merchant.csv"
	BankFileName     = "bank.csv"
)

var (
	currencies = []string{"USD", "USD", "USD", "EUR", "GBP"}
	methods    = []string{"card", "card", "ach", "wire"}
	cardFee    = decimal.RequireFromString("0.029")
	noise      = decimal.RequireFromString("0.01")
)

// Scenario controls the shape of a generated dataset
type Scenario struct {
	Count                 int       `mapstructure:"count"`
	MissingInBankRate     float64   `mapstructure:"missing_in_bank_rate"`
	MissingInMerchantRate float64   `mapstructure:"missing_in_merchant_rate"`
	MismatchRate          float64   `mapstructure:"mismatch_rate"`
	ToleranceNoiseRate    float64   `mapstructure:"tolerance_noise_rate"`
	DuplicateBankRate     float64   `mapstructure:"duplicate_bank_rate"`
	StartDate             time.Time `mapstructure:"start_date"`
	Days                  int       `mapstructure:"days"`
	Seed                  int64     `mapstructure:"seed"`
}

// DefaultScenario returns a month of mostly clean data with a few of each exception
func DefaultScenario() Scenario {
	return Scenario{
		Count:                 100,
		MissingInBankRate:     0.05,
		MissingInMerchantRate: 0.03,
		MismatchRate:          0.05,
		ToleranceNoiseRate:    0.05,
		DuplicateBankRate:     0.02,
		StartDate:             time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Days:                  30,
		Seed:                  1,
	}
}

// Validate validates the scenario
func (s Scenario) Validate() error {
	if s.Count < 0 {
		return fmt.Errorf("count cannot be negative, got %d", s.Count)
	}
	if s.Days < 1 {
		return fmt.Errorf("days must be at least 1, got %d", s.Days)
	}
	rates := map[string]float64{
		"missing_in_bank_rate":     s.MissingInBankRate,
		"missing_in_merchant_rate": s.MissingInMerchantRate,
		"mismatch_rate":            s.MismatchRate,
		"tolerance_noise_rate":     s.ToleranceNoiseRate,
		"duplicate_bank_rate":      s.DuplicateBankRate,
	}
	for name, rate := range rates {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %g", name, rate)
		}
	}
	if s.MissingInBankRate+s.MismatchRate+s.ToleranceNoiseRate > 1 {
		return fmt.Errorf("missing_in_bank_rate, mismatch_rate and tolerance_noise_rate must not add up to more than 1")
	}
	return nil
}

// Expected counts what a generated dataset contains by construction
type Expected struct {
	Exact             int
	ToleranceNoise    int
	AmountMismatch    int
	MissingInBank     int
	MissingInMerchant int
	DuplicateBank     int
}

// Dataset is a generated pair of ledgers
type Dataset struct {
	Merchant []models.MerchantTransaction
	Bank     []models.BankTransaction
	Expected Expected
}

// Generate builds a dataset for the scenario. Merchant identifiers are seeded
// UUIDs. Their bank-side copies are randomly re-cased and padded.
func Generate(s Scenario) (*Dataset, error) {
	if err := s.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "scenario", s, err)
	}

	rng := rand.New(rand.NewSource(s.Seed))
	g := &gen{rng: rng, scenario: s}
	ds := &Dataset{
		Merchant: make([]models.MerchantTransaction, 0, s.Count),
		Bank:     make([]models.BankTransaction, 0, s.Count),
	}

	for i := 0; i < s.Count; i++ {
		m := g.merchant()
		ds.Merchant = append(ds.Merchant, m)

		roll := rng.Float64()
		var amount decimal.Decimal
		switch {
		case roll < s.MissingInBankRate:
			ds.Expected.MissingInBank++
			continue
		case roll < s.MissingInBankRate+s.MismatchRate:
			ds.Expected.AmountMismatch++
			amount = m.Amount.Add(g.mismatch())
		case roll < s.MissingInBankRate+s.MismatchRate+s.ToleranceNoiseRate:
			ds.Expected.ToleranceNoise++
			if rng.Intn(2) == 0 {
				amount = m.Amount.Add(noise)
			} else {
				amount = m.Amount.Sub(noise)
			}
		default:
			ds.Expected.Exact++
			amount = m.Amount
		}

		b := models.BankTransaction{
			TransactionID: g.scramble(m.TransactionID),
			Date:          m.Date.AddDate(0, 0, rng.Intn(3)),
			Amount:        amount,
			Currency:      m.Currency,
			Description:   fmt.Sprintf("%s settlement", strings.ToUpper(m.Method)),
		}
		ds.Bank = append(ds.Bank, b)

		if rng.Float64() < s.DuplicateBankRate {
			ds.Expected.DuplicateBank++
			dup := b
			dup.TransactionID = g.scramble(m.TransactionID)
			ds.Bank = append(ds.Bank, dup)
		}
	}

	bankOnly := int(float64(s.Count)*s.MissingInMerchantRate + 0.5)
	for i := 0; i < bankOnly; i++ {
		ds.Expected.MissingInMerchant++
		ds.Bank = append(ds.Bank, models.BankTransaction{
			TransactionID: g.id(),
			Date:          g.date(),
			Amount:        g.amount(),
			Currency:      "USD",
			Description:   "UNMATCHED DEPOSIT",
		})
	}

	return ds, nil
}

type gen struct {
	rng      *rand.Rand
	scenario Scenario
}

func (g *gen) id() string {
	id, err := uuid.NewRandomFromReader(g.rng)
	if err != nil {
		// *rand.Rand never fails to read
		panic(err)
	}
	return strings.ToUpper(id.String())
}

func (g *gen) date() time.Time {
	return g.scenario.StartDate.AddDate(0, 0, g.rng.Intn(g.scenario.Days))
}

// amount returns 1.00 to 500.00, negative one time in twenty for refunds
func (g *gen) amount() decimal.Decimal {
	cents := decimal.NewFromInt(int64(100 + g.rng.Intn(49901)))
	amount := cents.Shift(-2)
	if g.rng.Intn(20) == 0 {
		return amount.Neg()
	}
	return amount
}

// mismatch returns a difference of at least one unit in either direction
func (g *gen) mismatch() decimal.Decimal {
	delta := decimal.NewFromInt(int64(100 + g.rng.Intn(2000))).Shift(-2)
	if g.rng.Intn(2) == 0 {
		return delta.Neg()
	}
	return delta
}

func (g *gen) merchant() models.MerchantTransaction {
	m := models.MerchantTransaction{
		TransactionID: g.id(),
		Date:          g.date(),
		Amount:        g.amount(),
		Currency:      currencies[g.rng.Intn(len(currencies))],
		Method:        methods[g.rng.Intn(len(methods))],
	}
	if m.Method == "card" {
		fee := models.Round2(m.Amount.Abs().Mul(cardFee))
		m.Fee = &fee
	}
	return m
}

// scramble returns id with random letter case and optional surrounding spaces
func (g *gen) scramble(id string) string {
	var b strings.Builder
	for _, r := range id {
		if g.rng.Intn(2) == 0 {
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	switch g.rng.Intn(4) {
	case 0:
		return " " + b.String()
	case 1:
		return b.String() + "  "
	}
	return b.String()
}

// WriteMerchantCSV writes merchant records with a header row
func WriteMerchantCSV(w io.Writer, records []models.MerchantTransaction) error {
	cw := csv.NewWriter(w)
	header := []string{
		parsers.ColumnTransactionID,
		parsers.ColumnDate,
		parsers.ColumnAmount,
		parsers.ColumnCurrency,
		parsers.ColumnMethod,
		parsers.ColumnFee,
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, m := range records {
		fee := ""
		if m.Fee != nil {
			fee = m.Fee.StringFixed(2)
		}
		row := []string{m.TransactionID, m.Date.Format(models.DateLayout), m.Amount.StringFixed(2), m.Currency, m.Method, fee}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteBankCSV writes bank records with a header row
func WriteBankCSV(w io.Writer, records []models.BankTransaction) error {
	cw := csv.NewWriter(w)
	header := []string{
		parsers.ColumnTransactionID,
		parsers.ColumnDate,
		parsers.ColumnAmount,
		parsers.ColumnCurrency,
		parsers.ColumnDescription,
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, b := range records {
		row := []string{b.TransactionID, b.Date.Format(models.DateLayout), b.Amount.StringFixed(2), b.Currency, b.Description}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFiles writes merchant.csv and bank.csv into dir and returns their paths
func WriteFiles(dir string, ds *Dataset) (string, string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", errors.FileError(errors.CodeDirectoryError, dir, err)
	}

	merchantPath := filepath.Join(dir, MerchantFileName)
	if err := writeFile(merchantPath, func(w io.Writer) error { return WriteMerchantCSV(w, ds.Merchant) }); err != nil {
		return "", "", err
	}

	bankPath := filepath.Join(dir, BankFileName)
	if err := writeFile(bankPath, func(w io.Writer) error { return WriteBankCSV(w, ds.Bank) }); err != nil {
		return "", "", err
	}

	return merchantPath, bankPath, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	if err := f.Close(); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	return nil
}
