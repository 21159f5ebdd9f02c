package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the layout used when rendering transaction dates
const DateLayout = "2006-01-02"

// ErrMissingAmount is returned when decoding a transaction without an amount
var ErrMissingAmount = errors.New("missing amount")

// MerchantTransaction is one record from the merchant-side ledger
type MerchantTransaction struct {
	TransactionID string           `json:"transactionId"`
	Date          time.Time        `json:"date"`
	Amount        decimal.Decimal  `json:"amount"` // positive for a sale, negative for a refund
	Currency      string           `json:"currency"`
	Method        string           `json:"method,omitempty"`
	Fee           *decimal.Decimal `json:"fee,omitempty"`
}

// Validate performs basic validation on the MerchantTransaction
func (t *MerchantTransaction) Validate() error {
	if strings.TrimSpace(t.TransactionID) == "" {
		return fmt.Errorf("transaction ID cannot be empty")
	}
	if t.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be empty")
	}
	if strings.TrimSpace(t.Currency) == "" {
		return fmt.Errorf("currency cannot be empty")
	}
	return nil
}

// String returns a string representation of the MerchantTransaction
func (t MerchantTransaction) String() string {
	return fmt.Sprintf("MerchantTransaction{ID: %s, Amount: %s %s, Date: %s}",
		t.TransactionID, t.Amount.String(), t.Currency, t.Date.Format(DateLayout))
}

// MarshalJSON renders the date as a calendar date
func (t MerchantTransaction) MarshalJSON() ([]byte, error) {
	type Alias MerchantTransaction
	return json.Marshal(&struct {
		Date string `json:"date"`
		*Alias
	}{
		Date:  formatDate(t.Date),
		Alias: (*Alias)(&t),
	})
}

// UnmarshalJSON accepts any of the date layouts understood by ParseTimeWithFormats.
// The amount is required; it may be a JSON number or a string.
func (t *MerchantTransaction) UnmarshalJSON(data []byte) error {
	type Alias MerchantTransaction
	aux := &struct {
		Date   string          `json:"date"`
		Amount json.RawMessage `json:"amount"`
		*Alias
	}{
		Alias: (*Alias)(t),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	amount, err := decodeAmount(aux.Amount)
	if err != nil {
		return err
	}
	date, err := parseOptionalDate(aux.Date)
	if err != nil {
		return err
	}
	t.Amount = amount
	t.Date = date
	return nil
}

// BankTransaction is one record from the bank-side ledger
type BankTransaction struct {
	TransactionID string          `json:"transactionId"`
	Date          time.Time       `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency,omitempty"`
	Description   string          `json:"description,omitempty"`
}

// Validate performs basic validation on the BankTransaction
func (t *BankTransaction) Validate() error {
	if strings.TrimSpace(t.TransactionID) == "" {
		return fmt.Errorf("transaction ID cannot be empty")
	}
	if t.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be empty")
	}
	return nil
}

// String returns a string representation of the BankTransaction
func (t BankTransaction) String() string {
	return fmt.Sprintf("BankTransaction{ID: %s, Amount: %s, Date: %s}",
		t.TransactionID, t.Amount.String(), t.Date.Format(DateLayout))
}

// MarshalJSON renders the date as a calendar date
func (t BankTransaction) MarshalJSON() ([]byte, error) {
	type Alias BankTransaction
	return json.Marshal(&struct {
		Date string `json:"date"`
		*Alias
	}{
		Date:  formatDate(t.Date),
		Alias: (*Alias)(&t),
	})
}

// UnmarshalJSON accepts any of the date layouts understood by ParseTimeWithFormats.
// The amount is required; it may be a JSON number or a string.
func (t *BankTransaction) UnmarshalJSON(data []byte) error {
	type Alias BankTransaction
	aux := &struct {
		Date   string          `json:"date"`
		Amount json.RawMessage `json:"amount"`
		*Alias
	}{
		Alias: (*Alias)(t),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	amount, err := decodeAmount(aux.Amount)
	if err != nil {
		return err
	}
	date, err := parseOptionalDate(aux.Date)
	if err != nil {
		return err
	}
	t.Amount = amount
	t.Date = date
	return nil
}

func formatDate(d time.Time) string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// parseOptionalDate leaves a missing date as the zero time so Validate can report it
func parseOptionalDate(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	date, err := ParseTimeWithFormats(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date '%s'", strings.TrimSpace(s))
	}
	return date, nil
}

// decodeAmount reads a JSON amount given as a number or a string. An absent
// or null amount is an error rather than zero.
func decodeAmount(raw json.RawMessage) (decimal.Decimal, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return decimal.Zero, ErrMissingAmount
	}

	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, fmt.Errorf("invalid amount %s", text)
		}
		if strings.TrimSpace(s) == "" {
			return decimal.Zero, ErrMissingAmount
		}
		d, err := ParseDecimalFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid amount '%s'", strings.TrimSpace(s))
		}
		return d, nil
	}

	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount '%s'", text)
	}
	return d, nil
}

// ParseDecimalFromString parses a decimal value from string with validation
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	if hasDecimalComma(s) {
		return decimal.Zero, fmt.Errorf("ambiguous amount '%s': use '.' as the decimal separator", s)
	}

	// Currency symbols and thousand separators
	for _, symbol := range []string{"$", "€", "£", ","} {
		s = strings.ReplaceAll(s, symbol, "")
	}
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// hasDecimalComma reports whether the last comma in s is followed by one or
// two digits and nothing else, as in "1,50". A thousands separator is always
// followed by three digits.
func hasDecimalComma(s string) bool {
	i := strings.LastIndex(s, ",")
	if i < 0 || strings.Contains(s[i:], ".") {
		return false
	}
	tail := strings.TrimSpace(s[i+1:])
	if len(tail) == 0 || len(tail) > 2 {
		return false
	}
	for _, r := range tail {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseTimeWithFormats attempts to parse time from string using multiple common formats
func ParseTimeWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		DateLayout,
		"01/02/2006 15:04:05",
		"01/02/2006",
		"02-01-2006",
		"2006/01/02",
		"Jan 2, 2006",
		"January 2, 2006",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}

// Round2 rounds an amount to cents, half away from zero
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
