package parsers

import (
	"fmt"
	"strings"
)

// Standard column names understood by the parsers
const (
	ColumnTransactionID = "transaction_id"
	ColumnDate          = "date"
	ColumnAmount        = "amount"
	ColumnCurrency      = "currency"
	ColumnMethod        = "method"
	ColumnFee           = "fee"
	ColumnDescription   = "description"
)

// MerchantParserConfig holds configuration for parsing merchant ledger CSV files
type MerchantParserConfig struct {
	TransactionIDColumn string            `json:"transaction_id_column" mapstructure:"transaction_id_column"`
	DateColumn          string            `json:"date_column" mapstructure:"date_column"`
	AmountColumn        string            `json:"amount_column" mapstructure:"amount_column"`
	CurrencyColumn      string            `json:"currency_column" mapstructure:"currency_column"`
	MethodColumn        string            `json:"method_column" mapstructure:"method_column"`
	FeeColumn           string            `json:"fee_column" mapstructure:"fee_column"`
	HasHeader           bool              `json:"has_header" mapstructure:"has_header"`
	Delimiter           rune              `json:"delimiter" mapstructure:"delimiter"`
	ColumnAliases       map[string]string `json:"column_aliases,omitempty" mapstructure:"column_aliases"`
}

// DefaultMerchantParserConfig returns a configuration with standard defaults
func DefaultMerchantParserConfig() *MerchantParserConfig {
	return &MerchantParserConfig{
		TransactionIDColumn: ColumnTransactionID,
		DateColumn:          ColumnDate,
		AmountColumn:        ColumnAmount,
		CurrencyColumn:      ColumnCurrency,
		MethodColumn:        ColumnMethod,
		FeeColumn:           ColumnFee,
		HasHeader:           true,
		Delimiter:           ',',
		ColumnAliases:       make(map[string]string),
	}
}

// Validate checks if the merchant parser configuration is valid
func (c *MerchantParserConfig) Validate() error {
	if strings.TrimSpace(c.TransactionIDColumn) == "" {
		return fmt.Errorf("transaction ID column cannot be empty")
	}
	if strings.TrimSpace(c.DateColumn) == "" {
		return fmt.Errorf("date column cannot be empty")
	}
	if strings.TrimSpace(c.AmountColumn) == "" {
		return fmt.Errorf("amount column cannot be empty")
	}
	if strings.TrimSpace(c.CurrencyColumn) == "" {
		return fmt.Errorf("currency column cannot be empty")
	}
	return validateDelimiter(c.Delimiter)
}

// GetColumnName returns the actual column name, checking aliases first
func (c *MerchantParserConfig) GetColumnName(standardName string) string {
	if alias, exists := c.ColumnAliases[standardName]; exists {
		return alias
	}

	switch standardName {
	case ColumnTransactionID:
		return c.TransactionIDColumn
	case ColumnDate:
		return c.DateColumn
	case ColumnAmount:
		return c.AmountColumn
	case ColumnCurrency:
		return c.CurrencyColumn
	case ColumnMethod:
		return c.MethodColumn
	case ColumnFee:
		return c.FeeColumn
	default:
		return standardName
	}
}

func (c *MerchantParserConfig) requiredColumns() []string {
	return []string{
		c.GetColumnName(ColumnTransactionID),
		c.GetColumnName(ColumnDate),
		c.GetColumnName(ColumnAmount),
		c.GetColumnName(ColumnCurrency),
	}
}

// BankParserConfig holds configuration for parsing bank ledger CSV files
type BankParserConfig struct {
	TransactionIDColumn string            `json:"transaction_id_column" mapstructure:"transaction_id_column"`
	DateColumn          string            `json:"date_column" mapstructure:"date_column"`
	AmountColumn        string            `json:"amount_column" mapstructure:"amount_column"`
	CurrencyColumn      string            `json:"currency_column" mapstructure:"currency_column"`
	DescriptionColumn   string            `json:"description_column" mapstructure:"description_column"`
	HasHeader           bool              `json:"has_header" mapstructure:"has_header"`
	Delimiter           rune              `json:"delimiter" mapstructure:"delimiter"`
	ColumnAliases       map[string]string `json:"column_aliases,omitempty" mapstructure:"column_aliases"`
}

// DefaultBankParserConfig returns a configuration with standard defaults
func DefaultBankParserConfig() *BankParserConfig {
	return &BankParserConfig{
		TransactionIDColumn: ColumnTransactionID,
		DateColumn:          ColumnDate,
		AmountColumn:        ColumnAmount,
		CurrencyColumn:      ColumnCurrency,
		DescriptionColumn:   ColumnDescription,
		HasHeader:           true,
		Delimiter:           ',',
		ColumnAliases:       make(map[string]string),
	}
}

// Validate checks if the bank parser configuration is valid
func (c *BankParserConfig) Validate() error {
	if strings.TrimSpace(c.TransactionIDColumn) == "" {
		return fmt.Errorf("transaction ID column cannot be empty")
	}
	if strings.TrimSpace(c.DateColumn) == "" {
		return fmt.Errorf("date column cannot be empty")
	}
	if strings.TrimSpace(c.AmountColumn) == "" {
		return fmt.Errorf("amount column cannot be empty")
	}
	return validateDelimiter(c.Delimiter)
}

// GetColumnName returns the actual column name, checking aliases first
func (c *BankParserConfig) GetColumnName(standardName string) string {
	if alias, exists := c.ColumnAliases[standardName]; exists {
		return alias
	}

	switch standardName {
	case ColumnTransactionID:
		return c.TransactionIDColumn
	case ColumnDate:
		return c.DateColumn
	case ColumnAmount:
		return c.AmountColumn
	case ColumnCurrency:
		return c.CurrencyColumn
	case ColumnDescription:
		return c.DescriptionColumn
	default:
		return standardName
	}
}

func (c *BankParserConfig) requiredColumns() []string {
	return []string{
		c.GetColumnName(ColumnTransactionID),
		c.GetColumnName(ColumnDate),
		c.GetColumnName(ColumnAmount),
	}
}

func validateDelimiter(d rune) error {
	switch d {
	case ',', ';', '\t', '|':
		return nil
	default:
		return fmt.Errorf("unsupported delimiter %q", d)
	}
}
