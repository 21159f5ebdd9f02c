package parsers

import (
	"context"
	"io"
	"strings"
	"time"

	"ledger-reconciler/internal/models"
	"ledger-reconciler/pkg/errors"
	"ledger-reconciler/pkg/logger"
)

// BankParser handles parsing of bank ledger CSV files
type BankParser struct {
	*BaseParser
	config           *BankParserConfig
	logger           logger.Logger
	progressInterval time.Duration
}

// NewBankParser creates a new BankParser with the given configuration
func NewBankParser(config *BankParserConfig) (*BankParser, error) {
	if config == nil {
		config = DefaultBankParserConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"bank_parser_config",
			config,
			err,
		)
	}

	parseConfig := DefaultParseConfig()
	parseConfig.HasHeader = config.HasHeader
	parseConfig.Delimiter = config.Delimiter

	return &BankParser{
		BaseParser: NewBaseParser(parseConfig),
		config:     config,
		logger:     logger.GetGlobalLogger().WithComponent("bank_parser"),
	}, nil
}

// WithProgress enables periodic progress logging while rows are read
func (p *BankParser) WithProgress(interval time.Duration) *BankParser {
	p.progressInterval = interval
	return p
}

// ParseFile parses a bank ledger file
func (p *BankParser) ParseFile(ctx context.Context, filePath string) (*ValidationResult[models.BankTransaction], ParseStats, error) {
	p.logger.WithField("file_path", filePath).Info("Starting bank ledger parsing")

	file, err := p.OpenFile(filePath)
	if err != nil {
		return nil, ParseStats{Source: filePath}, err
	}
	defer file.Close()

	return p.Parse(ctx, file, filePath)
}

// Parse parses bank ledger rows from r. source names the input in errors and logs.
func (p *BankParser) Parse(ctx context.Context, r io.Reader, source string) (*ValidationResult[models.BankTransaction], ParseStats, error) {
	return parseRows(ctx, p.BaseParser, p.logger, r, source, p.config.requiredColumns(), p.progressInterval, p.buildRecord)
}

func (p *BankParser) buildRecord(record []string, parseCtx *ParseContext) (models.BankTransaction, string) {
	field := func(name string) string {
		return p.GetFieldValue(record, parseCtx, p.config.GetColumnName(name))
	}

	var tx models.BankTransaction

	tx.TransactionID = field(ColumnTransactionID)
	if tx.TransactionID == "" {
		return tx, missing(ColumnTransactionID)
	}

	dateStr := field(ColumnDate)
	if dateStr == "" {
		return tx, missing(ColumnDate)
	}
	date, err := models.ParseTimeWithFormats(dateStr)
	if err != nil {
		return tx, invalid(ColumnDate, dateStr)
	}
	tx.Date = date

	amountStr := field(ColumnAmount)
	if amountStr == "" {
		return tx, missing(ColumnAmount)
	}
	amount, err := models.ParseDecimalFromString(amountStr)
	if err != nil {
		return tx, invalid(ColumnAmount, amountStr)
	}
	tx.Amount = amount

	tx.Currency = strings.ToUpper(field(ColumnCurrency))
	tx.Description = field(ColumnDescription)

	return tx, ""
}

// ParseBankFile parses a bank ledger file with the default configuration
func ParseBankFile(ctx context.Context, filePath string) (*ValidationResult[models.BankTransaction], error) {
	parser, err := NewBankParser(nil)
	if err != nil {
		return nil, err
	}
	result, _, err := parser.ParseFile(ctx, filePath)
	return result, err
}

// ParseBank parses bank ledger rows from r with the default configuration
func ParseBank(ctx context.Context, r io.Reader, source string) (*ValidationResult[models.BankTransaction], error) {
	parser, err := NewBankParser(nil)
	if err != nil {
		return nil, err
	}
	result, _, err := parser.Parse(ctx, r, source)
	return result, err
}
