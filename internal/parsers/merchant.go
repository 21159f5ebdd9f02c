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

// MerchantParser handles parsing of merchant ledger CSV files
type MerchantParser struct {
	*BaseParser
	config           *MerchantParserConfig
	logger           logger.Logger
	progressInterval time.Duration
}

// NewMerchantParser creates a new MerchantParser with the given configuration
func NewMerchantParser(config *MerchantParserConfig) (*MerchantParser, error) {
	if config == nil {
		config = DefaultMerchantParserConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"merchant_parser_config",
			config,
			err,
		)
	}

	parseConfig := DefaultParseConfig()
	parseConfig.HasHeader = config.HasHeader
	parseConfig.Delimiter = config.Delimiter

	return &MerchantParser{
		BaseParser: NewBaseParser(parseConfig),
		config:     config,
		logger:     logger.GetGlobalLogger().WithComponent("merchant_parser"),
	}, nil
}

// WithProgress enables periodic progress logging while rows are read
func (p *MerchantParser) WithProgress(interval time.Duration) *MerchantParser {
	p.progressInterval = interval
	return p
}

// ParseFile parses a merchant ledger file
func (p *MerchantParser) ParseFile(ctx context.Context, filePath string) (*ValidationResult[models.MerchantTransaction], ParseStats, error) {
	p.logger.WithField("file_path", filePath).Info("Starting merchant ledger parsing")

	file, err := p.OpenFile(filePath)
	if err != nil {
		return nil, ParseStats{Source: filePath}, err
	}
	defer file.Close()

	return p.Parse(ctx, file, filePath)
}

// Parse parses merchant ledger rows from r. source names the input in errors and logs.
func (p *MerchantParser) Parse(ctx context.Context, r io.Reader, source string) (*ValidationResult[models.MerchantTransaction], ParseStats, error) {
	return parseRows(ctx, p.BaseParser, p.logger, r, source, p.config.requiredColumns(), p.progressInterval, p.buildRecord)
}

func (p *MerchantParser) buildRecord(record []string, parseCtx *ParseContext) (models.MerchantTransaction, string) {
	field := func(name string) string {
		return p.GetFieldValue(record, parseCtx, p.config.GetColumnName(name))
	}

	var tx models.MerchantTransaction

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
	if tx.Currency == "" {
		return tx, missing(ColumnCurrency)
	}

	tx.Method = field(ColumnMethod)

	if feeStr := field(ColumnFee); feeStr != "" {
		fee, err := models.ParseDecimalFromString(feeStr)
		if err != nil {
			return tx, invalid(ColumnFee, feeStr)
		}
		tx.Fee = &fee
	}

	return tx, ""
}

// ParseMerchantFile parses a merchant ledger file with the default configuration
func ParseMerchantFile(ctx context.Context, filePath string) (*ValidationResult[models.MerchantTransaction], error) {
	parser, err := NewMerchantParser(nil)
	if err != nil {
		return nil, err
	}
	result, _, err := parser.ParseFile(ctx, filePath)
	return result, err
}

// ParseMerchant parses merchant ledger rows from r with the default configuration
func ParseMerchant(ctx context.Context, r io.Reader, source string) (*ValidationResult[models.MerchantTransaction], error) {
	parser, err := NewMerchantParser(nil)
	if err != nil {
		return nil, err
	}
	result, _, err := parser.Parse(ctx, r, source)
	return result, err
}
