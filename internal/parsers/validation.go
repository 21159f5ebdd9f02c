package parsers

import (
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"

	"ledger-reconciler/internal/models"
	"ledger-reconciler/pkg/logger"
)

// RowError describes one input row that was rejected
type RowError struct {
	Row    int               `json:"row"` // 1-based data row, header excluded
	Reason string            `json:"reason"`
	Raw    map[string]string `json:"raw"`
}

// Error implements the error interface so a RowError can be logged or wrapped
func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

// ValidationResult splits parsed input into accepted records and rejected rows
type ValidationResult[T any] struct {
	Valid   []T        `json:"valid"`
	Invalid []RowError `json:"invalid"`
}

// rowBuilder converts one CSV row into a record, or returns a rejection reason
type rowBuilder[T any] func(record []string, parseCtx *ParseContext) (T, string)

// parseRows drives a CSV reader to completion, collecting valid records and
// rejected rows. It only returns an error for problems with the whole input.
func parseRows[T any](
	ctx context.Context,
	bp *BaseParser,
	log logger.Logger,
	r io.Reader,
	source string,
	required []string,
	progressInterval time.Duration,
	build rowBuilder[T],
) (*ValidationResult[T], ParseStats, error) {
	parseCtx := NewParseContext(ctx, source)
	stats := ParseStats{Source: source}
	result := &ValidationResult[T]{Valid: []T{}, Invalid: []RowError{}}

	reader := bp.NewReader(r)
	if err := bp.ReadHeaders(reader, parseCtx, required); err != nil {
		return nil, stats, err
	}

	var tracker *logger.ProgressTracker
	if progressInterval > 0 {
		tracker = logger.NewProgressTracker(logger.ProgressConfig{
			Operation:   "parse " + source,
			LogInterval: progressInterval,
			Logger:      log,
		})
	}

	for {
		record, err := bp.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			var csvErr *csv.ParseError
			if !stderrors.As(err, &csvErr) {
				return nil, stats, err
			}
			stats.RowsRead++
			stats.RowsRejected++
			result.Invalid = append(result.Invalid, RowError{
				Row:    parseCtx.Row,
				Reason: "malformed row: " + csvErr.Err.Error(),
				Raw:    map[string]string{},
			})
			continue
		}

		stats.RowsRead++
		if tracker != nil {
			tracker.Increment()
		}

		if bp.config.MaxFieldSize > 0 {
			if column, ok := fieldsWithinLimit(record, bp.config.MaxFieldSize); !ok {
				stats.RowsRejected++
				result.Invalid = append(result.Invalid, RowError{
					Row:    parseCtx.Row,
					Reason: fmt.Sprintf("%s exceeds %d bytes", column, bp.config.MaxFieldSize),
					Raw:    map[string]string{},
				})
				continue
			}
		}

		value, reason := build(record, parseCtx)
		if reason != "" {
			stats.RowsRejected++
			result.Invalid = append(result.Invalid, RowError{
				Row:    parseCtx.Row,
				Reason: reason,
				Raw:    bp.RawRow(record, parseCtx),
			})
			log.WithFields(logger.Fields{
				"source": source,
				"row":    parseCtx.Row,
				"reason": reason,
			}).Debug("Rejected row")
			continue
		}

		stats.RowsValid++
		result.Valid = append(result.Valid, value)
	}

	if tracker != nil {
		tracker.Complete()
	}

	entry := log.WithFields(logger.Fields{
		"source":        source,
		"rows_read":     stats.RowsRead,
		"rows_valid":    stats.RowsValid,
		"rows_rejected": stats.RowsRejected,
	})
	if stats.RowsRejected > 0 {
		entry.Warn("Parsing completed with rejected rows")
	} else {
		entry.Info("Parsing completed")
	}

	return result, stats, nil
}

func fieldsWithinLimit(record []string, limit int) (string, bool) {
	for i, field := range record {
		if len(field) > limit {
			return fmt.Sprintf("column %d", i+1), false
		}
	}
	return "", true
}

// ValidateMerchantRecords splits already-typed merchant records, for example
// decoded from JSON, into valid records and rejected rows
func ValidateMerchantRecords(records []models.MerchantTransaction) *ValidationResult[models.MerchantTransaction] {
	result := &ValidationResult[models.MerchantTransaction]{
		Valid:   []models.MerchantTransaction{},
		Invalid: []RowError{},
	}
	for i, record := range records {
		if err := record.Validate(); err != nil {
			result.Invalid = append(result.Invalid, RowError{
				Row:    i + 1,
				Reason: err.Error(),
				Raw:    merchantRaw(record),
			})
			continue
		}
		result.Valid = append(result.Valid, record)
	}
	return result
}

// ValidateBankRecords splits already-typed bank records into valid records and rejected rows
func ValidateBankRecords(records []models.BankTransaction) *ValidationResult[models.BankTransaction] {
	result := &ValidationResult[models.BankTransaction]{
		Valid:   []models.BankTransaction{},
		Invalid: []RowError{},
	}
	for i, record := range records {
		if err := record.Validate(); err != nil {
			result.Invalid = append(result.Invalid, RowError{
				Row:    i + 1,
				Reason: err.Error(),
				Raw:    bankRaw(record),
			})
			continue
		}
		result.Valid = append(result.Valid, record)
	}
	return result
}

func merchantRaw(t models.MerchantTransaction) map[string]string {
	raw := map[string]string{
		ColumnTransactionID: t.TransactionID,
		ColumnDate:          rawDate(t.Date),
		ColumnAmount:        t.Amount.String(),
		ColumnCurrency:      t.Currency,
	}
	if t.Method != "" {
		raw[ColumnMethod] = t.Method
	}
	if t.Fee != nil {
		raw[ColumnFee] = t.Fee.String()
	}
	return raw
}

func bankRaw(t models.BankTransaction) map[string]string {
	raw := map[string]string{
		ColumnTransactionID: t.TransactionID,
		ColumnDate:          rawDate(t.Date),
		ColumnAmount:        t.Amount.String(),
	}
	if t.Currency != "" {
		raw[ColumnCurrency] = t.Currency
	}
	if t.Description != "" {
		raw[ColumnDescription] = t.Description
	}
	return raw
}

func rawDate(d time.Time) string {
	if d.IsZero() {
		return ""
	}
	return d.Format(models.DateLayout)
}

func missing(column string) string {
	return "missing " + column
}

func invalid(column, value string) string {
	return fmt.Sprintf("invalid %s '%s'", column, strings.TrimSpace(value))
}
