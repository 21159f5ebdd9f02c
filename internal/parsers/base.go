// Package parsers turns merchant and bank ledger CSV files into typed records.
//
// Parsing never stops at a bad row. Every data row either becomes a typed
// record or a RowError carrying the row number, the reason and the raw cell
// values, so a reviewer can see exactly what was skipped. Only problems with
// the file as a whole (missing file, missing required header, broken
// encoding, cancellation) are returned as errors.
//
// Example usage:
//
//	result, err := parsers.ParseMerchantFile(ctx, "merchant.csv")
//	if err != nil {
//		return err
//	}
//	for _, bad := range result.Invalid {
//		fmt.Printf("row %d: %s\n", bad.Row, bad.Reason)
//	}
//
// Header lookup is forgiving: "transaction_id", "Transaction ID" and
// "transactionId" all resolve to the same column.
package parsers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"ledger-reconciler/pkg/errors"
	"ledger-reconciler/pkg/logger"
)

const byteOrderMark = "\ufeff"

// ParseConfig holds configuration for CSV parsing
type ParseConfig struct {
	HasHeader        bool
	Delimiter        rune
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	MaxFieldSize     int
	ValidateEncoding bool
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		HasHeader:        true,
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFieldSize:     1 << 16,
		ValidateEncoding: true,
	}
}

// BaseParser provides common CSV parsing functionality
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}

	return &BaseParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("base_parser"),
	}
}

// ParseContext holds state during parsing operations
type ParseContext struct {
	Source    string
	Row       int
	Headers   []string
	HeaderMap map[string]int
	ctx       context.Context
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context, source string) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		Source:    source,
		HeaderMap: make(map[string]int),
		ctx:       ctx,
	}
}

// Err returns a cancellation error once the context is done
func (pc *ParseContext) Err() error {
	if err := pc.ctx.Err(); err != nil {
		return errors.InternalError(errors.CodeCancelled, "parsing "+pc.Source, err)
	}
	return nil
}

// GetColumnIndex returns the index of a column by name, or -1 if not found.
// Names are compared exactly first, then ignoring case, spaces, dashes and underscores.
func (pc *ParseContext) GetColumnIndex(name string) int {
	if index, exists := pc.HeaderMap[name]; exists {
		return index
	}

	want := foldColumnName(name)
	for i, header := range pc.Headers {
		if foldColumnName(header) == want {
			return i
		}
	}

	return -1
}

func foldColumnName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(name)))
}

// OpenFile opens a ledger file for reading
func (bp *BaseParser) OpenFile(filePath string) (*os.File, error) {
	bp.logger.WithField("file_path", filePath).Debug("Opening CSV file")

	file, err := os.Open(filePath)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
		case os.IsPermission(err):
			return nil, errors.FileError(errors.CodeFilePermission, filePath, err)
		default:
			return nil, errors.FileError(errors.CodeDirectoryError, filePath, err)
		}
	}

	info, err := file.Stat()
	if err == nil && info.IsDir() {
		file.Close()
		return nil, errors.FileError(errors.CodeDirectoryError, filePath, fmt.Errorf("%s is a directory", filePath))
	}

	return file, nil
}

// NewReader wraps r in a csv.Reader configured for this parser
func (bp *BaseParser) NewReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.Comma = bp.config.Delimiter
	reader.Comment = bp.config.Comment
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false
	return reader
}

// ReadHeaders reads the header row and checks that every required column is present.
// Without a header row the required columns are assumed to appear in order.
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, parseCtx *ParseContext, required []string) error {
	if !bp.config.HasHeader {
		parseCtx.Headers = append([]string(nil), required...)
		bp.buildHeaderMap(parseCtx)
		return nil
	}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return errors.ParseError(errors.CodeInvalidFormat, parseCtx.Source, 0, "", err).
				WithSuggestion("the file is empty; it needs a header row and data rows")
		}
		return errors.ParseError(errors.CodeInvalidFormat, parseCtx.Source, 0, "", err)
	}

	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], byteOrderMark)
	}
	if bp.config.ValidateEncoding {
		if column, ok := invalidUTF8(headers); !ok {
			return errors.ParseError(errors.CodeEncodingError, parseCtx.Source, 0, column, nil)
		}
	}

	parseCtx.Headers = cleanHeaders(headers)
	bp.buildHeaderMap(parseCtx)

	for _, column := range required {
		if parseCtx.GetColumnIndex(column) == -1 {
			bp.logger.WithFields(logger.Fields{
				"source":            parseCtx.Source,
				"missing_column":    column,
				"available_headers": parseCtx.Headers,
			}).Error("Required column is missing")

			return errors.ParseError(errors.CodeMissingColumn, parseCtx.Source, 0, column, nil).
				WithSuggestion(fmt.Sprintf("ensure the header row contains: %s", strings.Join(required, ", ")))
		}
	}

	return nil
}

func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		cleaned[i] = strings.TrimSpace(header)
	}
	return cleaned
}

func (bp *BaseParser) buildHeaderMap(parseCtx *ParseContext) {
	parseCtx.HeaderMap = make(map[string]int, len(parseCtx.Headers))
	for i, header := range parseCtx.Headers {
		if _, dup := parseCtx.HeaderMap[header]; !dup {
			parseCtx.HeaderMap[header] = i
		}
	}
}

// ReadRecord reads the next non-empty data row. It returns io.EOF at the end
// of input. A *csv.ParseError means the row itself was malformed and reading
// may continue.
func (bp *BaseParser) ReadRecord(reader *csv.Reader, parseCtx *ParseContext) ([]string, error) {
	for {
		if err := parseCtx.Err(); err != nil {
			return nil, err
		}

		record, err := reader.Read()
		if err == io.EOF {
			return nil, err
		}
		parseCtx.Row++
		if err != nil {
			return nil, err
		}

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}

		if bp.config.ValidateEncoding {
			if column, ok := invalidUTF8(record); !ok {
				return nil, errors.ParseError(errors.CodeEncodingError, parseCtx.Source, parseCtx.Row, column, nil)
			}
		}

		return record, nil
	}
}

func invalidUTF8(record []string) (string, bool) {
	for i, field := range record {
		if !utf8.ValidString(field) {
			return fmt.Sprintf("column %d", i+1), false
		}
	}
	return "", true
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// GetFieldValue returns the trimmed value of a named column, or "" when the
// column is absent from the header or the row is short
func (bp *BaseParser) GetFieldValue(record []string, parseCtx *ParseContext, fieldName string) string {
	index := parseCtx.GetColumnIndex(fieldName)
	if index == -1 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// RawRow maps each header to its cell value for error reporting.
// Cells beyond the header are keyed by position.
func (bp *BaseParser) RawRow(record []string, parseCtx *ParseContext) map[string]string {
	raw := make(map[string]string, len(record))
	for i, value := range record {
		key := fmt.Sprintf("column_%d", i+1)
		if i < len(parseCtx.Headers) && parseCtx.Headers[i] != "" {
			key = parseCtx.Headers[i]
		}
		raw[key] = value
	}
	return raw
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	Source       string `json:"source"`
	RowsRead     int    `json:"rows_read"`
	RowsValid    int    `json:"rows_valid"`
	RowsRejected int    `json:"rows_rejected"`
}

// String returns a human-readable summary of parsing statistics
func (ps ParseStats) String() string {
	return fmt.Sprintf("%s: %d rows read, %d valid, %d rejected",
		ps.Source, ps.RowsRead, ps.RowsValid, ps.RowsRejected)
}
