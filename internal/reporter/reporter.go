// Package reporter renders reconciliation results for people and programs.
//
// Supported output formats:
//   - Console: human-readable summary with exceptions grouped by status
//   - JSON: the full result plus run metadata and rejected input rows
//   - CSV: one line per match record, for spreadsheets
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	err = generator.GenerateReport(&reporter.Report{Result: result, RunID: runID}, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"ledger-reconciler/internal/models"
	"ledger-reconciler/internal/parsers"

	"golang.org/x/term"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format" mapstructure:"format"`

	// IncludeMatched adds records whose computed status is matched.
	// Exceptions are always reported.
	IncludeMatched     bool `json:"include_matched" mapstructure:"include_matched"`
	IncludeInvalidRows bool `json:"include_invalid_rows" mapstructure:"include_invalid_rows"`

	// Console formatting options
	UseColors    bool `json:"use_colors" mapstructure:"use_colors"`
	MaxListItems int  `json:"max_list_items" mapstructure:"max_list_items"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter" mapstructure:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers" mapstructure:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:             FormatConsole,
		IncludeMatched:     false,
		IncludeInvalidRows: true,
		UseColors:          true,
		MaxListItems:       20,
		CSVDelimiter:       ',',
		CSVHeaders:         true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxListItems < 0 {
		return fmt.Errorf("max list items cannot be negative, got %d", c.MaxListItems)
	}
	if c.Format == FormatCSV {
		switch c.CSVDelimiter {
		case ',', ';', '\t', '|':
		default:
			return fmt.Errorf("unsupported CSV delimiter %q", c.CSVDelimiter)
		}
	}
	return nil
}

// Report is everything one reconciliation run produced
type Report struct {
	RunID          string
	GeneratedAt    time.Time
	Result         *models.ReconciliationResult
	MerchantIssues []parsers.RowError
	BankIssues     []parsers.RowError
	OverrideErrors []string
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config     *ReportConfig
	isTerminal func(io.Writer) bool
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config:     config,
		isTerminal: writerIsTerminal,
	}, nil
}

func writerIsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// GenerateReport writes the report to writer in the configured format
func (rg *ReportGenerator) GenerateReport(report *Report, writer io.Writer) error {
	if report == nil || report.Result == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(report, writer)
	case FormatJSON:
		return rg.generateJSONReport(report, writer)
	case FormatCSV:
		return rg.generateCSVReport(report, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

// records returns the match records selected by the include flags
func (rg *ReportGenerator) records(result *models.ReconciliationResult) []models.MatchRecord {
	out := make([]models.MatchRecord, 0, len(result.Matches))
	for _, m := range result.Matches {
		if m.Status == models.StatusMatched && !rg.config.IncludeMatched {
			continue
		}
		out = append(out, m)
	}
	return out
}

type jsonReport struct {
	RunID          string               `json:"run_id,omitempty"`
	GeneratedAt    time.Time            `json:"generated_at"`
	Totals         models.Totals        `json:"totals"`
	Matches        []models.MatchRecord `json:"matches"`
	InvalidRows    *jsonInvalidRows     `json:"invalid_rows,omitempty"`
	OverrideErrors []string             `json:"override_errors,omitempty"`
}

type jsonInvalidRows struct {
	Merchant []parsers.RowError `json:"merchant"`
	Bank     []parsers.RowError `json:"bank"`
}

// generateJSONReport generates a structured JSON report
func (rg *ReportGenerator) generateJSONReport(report *Report, writer io.Writer) error {
	out := jsonReport{
		RunID:          report.RunID,
		GeneratedAt:    report.GeneratedAt,
		Totals:         report.Result.Totals,
		Matches:        rg.records(report.Result),
		OverrideErrors: report.OverrideErrors,
	}
	if rg.config.IncludeInvalidRows {
		out.InvalidRows = &jsonInvalidRows{
			Merchant: nonNilRows(report.MerchantIssues),
			Bank:     nonNilRows(report.BankIssues),
		}
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func nonNilRows(rows []parsers.RowError) []parsers.RowError {
	if rows == nil {
		return []parsers.RowError{}
	}
	return rows
}

var csvHeaders = []string{
	"transaction_id",
	"status",
	"match_reason",
	"merchant_amount",
	"bank_amount",
	"diff",
	"currency",
	"merchant_date",
	"bank_date",
	"override_status",
	"override_reason",
}

// generateCSVReport generates a CSV report with one line per match record
func (rg *ReportGenerator) generateCSVReport(report *Report, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(csvHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, m := range rg.records(report.Result) {
		row := []string{
			m.TransactionID,
			string(m.Status),
			string(m.Reason),
			"",
			"",
			m.Diff.StringFixed(2),
			"",
			"",
			"",
			"",
			"",
		}
		if m.Merchant != nil {
			row[3] = m.Merchant.Amount.StringFixed(2)
			row[6] = m.Merchant.Currency
			row[7] = m.Merchant.Date.Format(models.DateLayout)
		}
		if m.Bank != nil {
			row[4] = m.Bank.Amount.StringFixed(2)
			if row[6] == "" {
				row[6] = m.Bank.Currency
			}
			row[8] = m.Bank.Date.Format(models.DateLayout)
		}
		if m.Override != nil {
			row[9] = string(m.Override.Status)
			row[10] = m.Override.Reason
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write record %s: %w", m.TransactionID, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBold   = "\033[1m"
)

// consoleWriter carries the color decision through the console helpers
type consoleWriter struct {
	w      io.Writer
	colors bool
}

func (cw consoleWriter) printf(format string, args ...interface{}) {
	fmt.Fprintf(cw.w, format, args...)
}

func (cw consoleWriter) paint(color, s string) string {
	if !cw.colors {
		return s
	}
	return color + s + colorReset
}

func statusColor(status string) string {
	switch status {
	case string(models.StatusMatched):
		return colorGreen
	case string(models.OverrideApprovedMismatch):
		return colorYellow
	default:
		return colorRed
	}
}

// exceptionSections lists console sections in display order
var exceptionSections = []struct {
	status string
	title  string
}{
	{string(models.StatusAmountMismatch), "AMOUNT MISMATCH"},
	{string(models.StatusMissingInBank), "MISSING IN BANK"},
	{string(models.StatusMissingInMerchant), "MISSING IN MERCHANT"},
	{string(models.OverrideApprovedMismatch), "APPROVED MISMATCH"},
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(report *Report, writer io.Writer) error {
	cw := consoleWriter{w: writer, colors: rg.config.UseColors && rg.isTerminal(writer)}
	result := report.Result
	totals := result.Totals

	cw.printf("%s\n", cw.paint(colorBold, "LEDGER RECONCILIATION REPORT"))
	if report.RunID != "" {
		cw.printf("Run ID:    %s\n", report.RunID)
	}
	if !report.GeneratedAt.IsZero() {
		cw.printf("Generated: %s\n", report.GeneratedAt.Format(time.RFC3339))
	}
	cw.printf("\n")

	cw.printf("=== SUMMARY ===\n")
	total := len(result.Matches)
	cw.printf("Merchant records:    %d\n", totals.MerchantCount)
	cw.printf("Bank records:        %d\n", totals.BankCount)
	cw.printf("Matched:             %d (%.1f%%)\n", totals.Matched, calculatePercentage(totals.Matched, total))
	cw.printf("Amount mismatch:     %d (%.1f%%)\n", totals.AmountMismatch, calculatePercentage(totals.AmountMismatch, total))
	cw.printf("Missing in bank:     %d (%.1f%%)\n", totals.MissingInBank, calculatePercentage(totals.MissingInBank, total))
	cw.printf("Missing in merchant: %d (%.1f%%)\n", totals.MissingInMerchant, calculatePercentage(totals.MissingInMerchant, total))
	cw.printf("\n")

	cw.printf("=== FINANCIAL SUMMARY ===\n")
	cw.printf("Merchant total: %s\n", totals.SumMerchant.StringFixed(2))
	cw.printf("Bank total:     %s\n", totals.SumBank.StringFixed(2))
	diff := totals.SumDiff.StringFixed(2)
	if !totals.SumDiff.IsZero() {
		diff = cw.paint(colorRed, diff)
	}
	cw.printf("Net difference: %s\n", diff)
	cw.printf("\n")

	groups := result.ByEffectiveStatus()
	exceptions := len(result.Matches) - len(groups[string(models.StatusMatched)])
	cw.printf("=== EXCEPTIONS (%d) ===\n", exceptions)
	if exceptions == 0 {
		cw.printf("%s\n", cw.paint(colorGreen, "All records reconciled"))
	}
	for _, section := range exceptionSections {
		records := groups[section.status]
		if len(records) == 0 {
			continue
		}
		cw.printf("%s (%d):\n", cw.paint(statusColor(section.status), section.title), len(records))
		rg.printRecordList(cw, records)
	}
	cw.printf("\n")

	if rg.config.IncludeMatched {
		matched := groups[string(models.StatusMatched)]
		cw.printf("=== MATCHED (%d) ===\n", len(matched))
		rg.printRecordList(cw, matched)
		cw.printf("\n")
	}

	if rg.config.IncludeInvalidRows && len(report.MerchantIssues)+len(report.BankIssues) > 0 {
		cw.printf("=== INVALID ROWS ===\n")
		rg.printRowErrors(cw, "Merchant", report.MerchantIssues)
		rg.printRowErrors(cw, "Bank", report.BankIssues)
		cw.printf("\n")
	}

	if len(report.OverrideErrors) > 0 {
		cw.printf("=== REVIEW NOTES ===\n")
		for _, msg := range report.OverrideErrors {
			cw.printf("  - %s\n", msg)
		}
		cw.printf("\n")
	}

	return nil
}

func (rg *ReportGenerator) printRecordList(cw consoleWriter, records []models.MatchRecord) {
	for i, m := range records {
		if rg.config.MaxListItems > 0 && i >= rg.config.MaxListItems {
			cw.printf("  ... and %d more\n", len(records)-i)
			break
		}
		cw.printf("  %d. %s\n", i+1, describeRecord(m))
	}
}

func describeRecord(m models.MatchRecord) string {
	var parts []string
	parts = append(parts, m.TransactionID)
	if m.Merchant != nil {
		parts = append(parts, fmt.Sprintf("merchant %s %s (%s)",
			m.Merchant.Amount.StringFixed(2), m.Merchant.Currency, m.Merchant.Date.Format(models.DateLayout)))
	}
	if m.Bank != nil {
		parts = append(parts, fmt.Sprintf("bank %s (%s)",
			m.Bank.Amount.StringFixed(2), m.Bank.Date.Format(models.DateLayout)))
	}
	if m.Status == models.StatusAmountMismatch {
		parts = append(parts, "diff "+m.Diff.StringFixed(2))
	}
	if m.Reason == models.ReasonAmountTolerance {
		parts = append(parts, "within tolerance")
	}
	if m.Override != nil {
		parts = append(parts, fmt.Sprintf("reviewed: %s", m.Override.Reason))
	}
	return strings.Join(parts, ", ")
}

func (rg *ReportGenerator) printRowErrors(cw consoleWriter, side string, rows []parsers.RowError) {
	if len(rows) == 0 {
		return
	}
	cw.printf("%s (%d):\n", side, len(rows))
	for i, row := range rows {
		if rg.config.MaxListItems > 0 && i >= rg.config.MaxListItems {
			cw.printf("  ... and %d more\n", len(rows)-i)
			break
		}
		cw.printf("  row %d: %s\n", row.Row, row.Reason)
	}
}

func calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}
