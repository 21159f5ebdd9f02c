package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ledger-reconciler/internal/models"
	"ledger-reconciler/internal/parsers"
	"ledger-reconciler/internal/reconciler"
	"ledger-reconciler/pkg/logger"

	"github.com/shopspring/decimal"
)

func sampleReport() *Report {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	merchant := []models.MerchantTransaction{
		{TransactionID: "A1", Date: date, Amount: decimal.NewFromInt(100), Currency: "USD"},
		{TransactionID: "A2", Date: date, Amount: decimal.NewFromInt(50), Currency: "USD"},
		{TransactionID: "A3", Date: date, Amount: decimal.NewFromInt(10), Currency: "USD"},
	}
	bank := []models.BankTransaction{
		{TransactionID: "a1", Date: date, Amount: decimal.NewFromInt(100)},
		{TransactionID: "A2", Date: date, Amount: decimal.NewFromInt(49)},
		{TransactionID: "B7", Date: date, Amount: decimal.NewFromInt(5)},
	}
	result := reconciler.Reconcile(merchant, bank, reconciler.DefaultConfig())
	result.Matches[1].Override = &models.Override{Status: models.OverrideApprovedMismatch, Reason: "card fee"}

	return &Report{
		RunID:       "run-1",
		GeneratedAt: time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC),
		Result:      result,
		MerchantIssues: []parsers.RowError{
			{Row: 4, Reason: "invalid amount 'ten'", Raw: map[string]string{"amount": "ten"}},
		},
		OverrideErrors: []string{"review: unknown transaction ZZ"},
	}
}

func quietLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.NewWithWriter(logger.DefaultConfig(), io.Discard)
	if err != nil {
		t.Fatalf("NewWithWriter() error = %v", err)
	}
	return log
}

func newGenerator(t *testing.T, config *ReportConfig) *ReportGenerator {
	t.Helper()
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("NewReportGenerator() error = %v", err)
	}
	return generator
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{"default config", nil, false},
		{"valid config", DefaultReportConfig(), false},
		{"invalid format", &ReportConfig{Format: "xml"}, true},
		{"negative list size", &ReportConfig{Format: FormatConsole, MaxListItems: -1}, true},
		{"bad csv delimiter", &ReportConfig{Format: FormatCSV, CSVDelimiter: 'x'}, true},
		{"semicolon csv", &ReportConfig{Format: FormatCSV, CSVDelimiter: ';'}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if generator == nil {
				t.Errorf("expected generator but got nil")
			}
		})
	}
}

func TestOutputFormatValidation(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{FormatConsole, true},
		{FormatJSON, true},
		{FormatCSV, true},
		{"yaml", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := tt.format.IsValid(); got != tt.valid {
			t.Errorf("OutputFormat(%q).IsValid() = %v, want %v", tt.format, got, tt.valid)
		}
	}
}

func TestGenerateReport_NilResult(t *testing.T) {
	generator := newGenerator(t, nil)
	if err := generator.GenerateReport(&Report{}, io.Discard); err == nil {
		t.Error("expected error for nil result")
	}
	if err := generator.GenerateReport(nil, io.Discard); err == nil {
		t.Error("expected error for nil report")
	}
}

func TestConsoleReport(t *testing.T) {
	config := DefaultReportConfig()
	generator := newGenerator(t, config)

	var buf bytes.Buffer
	if err := generator.GenerateReport(sampleReport(), &buf); err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	out := buf.String()

	expected := []string{
		"LEDGER RECONCILIATION REPORT",
		"Run ID:    run-1",
		"=== SUMMARY ===",
		"Matched:             1 (25.0%)",
		"Missing in bank:     1 (25.0%)",
		"Merchant total: 160.00",
		"Bank total:     154.00",
		"Net difference: -6.00",
		"=== EXCEPTIONS (3) ===",
		"MISSING IN BANK (1):",
		"MISSING IN MERCHANT (1):",
		"APPROVED MISMATCH (1):",
		"reviewed: card fee",
		"=== INVALID ROWS ===",
		"row 4: invalid amount 'ten'",
		"=== REVIEW NOTES ===",
	}
	for _, want := range expected {
		if !strings.Contains(out, want) {
			t.Errorf("console output missing %q\n%s", want, out)
		}
	}

	if strings.Contains(out, "=== MATCHED") {
		t.Error("matched section should be hidden by default")
	}
	if strings.Contains(out, "\033[") {
		t.Error("colors must not be written to a non-terminal")
	}
}

func TestConsoleReport_ColorsAndLimits(t *testing.T) {
	config := DefaultReportConfig()
	config.IncludeMatched = true
	config.MaxListItems = 1
	generator := newGenerator(t, config)
	generator.isTerminal = func(io.Writer) bool { return true }

	report := sampleReport()
	extra := report.Result.Matches[2]
	extra.TransactionID = "A4"
	report.Result.Matches = append(report.Result.Matches, extra)

	var buf bytes.Buffer
	if err := generator.GenerateReport(report, &buf); err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, colorRed) {
		t.Error("expected ANSI colors when writing to a terminal")
	}
	if !strings.Contains(out, "=== MATCHED (1) ===") {
		t.Errorf("expected matched section\n%s", out)
	}
	if !strings.Contains(out, "... and 1 more") {
		t.Errorf("expected truncated list\n%s", out)
	}
}

func TestJSONReport(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON
	generator := newGenerator(t, config)

	var buf bytes.Buffer
	if err := generator.GenerateReport(sampleReport(), &buf); err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}

	var decoded struct {
		RunID       string                   `json:"run_id"`
		Totals      map[string]interface{}   `json:"totals"`
		Matches     []map[string]interface{} `json:"matches"`
		InvalidRows struct {
			Merchant []parsers.RowError `json:"merchant"`
			Bank     []parsers.RowError `json:"bank"`
		} `json:"invalid_rows"`
		OverrideErrors []string `json:"override_errors"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}

	if decoded.RunID != "run-1" {
		t.Errorf("run_id = %q", decoded.RunID)
	}
	if decoded.Totals["sumDiff"] != "-6" {
		t.Errorf("sumDiff = %v, want \"-6\"", decoded.Totals["sumDiff"])
	}
	if len(decoded.Matches) != 3 {
		t.Fatalf("expected 3 exception records, got %d", len(decoded.Matches))
	}
	if decoded.Matches[0]["overrideStatus"] != "approved_mismatch" {
		t.Errorf("override not flattened: %v", decoded.Matches[0])
	}
	if len(decoded.InvalidRows.Merchant) != 1 || decoded.InvalidRows.Bank == nil {
		t.Errorf("unexpected invalid rows: %+v", decoded.InvalidRows)
	}
	if len(decoded.OverrideErrors) != 1 {
		t.Errorf("override_errors = %v", decoded.OverrideErrors)
	}
}

func TestCSVReport(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatCSV
	config.IncludeMatched = true
	config.CSVDelimiter = ';'
	generator := newGenerator(t, config)

	var buf bytes.Buffer
	if err := generator.GenerateReport(sampleReport(), &buf); err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}

	reader := csv.NewReader(&buf)
	reader.Comma = ';'
	rows, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected header plus 4 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(csvHeaders, ",") {
		t.Errorf("headers = %v", rows[0])
	}

	tests := []struct {
		row  int
		want []string
	}{
		{1, []string{"A1", "matched", "EXACT_ID", "100.00", "100.00", "0.00", "USD", "2024-03-01", "2024-03-01", "", ""}},
		{2, []string{"A2", "amount_mismatch", "AMOUNT_MISMATCH", "50.00", "49.00", "-1.00", "USD", "2024-03-01", "2024-03-01", "approved_mismatch", "card fee"}},
		{3, []string{"A3", "missing_in_bank", "MISSING_IN_BANK", "10.00", "", "0.00", "USD", "2024-03-01", "", "", ""}},
		{4, []string{"B7", "missing_in_merchant", "MISSING_IN_MERCHANT", "", "5.00", "0.00", "", "", "2024-03-01", "", ""}},
	}
	for _, tt := range tests {
		if got := strings.Join(rows[tt.row], "|"); got != strings.Join(tt.want, "|") {
			t.Errorf("row %d = %s, want %s", tt.row, got, strings.Join(tt.want, "|"))
		}
	}
}

type failOnceWriter struct {
	bytes.Buffer
	failed bool
}

func (w *failOnceWriter) Write(p []byte) (int, error) {
	if !w.failed {
		w.failed = true
		return 0, fmt.Errorf("disk hiccup")
	}
	return w.Buffer.Write(p)
}

func TestSafeReportGenerator_FallsBackToConsole(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON
	srg, err := NewSafeReportGenerator(config, quietLogger(t))
	if err != nil {
		t.Fatalf("NewSafeReportGenerator() error = %v", err)
	}

	w := &failOnceWriter{}
	if err := srg.GenerateReportSafely(sampleReport(), w); err != nil {
		t.Fatalf("GenerateReportSafely() error = %v", err)
	}
	out := w.String()
	if !strings.Contains(out, "console report follows") || !strings.Contains(out, "=== SUMMARY ===") {
		t.Errorf("expected console fallback\n%s", out)
	}
}

func TestSafeReportGenerator_WriteReportFile(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatCSV
	srg, err := NewSafeReportGenerator(config, quietLogger(t))
	if err != nil {
		t.Fatalf("NewSafeReportGenerator() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "out", "report.csv")
	written, err := srg.WriteReportFile(sampleReport(), path)
	if err != nil {
		t.Fatalf("WriteReportFile() error = %v", err)
	}
	if written != path {
		t.Errorf("written = %s, want %s", written, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "transaction_id,status") {
		t.Errorf("unexpected file content: %s", data)
	}
}

func TestSafeReportGenerator_InvalidInputs(t *testing.T) {
	if _, err := NewSafeReportGenerator(&ReportConfig{Format: "xml"}, nil); err == nil {
		t.Error("expected configuration error")
	}

	srg, err := NewSafeReportGenerator(nil, quietLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := srg.GenerateReportSafely(&Report{}, io.Discard); err == nil {
		t.Error("expected error for missing result")
	}
}

func TestBackupPath(t *testing.T) {
	if got := backupPath(filepath.Join("out", "report.csv")); got != filepath.Join("out", "report_backup.csv") {
		t.Errorf("backupPath() = %s", got)
	}
}
