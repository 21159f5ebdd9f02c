package parsers

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ledger-reconciler/internal/models"
	"ledger-reconciler/pkg/errors"

	"github.com/shopspring/decimal"
)

// Helper function to create temporary CSV file
func createTempCSVFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}

func TestDefaultParseConfig(t *testing.T) {
	config := DefaultParseConfig()

	if !config.HasHeader {
		t.Error("Expected HasHeader to be true")
	}
	if config.Delimiter != ',' {
		t.Errorf("Expected delimiter to be ',', got %q", config.Delimiter)
	}
	if !config.SkipEmptyRows {
		t.Error("Expected SkipEmptyRows to be true")
	}
	if !config.ValidateEncoding {
		t.Error("Expected ValidateEncoding to be true")
	}
}

func TestMerchantParserConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*MerchantParserConfig)
		wantErr bool
	}{
		{"default", func(c *MerchantParserConfig) {}, false},
		{"missing id column", func(c *MerchantParserConfig) { c.TransactionIDColumn = " " }, true},
		{"missing currency column", func(c *MerchantParserConfig) { c.CurrencyColumn = "" }, true},
		{"semicolon delimiter", func(c *MerchantParserConfig) { c.Delimiter = ';' }, false},
		{"unsupported delimiter", func(c *MerchantParserConfig) { c.Delimiter = '#' }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultMerchantParserConfig()
			tt.modify(config)
			if err := config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBankParserConfig_GetColumnName(t *testing.T) {
	config := DefaultBankParserConfig()
	config.ColumnAliases[ColumnTransactionID] = "ref_number"

	if got := config.GetColumnName(ColumnTransactionID); got != "ref_number" {
		t.Errorf("expected alias to win, got %s", got)
	}
	if got := config.GetColumnName(ColumnAmount); got != "amount" {
		t.Errorf("expected default amount column, got %s", got)
	}
	if got := config.GetColumnName("posted_at"); got != "posted_at" {
		t.Errorf("expected unknown names to pass through, got %s", got)
	}
}

func TestParseContext_GetColumnIndex(t *testing.T) {
	parseCtx := NewParseContext(context.Background(), "test")
	parseCtx.Headers = []string{"Transaction ID", "date", "AMOUNT", "currency-code"}
	NewBaseParser(nil).buildHeaderMap(parseCtx)

	tests := []struct {
		name     string
		expected int
	}{
		{"Transaction ID", 0},
		{"transaction_id", 0},
		{"transactionId", 0},
		{"date", 1},
		{"amount", 2},
		{"currency_code", 3},
		{"fee", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseCtx.GetColumnIndex(tt.name); got != tt.expected {
				t.Errorf("GetColumnIndex(%q) = %d, want %d", tt.name, got, tt.expected)
			}
		})
	}
}

func TestParseMerchant_ValidAndInvalidRows(t *testing.T) {
	input := `transaction_id,date,amount,currency,method,fee
A1,2024-03-01,100.00,usd,card,2.90
,2024-03-01,10,USD,,
A3,not-a-date,10,USD,,
A4,2024-03-02,ten,USD,,
A5,2024-03-02,10,,,
A6,2024-03-02,"$1,250.50",EUR,transfer,
A7,2024-03-03,-20,USD,card,abc
A8,03/04/2024,-15.5,GBP,,
`

	result, err := ParseMerchant(context.Background(), strings.NewReader(input), "merchant.csv")
	if err != nil {
		t.Fatalf("ParseMerchant() error = %v", err)
	}

	if len(result.Valid) != 3 {
		t.Fatalf("expected 3 valid rows, got %d: %+v", len(result.Valid), result.Valid)
	}

	first := result.Valid[0]
	if first.TransactionID != "A1" || first.Currency != "USD" || first.Method != "card" {
		t.Errorf("unexpected first record %+v", first)
	}
	if first.Fee == nil || !first.Fee.Equal(decimal.RequireFromString("2.90")) {
		t.Errorf("expected fee 2.90, got %v", first.Fee)
	}
	if !result.Valid[1].Amount.Equal(decimal.RequireFromString("1250.50")) {
		t.Errorf("expected thousands separator to be stripped, got %s", result.Valid[1].Amount)
	}
	if result.Valid[1].Fee != nil {
		t.Error("expected empty fee to stay unset")
	}
	if result.Valid[2].Date.Format(models.DateLayout) != "2024-03-04" {
		t.Errorf("expected US date to parse, got %s", result.Valid[2].Date)
	}

	expected := []struct {
		row    int
		reason string
	}{
		{2, "missing transaction_id"},
		{3, "invalid date 'not-a-date'"},
		{4, "invalid amount 'ten'"},
		{5, "missing currency"},
		{7, "invalid fee 'abc'"},
	}
	if len(result.Invalid) != len(expected) {
		t.Fatalf("expected %d invalid rows, got %d: %+v", len(expected), len(result.Invalid), result.Invalid)
	}
	for i, want := range expected {
		got := result.Invalid[i]
		if got.Row != want.row || got.Reason != want.reason {
			t.Errorf("invalid[%d] = row %d %q, want row %d %q", i, got.Row, got.Reason, want.row, want.reason)
		}
	}
	if result.Invalid[1].Raw["date"] != "not-a-date" || result.Invalid[1].Raw["transaction_id"] != "A3" {
		t.Errorf("expected raw cells to be kept, got %v", result.Invalid[1].Raw)
	}
}

func TestParseBank_OptionalColumns(t *testing.T) {
	input := "\ufefftransaction_id;date;amount\n a1 ;2024-03-01;100\nB2;2024-03-01;\n"

	config := DefaultBankParserConfig()
	config.Delimiter = ';'
	parser, err := NewBankParser(config)
	if err != nil {
		t.Fatalf("NewBankParser() error = %v", err)
	}

	result, stats, err := parser.Parse(context.Background(), strings.NewReader(input), "bank.csv")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(result.Valid) != 1 {
		t.Fatalf("expected 1 valid row, got %d", len(result.Valid))
	}
	if result.Valid[0].TransactionID != "a1" {
		t.Errorf("expected trimmed identifier, got %q", result.Valid[0].TransactionID)
	}
	if result.Valid[0].Currency != "" || result.Valid[0].Description != "" {
		t.Errorf("expected optional fields to be empty, got %+v", result.Valid[0])
	}
	if len(result.Invalid) != 1 || result.Invalid[0].Reason != "missing amount" {
		t.Errorf("unexpected invalid rows %+v", result.Invalid)
	}
	if stats.RowsRead != 2 || stats.RowsValid != 1 || stats.RowsRejected != 1 {
		t.Errorf("unexpected stats %s", stats)
	}
}

func TestParseBank_DecimalCommaRejected(t *testing.T) {
	input := "transaction_id;date;amount\nB1;2024-03-01;1,50\nB2;2024-03-01;1,500\n"

	config := DefaultBankParserConfig()
	config.Delimiter = ';'
	parser, err := NewBankParser(config)
	if err != nil {
		t.Fatalf("NewBankParser() error = %v", err)
	}

	result, _, err := parser.Parse(context.Background(), strings.NewReader(input), "bank.csv")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(result.Invalid) != 1 || result.Invalid[0].Row != 1 || result.Invalid[0].Reason != "invalid amount '1,50'" {
		t.Errorf("expected 1,50 to be rejected, got %+v", result.Invalid)
	}
	if len(result.Valid) != 1 || result.Valid[0].Amount.String() != "1500" {
		t.Errorf("expected 1,500 to parse as 1500, got %+v", result.Valid)
	}
}

func TestParseBank_WithoutHeader(t *testing.T) {
	config := DefaultBankParserConfig()
	config.HasHeader = false
	parser, err := NewBankParser(config)
	if err != nil {
		t.Fatalf("NewBankParser() error = %v", err)
	}

	result, _, err := parser.Parse(context.Background(), strings.NewReader("B1,2024-03-01,50\n"), "bank.csv")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(result.Valid) != 1 || !result.Valid[0].Amount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestParseMerchant_SkipsEmptyRowsAndKeepsMalformedOnes(t *testing.T) {
	input := "transaction_id,date,amount,currency\nA1,2024-03-01,1,USD\n , , , \nA2,2024-03-01,2 \"x,USD\nA3,2024-03-01,3,USD\n"

	result, err := ParseMerchant(context.Background(), strings.NewReader(input), "merchant.csv")
	if err != nil {
		t.Fatalf("ParseMerchant() error = %v", err)
	}

	if len(result.Valid) != 2 {
		t.Errorf("expected 2 valid rows, got %d", len(result.Valid))
	}
	if len(result.Invalid) != 1 || !strings.HasPrefix(result.Invalid[0].Reason, "malformed row") {
		t.Errorf("expected one malformed row, got %+v", result.Invalid)
	}
}

func TestParseMerchant_StructuralErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantCode errors.ErrorCode
	}{
		{"empty input", "", errors.CodeInvalidFormat},
		{"missing required column", "transaction_id,date,amount\nA1,2024-03-01,1\n", errors.CodeMissingColumn},
		{"invalid encoding", "transaction_id,date,amount,currency\nA1,2024-03-01,1,\xff\n", errors.CodeEncodingError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMerchant(context.Background(), strings.NewReader(tt.input), "merchant.csv")
			if err == nil {
				t.Fatal("expected an error")
			}
			rerr, ok := errors.AsReconcilerError(err)
			if !ok {
				t.Fatalf("expected a ReconcilerError, got %T", err)
			}
			if rerr.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, rerr.Code)
			}
		})
	}
}

func TestParseMerchant_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ParseMerchant(ctx, strings.NewReader("transaction_id,date,amount,currency\nA1,2024-03-01,1,USD\n"), "merchant.csv")
	rerr, ok := errors.AsReconcilerError(err)
	if !ok || rerr.Code != errors.CodeCancelled {
		t.Errorf("expected cancellation error, got %v", err)
	}
}

func TestParseFiles(t *testing.T) {
	merchantPath := createTempCSVFile(t, "transaction_id,date,amount,currency\nA1,2024-03-01,100,USD\n")

	merchant, err := ParseMerchantFile(context.Background(), merchantPath)
	if err != nil {
		t.Fatalf("ParseMerchantFile() error = %v", err)
	}
	if len(merchant.Valid) != 1 {
		t.Errorf("expected 1 merchant record, got %d", len(merchant.Valid))
	}

	_, err = ParseBankFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	rerr, ok := errors.AsReconcilerError(err)
	if !ok || rerr.Code != errors.CodeFileNotFound {
		t.Errorf("expected file not found error, got %v", err)
	}

	_, err = ParseBankFile(context.Background(), t.TempDir())
	rerr, ok = errors.AsReconcilerError(err)
	if !ok || rerr.Code != errors.CodeDirectoryError {
		t.Errorf("expected directory error, got %v", err)
	}
}

func TestValidateRecords(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	merchant := ValidateMerchantRecords([]models.MerchantTransaction{
		{TransactionID: "A1", Date: date, Amount: decimal.NewFromInt(1), Currency: "USD"},
		{TransactionID: "", Date: date, Amount: decimal.NewFromInt(2), Currency: "USD"},
	})
	if len(merchant.Valid) != 1 || len(merchant.Invalid) != 1 {
		t.Fatalf("unexpected merchant split %+v", merchant)
	}
	if merchant.Invalid[0].Row != 2 || merchant.Invalid[0].Raw[ColumnAmount] != "2" {
		t.Errorf("unexpected merchant row error %+v", merchant.Invalid[0])
	}

	bank := ValidateBankRecords([]models.BankTransaction{{TransactionID: "B1", Amount: decimal.NewFromInt(5)}})
	if len(bank.Valid) != 0 || len(bank.Invalid) != 1 {
		t.Fatalf("expected dateless bank record to be rejected, got %+v", bank)
	}
	if bank.Invalid[0].Raw[ColumnDate] != "" {
		t.Errorf("expected empty raw date, got %q", bank.Invalid[0].Raw[ColumnDate])
	}
}

func TestDecodeRecords(t *testing.T) {
	raw := []json.RawMessage{
		json.RawMessage(`{"transactionId":"A1","date":"2024-03-01","amount":"100","currency":"USD"}`),
		json.RawMessage(`{"transactionId":"A2","date":"2024-03-01","currency":"USD"}`),
		json.RawMessage(`{"transactionId":"A3","date":"2024-03-01","amount":"abc","currency":"USD"}`),
		json.RawMessage(`{"transactionId":"A4","date":"not-a-date","amount":5,"currency":"USD"}`),
		json.RawMessage(`{"transactionId":7,"date":"2024-03-01","amount":"1","currency":"USD"}`),
		json.RawMessage(`["A6"]`),
		json.RawMessage(`{"transactionId":"A7","date":"2024-03-01","amount":"2"}`),
		json.RawMessage(`{"transactionId":"A8","date":"2024-03-01","amount":0,"currency":"USD"}`),
	}

	result := DecodeMerchantRecords(raw)

	if len(result.Valid) != 2 || result.Valid[0].TransactionID != "A1" || result.Valid[1].TransactionID != "A8" {
		t.Fatalf("expected A1 and A8 to be valid, got %+v", result.Valid)
	}
	if !result.Valid[1].Amount.IsZero() {
		t.Errorf("expected explicit zero amount, got %s", result.Valid[1].Amount)
	}

	expected := []struct {
		row    int
		reason string
	}{
		{2, "missing amount"},
		{3, "invalid amount 'abc'"},
		{4, "invalid date 'not-a-date'"},
		{5, "invalid transactionId"},
		{6, "record is not a JSON object"},
		{7, "currency cannot be empty"},
	}
	if len(result.Invalid) != len(expected) {
		t.Fatalf("expected %d invalid records, got %+v", len(expected), result.Invalid)
	}
	for i, want := range expected {
		got := result.Invalid[i]
		if got.Row != want.row || !strings.Contains(got.Reason, want.reason) {
			t.Errorf("invalid[%d] = row %d %q, want row %d containing %q", i, got.Row, got.Reason, want.row, want.reason)
		}
	}
	if result.Invalid[1].Raw["amount"] != "abc" || result.Invalid[2].Raw["amount"] != "5" {
		t.Errorf("expected raw values to be kept, got %v and %v", result.Invalid[1].Raw, result.Invalid[2].Raw)
	}
	if _, ok := result.Invalid[0].Raw["amount"]; ok {
		t.Errorf("absent amount should not appear in raw, got %v", result.Invalid[0].Raw)
	}
	if result.Invalid[3].Raw["transactionId"] != "7" {
		t.Errorf("expected numeric id in raw, got %v", result.Invalid[3].Raw)
	}

	bank := DecodeBankRecords([]json.RawMessage{
		json.RawMessage(`{"transactionId":"B1","date":"2024-03-01","amount":"1"}`),
		json.RawMessage(`null`),
	})
	if len(bank.Valid) != 1 || len(bank.Invalid) != 1 || bank.Invalid[0].Row != 2 {
		t.Errorf("unexpected bank split %+v", bank)
	}
}

func TestRowError_Error(t *testing.T) {
	err := RowError{Row: 4, Reason: "missing amount"}
	if err.Error() != "row 4: missing amount" {
		t.Errorf("unexpected error string %q", err.Error())
	}
}
