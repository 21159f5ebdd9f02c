package reconciler

import (
	"reflect"
	"testing"
	"time"

	"ledger-reconciler/internal/models"

	"github.com/shopspring/decimal"
)

var testDate = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func merchantTx(id, amount string) models.MerchantTransaction {
	return models.MerchantTransaction{
		TransactionID: id,
		Date:          testDate,
		Amount:        decimal.RequireFromString(amount),
		Currency:      "USD",
	}
}

func bankTx(id, amount string) models.BankTransaction {
	return models.BankTransaction{
		TransactionID: id,
		Date:          testDate,
		Amount:        decimal.RequireFromString(amount),
	}
}

func tolerance(s string) Config {
	return Config{AmountTolerance: decimal.RequireFromString(s)}
}

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Errorf("%s = %s, want %s", name, got.String(), want)
	}
}

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"A1", "a1"},
		{"  a1 ", "a1"},
		{"\tTXN-001\n", "txn-001"},
		{"", ""},
		{"   ", ""},
		{"Ä-ID", "ä-id"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeID(tt.input); got != tt.expected {
				t.Errorf("NormalizeID(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config should be valid, got %v", err)
	}
	if err := tolerance("0.05").Validate(); err != nil {
		t.Errorf("positive tolerance should be valid, got %v", err)
	}
	if err := tolerance("-1").Validate(); err == nil {
		t.Error("expected negative tolerance to be rejected")
	}
}

func TestReconcile_ExactMatchIgnoresCaseAndWhitespace(t *testing.T) {
	result := Reconcile(
		[]models.MerchantTransaction{merchantTx("A1", "100")},
		[]models.BankTransaction{bankTx(" a1 ", "100")},
		DefaultConfig(),
	)

	if len(result.Matches) != 1 {
		t.Fatalf("expected 1 match record, got %d", len(result.Matches))
	}
	m := result.Matches[0]
	if m.Status != models.StatusMatched || m.Reason != models.ReasonExactID {
		t.Errorf("expected matched/EXACT_ID, got %s/%s", m.Status, m.Reason)
	}
	if m.TransactionID != "A1" {
		t.Errorf("expected merchant-side identifier, got %q", m.TransactionID)
	}
	assertDecimal(t, "diff", m.Diff, "0")

	totals := result.Totals
	if totals.MerchantCount != 1 || totals.BankCount != 1 || totals.Matched != 1 {
		t.Errorf("unexpected counts %+v", totals)
	}
	assertDecimal(t, "sumMerchant", totals.SumMerchant, "100")
	assertDecimal(t, "sumBank", totals.SumBank, "100")
	assertDecimal(t, "sumDiff", totals.SumDiff, "0")
}

func TestReconcile_MissingInBank(t *testing.T) {
	result := Reconcile([]models.MerchantTransaction{merchantTx("A1", "100")}, nil, DefaultConfig())

	if len(result.Matches) != 1 {
		t.Fatalf("expected 1 match record, got %d", len(result.Matches))
	}
	m := result.Matches[0]
	if m.Status != models.StatusMissingInBank || m.Reason != models.ReasonMissingInBank {
		t.Errorf("expected missing_in_bank, got %s/%s", m.Status, m.Reason)
	}
	if m.Bank != nil || m.Merchant == nil {
		t.Error("expected merchant side only")
	}
	if result.Totals.MissingInBank != 1 || result.Totals.BankCount != 0 {
		t.Errorf("unexpected totals %+v", result.Totals)
	}
	assertDecimal(t, "sumBank", result.Totals.SumBank, "0")
	assertDecimal(t, "sumDiff", result.Totals.SumDiff, "-100")
}

func TestReconcile_MissingInMerchant(t *testing.T) {
	result := Reconcile(nil, []models.BankTransaction{bankTx("B1", "50")}, DefaultConfig())

	if len(result.Matches) != 1 {
		t.Fatalf("expected 1 match record, got %d", len(result.Matches))
	}
	m := result.Matches[0]
	if m.Status != models.StatusMissingInMerchant || m.Reason != models.ReasonMissingInMerchant {
		t.Errorf("expected missing_in_merchant, got %s/%s", m.Status, m.Reason)
	}
	if m.TransactionID != "B1" {
		t.Errorf("expected bank-side identifier, got %q", m.TransactionID)
	}
	if m.Merchant != nil || m.Bank == nil {
		t.Error("expected bank side only")
	}
	if result.Totals.MissingInMerchant != 1 || result.Totals.MerchantCount != 0 {
		t.Errorf("unexpected totals %+v", result.Totals)
	}
	assertDecimal(t, "sumMerchant", result.Totals.SumMerchant, "0")
	assertDecimal(t, "sumBank", result.Totals.SumBank, "50")
}

func TestReconcile_Tolerance(t *testing.T) {
	tests := []struct {
		name       string
		merchant   string
		bank       string
		tolerance  string
		wantStatus models.MatchStatus
		wantReason models.MatchReason
		wantDiff   string
	}{
		{"within tolerance", "100", "102", "5", models.StatusMatched, models.ReasonAmountTolerance, "0"},
		{"outside tolerance", "100", "102", "1", models.StatusAmountMismatch, models.ReasonAmountMismatch, "2.00"},
		{"zero tolerance rejects a cent", "100", "100.01", "0", models.StatusAmountMismatch, models.ReasonAmountMismatch, "0.01"},
		{"zero difference with tolerance", "100", "100", "5", models.StatusMatched, models.ReasonExactID, "0"},
		{"boundary equals tolerance", "10.00", "10.05", "0.05", models.StatusMatched, models.ReasonAmountTolerance, "0"},
		{"just above boundary", "10.00", "10.06", "0.05", models.StatusAmountMismatch, models.ReasonAmountMismatch, "0.06"},
		{"negative difference", "100", "97.5", "1", models.StatusAmountMismatch, models.ReasonAmountMismatch, "-2.5"},
		{"sub-cent noise rounds away", "100", "100.004", "0", models.StatusMatched, models.ReasonExactID, "0"},
		{"refund on both sides", "-20", "-20", "0", models.StatusMatched, models.ReasonExactID, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Reconcile(
				[]models.MerchantTransaction{merchantTx("A1", tt.merchant)},
				[]models.BankTransaction{bankTx("A1", tt.bank)},
				tolerance(tt.tolerance),
			)

			m := result.Matches[0]
			if m.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", m.Status, tt.wantStatus)
			}
			if m.Reason != tt.wantReason {
				t.Errorf("reason = %s, want %s", m.Reason, tt.wantReason)
			}
			assertDecimal(t, "diff", m.Diff, tt.wantDiff)
		})
	}
}

func TestReconcile_DuplicateBankIDsLastWriteWins(t *testing.T) {
	merchant := []models.MerchantTransaction{merchantTx("A1", "100")}
	bank := []models.BankTransaction{
		bankTx("A1", "90"),
		bankTx("Z9", "5"),
		bankTx("a1 ", "100"),
	}

	result := Reconcile(merchant, bank, DefaultConfig())

	if len(result.Matches) != 2 {
		t.Fatalf("expected 2 match records, got %d", len(result.Matches))
	}
	first := result.Matches[0]
	if first.Status != models.StatusMatched {
		t.Errorf("expected the later bank record to win, got %s", first.Status)
	}
	if first.Bank != &bank[2] {
		t.Error("expected match to reference the last bank record with the key")
	}
	if result.Matches[1].TransactionID != "Z9" {
		t.Errorf("expected Z9 as the only bank-only record, got %s", result.Matches[1].TransactionID)
	}
	if result.Totals.BankCount != 2 {
		t.Errorf("expected overwritten bank record to be excluded from bank count, got %d", result.Totals.BankCount)
	}
	assertDecimal(t, "sumBank", result.Totals.SumBank, "105")
}

func TestReconcile_BankOnlyOrderFollowsFirstSeenKey(t *testing.T) {
	bank := []models.BankTransaction{
		bankTx("B1", "1"),
		bankTx("B2", "2"),
		bankTx("B1", "3"),
		bankTx("B3", "4"),
	}

	result := Reconcile(nil, bank, DefaultConfig())

	var got []string
	for _, m := range result.Matches {
		got = append(got, m.TransactionID+"="+m.Bank.Amount.String())
	}
	want := []string{"B1=3", "B2=2", "B3=4"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("bank-only order = %v, want %v", got, want)
	}
}

func TestReconcile_DuplicateMerchantIDs(t *testing.T) {
	merchant := []models.MerchantTransaction{merchantTx("A1", "100"), merchantTx("A1", "100")}
	bank := []models.BankTransaction{bankTx("A1", "100")}

	result := Reconcile(merchant, bank, DefaultConfig())

	if len(result.Matches) != 2 {
		t.Fatalf("expected 2 match records, got %d", len(result.Matches))
	}
	if result.Matches[0].Status != models.StatusMatched {
		t.Errorf("expected first merchant record to consume the bank record, got %s", result.Matches[0].Status)
	}
	if result.Matches[1].Status != models.StatusMissingInBank {
		t.Errorf("expected second merchant record to find nothing, got %s", result.Matches[1].Status)
	}
}

func TestReconcile_BlankIdentifiersShareAKey(t *testing.T) {
	result := Reconcile(
		[]models.MerchantTransaction{merchantTx("", "10")},
		[]models.BankTransaction{bankTx("   ", "10")},
		DefaultConfig(),
	)

	if len(result.Matches) != 1 || result.Matches[0].Status != models.StatusMatched {
		t.Errorf("expected blank identifiers to match each other, got %+v", result.Matches)
	}
}

func TestReconcile_OrderingAndCoverage(t *testing.T) {
	merchant := []models.MerchantTransaction{
		merchantTx("M3", "30"),
		merchantTx("M1", "10"),
		merchantTx("M2", "20"),
		merchantTx("M4", "40"),
	}
	bank := []models.BankTransaction{
		bankTx("X2", "7"),
		bankTx("m2", "25"),
		bankTx("M1", "10"),
		bankTx("X1", "3"),
		bankTx("x2", "8"),
	}

	result := Reconcile(merchant, bank, tolerance("1"))

	distinctBankKeys := 4 // X2 deduplicated
	matchedBankKeys := 2  // m2, M1
	wantRecords := len(merchant) + distinctBankKeys - matchedBankKeys
	if len(result.Matches) != wantRecords {
		t.Fatalf("expected %d match records, got %d", wantRecords, len(result.Matches))
	}

	var ids []string
	for _, m := range result.Matches {
		ids = append(ids, m.TransactionID)
	}
	want := []string{"M3", "M1", "M2", "M4", "x2", "X1"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("record order = %v, want %v", ids, want)
	}

	totals := result.Totals
	if totals.MerchantCount != 4 || totals.BankCount != 4 {
		t.Errorf("unexpected side counts %+v", totals)
	}
	if totals.Matched != 1 || totals.AmountMismatch != 1 || totals.MissingInBank != 2 || totals.MissingInMerchant != 2 {
		t.Errorf("unexpected status counts %+v", totals)
	}
	if sum := totals.Matched + totals.AmountMismatch + totals.MissingInBank + totals.MissingInMerchant; sum != len(result.Matches) {
		t.Errorf("status counts sum to %d, want %d", sum, len(result.Matches))
	}
	assertDecimal(t, "sumMerchant", totals.SumMerchant, "100")
	assertDecimal(t, "sumBank", totals.SumBank, "46")
	assertDecimal(t, "sumDiff", totals.SumDiff, "-54")
}

func TestReconcile_Invariants(t *testing.T) {
	merchant := []models.MerchantTransaction{
		merchantTx("A1", "10"), merchantTx("A2", "20.50"), merchantTx("A3", "-5"),
	}
	bank := []models.BankTransaction{
		bankTx("a2", "20.49"), bankTx("A3", "-7"), bankTx("B9", "1"),
	}

	result := Reconcile(merchant, bank, tolerance("0.01"))

	for _, m := range result.Matches {
		if m.Merchant == nil && m.Bank == nil {
			t.Errorf("%s: record without either side", m.TransactionID)
		}
		if (m.Status == models.StatusMissingInBank) != (m.Bank == nil) {
			t.Errorf("%s: missing_in_bank must coincide with an absent bank side", m.TransactionID)
		}
		if (m.Status == models.StatusMissingInMerchant) != (m.Merchant == nil) {
			t.Errorf("%s: missing_in_merchant must coincide with an absent merchant side", m.TransactionID)
		}
		if !m.Diff.IsZero() && m.Status != models.StatusAmountMismatch {
			t.Errorf("%s: nonzero diff on a %s record", m.TransactionID, m.Status)
		}
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	merchant := []models.MerchantTransaction{merchantTx("A1", "10"), merchantTx("A2", "20")}
	bank := []models.BankTransaction{bankTx("A2", "21"), bankTx("B1", "3"), bankTx("a1", "10")}

	first := Reconcile(merchant, bank, tolerance("0.5"))
	second := Reconcile(merchant, bank, tolerance("0.5"))

	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical results across runs\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestReconcile_DoesNotMutateInputs(t *testing.T) {
	merchant := []models.MerchantTransaction{merchantTx(" A1 ", "10")}
	bank := []models.BankTransaction{bankTx("a1", "12")}

	Reconcile(merchant, bank, DefaultConfig())

	if merchant[0].TransactionID != " A1 " || bank[0].TransactionID != "a1" {
		t.Error("expected identifiers to be left as given")
	}
	assertDecimal(t, "bank amount", bank[0].Amount, "12")
}

func TestReconcile_EmptyInputs(t *testing.T) {
	result := Reconcile(nil, nil, DefaultConfig())

	if len(result.Matches) != 0 {
		t.Errorf("expected no match records, got %d", len(result.Matches))
	}
	assertDecimal(t, "sumDiff", result.Totals.SumDiff, "0")
}

func TestComputeTotals_RoundsSums(t *testing.T) {
	m1 := merchantTx("A1", "0.105")
	m2 := merchantTx("A2", "0.1")
	b1 := bankTx("A1", "0.2")

	totals := ComputeTotals([]models.MatchRecord{
		{Merchant: &m1, Bank: &b1, Status: models.StatusAmountMismatch},
		{Merchant: &m2, Status: models.StatusMissingInBank},
	})

	assertDecimal(t, "sumMerchant", totals.SumMerchant, "0.21")
	assertDecimal(t, "sumBank", totals.SumBank, "0.2")
	// taken from the unrounded sums: 0.2 - 0.205
	assertDecimal(t, "sumDiff", totals.SumDiff, "-0.01")
}
