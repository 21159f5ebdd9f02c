package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// MatchStatus is the computed outcome for one transaction identifier
type MatchStatus string

const (
	StatusMatched           MatchStatus = "matched"
	StatusMissingInBank     MatchStatus = "missing_in_bank"
	StatusMissingInMerchant MatchStatus = "missing_in_merchant"
	StatusAmountMismatch    MatchStatus = "amount_mismatch"
)

// String returns the string representation of MatchStatus
func (s MatchStatus) String() string {
	return string(s)
}

// IsValid checks if the status is one of the computed statuses
func (s MatchStatus) IsValid() bool {
	switch s {
	case StatusMatched, StatusMissingInBank, StatusMissingInMerchant, StatusAmountMismatch:
		return true
	}
	return false
}

// MatchReason explains how a status was reached
type MatchReason string

const (
	ReasonExactID           MatchReason = "EXACT_ID"
	ReasonAmountTolerance   MatchReason = "AMOUNT_TOLERANCE"
	ReasonAmountMismatch    MatchReason = "AMOUNT_MISMATCH"
	ReasonMissingInBank     MatchReason = "MISSING_IN_BANK"
	ReasonMissingInMerchant MatchReason = "MISSING_IN_MERCHANT"
)

// OverrideStatus is the status a reviewer may assign to a record
type OverrideStatus string

const (
	OverrideMatched          OverrideStatus = "matched"
	OverrideApprovedMismatch OverrideStatus = "approved_mismatch"
)

// IsValid checks if the override status is known
func (s OverrideStatus) IsValid() bool {
	return s == OverrideMatched || s == OverrideApprovedMismatch
}

// Override is a reviewer annotation attached after reconciliation
type Override struct {
	Status OverrideStatus
	Reason string
}

// MatchRecord is the outcome for one transaction identifier
type MatchRecord struct {
	TransactionID string               `json:"transactionId"`
	Merchant      *MerchantTransaction `json:"merchant"`
	Bank          *BankTransaction     `json:"bank"`
	Status        MatchStatus          `json:"status"`
	Diff          decimal.Decimal      `json:"diff"` // bank - merchant, zero unless amount_mismatch
	Reason        MatchReason          `json:"matchReason"`
	Override      *Override            `json:"-"`
}

// EffectiveStatus returns the reviewer's status when one is attached,
// otherwise the computed status
func (m *MatchRecord) EffectiveStatus() string {
	if m.Override != nil {
		return string(m.Override.Status)
	}
	return string(m.Status)
}

// MarshalJSON flattens the override into overrideStatus and overrideReason
func (m MatchRecord) MarshalJSON() ([]byte, error) {
	type Alias MatchRecord
	aux := struct {
		Alias
		OverrideStatus OverrideStatus `json:"overrideStatus,omitempty"`
		OverrideReason string         `json:"overrideReason,omitempty"`
	}{
		Alias: Alias(m),
	}
	if m.Override != nil {
		aux.OverrideStatus = m.Override.Status
		aux.OverrideReason = m.Override.Reason
	}
	return json.Marshal(aux)
}

// UnmarshalJSON restores a flattened override
func (m *MatchRecord) UnmarshalJSON(data []byte) error {
	type Alias MatchRecord
	aux := &struct {
		*Alias
		OverrideStatus OverrideStatus `json:"overrideStatus"`
		OverrideReason string         `json:"overrideReason"`
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if aux.OverrideStatus != "" {
		m.Override = &Override{Status: aux.OverrideStatus, Reason: aux.OverrideReason}
	}
	return nil
}

// Totals aggregates a reconciliation run
type Totals struct {
	MerchantCount     int             `json:"merchantCount"`
	BankCount         int             `json:"bankCount"`
	Matched           int             `json:"matched"`
	MissingInBank     int             `json:"missingInBank"`
	MissingInMerchant int             `json:"missingInMerchant"`
	AmountMismatch    int             `json:"amountMismatch"`
	SumMerchant       decimal.Decimal `json:"sumMerchant"`
	SumBank           decimal.Decimal `json:"sumBank"`
	SumDiff           decimal.Decimal `json:"sumDiff"`
}

// ReconciliationResult holds every match record of a run and its totals.
// Merchant-originated records come first in merchant input order,
// followed by bank-only records.
type ReconciliationResult struct {
	Matches []MatchRecord `json:"matches"`
	Totals  Totals        `json:"totals"`
}

// Exceptions returns the records whose effective status is not matched
func (r *ReconciliationResult) Exceptions() []MatchRecord {
	var out []MatchRecord
	for _, m := range r.Matches {
		if m.EffectiveStatus() != string(StatusMatched) {
			out = append(out, m)
		}
	}
	return out
}

// ByEffectiveStatus groups records by EffectiveStatus, keeping input order within a group
func (r *ReconciliationResult) ByEffectiveStatus() map[string][]MatchRecord {
	groups := make(map[string][]MatchRecord)
	for _, m := range r.Matches {
		status := m.EffectiveStatus()
		groups[status] = append(groups[status], m)
	}
	return groups
}
