// Package review attaches a reviewer's manual decisions to a reconciliation result.
//
// Overrides never change the computed status or the totals. They annotate a
// copy of the affected MatchRecord so reports can show both what the data said
// and what a human decided.
package review

import (
	"fmt"
	"io"
	"os"
	"strings"

	"ledger-reconciler/internal/models"
	"ledger-reconciler/internal/reconciler"
	"ledger-reconciler/pkg/errors"

	"gopkg.in/yaml.v3"
)

// Override is one manual decision about a transaction
type Override struct {
	TransactionID string                `yaml:"transaction_id" json:"transactionId"`
	Status        models.OverrideStatus `yaml:"status" json:"status"`
	Reason        string                `yaml:"reason" json:"reason"`
}

// Validate checks the override on its own, without looking at any result
func (o Override) Validate() error {
	if strings.TrimSpace(o.TransactionID) == "" {
		return fmt.Errorf("override transaction ID cannot be empty")
	}
	if !o.Status.IsValid() {
		return fmt.Errorf("invalid override status '%s': must be %s or %s",
			o.Status, models.OverrideMatched, models.OverrideApprovedMismatch)
	}
	if strings.TrimSpace(o.Reason) == "" {
		return fmt.Errorf("override for %s needs a reason", o.TransactionID)
	}
	return nil
}

// File is the on-disk layout of an overrides file
type File struct {
	Overrides []Override `yaml:"overrides"`
}

// LoadOverrides reads overrides from a YAML file
func LoadOverrides(path string) ([]Override, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return nil, errors.FileError(errors.CodeFilePermission, path, err)
	}
	defer f.Close()

	overrides, err := ParseOverrides(f)
	if err != nil {
		if rerr, ok := errors.AsReconcilerError(err); ok {
			return nil, rerr.WithContext("file_path", path)
		}
		return nil, err
	}
	return overrides, nil
}

// ParseOverrides decodes and validates an overrides document
func ParseOverrides(r io.Reader) ([]Override, error) {
	var file File
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && err != io.EOF {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "overrides", "yaml", err).
			WithSuggestion("expected a top-level 'overrides:' list of transaction_id, status and reason")
	}

	for i, o := range file.Overrides {
		if err := o.Validate(); err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, fmt.Sprintf("overrides[%d]", i), o.TransactionID, err)
		}
	}

	return file.Overrides, nil
}

// Apply returns a copy of result with overrides attached to the matching
// records. The input result is left untouched and totals are carried over
// unchanged. Overrides that cannot be applied are skipped and reported.
//
// approved_mismatch is only accepted on amount_mismatch records. matched is
// accepted on any record that was not already matched.
func Apply(result *models.ReconciliationResult, overrides []Override) (*models.ReconciliationResult, []error) {
	patched := &models.ReconciliationResult{
		Matches: make([]models.MatchRecord, len(result.Matches)),
		Totals:  result.Totals,
	}
	copy(patched.Matches, result.Matches)

	index := make(map[string][]int, len(patched.Matches))
	for i, m := range patched.Matches {
		key := reconciler.NormalizeID(m.TransactionID)
		index[key] = append(index[key], i)
	}

	var errs []error
	for _, o := range overrides {
		if err := o.Validate(); err != nil {
			errs = append(errs, errors.ReviewError(errors.CodeOverrideRejected, o.TransactionID, err))
			continue
		}

		positions, ok := index[reconciler.NormalizeID(o.TransactionID)]
		if !ok {
			errs = append(errs, errors.ReviewError(errors.CodeUnknownTransaction, o.TransactionID, nil))
			continue
		}

		applied := false
		var rejection error
		for _, i := range positions {
			record := &patched.Matches[i]
			if err := allowed(record, o.Status); err != nil {
				rejection = err
				continue
			}
			record.Override = &models.Override{Status: o.Status, Reason: strings.TrimSpace(o.Reason)}
			applied = true
		}
		if !applied {
			errs = append(errs, errors.ReviewError(errors.CodeOverrideRejected, o.TransactionID, rejection))
		}
	}

	return patched, errs
}

func allowed(record *models.MatchRecord, status models.OverrideStatus) error {
	switch {
	case record.Status == models.StatusMatched:
		return fmt.Errorf("transaction %s is already matched", record.TransactionID)
	case status == models.OverrideApprovedMismatch && record.Status != models.StatusAmountMismatch:
		return fmt.Errorf("approved_mismatch requires an amount_mismatch record, %s is %s", record.TransactionID, record.Status)
	}
	return nil
}
