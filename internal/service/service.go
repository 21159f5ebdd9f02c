// Package service runs a complete reconciliation: load and validate both
// ledgers, reconcile the valid rows, then attach reviewer overrides.
//
// The CLI and the HTTP API share this pipeline so that a run behaves the same
// whichever way it is started.
//
// Example usage:
//
//	svc, err := service.New(service.DefaultConfig(), log)
//	run, err := svc.ReconcileFiles(ctx, service.FileRequest{
//		MerchantFile: "merchant.csv",
//		BankFile:     "bank.csv",
//	})
//	fmt.Println(run.Result.Totals.SumDiff)
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ledger-reconciler/internal/models"
	"ledger-reconciler/internal/parsers"
	"ledger-reconciler/internal/reconciler"
	"ledger-reconciler/internal/reporter"
	"ledger-reconciler/internal/review"
	"ledger-reconciler/pkg/errors"
	"ledger-reconciler/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Config holds everything a run needs besides its inputs
type Config struct {
	Reconcile reconciler.Config             `mapstructure:"reconcile"`
	Merchant  *parsers.MerchantParserConfig `mapstructure:"merchant"`
	Bank      *parsers.BankParserConfig     `mapstructure:"bank"`

	// ProgressInterval enables periodic progress logs while parsing files. Zero disables them.
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Reconcile: reconciler.DefaultConfig(),
		Merchant:  parsers.DefaultMerchantParserConfig(),
		Bank:      parsers.DefaultBankParserConfig(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Reconcile.Validate(); err != nil {
		return err
	}
	if c.Merchant == nil || c.Bank == nil {
		return fmt.Errorf("merchant and bank parser configurations are required")
	}
	if err := c.Merchant.Validate(); err != nil {
		return fmt.Errorf("merchant parser: %w", err)
	}
	if err := c.Bank.Validate(); err != nil {
		return fmt.Errorf("bank parser: %w", err)
	}
	if c.ProgressInterval < 0 {
		return fmt.Errorf("progress interval cannot be negative")
	}
	return nil
}

// FileRequest names the inputs of a file-based run
type FileRequest struct {
	MerchantFile  string
	BankFile      string
	OverridesFile string
}

// RecordsRequest carries in-memory inputs. A nil AmountTolerance uses the
// service configuration.
type RecordsRequest struct {
	Merchant        []models.MerchantTransaction
	Bank            []models.BankTransaction
	Overrides       []review.Override
	AmountTolerance *decimal.Decimal
}

// JSONRequest carries records as undecoded JSON elements, as received by the API
type JSONRequest struct {
	Merchant        []json.RawMessage
	Bank            []json.RawMessage
	Overrides       []review.Override
	AmountTolerance *decimal.Decimal
}

// Run is the outcome of one reconciliation
type Run struct {
	RunID          string
	StartedAt      time.Time
	Duration       time.Duration
	Result         *models.ReconciliationResult
	MerchantIssues []parsers.RowError
	BankIssues     []parsers.RowError
	MerchantStats  parsers.ParseStats
	BankStats      parsers.ParseStats
	OverrideErrors []error
}

// OverrideMessages returns the rejected overrides as plain messages
func (r *Run) OverrideMessages() []string {
	messages := make([]string, 0, len(r.OverrideErrors))
	for _, err := range r.OverrideErrors {
		messages = append(messages, err.Error())
	}
	return messages
}

// Report builds the reporter input for this run
func (r *Run) Report() *reporter.Report {
	return &reporter.Report{
		RunID:          r.RunID,
		GeneratedAt:    r.StartedAt,
		Result:         r.Result,
		MerchantIssues: r.MerchantIssues,
		BankIssues:     r.BankIssues,
		OverrideErrors: r.OverrideMessages(),
	}
}

// Service runs reconciliations
type Service struct {
	config *Config
	logger logger.Logger
	now    func() time.Time
	newID  func() string
}

// New creates a Service after validating its configuration
func New(config *Config, log logger.Logger) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "service_config", config, err)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &Service{
		config: config,
		logger: log.WithComponent("reconciliation_service"),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}, nil
}

// GetConfig returns the service configuration
func (s *Service) GetConfig() *Config {
	return s.config
}

// ReconcileFiles parses both ledger files, reconciles the valid rows and
// applies the overrides file when one is given
func (s *Service) ReconcileFiles(ctx context.Context, req FileRequest) (*Run, error) {
	if req.MerchantFile == "" || req.BankFile == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "input_files", req, nil).
			WithSuggestion("both --merchant-file and --bank-file are required")
	}

	run := s.startRun()
	log := s.logger.WithField("run_id", run.RunID)

	var overrides []review.Override
	if req.OverridesFile != "" {
		loaded, err := review.LoadOverrides(req.OverridesFile)
		if err != nil {
			return nil, err
		}
		overrides = loaded
	}

	var merchant *parsers.ValidationResult[models.MerchantTransaction]
	var bank *parsers.ValidationResult[models.BankTransaction]

	err := logger.TimedOperation("parse_ledgers", log, func() error {
		parseCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		// The first structural failure stops the other parse
		var firstErr error
		var once sync.Once
		fail := func(err error) {
			once.Do(func() {
				firstErr = err
				cancel()
			})
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			var err error
			merchant, run.MerchantStats, err = s.parseMerchant(parseCtx, req.MerchantFile)
			if err != nil {
				fail(err)
			}
		}()
		go func() {
			defer wg.Done()
			var err error
			bank, run.BankStats, err = s.parseBank(parseCtx, req.BankFile)
			if err != nil {
				fail(err)
			}
		}()
		wg.Wait()

		return firstErr
	})
	if err != nil {
		return nil, err
	}

	run.MerchantIssues = merchant.Invalid
	run.BankIssues = bank.Invalid
	s.finish(run, merchant.Valid, bank.Valid, overrides, s.config.Reconcile)
	return run, nil
}

func (s *Service) parseMerchant(ctx context.Context, path string) (*parsers.ValidationResult[models.MerchantTransaction], parsers.ParseStats, error) {
	p, err := parsers.NewMerchantParser(s.config.Merchant)
	if err != nil {
		return nil, parsers.ParseStats{Source: path}, err
	}
	return p.WithProgress(s.config.ProgressInterval).ParseFile(ctx, path)
}

func (s *Service) parseBank(ctx context.Context, path string) (*parsers.ValidationResult[models.BankTransaction], parsers.ParseStats, error) {
	p, err := parsers.NewBankParser(s.config.Bank)
	if err != nil {
		return nil, parsers.ParseStats{Source: path}, err
	}
	return p.WithProgress(s.config.ProgressInterval).ParseFile(ctx, path)
}

// ReconcileRecords validates in-memory records, reconciles the valid ones and
// applies the given overrides
func (s *Service) ReconcileRecords(ctx context.Context, req RecordsRequest) (*Run, error) {
	return s.reconcileValidated(ctx, "reconcile_records", req.AmountTolerance, req.Overrides,
		func() (*parsers.ValidationResult[models.MerchantTransaction], *parsers.ValidationResult[models.BankTransaction]) {
			return parsers.ValidateMerchantRecords(req.Merchant), parsers.ValidateBankRecords(req.Bank)
		})
}

// ReconcileJSON decodes each JSON record separately, so a record with a bad
// amount or date is reported as a row issue instead of failing the request
func (s *Service) ReconcileJSON(ctx context.Context, req JSONRequest) (*Run, error) {
	return s.reconcileValidated(ctx, "reconcile_json", req.AmountTolerance, req.Overrides,
		func() (*parsers.ValidationResult[models.MerchantTransaction], *parsers.ValidationResult[models.BankTransaction]) {
			return parsers.DecodeMerchantRecords(req.Merchant), parsers.DecodeBankRecords(req.Bank)
		})
}

func (s *Service) reconcileValidated(
	ctx context.Context,
	operation string,
	tolerance *decimal.Decimal,
	overrides []review.Override,
	validate func() (*parsers.ValidationResult[models.MerchantTransaction], *parsers.ValidationResult[models.BankTransaction]),
) (*Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.InternalError(errors.CodeCancelled, operation, err)
	}

	cfg := s.config.Reconcile
	if tolerance != nil {
		cfg.AmountTolerance = *tolerance
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeOutOfRange, "amountTolerance", cfg.AmountTolerance.String(), err)
	}

	run := s.startRun()
	merchant, bank := validate()

	run.MerchantStats = recordStats("merchant", merchant)
	run.BankStats = recordStats("bank", bank)
	run.MerchantIssues = merchant.Invalid
	run.BankIssues = bank.Invalid

	s.finish(run, merchant.Valid, bank.Valid, overrides, cfg)
	return run, nil
}

func recordStats[T any](source string, result *parsers.ValidationResult[T]) parsers.ParseStats {
	return parsers.ParseStats{
		Source:       source,
		RowsRead:     len(result.Valid) + len(result.Invalid),
		RowsValid:    len(result.Valid),
		RowsRejected: len(result.Invalid),
	}
}

func (s *Service) startRun() *Run {
	return &Run{
		RunID:     s.newID(),
		StartedAt: s.now(),
	}
}

func (s *Service) finish(run *Run, merchant []models.MerchantTransaction, bank []models.BankTransaction, overrides []review.Override, cfg reconciler.Config) {
	result := reconciler.Reconcile(merchant, bank, cfg)

	if len(overrides) > 0 {
		patched, errs := review.Apply(result, overrides)
		result = patched
		run.OverrideErrors = errs
		for _, err := range errs {
			s.logger.WithField("run_id", run.RunID).WithError(err).Warn("Override skipped")
		}
	}

	run.Result = result
	run.Duration = s.now().Sub(run.StartedAt)

	totals := result.Totals
	s.logger.WithFields(logger.Fields{
		"run_id":              run.RunID,
		"merchant_count":      totals.MerchantCount,
		"bank_count":          totals.BankCount,
		"matched":             totals.Matched,
		"amount_mismatch":     totals.AmountMismatch,
		"missing_in_bank":     totals.MissingInBank,
		"missing_in_merchant": totals.MissingInMerchant,
		"sum_diff":            totals.SumDiff.StringFixed(2),
		"rows_rejected":       len(run.MerchantIssues) + len(run.BankIssues),
		"overrides_rejected":  len(run.OverrideErrors),
		"duration":            run.Duration,
	}).Info("Reconciliation completed")
}
