package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"ledger-reconciler/cmd/reconciler/config"
	"ledger-reconciler/internal/reporter"
	"ledger-reconciler/internal/service"
	"ledger-reconciler/pkg/errors"
	"ledger-reconciler/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the reconcile command
var (
	merchantFile    string
	bankFile        string
	amountTolerance string
	overridesFile   string
	outputFormat    string
	outputFile      string
	includeMatched  bool
	showProgress    bool
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile a merchant ledger with a bank ledger",
	Long: `Reconcile pairs merchant and bank records by transaction ID and reports
every record as matched, amount_mismatch, missing_in_bank or missing_in_merchant.

Rows that fail validation are skipped and listed in the report. An overrides
file lets a reviewer mark known exceptions as matched or approved_mismatch
without changing the computed result.

Examples:
  # Basic reconciliation
  reconciler reconcile --merchant-file merchant.csv --bank-file bank.csv

  # Accept differences up to five cents
  reconciler reconcile -m merchant.csv -b bank.csv --amount-tolerance 0.05

  # Apply reviewer decisions and write JSON
  reconciler reconcile -m merchant.csv -b bank.csv --overrides overrides.yaml \
    --output-format json --output-file report.json

  # Full CSV export including matched records
  reconciler reconcile -m merchant.csv -b bank.csv -f csv --include-matched`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	// Input flags
	reconcileCmd.Flags().StringVarP(&merchantFile, "merchant-file", "m", "", "path to merchant ledger CSV file (required)")
	reconcileCmd.Flags().StringVarP(&bankFile, "bank-file", "b", "", "path to bank ledger CSV file (required)")
	reconcileCmd.Flags().StringVar(&overridesFile, "overrides", "", "YAML file of reviewer overrides")

	// Matching flags
	reconcileCmd.Flags().StringVarP(&amountTolerance, "amount-tolerance", "a", "0", "largest absolute amount difference still counted as matched")

	// Output flags
	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	reconcileCmd.Flags().BoolVar(&includeMatched, "include-matched", false, "include matched records in the report")
	reconcileCmd.Flags().BoolVar(&showProgress, "progress", false, "log parsing progress")

	viper.BindPFlag("reconcile.merchant-file", reconcileCmd.Flags().Lookup("merchant-file"))
	viper.BindPFlag("reconcile.bank-file", reconcileCmd.Flags().Lookup("bank-file"))
	viper.BindPFlag("reconcile.overrides", reconcileCmd.Flags().Lookup("overrides"))
	viper.BindPFlag("reconcile.amount-tolerance", reconcileCmd.Flags().Lookup("amount-tolerance"))
	viper.BindPFlag("reconcile.output-format", reconcileCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("reconcile.output-file", reconcileCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("reconcile.include-matched", reconcileCmd.Flags().Lookup("include-matched"))
	viper.BindPFlag("reconcile.progress", reconcileCmd.Flags().Lookup("progress"))
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file and environment)
	merchantFile = viper.GetString("reconcile.merchant-file")
	bankFile = viper.GetString("reconcile.bank-file")
	overridesFile = viper.GetString("reconcile.overrides")
	amountTolerance = viper.GetString("reconcile.amount-tolerance")
	outputFormat = viper.GetString("reconcile.output-format")
	outputFile = viper.GetString("reconcile.output-file")
	includeMatched = viper.GetBool("reconcile.include-matched")
	showProgress = viper.GetBool("reconcile.progress")

	if merchantFile == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "merchant-file", nil, nil)
	}
	if bankFile == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "bank-file", nil, nil)
	}

	if err := validateFileExists(merchantFile, "merchant ledger file"); err != nil {
		return err
	}
	if err := validateFileExists(bankFile, "bank ledger file"); err != nil {
		return err
	}
	if overridesFile != "" {
		if err := validateFileExists(overridesFile, "overrides file"); err != nil {
			return err
		}
	}

	if _, err := config.ParseAmountTolerance(amountTolerance); err != nil {
		return err
	}
	if _, err := config.CreateReportConfig(outputFormat, includeMatched); err != nil {
		return err
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err).
			WithContext("description", description)
	}
	if os.IsPermission(err) {
		return errors.FileError(errors.CodeFilePermission, filePath, err).
			WithContext("description", description)
	}
	if err != nil {
		return errors.FileError(errors.CodeDirectoryError, filePath, err).
			WithContext("description", description)
	}
	if info.IsDir() {
		return errors.FileError(errors.CodeDirectoryError, filePath,
			fmt.Errorf("%s is a directory, expected a file", description))
	}

	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt)
	defer stop()

	log := logger.GetGlobalLogger().WithComponent("cli")
	log.WithFields(logger.Fields{
		"merchant_file":    merchantFile,
		"bank_file":        bankFile,
		"overrides_file":   overridesFile,
		"amount_tolerance": amountTolerance,
		"output_format":    outputFormat,
	}).Debug("Starting reconciliation")

	serviceConfig, err := config.CreateServiceConfig(amountTolerance, showProgress)
	if err != nil {
		return err
	}
	if err := config.ApplyParserSettings(viper.GetViper(), serviceConfig); err != nil {
		return err
	}

	svc, err := service.New(serviceConfig, log)
	if err != nil {
		return err
	}

	run, err := svc.ReconcileFiles(ctx, service.FileRequest{
		MerchantFile:  merchantFile,
		BankFile:      bankFile,
		OverridesFile: overridesFile,
	})
	if err != nil {
		return err
	}
	if len(run.OverrideErrors) > 0 {
		summary := errors.NewErrorSummary(errors.Collect(run.OverrideErrors, errors.CategoryReview, errors.CodeOverrideRejected))
		log.WithFields(logger.Fields{
			"total":   summary.Total,
			"by_code": summary.ByCode,
		}).Warn(summary.Error())
	}

	reportConfig, err := config.CreateReportConfig(outputFormat, includeMatched)
	if err != nil {
		return err
	}
	generator, err := reporter.NewSafeReportGenerator(reportConfig, log)
	if err != nil {
		return err
	}

	if outputFile == "" {
		return generator.GenerateReportSafely(run.Report(), cmd.OutOrStdout())
	}

	written, err := generator.WriteReportFile(run.Report(), outputFile)
	if err != nil {
		return err
	}
	if written != outputFile {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not write %s, report saved to %s\n", outputFile, written)
	}
	if viper.GetBool("verbose") {
		abs, _ := filepath.Abs(written)
		fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", abs)
	}
	return nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
