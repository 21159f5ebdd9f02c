// Package config turns command-line and config-file settings into the
// configuration structs of the internal packages.
package config

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"ledger-reconciler/internal/api"
	"ledger-reconciler/internal/generator"
	"ledger-reconciler/internal/models"
	"ledger-reconciler/internal/reporter"
	"ledger-reconciler/internal/service"
	"ledger-reconciler/pkg/errors"
	"ledger-reconciler/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// ProgressInterval is how often --progress logs parsing progress
const ProgressInterval = 2 * time.Second

// ParseAmountTolerance parses a tolerance such as "0.05". Empty means zero.
func ParseAmountTolerance(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, nil
	}
	tolerance, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, errors.ValidationError(errors.CodeInvalidAmount, "amount-tolerance", value, err)
	}
	if tolerance.IsNegative() {
		return decimal.Zero, errors.ValidationError(errors.CodeOutOfRange, "amount-tolerance", value, nil).
			WithSuggestion("use zero or a positive amount such as 0.05")
	}
	return tolerance, nil
}

// CreateServiceConfig creates the run pipeline configuration
func CreateServiceConfig(amountTolerance string, showProgress bool) (*service.Config, error) {
	tolerance, err := ParseAmountTolerance(amountTolerance)
	if err != nil {
		return nil, err
	}

	config := service.DefaultConfig()
	config.Reconcile.AmountTolerance = tolerance
	if showProgress {
		config.ProgressInterval = ProgressInterval
	}
	return config, nil
}

// ApplyParserSettings reads optional "merchant" and "bank" sections from v:
//
//	merchant:
//	  delimiter: ";"
//	  column_aliases:
//	    transaction_id: order_ref
func ApplyParserSettings(v *viper.Viper, config *service.Config) error {
	merchantDelimiter, err := delimiter(v, "merchant.delimiter", config.Merchant.Delimiter)
	if err != nil {
		return err
	}
	config.Merchant.Delimiter = merchantDelimiter
	for column, alias := range v.GetStringMapString("merchant.column_aliases") {
		config.Merchant.ColumnAliases[column] = alias
	}
	if v.IsSet("merchant.has_header") {
		config.Merchant.HasHeader = v.GetBool("merchant.has_header")
	}

	bankDelimiter, err := delimiter(v, "bank.delimiter", config.Bank.Delimiter)
	if err != nil {
		return err
	}
	config.Bank.Delimiter = bankDelimiter
	for column, alias := range v.GetStringMapString("bank.column_aliases") {
		config.Bank.ColumnAliases[column] = alias
	}
	if v.IsSet("bank.has_header") {
		config.Bank.HasHeader = v.GetBool("bank.has_header")
	}

	return config.Validate()
}

func delimiter(v *viper.Viper, key string, fallback rune) (rune, error) {
	value := v.GetString(key)
	if value == "" {
		return fallback, nil
	}
	if value == `\t` || value == "tab" {
		return '\t', nil
	}
	if utf8.RuneCountInString(value) != 1 {
		return 0, fmt.Errorf("%s must be a single character, got %q", key, value)
	}
	r, _ := utf8.DecodeRuneInString(value)
	return r, nil
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string, includeMatched bool) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()
	config.Format = reporter.OutputFormat(strings.ToLower(strings.TrimSpace(format)))
	config.IncludeMatched = includeMatched

	switch config.Format {
	case reporter.FormatJSON:
		config.UseColors = false
	case reporter.FormatCSV:
		config.UseColors = false
		config.CSVHeaders = true
		config.CSVDelimiter = ','
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", format)
	}
	return config, nil
}

// CreateServerConfig creates the API server configuration
func CreateServerConfig(port int, allowedOrigins []string) (api.Config, error) {
	config := api.DefaultConfig()
	config.Port = port
	if allowedOrigins != nil {
		config.AllowedOrigins = cleanList(allowedOrigins)
	}
	if err := config.Validate(); err != nil {
		return api.Config{}, err
	}
	return config, nil
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// CreateScenario fills scenario.StartDate from a YYYY-MM-DD string and validates it
func CreateScenario(scenario generator.Scenario, startDate string) (generator.Scenario, error) {
	if startDate != "" {
		start, err := time.Parse(models.DateLayout, startDate)
		if err != nil {
			return generator.Scenario{}, fmt.Errorf("invalid start date format. Use YYYY-MM-DD: %w", err)
		}
		scenario.StartDate = start
	}
	if err := scenario.Validate(); err != nil {
		return generator.Scenario{}, err
	}
	return scenario, nil
}

// CreateLoggerConfig creates the logger configuration. verbose forces debug level.
func CreateLoggerConfig(level, format string, verbose bool) (*logger.Config, error) {
	config := logger.DefaultConfig()
	if level != "" {
		config.Level = logger.Level(strings.ToLower(level))
	}
	if format != "" {
		config.Format = logger.Format(strings.ToLower(format))
	}
	if verbose {
		config.Level = logger.DebugLevel
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
