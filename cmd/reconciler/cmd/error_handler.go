package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"syscall"

	"ledger-reconciler/pkg/errors"
	"ledger-reconciler/pkg/logger"

	"github.com/spf13/viper"
)

// CLIErrorHandler turns command errors into user-facing messages and exit codes
type CLIErrorHandler struct {
	logger  logger.Logger
	out     io.Writer
	verbose bool
}

// NewCLIErrorHandler creates a handler writing to stderr
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		out:     os.Stderr,
		verbose: viper.GetBool("verbose"),
	}
}

// HandleError prints err and returns the exit code for it
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return h.handleReconcilerError(reconcilerErr)
	}
	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleReconcilerError(err *errors.ReconcilerError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for key, value := range err.Context {
			if value == nil || value == "" {
				continue
			}
			keys = append(keys, key)
		}
		sort.Strings(keys)
		if len(keys) > 0 {
			fmt.Fprintf(h.out, "\nContext:\n")
			for _, key := range keys {
				fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
			}
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(h.out, "\n%s\n", categoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	switch {
	case isFileNotFoundError(err):
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	case isPermissionError(err):
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	case isDiskFullError(err):
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	fmt.Fprintf(h.out, "Error: %v\n", err)
	if !h.verbose {
		fmt.Fprintf(h.out, "\nRun with --verbose for more detail\n")
	}
	return 1
}

func categoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check that the file exists and is readable
• Verify the path (absolute paths avoid working-directory surprises)`

	case errors.CategoryParse:
		return `Parse error help:
• Merchant files need transaction_id, date, amount and currency columns
• Bank files need transaction_id, date and amount columns
• Map other header names with column_aliases in the config file
• Check the delimiter and quoting`

	case errors.CategoryValidation:
		return `Validation error help:
• Dates use YYYY-MM-DD
• Amounts are plain decimals such as 12.34 or -5.00
• The amount tolerance must not be negative`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Use 'reconciler <command> --help' to see the available options
• Check the config file passed with --config
• Environment variables use the RECONCILER_ prefix`

	case errors.CategoryReview:
		return `Review error help:
• Overrides must name a transaction present in this run
• Status must be matched or approved_mismatch`

	case errors.CategoryServer:
		return `Server error help:
• Check that the port is free and you may bind to it
• Try another port with --port`

	default:
		return `For more help:
• Use 'reconciler --help' for general help
• Use 'reconciler reconcile --help' for command-specific help`
	}
}

func isFileNotFoundError(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file or directory")
}

func isPermissionError(err error) bool {
	return os.IsPermission(err) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func isDiskFullError(err error) bool {
	if err == syscall.ENOSPC {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no space left") ||
		strings.Contains(msg, "disk full")
}
