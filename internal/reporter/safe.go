package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"ledger-reconciler/pkg/errors"
	"ledger-reconciler/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with logging and fallbacks
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "report_config", config, err).
			WithSuggestion("supported formats are console, json and csv")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely writes the report and falls back to the console
// format when a structured format fails
func (srg *SafeReportGenerator) GenerateReportSafely(report *Report, writer io.Writer) error {
	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"output": getWriterDescription(writer),
	}).Debug("Starting report generation")

	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil)
	}
	if report == nil || report.Result == nil {
		return errors.ValidationError(errors.CodeMissingField, "result", nil, nil).
			WithSuggestion("run a reconciliation before generating a report")
	}

	err := srg.GenerateReport(report, writer)
	if err == nil {
		return nil
	}
	if srg.config.Format == FormatConsole {
		return srg.wrapGenerationError(err)
	}

	srg.logger.WithError(err).WithField("fallback_format", FormatConsole).
		Warn("Report generation failed, falling back to console format")

	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole
	fallback := &ReportGenerator{config: &fallbackConfig, isTerminal: srg.isTerminal}

	fmt.Fprintf(writer, "NOTE: %s report failed (%v), console report follows\n\n", srg.config.Format, err)
	if ferr := fallback.GenerateReport(report, writer); ferr != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "report_fallback",
			fmt.Errorf("primary=%v, fallback=%v", err, ferr))
	}
	return nil
}

// WriteReportFile writes the report to path, creating parent directories.
// When the file cannot be created the report goes to a _backup file next to it.
func (srg *SafeReportGenerator) WriteReportFile(report *Report, path string) (string, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", errors.FileError(errors.CodeDirectoryError, dir, err)
		}
	}

	written := path
	file, err := os.Create(path)
	if err != nil {
		backup := backupPath(path)
		srg.logger.WithError(err).WithFields(logger.Fields{
			"original_file": path,
			"backup_file":   backup,
		}).Warn("Could not create report file, trying backup location")

		file, err = os.Create(backup)
		if err != nil {
			return "", errors.FileError(errors.CodeFilePermission, path, err).
				WithSuggestion("check write permissions on the output directory")
		}
		written = backup
	}
	defer file.Close()

	if err := srg.GenerateReportSafely(report, file); err != nil {
		return written, err
	}
	srg.logger.WithField("file_path", written).Info("Report written")
	return written, nil
}

func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if rerr, ok := errors.AsReconcilerError(err); ok {
		return rerr
	}
	return errors.InternalError(errors.CodeUnexpectedError, "report_generation", err).
		WithSuggestion("check the output destination and report format settings")
}

func backupPath(originalPath string) string {
	dir := filepath.Dir(originalPath)
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	return filepath.Join(dir, fmt.Sprintf("%s_backup%s", base[:len(base)-len(ext)], ext))
}

func getWriterDescription(writer io.Writer) string {
	if f, ok := writer.(*os.File); ok && f.Name() != "" {
		return "file:" + f.Name()
	}
	return fmt.Sprintf("writer:%T", writer)
}
