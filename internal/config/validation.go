package config

import "fmt"

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}

	errs = append(errs, validateRatio("detection.missing_threshold", c.Detection.MissingThreshold)...)
	errs = append(errs, validateRatio("detection.duplicate_threshold", c.Detection.DuplicateThreshold)...)
	errs = append(errs, validateRatio("detection.pattern_sensitivity", c.Detection.PatternSensitivity)...)

	// The outlier threshold doubles as the model's contamination fraction,
	// which must stay below 0.5 to be meaningful.
	if c.Detection.OutlierThreshold <= 0 || c.Detection.OutlierThreshold >= 0.5 {
		errs = append(errs, &ValidationError{
			Field:   "detection.outlier_threshold",
			Message: fmt.Sprintf("must be in (0, 0.5), got %g", c.Detection.OutlierThreshold),
		})
	}

	if c.Repair.ConfidenceThreshold < 0 || c.Repair.ConfidenceThreshold > 1 {
		errs = append(errs, &ValidationError{
			Field:   "repair.confidence_threshold",
			Message: fmt.Sprintf("must be in [0, 1], got %g", c.Repair.ConfidenceThreshold),
		})
	}
	if c.Repair.MaxRepairAttempts < 1 {
		errs = append(errs, &ValidationError{
			Field:   "repair.max_repair_attempts",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Repair.MaxRepairAttempts),
		})
	}

	if c.Retention.HistoryDays < 1 {
		errs = append(errs, &ValidationError{
			Field:   "retention.history_days",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Retention.HistoryDays),
		})
	}

	if c.Database.SQLitePath == "" {
		errs = append(errs, &ValidationError{
			Field:   "database.sqlite_path",
			Message: "sqlite_path is required",
		})
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("must be one of debug/info/warn/error, got %q", c.Logging.Level),
		})
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("must be json or text, got %q", c.Logging.Format),
		})
	}

	return errs
}

func validateRatio(field string, v float64) []error {
	if v <= 0 || v >= 1 {
		return []error{&ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be in (0, 1), got %g", v),
		}}
	}
	return nil
}

// DetectionDefaultsApplied reports whether every detection gate still holds
// its default value. Useful for logging at startup.
func (c *Config) DetectionDefaultsApplied() bool {
	d := DefaultConfig()
	return c.Detection == d.Detection
}
