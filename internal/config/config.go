package config

import "context"

// Package config provides configuration management for veridatad.
//
// Configuration sources (priority order, high to low):
//   1. Environment variables (VERIDATA_* prefix)
//   2. YAML config file (default: /etc/veridata/config.yaml)
//   3. Built-in defaults
//
// Main configuration sections:
//
//   1. Server
//      - port: Listen port (default 8084)
//      - allowed_origins: Origins permitted to open WebSocket connections
//
//   2. Detection
//      - enable_*_detection: Per-detector feature flags
//      - missing/duplicate/outlier thresholds, pattern_sensitivity
//
//   3. Repair
//      - auto_repair_enabled: Allow the executor to apply suggestions
//      - max_repair_attempts: Advisory cap, not an enforced retry loop
//      - confidence_threshold: Hard gate below which nothing is dispatched
//
//   4. Learning
//      - enabled, model_update_interval_seconds
//
//   5. Database
//      - sqlite_path: Path to the SQLite file
//
//   6. Retention
//      - history_days: Age horizon for the retention sweep
//
//   7. Logging
//      - level: "debug" | "info" | "warn" | "error"
//      - format: "json" | "text"
//      - audit_dir: Directory for rotated audit logs

// Config contains all configuration fields.
type Config struct {
	Server struct {
		Port int
		// AllowedOrigins lists origins permitted to open WebSocket
		// connections. Use ["*"] to allow any origin (development only).
		AllowedOrigins []string
	}

	Detection struct {
		EnableMissingData bool
		EnableDuplicate   bool
		EnableOutlier     bool
		EnableTemporal    bool
		EnablePattern     bool

		MissingThreshold   float64
		DuplicateThreshold float64
		OutlierThreshold   float64
		PatternSensitivity float64
	}

	Repair struct {
		AutoRepairEnabled   bool
		MaxRepairAttempts   int
		ConfidenceThreshold float64
	}

	Learning struct {
		Enabled              bool
		ModelUpdateIntervalS int
	}

	Database struct {
		SQLitePath string
	}

	Retention struct {
		HistoryDays int
	}

	Logging struct {
		Level    string
		Format   string
		AuditDir string
	}
}

// Manager defines the interface for configuration access.
type Manager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration file changes.
	Watch(ctx context.Context) <-chan Config

	// Reload re-reads configuration from sources.
	Reload(ctx context.Context) error
}

// NewManager creates a configuration manager reading from configPath.
func NewManager(configPath string) (Manager, error) {
	return &viperManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}, nil
}

// NewManagerWithDefaults uses the standard config file location.
func NewManagerWithDefaults() (Manager, error) {
	return NewManager("/etc/veridata/config.yaml")
}
