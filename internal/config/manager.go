package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperManager implements Manager using Viper.
type viperManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("VERIDATA")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	// Config file is optional: defaults + env vars suffice.
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// use defaults
		} else if os.IsNotExist(err) {
			// use defaults
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	m.unmarshalConfig()
	return nil
}

// Get returns the current configuration.
func (m *viperManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var msgs []string
		for _, err := range errs {
			msgs = append(msgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration file changes and reloads.
func (m *viperManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		m.unmarshalConfig()
		select {
		case m.watchChan <- *m.config:
		default:
			// channel full, skip this update
		}
	})
	return m.watchChan
}

// Reload re-reads configuration from sources.
func (m *viperManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	m.unmarshalConfig()
	return nil
}

// setDefaults registers every key's default value in viper.
func (m *viperManager) setDefaults() {
	defaults := DefaultConfig()

	m.viper.SetDefault("server.port", defaults.Server.Port)
	m.viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)

	m.viper.SetDefault("detection.enable_missing_data_detection", defaults.Detection.EnableMissingData)
	m.viper.SetDefault("detection.enable_duplicate_detection", defaults.Detection.EnableDuplicate)
	m.viper.SetDefault("detection.enable_outlier_detection", defaults.Detection.EnableOutlier)
	m.viper.SetDefault("detection.enable_temporal_detection", defaults.Detection.EnableTemporal)
	m.viper.SetDefault("detection.enable_pattern_detection", defaults.Detection.EnablePattern)
	m.viper.SetDefault("detection.missing_threshold", defaults.Detection.MissingThreshold)
	m.viper.SetDefault("detection.duplicate_threshold", defaults.Detection.DuplicateThreshold)
	m.viper.SetDefault("detection.outlier_threshold", defaults.Detection.OutlierThreshold)
	m.viper.SetDefault("detection.pattern_sensitivity", defaults.Detection.PatternSensitivity)

	m.viper.SetDefault("repair.auto_repair_enabled", defaults.Repair.AutoRepairEnabled)
	m.viper.SetDefault("repair.max_repair_attempts", defaults.Repair.MaxRepairAttempts)
	m.viper.SetDefault("repair.confidence_threshold", defaults.Repair.ConfidenceThreshold)

	m.viper.SetDefault("learning.enabled", defaults.Learning.Enabled)
	m.viper.SetDefault("learning.model_update_interval_seconds", defaults.Learning.ModelUpdateIntervalS)

	m.viper.SetDefault("database.sqlite_path", defaults.Database.SQLitePath)

	m.viper.SetDefault("retention.history_days", defaults.Retention.HistoryDays)

	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.audit_dir", defaults.Logging.AuditDir)
}

// unmarshalConfig copies viper's merged view into the Config struct.
func (m *viperManager) unmarshalConfig() {
	cfg := &Config{}

	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.AllowedOrigins = m.viper.GetStringSlice("server.allowed_origins")

	cfg.Detection.EnableMissingData = m.viper.GetBool("detection.enable_missing_data_detection")
	cfg.Detection.EnableDuplicate = m.viper.GetBool("detection.enable_duplicate_detection")
	cfg.Detection.EnableOutlier = m.viper.GetBool("detection.enable_outlier_detection")
	cfg.Detection.EnableTemporal = m.viper.GetBool("detection.enable_temporal_detection")
	cfg.Detection.EnablePattern = m.viper.GetBool("detection.enable_pattern_detection")
	cfg.Detection.MissingThreshold = m.viper.GetFloat64("detection.missing_threshold")
	cfg.Detection.DuplicateThreshold = m.viper.GetFloat64("detection.duplicate_threshold")
	cfg.Detection.OutlierThreshold = m.viper.GetFloat64("detection.outlier_threshold")
	cfg.Detection.PatternSensitivity = m.viper.GetFloat64("detection.pattern_sensitivity")

	cfg.Repair.AutoRepairEnabled = m.viper.GetBool("repair.auto_repair_enabled")
	cfg.Repair.MaxRepairAttempts = m.viper.GetInt("repair.max_repair_attempts")
	cfg.Repair.ConfidenceThreshold = m.viper.GetFloat64("repair.confidence_threshold")

	cfg.Learning.Enabled = m.viper.GetBool("learning.enabled")
	cfg.Learning.ModelUpdateIntervalS = m.viper.GetInt("learning.model_update_interval_seconds")

	cfg.Database.SQLitePath = m.viper.GetString("database.sqlite_path")

	cfg.Retention.HistoryDays = m.viper.GetInt("retention.history_days")

	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.AuditDir = m.viper.GetString("logging.audit_dir")

	m.config = cfg
}
