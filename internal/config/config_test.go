package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	mgr, err := NewManager(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	assert.Equal(t, 8084, cfg.Server.Port)
	assert.Equal(t, 0.05, cfg.Detection.MissingThreshold)
	assert.Equal(t, 0.02, cfg.Detection.DuplicateThreshold)
	assert.Equal(t, 0.10, cfg.Detection.OutlierThreshold)
	assert.Equal(t, 0.10, cfg.Detection.PatternSensitivity)
	assert.True(t, cfg.Detection.EnableMissingData)
	assert.True(t, cfg.Repair.AutoRepairEnabled)
	assert.Equal(t, 0.70, cfg.Repair.ConfidenceThreshold)
	assert.Equal(t, 3, cfg.Repair.MaxRepairAttempts)
	assert.Equal(t, 30, cfg.Retention.HistoryDays)
	assert.Equal(t, "/var/lib/veridata/veridata.db", cfg.Database.SQLitePath)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "info", cfg.Logging.Level)

	assert.True(t, cfg.DetectionDefaultsApplied())
	assert.NoError(t, mgr.Validate(ctx))
}

func TestLoadFromConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 9090
detection:
  missing_threshold: 0.15
repair:
  auto_repair_enabled: false
logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	mgr, err := NewManager(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 0.15, cfg.Detection.MissingThreshold)
	assert.False(t, cfg.Repair.AutoRepairEnabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)

	// Untouched keys keep their defaults.
	assert.Equal(t, 0.02, cfg.Detection.DuplicateThreshold)
	assert.False(t, cfg.DetectionDefaultsApplied())
	assert.NoError(t, mgr.Validate(ctx))
}

func TestEnvironmentVariableOverride(t *testing.T) {
	t.Setenv("VERIDATA_SERVER_PORT", "7777")
	t.Setenv("VERIDATA_DETECTION_OUTLIER_THRESHOLD", "0.25")

	mgr, err := NewManager(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, 0.25, cfg.Detection.OutlierThreshold)
}

func TestReloadPicksUpChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))

	mgr, err := NewManager(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))
	assert.Equal(t, 9090, mgr.Get(ctx).Server.Port)

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\n"), 0o644))
	require.NoError(t, mgr.Reload(ctx))
	assert.Equal(t, 9191, mgr.Get(ctx).Server.Port)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	mgr, err := NewManager(path)
	require.NoError(t, err)
	assert.Error(t, mgr.Load(context.Background()))
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"missing threshold out of range", func(c *Config) { c.Detection.MissingThreshold = 1.5 }, "detection.missing_threshold"},
		{"duplicate threshold zero", func(c *Config) { c.Detection.DuplicateThreshold = 0 }, "detection.duplicate_threshold"},
		{"outlier threshold too high", func(c *Config) { c.Detection.OutlierThreshold = 0.5 }, "detection.outlier_threshold"},
		{"pattern sensitivity negative", func(c *Config) { c.Detection.PatternSensitivity = -0.1 }, "detection.pattern_sensitivity"},
		{"confidence above one", func(c *Config) { c.Repair.ConfidenceThreshold = 1.1 }, "repair.confidence_threshold"},
		{"zero repair attempts", func(c *Config) { c.Repair.MaxRepairAttempts = 0 }, "repair.max_repair_attempts"},
		{"zero retention", func(c *Config) { c.Retention.HistoryDays = 0 }, "retention.history_days"},
		{"empty sqlite path", func(c *Config) { c.Database.SQLitePath = "" }, "database.sqlite_path"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)

			errs := cfg.Validate()
			require.Len(t, errs, 1)
			verr, ok := errs[0].(*ValidationError)
			require.True(t, ok)
			assert.Equal(t, tc.wantField, verr.Field)
		})
	}
}

func TestValidateCleanConfig(t *testing.T) {
	assert.Empty(t, DefaultConfig().Validate())
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = -1
	cfg.Retention.HistoryDays = 0
	cfg.Logging.Format = "xml"
	assert.Len(t, cfg.Validate(), 3)
}
