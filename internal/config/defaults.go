package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Server defaults
	cfg.Server.Port = 8084
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

	// Detection defaults
	cfg.Detection.EnableMissingData = true
	cfg.Detection.EnableDuplicate = true
	cfg.Detection.EnableOutlier = true
	cfg.Detection.EnableTemporal = true
	cfg.Detection.EnablePattern = true
	cfg.Detection.MissingThreshold = 0.05
	cfg.Detection.DuplicateThreshold = 0.02
	cfg.Detection.OutlierThreshold = 0.10
	cfg.Detection.PatternSensitivity = 0.10

	// Repair defaults
	cfg.Repair.AutoRepairEnabled = true
	cfg.Repair.MaxRepairAttempts = 3
	cfg.Repair.ConfidenceThreshold = 0.70

	// Learning defaults
	cfg.Learning.Enabled = true
	cfg.Learning.ModelUpdateIntervalS = 3600

	// Database defaults
	cfg.Database.SQLitePath = "/var/lib/veridata/veridata.db"

	// Retention defaults
	cfg.Retention.HistoryDays = 30

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.AuditDir = "/var/log/veridata"

	return cfg
}
