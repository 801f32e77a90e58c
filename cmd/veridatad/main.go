package main

// Package main is the entry point for the veridatad server.
//
// Responsibilities:
//   - Load and validate configuration from YAML and environment variables
//   - Open the SQLite store and restore the recent anomaly history
//   - Construct the detection & repair engine with its model registry
//   - Start the REST API and WebSocket anomaly stream
//   - Implement graceful shutdown with context cancellation
//
// Architecture flow:
//   1. Callers POST datasets to /api/v1/detect
//   2. Detector Set → severity & suggestions → in-memory map + SQLite
//   3. Callers trigger repairs per anomaly id; the executor records results
//   4. /ws/anomalies streams new findings to connected clients

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/veridata/veridata/internal/audit"
	"github.com/veridata/veridata/internal/config"
	"github.com/veridata/veridata/internal/db"
	"github.com/veridata/veridata/internal/engine"
	"github.com/veridata/veridata/internal/quality"
	"github.com/veridata/veridata/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default /etc/veridata/config.yaml)")
	flag.Parse()

	ctx := context.Background()

	var mgr config.Manager
	var err error
	if *configPath == "" {
		mgr, err = config.NewManagerWithDefaults()
	} else {
		mgr, err = config.NewManager(*configPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create config manager: %v\n", err)
		os.Exit(1)
	}
	if err := mgr.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := mgr.Validate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	cfg := mgr.Get(ctx)

	logger, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	auditLog, err := audit.NewLogger(&audit.Config{
		AuditLogPath: filepath.Join(cfg.Logging.AuditDir, "audit.log"),
		AppLogPath:   filepath.Join(cfg.Logging.AuditDir, "app.log"),
		MaxSize:      100,
		MaxBackups:   10,
		MaxAge:       30,
		Compress:     true,
		LogLevel:     cfg.Logging.Level,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create audit logger: %v\n", err)
		os.Exit(1)
	}
	defer auditLog.Close()

	store, err := db.NewSQLiteStore(cfg.Database.SQLitePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	eng, err := engine.New(detectionConfig(cfg), store, auditLog, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create engine: %v\n", err)
		os.Exit(1)
	}

	srv, err := server.NewServer(cfg, eng, store, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create server: %v\n", err)
		os.Exit(1)
	}
	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}

	_ = auditLog.Log(ctx, audit.NewEvent(audit.EventServerStarted).
		WithResult(audit.ResultSuccess).
		WithDescription("veridatad started"))

	// Periodic retention sweep at the configured horizon.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	go retentionLoop(sweepCtx, eng, cfg.Retention.HistoryDays)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("received shutdown signal")

	stopSweep()
	if err := srv.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Error stopping server: %v\n", err)
		os.Exit(1)
	}

	_ = auditLog.Log(ctx, audit.NewEvent(audit.EventServerShutdown).
		WithResult(audit.ResultSuccess).
		WithDescription("veridatad stopped"))
}

// retentionLoop sweeps old records once a day.
func retentionLoop(ctx context.Context, eng *engine.Engine, days int) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eng.CleanupOldRecords(ctx, days)
		}
	}
}

// detectionConfig maps the loaded configuration onto the engine's view.
func detectionConfig(cfg *config.Config) quality.DetectionConfig {
	dc := quality.DefaultDetectionConfig()

	dc.EnableMissingData = cfg.Detection.EnableMissingData
	dc.EnableDuplicate = cfg.Detection.EnableDuplicate
	dc.EnableOutlier = cfg.Detection.EnableOutlier
	dc.EnableTemporal = cfg.Detection.EnableTemporal
	dc.EnablePattern = cfg.Detection.EnablePattern

	dc.MissingThreshold = cfg.Detection.MissingThreshold
	dc.DuplicateThreshold = cfg.Detection.DuplicateThreshold
	dc.OutlierThreshold = cfg.Detection.OutlierThreshold
	dc.PatternSensitivity = cfg.Detection.PatternSensitivity

	dc.AutoRepairEnabled = cfg.Repair.AutoRepairEnabled
	dc.MaxRepairAttempts = cfg.Repair.MaxRepairAttempts
	dc.RepairConfidenceThreshold = cfg.Repair.ConfidenceThreshold

	dc.LearningEnabled = cfg.Learning.Enabled
	dc.ModelUpdateInterval = cfg.Learning.ModelUpdateIntervalS
	dc.HistoryRetentionDays = cfg.Retention.HistoryDays

	return dc
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Logging.Format == "text" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	if err := zcfg.Level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		return nil, err
	}
	return zcfg.Build()
}
