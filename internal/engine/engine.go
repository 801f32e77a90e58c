// Package engine ties the detectors, suggestion generation, repair executor,
// and persistence into the anomaly detection & repair service. The engine
// owns the in-memory anomaly map; the store is a best-effort durable mirror.
package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/veridata/veridata/internal/audit"
	"github.com/veridata/veridata/internal/dataset"
	"github.com/veridata/veridata/internal/db"
	"github.com/veridata/veridata/internal/metrics"
	"github.com/veridata/veridata/internal/quality"
	"github.com/veridata/veridata/internal/quality/detect"
	"github.com/veridata/veridata/internal/quality/ml"
	"github.com/veridata/veridata/internal/quality/repair"
	"github.com/veridata/veridata/internal/quality/suggest"
)

// statsWindowCap bounds the rolling performance arrays.
const statsWindowCap = 1000

// Engine is the anomaly detection & repair engine.
type Engine struct {
	cfg      quality.DetectionConfig
	store    db.Store
	registry *ml.Registry
	set      *detect.Set
	executor *repair.Executor
	auditLog audit.Logger
	logger   *zap.Logger

	mu        sync.RWMutex
	anomalies map[string]*quality.AnomalyRecord

	statsMu        sync.Mutex
	detectionRate  *rollingWindow
	processingTime *rollingWindow
	repairSuccess  *rollingWindow
	totalDetects   int64
	totalRepairs   int64

	subMu       sync.Mutex
	subscribers map[chan *quality.AnomalyRecord]struct{}
}

// New builds an engine and restores recent anomaly records from the store.
// The store may be nil for an ephemeral engine; persistence then degrades to
// memory only.
func New(cfg quality.DetectionConfig, store db.Store, auditLog audit.Logger, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := ml.NewRegistry(cfg.OutlierThreshold, 0.5, 5)
	e := &Engine{
		cfg:            cfg,
		store:          store,
		registry:       registry,
		set:            detect.NewSet(cfg, registry, logger),
		executor:       repair.NewExecutor(logger),
		auditLog:       auditLog,
		logger:         logger,
		anomalies:      make(map[string]*quality.AnomalyRecord),
		detectionRate:  newRollingWindow(statsWindowCap),
		processingTime: newRollingWindow(statsWindowCap),
		repairSuccess:  newRollingWindow(statsWindowCap),
		subscribers:    make(map[chan *quality.AnomalyRecord]struct{}),
	}

	if err := e.restore(context.Background()); err != nil {
		// Restore failures leave the engine empty but functional.
		logger.Warn("failed to restore anomaly history", zap.Error(err))
	}
	return e, nil
}

// restore loads the retention window of anomaly records into memory.
func (e *Engine) restore(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	days := e.cfg.HistoryRetentionDays
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	records, err := e.store.LoadAnomaliesSince(ctx, cutoff)
	if err != nil {
		return err
	}

	e.mu.Lock()
	for _, rec := range records {
		e.anomalies[rec.ID] = rec
	}
	metrics.TrackedAnomalies.Set(float64(len(e.anomalies)))
	e.mu.Unlock()

	e.logger.Info("restored anomaly history",
		zap.Int("records", len(records)),
		zap.Int("retention_days", days))
	return nil
}

// ─── Detection ───────────────────────────────────────────────────────────────

// DetectAnomalies runs every enabled detector over the dataset, attaches
// severity and repair suggestions, tracks the records, and persists them.
// It never returns an error: detector failures appear in the result's
// DetectorErrors and persistence failures are logged and absorbed.
func (e *Engine) DetectAnomalies(ctx context.Context, tbl *dataset.Table, dctx quality.DatasetContext) quality.DetectionResult {
	result := e.set.Run(dctx, tbl)

	// Empty dataset: nothing found, nothing persisted.
	if tbl == nil || tbl.Rows() == 0 {
		return result
	}

	for _, rec := range result.Anomalies {
		rec.Suggestions = suggest.Generate(rec)
		rec.ContextData = map[string]any{
			"total_rows":    tbl.Rows(),
			"total_columns": len(tbl.Columns()),
		}
		metrics.AnomaliesDetected.WithLabelValues(string(rec.Kind), string(rec.Severity)).Inc()
	}

	e.mu.Lock()
	for _, rec := range result.Anomalies {
		e.anomalies[rec.ID] = rec
	}
	metrics.TrackedAnomalies.Set(float64(len(e.anomalies)))
	e.mu.Unlock()

	for _, rec := range result.Anomalies {
		e.persistAnomaly(ctx, rec)
		e.broadcast(rec)
		if e.auditLog != nil {
			_ = e.auditLog.LogAnomalyDetected(ctx, rec.ID, string(rec.Kind), string(rec.Severity))
		}
	}
	for _, derr := range result.DetectorErrors {
		metrics.DetectorFailures.WithLabelValues(string(derr.Detector)).Inc()
		if e.auditLog != nil {
			_ = e.auditLog.LogDetectorFailed(ctx, string(derr.Detector), dctx.DataSource, errFromMessage(derr.Message))
		}
	}

	status := "ok"
	if len(result.DetectorErrors) > 0 {
		status = "partial"
	}
	metrics.DetectionsTotal.WithLabelValues(dctx.DataSource, status).Inc()
	metrics.DetectionDuration.WithLabelValues(dctx.DataSource).Observe(result.ProcessingTime.Seconds())
	metrics.ModelBundles.Set(float64(e.registry.Len()))

	e.statsMu.Lock()
	e.totalDetects++
	e.detectionRate.push(float64(len(result.Anomalies)) / float64(tbl.Rows()))
	e.processingTime.push(result.ProcessingTime.Seconds())
	e.statsMu.Unlock()

	if e.auditLog != nil {
		_ = e.auditLog.LogDetectionCompleted(ctx, dctx.DataSource, dctx.Symbol, dctx.DataType,
			len(result.Anomalies), result.ProcessingTime)
	}

	e.logger.Info("detection pass completed",
		zap.String("data_source", dctx.DataSource),
		zap.String("symbol", dctx.Symbol),
		zap.Int("anomalies", len(result.Anomalies)),
		zap.Int("detector_errors", len(result.DetectorErrors)),
		zap.Duration("took", result.ProcessingTime))
	return result
}

// ─── Repair ─────────────────────────────────────────────────────────────────

// AutoRepairAnomaly selects and executes the best repair suggestion for the
// anomaly. Returns nil when any precondition fails: auto-repair disabled,
// unknown id, already resolved, no auto-applicable suggestion, or best
// suggestion below the confidence gate. Never returns an error.
func (e *Engine) AutoRepairAnomaly(ctx context.Context, anomalyID string) *quality.RepairResult {
	rec, best, ok := e.prepareRepair(ctx, anomalyID)
	if !ok {
		return nil
	}

	start := time.Now()
	result := e.executor.Execute(rec, best)
	if result == nil {
		e.skipRepair(ctx, anomalyID, "unsupported action")
		return nil
	}

	e.finishRepair(ctx, rec, result)
	metrics.RepairDuration.WithLabelValues(string(best.Action)).Observe(time.Since(start).Seconds())
	return result
}

// ApplyRepair executes the best suggestion in apply-and-return mode: the
// repair is recorded exactly as in AutoRepairAnomaly and a corrected copy of
// the dataset is returned alongside. The input table is never modified.
func (e *Engine) ApplyRepair(ctx context.Context, tbl *dataset.Table, anomalyID string) (*dataset.Table, *quality.RepairResult) {
	rec, best, ok := e.prepareRepair(ctx, anomalyID)
	if !ok {
		return nil, nil
	}

	corrected, err := repair.Apply(tbl, rec, best)
	if err != nil {
		e.logger.Warn("apply-mode repair failed",
			zap.String("anomaly_id", anomalyID), zap.Error(err))
		e.skipRepair(ctx, anomalyID, err.Error())
		return nil, nil
	}

	result := e.executor.Execute(rec, best)
	if result == nil {
		e.skipRepair(ctx, anomalyID, "unsupported action")
		return nil, nil
	}
	e.finishRepair(ctx, rec, result)
	return corrected, result
}

// prepareRepair checks every repair precondition and picks the suggestion.
func (e *Engine) prepareRepair(ctx context.Context, anomalyID string) (*quality.AnomalyRecord, *quality.RepairSuggestion, bool) {
	if !e.cfg.AutoRepairEnabled {
		e.skipRepair(ctx, anomalyID, "auto repair disabled")
		return nil, nil, false
	}

	e.mu.RLock()
	rec, exists := e.anomalies[anomalyID]
	e.mu.RUnlock()
	if !exists {
		e.skipRepair(ctx, anomalyID, "unknown anomaly id")
		return nil, nil, false
	}
	if rec.IsResolved {
		e.skipRepair(ctx, anomalyID, "already resolved")
		return nil, nil, false
	}

	best := suggest.SelectBest(rec)
	if best == nil {
		e.skipRepair(ctx, anomalyID, "no auto-applicable suggestion")
		return nil, nil, false
	}
	// Ranking picked a winner; the confidence gate is a separate check.
	if best.Confidence < e.cfg.RepairConfidenceThreshold {
		e.skipRepair(ctx, anomalyID, "confidence below threshold")
		return nil, nil, false
	}
	return rec, best, true
}

// finishRepair applies the result to the record's state and persists both.
func (e *Engine) finishRepair(ctx context.Context, rec *quality.AnomalyRecord, result *quality.RepairResult) {
	e.mu.Lock()
	rec.RepairHistory = append(rec.RepairHistory, result)
	if result.Success {
		rec.MarkResolved(result.RepairTime)
	}
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.AppendRepair(ctx, result); err != nil {
			metrics.StoreErrors.WithLabelValues("append_repair").Inc()
			e.logger.Warn("failed to persist repair result",
				zap.String("anomaly_id", rec.ID), zap.Error(err))
		}
	}
	e.persistAnomaly(ctx, rec)

	status := "failure"
	if result.Success {
		status = "success"
	}
	metrics.RepairsTotal.WithLabelValues(string(result.ActionTaken), status).Inc()

	e.statsMu.Lock()
	e.totalRepairs++
	if result.Success {
		e.repairSuccess.push(1)
	} else {
		e.repairSuccess.push(0)
	}
	e.statsMu.Unlock()

	if e.auditLog != nil {
		_ = e.auditLog.LogRepairExecuted(ctx, rec.ID, string(result.ActionTaken),
			result.Success, time.Since(result.RepairTime))
	}
}

func (e *Engine) skipRepair(ctx context.Context, anomalyID, reason string) {
	metrics.RepairsTotal.WithLabelValues("none", "skipped").Inc()
	e.logger.Debug("repair skipped",
		zap.String("anomaly_id", anomalyID),
		zap.String("reason", reason))
	if e.auditLog != nil {
		_ = e.auditLog.LogRepairSkipped(ctx, anomalyID, reason)
	}
}

// ─── Queries & statistics ───────────────────────────────────────────────────

// Statistics is the aggregate view over tracked anomalies and performance.
type Statistics struct {
	TotalAnomalies    int                         `json:"total_anomalies"`
	ResolvedAnomalies int                         `json:"resolved_anomalies"`
	AnomalyTypes      map[quality.AnomalyKind]int `json:"anomaly_types"`
	SeverityCounts    map[quality.Severity]int    `json:"severity_distribution"`

	DetectionPerformance struct {
		AvgDetectionRate  float64 `json:"avg_detection_rate"`
		AvgProcessingTime float64 `json:"avg_processing_time"`
		TotalDetections   int64   `json:"total_detections"`
	} `json:"detection_performance"`

	RepairPerformance struct {
		RepairSuccessRate float64 `json:"repair_success_rate"`
		TotalRepairs      int64   `json:"total_repairs"`
	} `json:"repair_performance"`
}

// GetAnomalyStatistics summarizes the tracked anomalies and rolling
// performance windows.
func (e *Engine) GetAnomalyStatistics() Statistics {
	stats := Statistics{
		AnomalyTypes:   make(map[quality.AnomalyKind]int),
		SeverityCounts: make(map[quality.Severity]int),
	}

	e.mu.RLock()
	for _, rec := range e.anomalies {
		stats.TotalAnomalies++
		if rec.IsResolved {
			stats.ResolvedAnomalies++
		}
		stats.AnomalyTypes[rec.Kind]++
		stats.SeverityCounts[rec.Severity]++
	}
	e.mu.RUnlock()

	e.statsMu.Lock()
	stats.DetectionPerformance.AvgDetectionRate = e.detectionRate.mean()
	stats.DetectionPerformance.AvgProcessingTime = e.processingTime.mean()
	stats.DetectionPerformance.TotalDetections = e.totalDetects
	stats.RepairPerformance.RepairSuccessRate = e.repairSuccess.mean()
	stats.RepairPerformance.TotalRepairs = e.totalRepairs
	e.statsMu.Unlock()

	return stats
}

// GetAnomaly returns the tracked record for the id, or nil.
func (e *Engine) GetAnomaly(anomalyID string) *quality.AnomalyRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.anomalies[anomalyID]
}

// GetRecentAnomalies returns up to limit records detected within the last
// hours, newest first.
func (e *Engine) GetRecentAnomalies(hours, limit int) []*quality.AnomalyRecord {
	if hours <= 0 {
		hours = 24
	}
	if limit <= 0 {
		limit = 100
	}
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)

	e.mu.RLock()
	var out []*quality.AnomalyRecord
	for _, rec := range e.anomalies {
		if rec.DetectionTime.After(cutoff) {
			out = append(out, rec)
		}
	}
	e.mu.RUnlock()

	sortByDetectionTimeDesc(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// CleanupOldRecords removes anomaly records older than days from memory and
// the store. days=0 removes everything.
func (e *Engine) CleanupOldRecords(ctx context.Context, days int) {
	cutoff := time.Now().AddDate(0, 0, -days)

	var removedMemory int64
	e.mu.Lock()
	for id, rec := range e.anomalies {
		if rec.DetectionTime.Before(cutoff) {
			delete(e.anomalies, id)
			removedMemory++
		}
	}
	metrics.TrackedAnomalies.Set(float64(len(e.anomalies)))
	e.mu.Unlock()

	var removedStore int64
	if e.store != nil {
		n, err := e.store.DeleteAnomaliesBefore(ctx, cutoff)
		if err != nil {
			metrics.StoreErrors.WithLabelValues("delete_before").Inc()
			e.logger.Warn("retention sweep failed on store", zap.Error(err))
		} else {
			removedStore = n
		}
	}

	metrics.RetentionRemoved.WithLabelValues("memory").Add(float64(removedMemory))
	metrics.RetentionRemoved.WithLabelValues("store").Add(float64(removedStore))

	if e.auditLog != nil {
		_ = e.auditLog.LogRetentionSweep(ctx, removedMemory, removedStore)
	}
	e.logger.Info("retention sweep completed",
		zap.Int("days", days),
		zap.Int64("removed_memory", removedMemory),
		zap.Int64("removed_store", removedStore))
}

// ─── Subscriptions ──────────────────────────────────────────────────────────

// Subscribe returns a channel receiving every newly detected anomaly.
// Slow receivers drop messages rather than blocking detection.
func (e *Engine) Subscribe() chan *quality.AnomalyRecord {
	ch := make(chan *quality.AnomalyRecord, 64)
	e.subMu.Lock()
	e.subscribers[ch] = struct{}{}
	e.subMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (e *Engine) Unsubscribe(ch chan *quality.AnomalyRecord) {
	e.subMu.Lock()
	if _, ok := e.subscribers[ch]; ok {
		delete(e.subscribers, ch)
		close(ch)
	}
	e.subMu.Unlock()
}

func (e *Engine) broadcast(rec *quality.AnomalyRecord) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for ch := range e.subscribers {
		select {
		case ch <- rec:
		default:
			// subscriber is behind, drop
		}
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (e *Engine) persistAnomaly(ctx context.Context, rec *quality.AnomalyRecord) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveAnomaly(ctx, rec); err != nil {
		metrics.StoreErrors.WithLabelValues("save_anomaly").Inc()
		e.logger.Warn("failed to persist anomaly",
			zap.String("anomaly_id", rec.ID), zap.Error(err))
	}
}

func sortByDetectionTimeDesc(records []*quality.AnomalyRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].DetectionTime.After(records[j].DetectionTime)
	})
}

type stringError string

func (s stringError) Error() string { return string(s) }

func errFromMessage(msg string) error { return stringError(msg) }
