package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger defines the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// Detection lifecycle
	LogDetectionCompleted(ctx context.Context, source, symbol, dataType string, anomalies int, duration time.Duration) error
	LogDetectorFailed(ctx context.Context, detector, source string, err error) error
	LogAnomalyDetected(ctx context.Context, anomalyID, kind, severity string) error

	// Repair lifecycle
	LogRepairExecuted(ctx context.Context, anomalyID, action string, success bool, duration time.Duration) error
	LogRepairSkipped(ctx context.Context, anomalyID, reason string) error

	// Retention
	LogRetentionSweep(ctx context.Context, removedMemory, removedStore int64) error

	// Sync flushes buffered log entries
	Sync() error

	// Close closes the audit logger
	Close() error
}

// Config represents audit logger configuration
type Config struct {
	// AuditLogPath is the path to the audit log file
	AuditLogPath string

	// AppLogPath is the path to the application log file
	AppLogPath string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool

	// LogLevel is the minimum log level (debug, info, warn, error)
	LogLevel string
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: "logs/audit.log",
		AppLogPath:   "logs/app.log",
		MaxSize:      100, // megabytes
		MaxBackups:   10,
		MaxAge:       30, // days
		Compress:     true,
		LogLevel:     "info",
	}
}

// auditLogger implements the Logger interface with a small write buffer
// flushed on a one-second ticker.
type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	config      *Config
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
}

// NewLogger creates a new audit logger
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	appRotator := &lumberjack.Logger{
		Filename:   config.AppLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}
	appCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(appRotator),
		level,
	)
	appLogger := zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	// Audit log is append-only and always INFO level.
	auditRotator := &lumberjack.Logger{
		Filename:   config.AuditLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}
	auditCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(auditRotator),
		zapcore.InfoLevel,
	)

	logger := &auditLogger{
		appLogger:   appLogger,
		auditLogger: zap.New(auditCore),
		config:      config,
		buffer:      make([]*Event, 0, 100),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}

	go logger.autoFlush()
	return logger, nil
}

// Log logs an audit event
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, event)
	if len(l.buffer) >= 100 {
		return l.flushLocked()
	}
	return nil
}

// flushLocked flushes the buffer (caller must hold lock)
func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}
	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}
		l.auditLogger.Info(string(eventJSON),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}
	l.buffer = l.buffer[:0]
	return nil
}

// autoFlush periodically flushes the buffer
func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

func (l *auditLogger) LogDetectionCompleted(ctx context.Context, source, symbol, dataType string, anomalies int, duration time.Duration) error {
	event := NewEvent(EventDetectionCompleted).
		WithDataset(source, symbol, dataType).
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithMetadata("anomaly_count", anomalies).
		WithDescription(fmt.Sprintf("Detection pass over %s/%s found %d anomalies", source, symbol, anomalies))
	return l.Log(ctx, event)
}

func (l *auditLogger) LogDetectorFailed(ctx context.Context, detector, source string, err error) error {
	event := NewEvent(EventDetectorFailed).
		WithDataset(source, "", "").
		WithError(err).
		WithMetadata("detector", detector).
		WithDescription(fmt.Sprintf("Detector %s failed for %s", detector, source))
	return l.Log(ctx, event)
}

func (l *auditLogger) LogAnomalyDetected(ctx context.Context, anomalyID, kind, severity string) error {
	event := NewEvent(EventAnomalyDetected).
		WithAnomaly(anomalyID).
		WithResult(ResultSuccess).
		WithMetadata("kind", kind).
		WithMetadata("severity", severity).
		WithDescription(fmt.Sprintf("Anomaly %s detected (%s/%s)", anomalyID, kind, severity))
	return l.Log(ctx, event)
}

func (l *auditLogger) LogRepairExecuted(ctx context.Context, anomalyID, action string, success bool, duration time.Duration) error {
	result := ResultSuccess
	eventType := EventRepairExecuted
	if !success {
		result = ResultFailure
		eventType = EventRepairFailed
	}
	event := NewEvent(eventType).
		WithAnomaly(anomalyID).
		WithAction(action).
		WithResult(result).
		WithDuration(duration).
		WithDescription(fmt.Sprintf("Repair %s for anomaly %s", action, anomalyID))
	return l.Log(ctx, event)
}

func (l *auditLogger) LogRepairSkipped(ctx context.Context, anomalyID, reason string) error {
	event := NewEvent(EventRepairSkipped).
		WithAnomaly(anomalyID).
		WithResult(ResultSkipped).
		WithMetadata("reason", reason).
		WithDescription(fmt.Sprintf("Repair skipped for anomaly %s: %s", anomalyID, reason))
	return l.Log(ctx, event)
}

func (l *auditLogger) LogRetentionSweep(ctx context.Context, removedMemory, removedStore int64) error {
	event := NewEvent(EventRetentionSweep).
		WithResult(ResultSuccess).
		WithMetadata("removed_memory", removedMemory).
		WithMetadata("removed_store", removedStore).
		WithDescription(fmt.Sprintf("Retention sweep removed %d in-memory and %d persisted records", removedMemory, removedStore))
	return l.Log(ctx, event)
}

// Sync flushes buffered log entries
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}
	if err := l.auditLogger.Sync(); err != nil {
		return err
	}
	return l.appLogger.Sync()
}

// Close closes the audit logger
func (l *auditLogger) Close() error {
	close(l.stopCh)
	l.flushTicker.Stop()
	return l.Sync()
}
