// Package db is the persistence layer for anomaly and repair records.
// Writes are synchronous and per-call; the engine treats them as best-effort
// and keeps its in-memory state authoritative for the current process.
package db

import (
	"context"
	"time"

	"github.com/veridata/veridata/internal/quality"
)

// Store persists anomaly records and their repair history.
type Store interface {
	// SaveAnomaly inserts or replaces a record by anomaly_id (last write
	// wins). Suggestions are part of the record payload.
	SaveAnomaly(ctx context.Context, rec *quality.AnomalyRecord) error

	// GetAnomaly loads one record with its repair history.
	// Returns nil, nil when the id is unknown.
	GetAnomaly(ctx context.Context, id string) (*quality.AnomalyRecord, error)

	// LoadAnomaliesSince returns all records detected at or after the cutoff,
	// newest first, with repair history attached.
	LoadAnomaliesSince(ctx context.Context, cutoff time.Time) ([]*quality.AnomalyRecord, error)

	// ListRecentAnomalies returns up to limit records detected after the
	// cutoff, newest first.
	ListRecentAnomalies(ctx context.Context, cutoff time.Time, limit int) ([]*quality.AnomalyRecord, error)

	// AppendRepair writes one repair attempt.
	AppendRepair(ctx context.Context, res *quality.RepairResult) error

	// DeleteAnomaliesBefore removes records detected before the cutoff and
	// their repair rows. Returns the number of anomaly rows removed.
	DeleteAnomaliesBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}
