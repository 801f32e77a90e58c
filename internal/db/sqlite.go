package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)

	"github.com/veridata/veridata/internal/quality"
)

// Schema version is tracked in the schema_versions table.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS anomaly_records (
    anomaly_id       TEXT PRIMARY KEY,
    anomaly_type     TEXT NOT NULL,
    severity         TEXT NOT NULL,
    description      TEXT NOT NULL DEFAULT '',
    data_source      TEXT NOT NULL DEFAULT '',
    symbol           TEXT NOT NULL DEFAULT '',
    data_type        TEXT NOT NULL DEFAULT '',
    affected_fields  TEXT NOT NULL DEFAULT '[]',
    anomaly_score    REAL NOT NULL DEFAULT 0.0,
    detection_time   DATETIME NOT NULL,
    raw_data         TEXT NOT NULL DEFAULT '{}',
    context_data     TEXT NOT NULL DEFAULT '{}',
    suggestions      TEXT NOT NULL DEFAULT '[]',
    is_resolved      INTEGER NOT NULL DEFAULT 0,
    resolution_time  DATETIME,
    created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_anomaly_detection_time ON anomaly_records(detection_time DESC);
CREATE INDEX IF NOT EXISTS idx_anomaly_source         ON anomaly_records(data_source);
CREATE INDEX IF NOT EXISTS idx_anomaly_type           ON anomaly_records(anomaly_type);
CREATE INDEX IF NOT EXISTS idx_anomaly_severity       ON anomaly_records(severity);

CREATE TABLE IF NOT EXISTS repair_records (
    repair_id    TEXT PRIMARY KEY,
    anomaly_id   TEXT NOT NULL REFERENCES anomaly_records(anomaly_id) ON DELETE CASCADE,
    action_taken TEXT NOT NULL,
    success      INTEGER NOT NULL DEFAULT 0,
    description  TEXT NOT NULL DEFAULT '',
    before_data  TEXT NOT NULL DEFAULT '{}',
    after_data   TEXT NOT NULL DEFAULT '{}',
    repair_time  DATETIME NOT NULL,
    confidence   REAL NOT NULL DEFAULT 0.0,
    side_effects TEXT NOT NULL DEFAULT '[]',
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_repair_anomaly ON repair_records(anomaly_id);
CREATE INDEX IF NOT EXISTS idx_repair_time    ON repair_records(repair_time DESC);
`,
	},
}

type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) the SQLite database at path
// and applies pending migrations. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// SQLite allows one writer at a time; a single pooled connection also
	// keeps the PRAGMAs below (and ":memory:" databases) scoped correctly.
	db.SetMaxOpenConns(1)

	// WAL for better concurrency between detection writes and API reads.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *sqliteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Anomaly records ─────────────────────────────────────────────────────────

func (s *sqliteStore) SaveAnomaly(ctx context.Context, rec *quality.AnomalyRecord) error {
	fields, err := json.Marshal(rec.AffectedFields)
	if err != nil {
		return fmt.Errorf("marshal affected_fields: %w", err)
	}
	raw, err := json.Marshal(orEmptyMap(rec.RawData))
	if err != nil {
		return fmt.Errorf("marshal raw_data: %w", err)
	}
	contextData, err := json.Marshal(orEmptyMap(rec.ContextData))
	if err != nil {
		return fmt.Errorf("marshal context_data: %w", err)
	}
	suggestions, err := json.Marshal(rec.Suggestions)
	if err != nil {
		return fmt.Errorf("marshal suggestions: %w", err)
	}

	var resolution any
	if rec.ResolutionTime != nil {
		resolution = rec.ResolutionTime.UTC()
	}

	// ON CONFLICT updates in place. INSERT OR REPLACE would delete the old
	// row first, and the delete cascades into repair_records.
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO anomaly_records
            (anomaly_id, anomaly_type, severity, description, data_source,
             symbol, data_type, affected_fields, anomaly_score, detection_time,
             raw_data, context_data, suggestions, is_resolved, resolution_time)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(anomaly_id) DO UPDATE SET
            anomaly_type    = excluded.anomaly_type,
            severity        = excluded.severity,
            description     = excluded.description,
            data_source     = excluded.data_source,
            symbol          = excluded.symbol,
            data_type       = excluded.data_type,
            affected_fields = excluded.affected_fields,
            anomaly_score   = excluded.anomaly_score,
            detection_time  = excluded.detection_time,
            raw_data        = excluded.raw_data,
            context_data    = excluded.context_data,
            suggestions     = excluded.suggestions,
            is_resolved     = excluded.is_resolved,
            resolution_time = excluded.resolution_time`,
		rec.ID, string(rec.Kind), string(rec.Severity), rec.Description,
		rec.DataSource, rec.Symbol, rec.DataType, string(fields), rec.Score,
		rec.DetectionTime.UTC(), string(raw), string(contextData),
		string(suggestions), boolToInt(rec.IsResolved), resolution)
	if err != nil {
		return fmt.Errorf("save anomaly %s: %w", rec.ID, err)
	}
	return nil
}

func (s *sqliteStore) GetAnomaly(ctx context.Context, id string) (*quality.AnomalyRecord, error) {
	row := s.db.QueryRowContext(ctx, anomalySelect+` WHERE anomaly_id = ?`, id)
	rec, err := scanAnomaly(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get anomaly %s: %w", id, err)
	}
	if err := s.attachRepairs(ctx, []*quality.AnomalyRecord{rec}); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *sqliteStore) LoadAnomaliesSince(ctx context.Context, cutoff time.Time) ([]*quality.AnomalyRecord, error) {
	return s.queryAnomalies(ctx, anomalySelect+`
        WHERE detection_time >= ? ORDER BY detection_time DESC`, cutoff.UTC())
}

func (s *sqliteStore) ListRecentAnomalies(ctx context.Context, cutoff time.Time, limit int) ([]*quality.AnomalyRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryAnomalies(ctx, anomalySelect+`
        WHERE detection_time >= ? ORDER BY detection_time DESC LIMIT ?`, cutoff.UTC(), limit)
}

func (s *sqliteStore) DeleteAnomaliesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM anomaly_records WHERE detection_time < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete anomalies before %s: %w", cutoff, err)
	}
	return res.RowsAffected()
}

const anomalySelect = `
    SELECT anomaly_id, anomaly_type, severity, description, data_source,
           symbol, data_type, affected_fields, anomaly_score, detection_time,
           raw_data, context_data, suggestions, is_resolved, resolution_time
    FROM anomaly_records`

func (s *sqliteStore) queryAnomalies(ctx context.Context, query string, args ...any) ([]*quality.AnomalyRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query anomalies: %w", err)
	}
	defer rows.Close()

	var out []*quality.AnomalyRecord
	for rows.Next() {
		rec, err := scanAnomaly(rows)
		if err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachRepairs(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnomaly(row rowScanner) (*quality.AnomalyRecord, error) {
	var (
		rec         quality.AnomalyRecord
		kind, sev   string
		fields      string
		raw         string
		contextData string
		suggestions string
		resolved    int
		resolution  sql.NullTime
	)
	err := row.Scan(&rec.ID, &kind, &sev, &rec.Description, &rec.DataSource,
		&rec.Symbol, &rec.DataType, &fields, &rec.Score, &rec.DetectionTime,
		&raw, &contextData, &suggestions, &resolved, &resolution)
	if err != nil {
		return nil, err
	}

	rec.Kind = quality.AnomalyKind(kind)
	rec.Severity = quality.Severity(sev)
	rec.IsResolved = resolved != 0
	if resolution.Valid {
		t := resolution.Time
		rec.ResolutionTime = &t
	}
	if err := json.Unmarshal([]byte(fields), &rec.AffectedFields); err != nil {
		return nil, fmt.Errorf("unmarshal affected_fields: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &rec.RawData); err != nil {
		return nil, fmt.Errorf("unmarshal raw_data: %w", err)
	}
	if err := json.Unmarshal([]byte(contextData), &rec.ContextData); err != nil {
		return nil, fmt.Errorf("unmarshal context_data: %w", err)
	}
	if err := json.Unmarshal([]byte(suggestions), &rec.Suggestions); err != nil {
		return nil, fmt.Errorf("unmarshal suggestions: %w", err)
	}
	return &rec, nil
}

// ─── Repair records ──────────────────────────────────────────────────────────

func (s *sqliteStore) AppendRepair(ctx context.Context, res *quality.RepairResult) error {
	before, err := json.Marshal(orEmptyMap(res.BeforeData))
	if err != nil {
		return fmt.Errorf("marshal before_data: %w", err)
	}
	after, err := json.Marshal(orEmptyMap(res.AfterData))
	if err != nil {
		return fmt.Errorf("marshal after_data: %w", err)
	}
	sideEffects, err := json.Marshal(res.SideEffects)
	if err != nil {
		return fmt.Errorf("marshal side_effects: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO repair_records
            (repair_id, anomaly_id, action_taken, success, description,
             before_data, after_data, repair_time, confidence, side_effects)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.AnomalyID, string(res.ActionTaken), boolToInt(res.Success),
		res.Description, string(before), string(after), res.RepairTime.UTC(),
		res.Confidence, string(sideEffects))
	if err != nil {
		return fmt.Errorf("append repair %s: %w", res.ID, err)
	}
	return nil
}

// attachRepairs loads repair history for the given records in one query.
func (s *sqliteStore) attachRepairs(ctx context.Context, recs []*quality.AnomalyRecord) error {
	if len(recs) == 0 {
		return nil
	}
	byID := make(map[string]*quality.AnomalyRecord, len(recs))
	placeholders := ""
	args := make([]any, 0, len(recs))
	for i, r := range recs {
		byID[r.ID] = r
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, r.ID)
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT repair_id, anomaly_id, action_taken, success, description,
               before_data, after_data, repair_time, confidence, side_effects
        FROM repair_records
        WHERE anomaly_id IN (`+placeholders+`)
        ORDER BY repair_time ASC`, args...)
	if err != nil {
		return fmt.Errorf("query repairs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			res         quality.RepairResult
			action      string
			success     int
			before      string
			after       string
			sideEffects string
		)
		if err := rows.Scan(&res.ID, &res.AnomalyID, &action, &success,
			&res.Description, &before, &after, &res.RepairTime,
			&res.Confidence, &sideEffects); err != nil {
			return fmt.Errorf("scan repair: %w", err)
		}
		res.ActionTaken = quality.RepairAction(action)
		res.Success = success != 0
		if err := json.Unmarshal([]byte(before), &res.BeforeData); err != nil {
			return fmt.Errorf("unmarshal before_data: %w", err)
		}
		if err := json.Unmarshal([]byte(after), &res.AfterData); err != nil {
			return fmt.Errorf("unmarshal after_data: %w", err)
		}
		if err := json.Unmarshal([]byte(sideEffects), &res.SideEffects); err != nil {
			return fmt.Errorf("unmarshal side_effects: %w", err)
		}
		if rec, ok := byID[res.AnomalyID]; ok {
			rec.RepairHistory = append(rec.RepairHistory, &res)
		}
	}
	return rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
