package quality

import (
	"time"
)

// Package quality defines the domain model for the data-quality engine:
// anomaly kinds, severity tiers, repair actions, and the records exchanged
// between detectors, the repair executor, and persistence.

// AnomalyKind categorizes a detected anomaly. Ten kinds are defined; the five
// tabular detectors implement the first five, the rest are reserved for
// upstream producers that feed records into the same store.
type AnomalyKind string

const (
	KindMissingData      AnomalyKind = "missing_data"
	KindDuplicateData    AnomalyKind = "duplicate_data"
	KindOutlier          AnomalyKind = "outlier"
	KindTemporalAnomaly  AnomalyKind = "temporal_anomaly"
	KindPatternBreak     AnomalyKind = "pattern_break"
	KindDataDrift        AnomalyKind = "data_drift"
	KindSchemaViolation  AnomalyKind = "schema_violation"
	KindVolumeAnomaly    AnomalyKind = "volume_anomaly"
	KindCorrelationBreak AnomalyKind = "correlation_break"
	KindUnknown          AnomalyKind = "unknown"
)

// Severity is the ordinal severity tier of an anomaly.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// rank orders severities for comparisons.
func (s Severity) rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return -1
}

// AtLeast reports whether s is at or above other in the severity order.
func (s Severity) AtLeast(other Severity) bool { return s.rank() >= other.rank() }

// RepairAction identifies a remediation strategy.
type RepairAction string

const (
	ActionInterpolate  RepairAction = "interpolate"
	ActionRemove       RepairAction = "remove"
	ActionReplace      RepairAction = "replace"
	ActionCorrect      RepairAction = "correct"
	ActionIgnore       RepairAction = "ignore"
	ActionManualReview RepairAction = "manual_review"
	ActionAlertOnly    RepairAction = "alert_only"
	ActionRollback     RepairAction = "rollback"
)

// AutoApplicable reports whether the action may be executed by the repair
// executor. manual_review and alert_only always route to a human.
func (a RepairAction) AutoApplicable() bool {
	return a != ActionManualReview && a != ActionAlertOnly
}

// RiskLevel grades the risk of applying a suggestion.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RepairSuggestion is an immutable remediation candidate attached to an
// anomaly at detection time.
type RepairSuggestion struct {
	ID              string         `json:"id"`
	Action          RepairAction   `json:"action"`
	Confidence      float64        `json:"confidence"` // 0–1
	Description     string         `json:"description"`
	Parameters      map[string]any `json:"parameters,omitempty"`
	ExpectedOutcome string         `json:"expected_outcome"`
	RiskLevel       RiskLevel      `json:"risk_level"`
	EstimatedTime   float64        `json:"estimated_time"` // seconds
}

// RepairResult records one repair attempt against an anomaly. Append-only.
type RepairResult struct {
	ID          string         `json:"id"`
	AnomalyID   string         `json:"anomaly_id"`
	ActionTaken RepairAction   `json:"action_taken"`
	Success     bool           `json:"success"`
	Description string         `json:"description"`
	BeforeData  map[string]any `json:"before_data,omitempty"`
	AfterData   map[string]any `json:"after_data,omitempty"`
	RepairTime  time.Time      `json:"repair_time"`
	Confidence  float64        `json:"confidence"`
	SideEffects []string       `json:"side_effects,omitempty"`
}

// AnomalyRecord is the canonical description of one detected anomaly.
// repair_suggestions are generated once at detection time and never
// recomputed; repair_history is append-only.
type AnomalyRecord struct {
	ID             string         `json:"anomaly_id"`
	Kind           AnomalyKind    `json:"anomaly_type"`
	Severity       Severity       `json:"severity"`
	Description    string         `json:"description"`
	DataSource     string         `json:"data_source"`
	Symbol         string         `json:"symbol"`
	DataType       string         `json:"data_type"`
	AffectedFields []string       `json:"affected_fields"`
	Score          float64        `json:"anomaly_score"` // ratio in [0,1]
	DetectionTime  time.Time      `json:"detection_time"`
	RawData        map[string]any `json:"raw_data,omitempty"`
	ContextData    map[string]any `json:"context_data,omitempty"`

	Suggestions   []*RepairSuggestion `json:"repair_suggestions,omitempty"`
	RepairHistory []*RepairResult     `json:"repair_history,omitempty"`

	IsResolved     bool       `json:"is_resolved"`
	ResolutionTime *time.Time `json:"resolution_time,omitempty"`
}

// MarkResolved transitions the record to its terminal state. The caller must
// have appended at least one successful repair first.
func (r *AnomalyRecord) MarkResolved(at time.Time) {
	r.IsResolved = true
	r.ResolutionTime = &at
}

// DetectorError reports a detector that failed during a detection pass.
// Failures degrade to zero findings from that detector; carrying them here
// lets callers distinguish "nothing found" from "detector errored".
type DetectorError struct {
	Detector AnomalyKind `json:"detector"`
	Message  string      `json:"message"`
}

// DetectionResult is the outcome of one detection pass over a dataset.
type DetectionResult struct {
	Anomalies      []*AnomalyRecord `json:"anomalies"`
	DetectorErrors []DetectorError  `json:"detector_errors,omitempty"`
	ProcessingTime time.Duration    `json:"processing_time"`
}

// DetectionConfig holds process-wide thresholds and feature toggles.
// Read-only after construction.
type DetectionConfig struct {
	EnableMissingData bool `json:"enable_missing_data_detection"`
	EnableDuplicate   bool `json:"enable_duplicate_detection"`
	EnableOutlier     bool `json:"enable_outlier_detection"`
	EnableTemporal    bool `json:"enable_temporal_detection"`
	EnablePattern     bool `json:"enable_pattern_detection"`

	MissingThreshold   float64 `json:"missing_threshold"`
	DuplicateThreshold float64 `json:"duplicate_threshold"`
	OutlierThreshold   float64 `json:"outlier_threshold"`
	PatternSensitivity float64 `json:"pattern_sensitivity"`

	AutoRepairEnabled         bool    `json:"auto_repair_enabled"`
	MaxRepairAttempts         int     `json:"max_repair_attempts"` // advisory
	RepairConfidenceThreshold float64 `json:"repair_confidence_threshold"`

	LearningEnabled      bool `json:"learning_enabled"`
	ModelUpdateInterval  int  `json:"model_update_interval"` // seconds, advisory
	HistoryRetentionDays int  `json:"history_retention_days"`
}

// DefaultDetectionConfig returns the default thresholds and toggles.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		EnableMissingData: true,
		EnableDuplicate:   true,
		EnableOutlier:     true,
		EnableTemporal:    true,
		EnablePattern:     true,

		MissingThreshold:   0.05,
		DuplicateThreshold: 0.02,
		OutlierThreshold:   0.10,
		PatternSensitivity: 0.10,

		AutoRepairEnabled:         true,
		MaxRepairAttempts:         3,
		RepairConfidenceThreshold: 0.70,

		LearningEnabled:      true,
		ModelUpdateInterval:  3600,
		HistoryRetentionDays: 30,
	}
}

// DatasetContext identifies the dataset being scanned.
type DatasetContext struct {
	DataSource string `json:"data_source"`
	Symbol     string `json:"symbol"`
	DataType   string `json:"data_type"`
}
