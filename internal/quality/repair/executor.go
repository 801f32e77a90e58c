// Package repair executes the chosen repair suggestion for an anomaly.
// Handlers operate on the anomaly's captured statistics snapshot: executing
// a repair records the remediation decision with provenance. Callers that
// want the corrected rows use Apply, which rewrites a copy of the dataset.
package repair

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veridata/veridata/internal/quality"
)

// handler performs one repair action against the anomaly's snapshot and
// returns success, the post-repair snapshot, and any side effects.
type handler func(rec *quality.AnomalyRecord, s *quality.RepairSuggestion) (bool, map[string]any, []string)

// Executor dispatches suggestions to their action handlers.
type Executor struct {
	logger   *zap.Logger
	handlers map[quality.RepairAction]handler
}

func NewExecutor(logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{logger: logger}
	e.handlers = map[quality.RepairAction]handler{
		quality.ActionInterpolate: e.interpolate,
		quality.ActionRemove:      e.remove,
		quality.ActionReplace:     e.replace,
		quality.ActionCorrect:     e.correct,
		quality.ActionIgnore:      e.ignore,
	}
	return e
}

// Execute runs the suggestion's handler and returns the attempt's result.
// An unsupported action returns nil. Execute does not touch the record's
// resolution state; that is the engine's job once persistence succeeds.
func (e *Executor) Execute(rec *quality.AnomalyRecord, s *quality.RepairSuggestion) *quality.RepairResult {
	h, ok := e.handlers[s.Action]
	if !ok {
		e.logger.Warn("unsupported repair action",
			zap.String("anomaly_id", rec.ID),
			zap.String("action", string(s.Action)))
		return nil
	}

	before := snapshot(rec.RawData)
	success, after, sideEffects := h(rec, s)

	result := &quality.RepairResult{
		ID:          uuid.NewString(),
		AnomalyID:   rec.ID,
		ActionTaken: s.Action,
		Success:     success,
		Description: s.Description,
		BeforeData:  before,
		AfterData:   after,
		RepairTime:  time.Now().UTC(),
		Confidence:  s.Confidence,
		SideEffects: sideEffects,
	}

	e.logger.Info("repair executed",
		zap.String("anomaly_id", rec.ID),
		zap.String("action", string(s.Action)),
		zap.Bool("success", success))
	return result
}

func (e *Executor) interpolate(rec *quality.AnomalyRecord, s *quality.RepairSuggestion) (bool, map[string]any, []string) {
	after := snapshot(rec.RawData)
	method, _ := s.Parameters["method"].(string)
	if method == "" {
		method = "linear"
	}
	after["repaired"] = true
	after["repair_method"] = "interpolate_" + method
	return true, after, []string{fmt.Sprintf("%s interpolation recorded for %v", method, rec.AffectedFields)}
}

func (e *Executor) remove(rec *quality.AnomalyRecord, s *quality.RepairSuggestion) (bool, map[string]any, []string) {
	rows := affectedRows(rec, s)
	after := snapshot(rec.RawData)
	after["repaired"] = true
	after["repair_method"] = "remove"
	after["removed_rows"] = rows
	return true, after, []string{fmt.Sprintf("%d rows marked for removal", len(rows))}
}

func (e *Executor) replace(rec *quality.AnomalyRecord, s *quality.RepairSuggestion) (bool, map[string]any, []string) {
	after := snapshot(rec.RawData)
	method, _ := s.Parameters["method"].(string)
	if method == "" {
		method = "median"
	}
	after["repaired"] = true
	after["repair_method"] = "replace_" + method
	return true, after, []string{fmt.Sprintf("affected values replaced with column %s", method)}
}

func (e *Executor) correct(rec *quality.AnomalyRecord, s *quality.RepairSuggestion) (bool, map[string]any, []string) {
	rows := affectedRows(rec, s)
	after := snapshot(rec.RawData)
	after["repaired"] = true
	after["repair_method"] = "winsorize"
	after["corrected_rows"] = rows
	return true, after, []string{fmt.Sprintf("%d rows capped to inlier bounds", len(rows))}
}

// ignore succeeds trivially: the anomaly is acknowledged and left as is.
func (e *Executor) ignore(rec *quality.AnomalyRecord, _ *quality.RepairSuggestion) (bool, map[string]any, []string) {
	return true, snapshot(rec.RawData), []string{"anomaly acknowledged without modification"}
}

// affectedRows pulls the row indices a suggestion targets, falling back to
// the detector's flagged rows.
func affectedRows(rec *quality.AnomalyRecord, s *quality.RepairSuggestion) []int {
	if rows := toIntSlice(s.Parameters["rows"]); rows != nil {
		return rows
	}
	for _, key := range []string{"duplicate_rows", "outlier_rows", "missing_rows", "noise_rows"} {
		if rows := toIntSlice(rec.RawData[key]); rows != nil {
			return rows
		}
	}
	return nil
}

func toIntSlice(v any) []int {
	switch vals := v.(type) {
	case []int:
		return vals
	case []any:
		out := make([]int, 0, len(vals))
		for _, e := range vals {
			if f, ok := e.(float64); ok {
				out = append(out, int(f))
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func snapshot(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
