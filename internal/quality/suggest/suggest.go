// Package suggest turns detected anomalies into ranked repair suggestions
// and picks the best auto-applicable candidate. Suggestions are a pure
// function of the anomaly kind and its captured statistics: the same record
// always yields the same candidates.
package suggest

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/veridata/veridata/internal/quality"
)

// Generate produces the suggestion list for a record. Called once at
// detection time; the result is attached to the record and never recomputed.
func Generate(rec *quality.AnomalyRecord) []*quality.RepairSuggestion {
	switch rec.Kind {
	case quality.KindMissingData:
		return missingSuggestions(rec)
	case quality.KindDuplicateData:
		return duplicateSuggestions(rec)
	case quality.KindOutlier:
		return outlierSuggestions(rec)
	case quality.KindTemporalAnomaly:
		return temporalSuggestions(rec)
	case quality.KindPatternBreak:
		return patternSuggestions(rec)
	default:
		return nil
	}
}

func missingSuggestions(rec *quality.AnomalyRecord) []*quality.RepairSuggestion {
	ratio := rawRatio(rec.RawData, "missing_ratio", rec.Score)
	column := rawString(rec.RawData, "column")

	switch {
	case ratio < 0.1:
		return []*quality.RepairSuggestion{
			newSuggestion(quality.ActionInterpolate, 0.9,
				fmt.Sprintf("linearly interpolate the %d missing values in %q", rawInt(rec.RawData, "missing_count"), column),
				"gaps filled from neighboring values",
				quality.RiskLow, 30,
				map[string]any{"method": "linear", "column": column}),
		}
	case ratio < 0.3:
		return []*quality.RepairSuggestion{
			newSuggestion(quality.ActionInterpolate, 0.7,
				fmt.Sprintf("spline-interpolate the missing values in %q", column),
				"gaps filled from a fitted curve",
				quality.RiskMedium, 60,
				map[string]any{"method": "spline", "column": column}),
			newSuggestion(quality.ActionReplace, 0.6,
				fmt.Sprintf("replace missing values in %q with the column median", column),
				"gaps filled with a stable central value",
				quality.RiskMedium, 20,
				map[string]any{"method": "median", "column": column}),
		}
	default:
		// Too much of the column is gone for any automatic fill to be
		// trustworthy. The long estimated time steers the selector away.
		return []*quality.RepairSuggestion{
			newSuggestion(quality.ActionManualReview, 0.9,
				fmt.Sprintf("column %q is %.0f%% missing, review the source feed", column, ratio*100),
				"a human decides whether to backfill or drop the column",
				quality.RiskLow, 300, nil),
		}
	}
}

func duplicateSuggestions(rec *quality.AnomalyRecord) []*quality.RepairSuggestion {
	count := rawInt(rec.RawData, "duplicate_count")
	return []*quality.RepairSuggestion{
		newSuggestion(quality.ActionRemove, 0.95,
			fmt.Sprintf("remove %d duplicate rows, keeping the first occurrence of each", count),
			"one row per distinct value combination",
			quality.RiskLow, 10,
			map[string]any{"keep": "first"}),
		newSuggestion(quality.ActionManualReview, 0.8,
			"review whether the duplicates are a source replay or legitimate repeats",
			"a human confirms the rows are safe to drop",
			quality.RiskLow, 120, nil),
	}
}

func outlierSuggestions(rec *quality.AnomalyRecord) []*quality.RepairSuggestion {
	severe := rawIntSlice(rec.RawData, "severe_rows")
	mild := rawIntSlice(rec.RawData, "mild_rows")

	var out []*quality.RepairSuggestion
	if len(severe) > 0 {
		out = append(out, newSuggestion(quality.ActionRemove, 0.8,
			fmt.Sprintf("remove the %d severely outlying rows", len(severe)),
			"extreme rows excluded from downstream use",
			quality.RiskMedium, 15,
			map[string]any{"rows": severe}))
	}
	if len(mild) > 0 {
		out = append(out,
			newSuggestion(quality.ActionCorrect, 0.7,
				fmt.Sprintf("winsorize the %d mildly outlying rows to the nearest inlier bound", len(mild)),
				"mild outliers capped instead of dropped",
				quality.RiskMedium, 45,
				map[string]any{"method": "winsorize", "rows": mild}),
			newSuggestion(quality.ActionManualReview, 0.9,
				"review the mild outliers before altering them",
				"a human confirms the capping is appropriate",
				quality.RiskLow, 180, nil))
	}
	return out
}

func temporalSuggestions(rec *quality.AnomalyRecord) []*quality.RepairSuggestion {
	column := rawString(rec.RawData, "column")
	return []*quality.RepairSuggestion{
		newSuggestion(quality.ActionInterpolate, 0.8,
			fmt.Sprintf("fill the irregular intervals in %q at the median sampling rate", column),
			"a regular time grid restored over the gaps",
			quality.RiskMedium, 60,
			map[string]any{"method": "time", "column": column}),
		newSuggestion(quality.ActionAlertOnly, 0.95,
			"alert the feed owner about the irregular sampling",
			"upstream cadence investigated without touching the data",
			quality.RiskLow, 5, nil),
	}
}

func patternSuggestions(_ *quality.AnomalyRecord) []*quality.RepairSuggestion {
	return []*quality.RepairSuggestion{
		newSuggestion(quality.ActionManualReview, 0.9,
			"review the rows falling outside every dense cluster",
			"a human decides whether the break is a regime change or bad data",
			quality.RiskLow, 300, nil),
		newSuggestion(quality.ActionAlertOnly, 0.95,
			"alert on the pattern break without modifying the data",
			"stakeholders notified, data untouched",
			quality.RiskLow, 5, nil),
	}
}

func newSuggestion(action quality.RepairAction, confidence float64, desc, outcome string, risk quality.RiskLevel, estSeconds float64, params map[string]any) *quality.RepairSuggestion {
	return &quality.RepairSuggestion{
		ID:              uuid.NewString(),
		Action:          action,
		Confidence:      confidence,
		Description:     desc,
		Parameters:      params,
		ExpectedOutcome: outcome,
		RiskLevel:       risk,
		EstimatedTime:   estSeconds,
	}
}

// ─── raw_data accessors ──────────────────────────────────────────────────

// RawData round-trips through JSON when records are restored from the
// store, so numbers may arrive as float64 and int slices as []any.

func rawRatio(raw map[string]any, key string, fallback float64) float64 {
	if v, ok := raw[key].(float64); ok {
		return v
	}
	return fallback
}

func rawString(raw map[string]any, key string) string {
	if v, ok := raw[key].(string); ok {
		return v
	}
	return ""
}

func rawInt(raw map[string]any, key string) int {
	switch v := raw[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func rawIntSlice(raw map[string]any, key string) []int {
	switch v := raw[key].(type) {
	case []int:
		return v
	case []any:
		out := make([]int, 0, len(v))
		for _, e := range v {
			if f, ok := e.(float64); ok {
				out = append(out, int(f))
			}
		}
		return out
	}
	return nil
}
