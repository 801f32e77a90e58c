package repair

import (
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/veridata/veridata/internal/dataset"
	"github.com/veridata/veridata/internal/quality"
)

func testRecord() *quality.AnomalyRecord {
	return &quality.AnomalyRecord{
		ID:             "dup_feed-a_ABC_all_1234_abcd1234",
		Kind:           quality.KindDuplicateData,
		Severity:       quality.SeverityLow,
		AffectedFields: []string{"price"},
		RawData: map[string]any{
			"duplicate_count": 3,
			"duplicate_rows":  []int{97, 98, 99},
		},
	}
}

func TestExecuteRemove(t *testing.T) {
	e := NewExecutor(zap.NewNop())
	rec := testRecord()
	s := &quality.RepairSuggestion{
		ID:         "s1",
		Action:     quality.ActionRemove,
		Confidence: 0.95,
		Parameters: map[string]any{"keep": "first"},
	}

	result := e.Execute(rec, s)
	if result == nil {
		t.Fatal("nil result")
	}
	if !result.Success {
		t.Error("remove should succeed")
	}
	if result.AnomalyID != rec.ID || result.ActionTaken != quality.ActionRemove {
		t.Errorf("result = %+v", result)
	}
	if result.AfterData["repair_method"] != "remove" {
		t.Errorf("repair_method = %v", result.AfterData["repair_method"])
	}
	rows, _ := result.AfterData["removed_rows"].([]int)
	if len(rows) != 3 {
		t.Errorf("removed_rows = %v", rows)
	}

	// The record's own snapshot is untouched; only the copies carry the
	// annotations.
	if _, ok := rec.RawData["repaired"]; ok {
		t.Error("Execute mutated the record's raw_data")
	}
	if _, ok := result.BeforeData["repaired"]; ok {
		t.Error("before snapshot carries the repair annotation")
	}
}

func TestExecuteUnsupportedAction(t *testing.T) {
	e := NewExecutor(zap.NewNop())
	s := &quality.RepairSuggestion{Action: quality.ActionManualReview}
	if got := e.Execute(testRecord(), s); got != nil {
		t.Errorf("got %+v, want nil for advisory action", got)
	}
}

func TestExecuteInterpolateDefaultsToLinear(t *testing.T) {
	e := NewExecutor(zap.NewNop())
	rec := testRecord()
	rec.Kind = quality.KindMissingData

	result := e.Execute(rec, &quality.RepairSuggestion{Action: quality.ActionInterpolate})
	if result == nil || !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.AfterData["repair_method"] != "interpolate_linear" {
		t.Errorf("repair_method = %v", result.AfterData["repair_method"])
	}
}

func TestExecuteIgnoreLeavesSnapshotIntact(t *testing.T) {
	e := NewExecutor(zap.NewNop())
	rec := testRecord()

	result := e.Execute(rec, &quality.RepairSuggestion{Action: quality.ActionIgnore})
	if result == nil || !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if _, ok := result.AfterData["repaired"]; ok {
		t.Error("ignore must not annotate the snapshot")
	}
	if len(result.SideEffects) == 0 {
		t.Error("expected an acknowledgement side effect")
	}
}

func TestAffectedRowsFallback(t *testing.T) {
	rec := testRecord()

	// Explicit parameter rows win over the detector's flagged rows.
	s := &quality.RepairSuggestion{Parameters: map[string]any{"rows": []int{5}}}
	if rows := affectedRows(rec, s); len(rows) != 1 || rows[0] != 5 {
		t.Errorf("rows = %v, want [5]", rows)
	}

	// Without parameters, fall back to the record's flagged rows, including
	// the []any form a store round-trip produces.
	s = &quality.RepairSuggestion{}
	if rows := affectedRows(rec, s); len(rows) != 3 {
		t.Errorf("rows = %v, want 3 duplicate rows", rows)
	}
	rec.RawData = map[string]any{"outlier_rows": []any{float64(2), float64(7)}}
	if rows := affectedRows(rec, s); len(rows) != 2 || rows[1] != 7 {
		t.Errorf("rows = %v, want [2 7]", rows)
	}
}

// ─── Apply ───────────────────────────────────────────────────────────────────

func TestApplyRemoveDropsRows(t *testing.T) {
	tbl := dataset.MustNew(dataset.NumericColumn("price", []float64{1, 2, 3, 1, 1}))
	rec := testRecord()
	rec.RawData["duplicate_rows"] = []int{3, 4}

	out, err := Apply(tbl, rec, &quality.RepairSuggestion{Action: quality.ActionRemove})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Rows() != 3 {
		t.Errorf("rows = %d, want 3", out.Rows())
	}
	if tbl.Rows() != 5 {
		t.Error("Apply mutated the input table")
	}
}

func TestApplyInterpolateFillsGaps(t *testing.T) {
	values := []float64{10, 0, 0, 40, 0}
	null := []bool{false, true, true, false, true}
	tbl := dataset.MustNew(dataset.NumericColumnWithNulls("price", values, null))
	rec := testRecord()
	rec.Kind = quality.KindMissingData

	out, err := Apply(tbl, rec, &quality.RepairSuggestion{Action: quality.ActionInterpolate})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	col := out.Column("price")
	want := []float64{10, 20, 30, 40, 40} // trailing gap extends the last value
	for i, w := range want {
		if col.IsNull(i) {
			t.Errorf("row %d still null", i)
		}
		if math.Abs(col.Floats[i]-w) > 1e-9 {
			t.Errorf("row %d = %v, want %v", i, col.Floats[i], w)
		}
	}
	if !tbl.Column("price").IsNull(1) {
		t.Error("Apply mutated the input table")
	}
}

func TestApplyReplaceUsesMedian(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 0}
	null := []bool{false, false, false, false, false, true}
	tbl := dataset.MustNew(dataset.NumericColumnWithNulls("price", values, null))
	rec := testRecord()
	rec.Kind = quality.KindMissingData

	out, err := Apply(tbl, rec, &quality.RepairSuggestion{Action: quality.ActionReplace})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	col := out.Column("price")
	if col.IsNull(5) || math.Abs(col.Floats[5]-3) > 1e-9 {
		t.Errorf("filled value = %v null=%v, want median 3", col.Floats[5], col.IsNull(5))
	}
}

func TestApplyCorrectCapsOutliers(t *testing.T) {
	values := make([]float64, 21)
	for i := 0; i < 20; i++ {
		values[i] = float64(i + 1) // 1..20 background
	}
	values[20] = 500
	tbl := dataset.MustNew(dataset.NumericColumn("price", values))
	rec := testRecord()
	rec.Kind = quality.KindOutlier
	rec.RawData = map[string]any{"outlier_rows": []int{20}}

	out, err := Apply(tbl, rec, &quality.RepairSuggestion{Action: quality.ActionCorrect})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	capped := out.Column("price").Floats[20]
	if capped >= 500 || capped > 20 {
		t.Errorf("capped value = %v, want within background range", capped)
	}
	// Untargeted rows stay as they were.
	if out.Column("price").Floats[0] != 1 {
		t.Errorf("row 0 = %v, want 1", out.Column("price").Floats[0])
	}
}

func TestApplyAdvisoryActionErrors(t *testing.T) {
	tbl := dataset.MustNew(dataset.NumericColumn("price", []float64{1}))
	_, err := Apply(tbl, testRecord(), &quality.RepairSuggestion{Action: quality.ActionAlertOnly})
	if err == nil {
		t.Error("expected an error for alert_only")
	}
	if _, err := Apply(nil, testRecord(), &quality.RepairSuggestion{Action: quality.ActionIgnore}); err == nil {
		t.Error("expected an error for nil table")
	}
}
