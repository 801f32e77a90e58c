package detect

import (
	"fmt"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/veridata/veridata/internal/dataset"
	"github.com/veridata/veridata/internal/quality"
	"github.com/veridata/veridata/internal/quality/ml"
)

var testCtx = quality.DatasetContext{DataSource: "feed-a", Symbol: "ABC", DataType: "trades"}

func testRegistry() *ml.Registry {
	return ml.NewRegistry(0.1, 0.5, 5)
}

// ─── Missing data ────────────────────────────────────────────────────────────

func TestMissingDataScenario(t *testing.T) {
	// 100-row column with 6 nulls: ratio 0.06 clears the 0.05 default gate.
	values := make([]float64, 100)
	null := make([]bool, 100)
	for i := 0; i < 100; i++ {
		values[i] = float64(i)
	}
	for _, i := range []int{3, 17, 42, 55, 71, 90} {
		null[i] = true
	}
	tbl := dataset.MustNew(dataset.NumericColumnWithNulls("price", values, null))

	d := &MissingDataDetector{Threshold: 0.05}
	records, err := d.Detect(testCtx, tbl)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	rec := records[0]
	if rec.Kind != quality.KindMissingData {
		t.Errorf("kind = %s", rec.Kind)
	}
	if rec.Severity != quality.SeverityMedium {
		t.Errorf("severity = %s, want medium", rec.Severity)
	}
	if math.Abs(rec.Score-0.06) > 1e-9 {
		t.Errorf("score = %v, want 0.06", rec.Score)
	}
	if len(rec.AffectedFields) != 1 || rec.AffectedFields[0] != "price" {
		t.Errorf("affected fields = %v", rec.AffectedFields)
	}
}

func TestMissingDataBelowThresholdStaysQuiet(t *testing.T) {
	values := make([]float64, 100)
	null := make([]bool, 100)
	null[0] = true // ratio 0.01
	tbl := dataset.MustNew(dataset.NumericColumnWithNulls("price", values, null))

	d := &MissingDataDetector{Threshold: 0.05}
	records, err := d.Detect(testCtx, tbl)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records, want 0", len(records))
	}
}

func TestMissingSeverityBreakpoints(t *testing.T) {
	cases := []struct {
		ratio float64
		want  quality.Severity
	}{
		{0.06, quality.SeverityMedium},
		{0.2, quality.SeverityMedium},
		{0.21, quality.SeverityHigh},
		{0.5, quality.SeverityHigh},
		{0.51, quality.SeverityCritical},
	}
	for _, tc := range cases {
		if got := missingSeverity(tc.ratio); got != tc.want {
			t.Errorf("missingSeverity(%v) = %s, want %s", tc.ratio, got, tc.want)
		}
		// Pure function: a second call agrees.
		if got := missingSeverity(tc.ratio); got != tc.want {
			t.Errorf("missingSeverity(%v) not idempotent", tc.ratio)
		}
	}
}

// ─── Duplicates ──────────────────────────────────────────────────────────────

func TestDuplicateScenario(t *testing.T) {
	// 100 rows with 3 exact repeats of row 0: ratio 0.03 > 0.02 default.
	values := make([]float64, 100)
	for i := 0; i < 97; i++ {
		values[i] = float64(i)
	}
	// rows 97-99 repeat row 0
	tbl := dataset.MustNew(dataset.NumericColumn("price", values))

	d := &DuplicateDetector{Threshold: 0.02}
	records, err := d.Detect(testCtx, tbl)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	rec := records[0]
	if rec.Severity != quality.SeverityLow {
		t.Errorf("severity = %s, want low", rec.Severity)
	}
	if math.Abs(rec.Score-0.03) > 1e-9 {
		t.Errorf("score = %v, want 0.03", rec.Score)
	}
	dupRows, _ := rec.RawData["duplicate_rows"].([]int)
	if len(dupRows) != 3 {
		t.Errorf("duplicate_rows = %v, want 3 rows", dupRows)
	}
}

// ─── Outliers ────────────────────────────────────────────────────────────────

func TestOutlierDoubleGate(t *testing.T) {
	// A single extreme point in 100 rows: the model flags it internally,
	// but the aggregate ratio (~0.01) stays under the 0.1 threshold, so no
	// record is emitted.
	values := make([]float64, 100)
	for i := 0; i < 99; i++ {
		values[i] = 100 + 5*math.Sin(float64(i))
	}
	values[99] = 200
	tbl := dataset.MustNew(dataset.NumericColumn("price", values))

	d := &OutlierDetector{Threshold: 0.1, Registry: testRegistry()}
	records, err := d.Detect(testCtx, tbl)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records, want 0 (aggregate gate not cleared)", len(records))
	}
}

func TestOutlierBlatantContaminationEmits(t *testing.T) {
	// 70 tight background prices and 30 values three orders of magnitude
	// out. Enough rows clear both gates, so a record is emitted.
	values := make([]float64, 100)
	for i := 0; i < 70; i++ {
		values[i] = 100 + math.Sin(float64(i))
	}
	for i := 70; i < 100; i++ {
		values[i] = 10000 * float64(i-69)
	}
	tbl := dataset.MustNew(dataset.NumericColumn("price", values))

	d := &OutlierDetector{Threshold: 0.1, Registry: testRegistry()}
	records, err := d.Detect(testCtx, tbl)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	rec := records[0]
	if rec.Kind != quality.KindOutlier {
		t.Errorf("kind = %s, want %s", rec.Kind, quality.KindOutlier)
	}
	if rec.Score <= 0.1 {
		t.Errorf("ratio = %v, want > 0.1", rec.Score)
	}
	if !rec.Severity.AtLeast(quality.SeverityMedium) {
		t.Errorf("severity = %s, want at least %s", rec.Severity, quality.SeverityMedium)
	}
	if len(rec.AffectedFields) != 1 || rec.AffectedFields[0] != "price" {
		t.Errorf("affected fields = %v, want [price]", rec.AffectedFields)
	}

	flagged := rec.RawData["outlier_rows"].([]int)
	if len(flagged) != rec.RawData["outlier_count"].(int) {
		t.Errorf("outlier_count %v disagrees with outlier_rows %d",
			rec.RawData["outlier_count"], len(flagged))
	}
	for _, i := range flagged {
		if i < 70 {
			t.Errorf("background row %d flagged", i)
		}
	}
	severe := rec.RawData["severe_rows"].([]int)
	mild := rec.RawData["mild_rows"].([]int)
	if len(severe)+len(mild) != len(flagged) {
		t.Errorf("severe (%d) + mild (%d) rows do not partition the %d flagged rows",
			len(severe), len(mild), len(flagged))
	}
}

func TestOutlierSeverityBreakpoints(t *testing.T) {
	cases := []struct {
		ratio float64
		want  quality.Severity
	}{
		{0.05, quality.SeverityLow},
		{0.1, quality.SeverityLow},
		{0.11, quality.SeverityMedium},
		{0.2, quality.SeverityMedium},
		{0.21, quality.SeverityHigh},
	}
	for _, tc := range cases {
		if got := outlierSeverity(tc.ratio); got != tc.want {
			t.Errorf("outlierSeverity(%v) = %s, want %s", tc.ratio, got, tc.want)
		}
	}
}

func TestOutlierSkipsNonNumeric(t *testing.T) {
	tbl := dataset.MustNew(dataset.TextColumn("side", []string{"buy", "sell"}))
	d := &OutlierDetector{Threshold: 0.1, Registry: testRegistry()}
	records, err := d.Detect(testCtx, tbl)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records, want 0", len(records))
	}
}

// ─── Temporal ────────────────────────────────────────────────────────────────

func TestTemporalIrregularIntervals(t *testing.T) {
	// 101 timestamps: 94 one-minute steps and 6 one-hour gaps spread in.
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	gaps := map[int]bool{10: true, 25: true, 40: true, 60: true, 75: true, 90: true}

	times := make([]time.Time, 101)
	times[0] = base
	for i := 1; i <= 100; i++ {
		step := time.Minute
		if gaps[i] {
			step = time.Hour
		}
		times[i] = times[i-1].Add(step)
	}
	tbl := dataset.MustNew(dataset.TimestampColumn("ts", times))

	d := &TemporalDetector{}
	records, err := d.Detect(testCtx, tbl)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.Kind != quality.KindTemporalAnomaly {
		t.Errorf("kind = %s", rec.Kind)
	}
	if rec.Severity != quality.SeverityLow {
		t.Errorf("severity = %s, want low (ratio 0.06)", rec.Severity)
	}
}

func TestTemporalRegularSeriesStaysQuiet(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	times := make([]time.Time, 50)
	for i := range times {
		times[i] = base.Add(time.Duration(i) * time.Minute)
	}
	tbl := dataset.MustNew(dataset.TimestampColumn("ts", times))

	d := &TemporalDetector{}
	records, err := d.Detect(testCtx, tbl)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records, want 0", len(records))
	}
}

func TestTemporalSkipsShortColumns(t *testing.T) {
	base := time.Now()
	tbl := dataset.MustNew(dataset.TimestampColumn("ts", []time.Time{base, base.Add(time.Minute)}))

	d := &TemporalDetector{}
	records, err := d.Detect(testCtx, tbl)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records, want 0 for <2 deltas", len(records))
	}
}

// ─── Pattern breaks ──────────────────────────────────────────────────────────

func TestPatternNoiseRows(t *testing.T) {
	// 45 near-identical rows form one dense cluster; 7 scattered rows land
	// outside it: noise ratio ~13% clears the 0.10 sensitivity.
	var xs, ys []float64
	for i := 0; i < 45; i++ {
		xs = append(xs, float64(i%3)*0.001)
		ys = append(ys, float64(i/3)*0.001)
	}
	stragglers := [][2]float64{{50, 50}, {-50, 50}, {50, -50}, {-50, -50}, {80, 0}, {0, 80}, {-80, -20}}
	for _, s := range stragglers {
		xs = append(xs, s[0])
		ys = append(ys, s[1])
	}
	tbl := dataset.MustNew(
		dataset.NumericColumn("bid", xs),
		dataset.NumericColumn("ask", ys),
	)

	d := &PatternDetector{Sensitivity: 0.10, Registry: testRegistry()}
	records, err := d.Detect(testCtx, tbl)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	noise, _ := rec.RawData["noise_rows"].([]int)
	if len(noise) != len(stragglers) {
		t.Errorf("noise_rows = %v, want %d stragglers", noise, len(stragglers))
	}
	if rec.Severity != quality.SeverityLow {
		t.Errorf("severity = %s, want low", rec.Severity)
	}
}

func TestPatternNeedsTwoNumericColumns(t *testing.T) {
	tbl := dataset.MustNew(dataset.NumericColumn("price", []float64{1, 2, 3}))
	d := &PatternDetector{Sensitivity: 0.10, Registry: testRegistry()}
	records, err := d.Detect(testCtx, tbl)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records, want 0", len(records))
	}
}

// ─── Set ─────────────────────────────────────────────────────────────────────

func TestSetEmptyDataset(t *testing.T) {
	s := NewSet(quality.DefaultDetectionConfig(), testRegistry(), zap.NewNop())

	result := s.Run(testCtx, nil)
	if len(result.Anomalies) != 0 || len(result.DetectorErrors) != 0 {
		t.Errorf("nil table: %+v", result)
	}

	empty, _ := dataset.New()
	result = s.Run(testCtx, empty)
	if len(result.Anomalies) != 0 || len(result.DetectorErrors) != 0 {
		t.Errorf("empty table: %+v", result)
	}
}

func TestSetDisabledDetectorsNotConstructed(t *testing.T) {
	cfg := quality.DefaultDetectionConfig()
	cfg.EnableOutlier = false
	cfg.EnablePattern = false
	s := NewSet(cfg, testRegistry(), zap.NewNop())
	if len(s.detectors) != 3 {
		t.Errorf("detectors = %d, want 3", len(s.detectors))
	}
}

type panicDetector struct{}

func (panicDetector) Kind() quality.AnomalyKind { return quality.KindUnknown }
func (panicDetector) Detect(quality.DatasetContext, *dataset.Table) ([]*quality.AnomalyRecord, error) {
	panic("boom")
}

type errorDetector struct{}

func (errorDetector) Kind() quality.AnomalyKind { return quality.KindDataDrift }
func (errorDetector) Detect(quality.DatasetContext, *dataset.Table) ([]*quality.AnomalyRecord, error) {
	return nil, fmt.Errorf("model exploded")
}

func TestSetAbsorbsDetectorFailures(t *testing.T) {
	cfg := quality.DefaultDetectionConfig()
	cfg.EnableOutlier = false
	cfg.EnableTemporal = false
	cfg.EnablePattern = false
	s := NewSet(cfg, testRegistry(), zap.NewNop())
	s.detectors = append(s.detectors, panicDetector{}, errorDetector{})

	values := make([]float64, 100)
	null := make([]bool, 100)
	for i := 0; i < 10; i++ {
		null[i] = true
	}
	tbl := dataset.MustNew(dataset.NumericColumnWithNulls("price", values, null))

	result := s.Run(testCtx, tbl)

	// The failing detectors degrade to errors; the healthy one still reports.
	if len(result.DetectorErrors) != 2 {
		t.Fatalf("detector errors = %+v, want 2", result.DetectorErrors)
	}
	if len(result.Anomalies) == 0 {
		t.Error("healthy detector findings were lost")
	}
	for _, derr := range result.DetectorErrors {
		if derr.Message == "" {
			t.Error("empty detector error message")
		}
	}
}

func TestAnomalyIDsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := newAnomalyID(quality.KindMissingData, testCtx, "price")
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
