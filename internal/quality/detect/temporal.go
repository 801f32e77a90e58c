package detect

import (
	"fmt"
	"math"

	"github.com/veridata/veridata/internal/dataset"
	"github.com/veridata/veridata/internal/quality"
)

// temporalEmitBar is the fixed emission gate for irregular intervals: the
// share of anomalous gaps must exceed 5% before a record is produced.
const temporalEmitBar = 0.05

// TemporalDetector looks for irregular sampling in time-like columns. An
// interval is anomalous when its delta sits more than three standard
// deviations from the median delta.
type TemporalDetector struct{}

func (d *TemporalDetector) Kind() quality.AnomalyKind { return quality.KindTemporalAnomaly }

func (d *TemporalDetector) Detect(dctx quality.DatasetContext, tbl *dataset.Table) ([]*quality.AnomalyRecord, error) {
	var records []*quality.AnomalyRecord

	for _, col := range tbl.TimeColumns() {
		rec := d.scanColumn(dctx, col)
		if rec != nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (d *TemporalDetector) scanColumn(dctx quality.DatasetContext, col *dataset.Column) *quality.AnomalyRecord {
	times := col.TimeValues()
	if len(times) < 3 {
		// fewer than two computable deltas, nothing to judge
		return nil
	}

	deltas := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		deltas = append(deltas, times[i]-times[i-1])
	}
	if len(deltas) < 2 {
		return nil
	}

	med := median(deltas)
	sd := stddev(deltas)
	if sd == 0 {
		return nil
	}

	var anomalous []int
	for i, dl := range deltas {
		if math.Abs(dl-med) > 3*sd {
			anomalous = append(anomalous, i)
		}
	}

	ratio := float64(len(anomalous)) / float64(len(deltas))
	if ratio <= temporalEmitBar {
		return nil
	}

	rec := newRecord(quality.KindTemporalAnomaly, dctx, col.Name, ratio)
	rec.Severity = temporalSeverity(ratio)
	rec.Description = fmt.Sprintf("column %q has %d irregular intervals (%.1f%% of %d, median gap %.0fs)",
		col.Name, len(anomalous), ratio*100, len(deltas), med)
	rec.AffectedFields = []string{col.Name}
	rec.RawData = map[string]any{
		"column":              col.Name,
		"anomalous_ratio":     ratio,
		"anomalous_intervals": anomalous,
		"total_intervals":     len(deltas),
		"median_delta_s":      med,
		"stddev_delta_s":      sd,
	}
	return rec
}

func temporalSeverity(ratio float64) quality.Severity {
	switch {
	case ratio > 0.2:
		return quality.SeverityHigh
	case ratio > 0.1:
		return quality.SeverityMedium
	default:
		return quality.SeverityLow
	}
}
