package detect

import (
	"fmt"

	"github.com/veridata/veridata/internal/dataset"
	"github.com/veridata/veridata/internal/quality"
)

// MissingDataDetector flags columns whose null ratio exceeds the threshold.
// One record per offending column.
type MissingDataDetector struct {
	Threshold float64
}

func (d *MissingDataDetector) Kind() quality.AnomalyKind { return quality.KindMissingData }

func (d *MissingDataDetector) Detect(dctx quality.DatasetContext, tbl *dataset.Table) ([]*quality.AnomalyRecord, error) {
	var records []*quality.AnomalyRecord

	for _, col := range tbl.Columns() {
		ratio := col.NullRatio()
		if ratio <= d.Threshold {
			continue
		}

		var nullRows []int
		for i := 0; i < col.Len(); i++ {
			if col.IsNull(i) {
				nullRows = append(nullRows, i)
			}
		}

		rec := newRecord(quality.KindMissingData, dctx, col.Name, ratio)
		rec.Severity = missingSeverity(ratio)
		rec.Description = fmt.Sprintf("column %q has %.1f%% missing values (%d of %d rows)",
			col.Name, ratio*100, col.NullCount(), col.Len())
		rec.AffectedFields = []string{col.Name}
		rec.RawData = map[string]any{
			"column":        col.Name,
			"missing_ratio": ratio,
			"missing_count": col.NullCount(),
			"total_rows":    col.Len(),
			"missing_rows":  nullRows,
		}
		records = append(records, rec)
	}
	return records, nil
}

// missingSeverity has no low tier: a column that cleared the emission
// threshold is never a low-grade problem.
func missingSeverity(ratio float64) quality.Severity {
	switch {
	case ratio > 0.5:
		return quality.SeverityCritical
	case ratio > 0.2:
		return quality.SeverityHigh
	default:
		return quality.SeverityMedium
	}
}
