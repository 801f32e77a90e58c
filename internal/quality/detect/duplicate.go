package detect

import (
	"fmt"

	"github.com/veridata/veridata/internal/dataset"
	"github.com/veridata/veridata/internal/quality"
)

// DuplicateDetector flags exact whole-row duplicates. The first occurrence
// of each row is not counted; only its repeats are.
type DuplicateDetector struct {
	Threshold float64
}

func (d *DuplicateDetector) Kind() quality.AnomalyKind { return quality.KindDuplicateData }

func (d *DuplicateDetector) Detect(dctx quality.DatasetContext, tbl *dataset.Table) ([]*quality.AnomalyRecord, error) {
	dupRows := tbl.DuplicateRows()
	total := tbl.Rows()
	if total == 0 {
		return nil, nil
	}

	ratio := float64(len(dupRows)) / float64(total)
	if ratio <= d.Threshold {
		return nil, nil
	}

	rec := newRecord(quality.KindDuplicateData, dctx, "rows", ratio)
	rec.Severity = duplicateSeverity(ratio)
	rec.Description = fmt.Sprintf("%d duplicate rows (%.1f%% of %d)", len(dupRows), ratio*100, total)
	rec.AffectedFields = columnNames(tbl)
	rec.RawData = map[string]any{
		"duplicate_ratio": ratio,
		"duplicate_count": len(dupRows),
		"total_rows":      total,
		"duplicate_rows":  dupRows,
	}
	return []*quality.AnomalyRecord{rec}, nil
}

func duplicateSeverity(ratio float64) quality.Severity {
	switch {
	case ratio > 0.1:
		return quality.SeverityHigh
	case ratio > 0.05:
		return quality.SeverityMedium
	default:
		return quality.SeverityLow
	}
}

func columnNames(tbl *dataset.Table) []string {
	cols := tbl.Columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}
