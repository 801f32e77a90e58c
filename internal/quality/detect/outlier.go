package detect

import (
	"fmt"

	"github.com/veridata/veridata/internal/dataset"
	"github.com/veridata/veridata/internal/quality"
	"github.com/veridata/veridata/internal/quality/ml"
)

// severeDecisionScore splits flagged rows into severe and mild bands for
// suggestion generation. Decision scores are negative for anomalous rows.
const severeDecisionScore = -0.5

// OutlierDetector scores rows of the numeric columns with an isolation
// forest. Emission is double-gated: a row must be flagged by the model AND
// the flagged-row ratio across the dataset must exceed the threshold. A
// single extreme point in an otherwise clean dataset produces no record.
type OutlierDetector struct {
	Threshold float64
	Registry  *ml.Registry
}

func (d *OutlierDetector) Kind() quality.AnomalyKind { return quality.KindOutlier }

func (d *OutlierDetector) Detect(dctx quality.DatasetContext, tbl *dataset.Table) ([]*quality.AnomalyRecord, error) {
	numeric := tbl.NumericColumns()
	if len(numeric) == 0 {
		return nil, nil
	}

	matrix := featureMatrix(numeric, tbl.Rows())
	if len(matrix) < 2 {
		return nil, nil
	}

	bundle := d.Registry.Bundle(ml.ModelKey{DataSource: dctx.DataSource, DataType: dctx.DataType})
	bundle.Lock()
	defer bundle.Unlock()

	scaled, err := bundle.Scaler.FitTransform(matrix)
	if err != nil {
		return nil, fmt.Errorf("scaling features: %w", err)
	}
	if err := bundle.Forest.Fit(scaled); err != nil {
		return nil, fmt.Errorf("fitting outlier model: %w", err)
	}

	var flagged, severe, mild []int
	scores := make([]float64, len(scaled))
	for i, row := range scaled {
		scores[i] = bundle.Forest.DecisionScore(row)
		if !bundle.Forest.IsFlagged(row) {
			continue
		}
		flagged = append(flagged, i)
		if scores[i] < severeDecisionScore {
			severe = append(severe, i)
		} else {
			mild = append(mild, i)
		}
	}

	ratio := float64(len(flagged)) / float64(len(scaled))
	if ratio <= d.Threshold {
		return nil, nil
	}

	fields := make([]string, len(numeric))
	for i, c := range numeric {
		fields[i] = c.Name
	}

	rec := newRecord(quality.KindOutlier, dctx, "numeric", ratio)
	rec.Severity = outlierSeverity(ratio)
	rec.Description = fmt.Sprintf("%d outlier rows (%.1f%% of %d) across %d numeric columns",
		len(flagged), ratio*100, len(scaled), len(numeric))
	rec.AffectedFields = fields
	rec.RawData = map[string]any{
		"outlier_ratio":   ratio,
		"outlier_count":   len(flagged),
		"total_rows":      len(scaled),
		"outlier_rows":    flagged,
		"severe_rows":     severe,
		"mild_rows":       mild,
		"decision_scores": scores,
	}
	return []*quality.AnomalyRecord{rec}, nil
}

func outlierSeverity(ratio float64) quality.Severity {
	switch {
	case ratio > 0.2:
		return quality.SeverityHigh
	case ratio > 0.1:
		return quality.SeverityMedium
	default:
		return quality.SeverityLow
	}
}

// featureMatrix builds a dense rows×columns matrix from the numeric columns,
// median-imputing nulls. The caller's columns are never modified.
func featureMatrix(cols []*dataset.Column, rows int) [][]float64 {
	medians := make([]float64, len(cols))
	for j, c := range cols {
		medians[j] = median(c.NonNullFloats())
	}

	matrix := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		row := make([]float64, len(cols))
		for j, c := range cols {
			if c.IsNull(i) {
				row[j] = medians[j]
			} else {
				row[j] = c.Floats[i]
			}
		}
		matrix[i] = row
	}
	return matrix
}
