package detect

import (
	"fmt"

	"github.com/veridata/veridata/internal/dataset"
	"github.com/veridata/veridata/internal/quality"
	"github.com/veridata/veridata/internal/quality/ml"
)

// PatternDetector clusters the standardized numeric rows with DBSCAN and
// treats noise rows (assigned to no dense cluster) as pattern breaks. Emits
// when the noise ratio exceeds the sensitivity gate.
type PatternDetector struct {
	Sensitivity float64
	Registry    *ml.Registry
}

func (d *PatternDetector) Kind() quality.AnomalyKind { return quality.KindPatternBreak }

func (d *PatternDetector) Detect(dctx quality.DatasetContext, tbl *dataset.Table) ([]*quality.AnomalyRecord, error) {
	numeric := tbl.NumericColumns()
	if len(numeric) < 2 {
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

	labels := bundle.Labels.FitPredict(scaled)
	noise := ml.NoiseRows(labels)

	ratio := float64(len(noise)) / float64(len(scaled))
	if ratio <= d.Sensitivity {
		return nil, nil
	}

	clusters := 0
	for _, l := range labels {
		if l > clusters {
			clusters = l
		}
	}

	fields := make([]string, len(numeric))
	for i, c := range numeric {
		fields[i] = c.Name
	}

	rec := newRecord(quality.KindPatternBreak, dctx, "pattern", ratio)
	rec.Severity = patternSeverity(ratio)
	rec.Description = fmt.Sprintf("%d rows (%.1f%%) fall outside the %d dense clusters",
		len(noise), ratio*100, clusters)
	rec.AffectedFields = fields
	rec.RawData = map[string]any{
		"noise_ratio":   ratio,
		"noise_count":   len(noise),
		"total_rows":    len(scaled),
		"noise_rows":    noise,
		"cluster_count": clusters,
	}
	return []*quality.AnomalyRecord{rec}, nil
}

func patternSeverity(ratio float64) quality.Severity {
	switch {
	case ratio > 0.3:
		return quality.SeverityHigh
	case ratio > 0.2:
		return quality.SeverityMedium
	default:
		return quality.SeverityLow
	}
}
