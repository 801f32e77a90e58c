// Package detect implements the five tabular anomaly detectors and the Set
// that runs them as one detection pass. Detectors are stateless and
// independent: each scans the dataset on its own and a failure in one never
// suppresses the findings of another.
package detect

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veridata/veridata/internal/dataset"
	"github.com/veridata/veridata/internal/quality"
	"github.com/veridata/veridata/internal/quality/ml"
)

// Detector scans a dataset for one anomaly category.
type Detector interface {
	// Kind identifies the anomaly category the detector produces.
	Kind() quality.AnomalyKind
	// Detect scans the table and returns zero or more anomaly records.
	Detect(dctx quality.DatasetContext, tbl *dataset.Table) ([]*quality.AnomalyRecord, error)
}

// Set runs the enabled detectors over a dataset and concatenates their
// findings. Individual detector failures are captured as DetectorErrors
// rather than propagated.
type Set struct {
	cfg       quality.DetectionConfig
	detectors []Detector
	logger    *zap.Logger
}

// NewSet wires the enabled detectors. The model registry backs the outlier
// and pattern detectors; disabled detectors are simply not constructed.
func NewSet(cfg quality.DetectionConfig, registry *ml.Registry, logger *zap.Logger) *Set {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Set{cfg: cfg, logger: logger}

	if cfg.EnableMissingData {
		s.detectors = append(s.detectors, &MissingDataDetector{Threshold: cfg.MissingThreshold})
	}
	if cfg.EnableDuplicate {
		s.detectors = append(s.detectors, &DuplicateDetector{Threshold: cfg.DuplicateThreshold})
	}
	if cfg.EnableOutlier {
		s.detectors = append(s.detectors, &OutlierDetector{
			Threshold: cfg.OutlierThreshold,
			Registry:  registry,
		})
	}
	if cfg.EnableTemporal {
		s.detectors = append(s.detectors, &TemporalDetector{})
	}
	if cfg.EnablePattern {
		s.detectors = append(s.detectors, &PatternDetector{
			Sensitivity: cfg.PatternSensitivity,
			Registry:    registry,
		})
	}
	return s
}

// Run executes every enabled detector against the table. An empty table
// short-circuits to an empty result. Run never returns an error: detector
// failures are reported in the result's DetectorErrors.
func (s *Set) Run(dctx quality.DatasetContext, tbl *dataset.Table) quality.DetectionResult {
	start := time.Now()
	result := quality.DetectionResult{}

	if tbl == nil || tbl.Rows() == 0 {
		result.ProcessingTime = time.Since(start)
		return result
	}

	for _, d := range s.detectors {
		records, err := s.runOne(d, dctx, tbl)
		if err != nil {
			s.logger.Warn("detector failed",
				zap.String("detector", string(d.Kind())),
				zap.String("data_source", dctx.DataSource),
				zap.Error(err))
			result.DetectorErrors = append(result.DetectorErrors, quality.DetectorError{
				Detector: d.Kind(),
				Message:  err.Error(),
			})
			continue
		}
		result.Anomalies = append(result.Anomalies, records...)
	}

	result.ProcessingTime = time.Since(start)
	return result
}

// runOne isolates one detector call, converting panics into errors so a
// misbehaving detector cannot take down the whole pass.
func (s *Set) runOne(d Detector, dctx quality.DatasetContext, tbl *dataset.Table) (records []*quality.AnomalyRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return d.Detect(dctx, tbl)
}

// newAnomalyID builds a collision-free record id. The kind/source/field
// prefix keeps ids greppable; the uuid suffix guarantees same-second
// detections on the same column never collide.
func newAnomalyID(kind quality.AnomalyKind, dctx quality.DatasetContext, field string) string {
	return fmt.Sprintf("%s_%s_%s_%s_%d_%s",
		kind, dctx.DataSource, dctx.Symbol, field,
		time.Now().Unix(), uuid.NewString()[:8])
}

// newRecord fills the fields every detector sets the same way.
func newRecord(kind quality.AnomalyKind, dctx quality.DatasetContext, field string, score float64) *quality.AnomalyRecord {
	return &quality.AnomalyRecord{
		ID:            newAnomalyID(kind, dctx, field),
		Kind:          kind,
		DataSource:    dctx.DataSource,
		Symbol:        dctx.Symbol,
		DataType:      dctx.DataType,
		Score:         score,
		DetectionTime: time.Now().UTC(),
	}
}
