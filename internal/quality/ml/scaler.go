package ml

import (
	"fmt"
	"math"
)

// StandardScaler centers each feature to zero mean and unit variance.
// Features with zero variance pass through centered only.
type StandardScaler struct {
	means  []float64
	stddev []float64
	fitted bool
}

func NewStandardScaler() *StandardScaler { return &StandardScaler{} }

// Fit computes per-feature means and standard deviations.
func (s *StandardScaler) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return fmt.Errorf("scaler: empty training set")
	}
	width := len(rows[0])
	s.means = make([]float64, width)
	s.stddev = make([]float64, width)

	for _, r := range rows {
		if len(r) != width {
			return fmt.Errorf("scaler: ragged row, got %d features, expected %d", len(r), width)
		}
		for j, v := range r {
			s.means[j] += v
		}
	}
	n := float64(len(rows))
	for j := range s.means {
		s.means[j] /= n
	}
	for _, r := range rows {
		for j, v := range r {
			d := v - s.means[j]
			s.stddev[j] += d * d
		}
	}
	for j := range s.stddev {
		s.stddev[j] = math.Sqrt(s.stddev[j] / n)
	}
	s.fitted = true
	return nil
}

// Transform returns scaled copies of the rows. The input is not modified.
func (s *StandardScaler) Transform(rows [][]float64) ([][]float64, error) {
	if !s.fitted {
		return nil, fmt.Errorf("scaler: transform before fit")
	}
	out := make([][]float64, len(rows))
	for i, r := range rows {
		if len(r) != len(s.means) {
			return nil, fmt.Errorf("scaler: row %d has %d features, expected %d", i, len(r), len(s.means))
		}
		scaled := make([]float64, len(r))
		for j, v := range r {
			if s.stddev[j] > 0 {
				scaled[j] = (v - s.means[j]) / s.stddev[j]
			} else {
				scaled[j] = v - s.means[j]
			}
		}
		out[i] = scaled
	}
	return out, nil
}

// FitTransform fits on the rows and returns their scaled form.
func (s *StandardScaler) FitTransform(rows [][]float64) ([][]float64, error) {
	if err := s.Fit(rows); err != nil {
		return nil, err
	}
	return s.Transform(rows)
}
