package repair

import (
	"fmt"
	"sort"

	"github.com/veridata/veridata/internal/dataset"
	"github.com/veridata/veridata/internal/quality"
)

// Apply rewrites a copy of the dataset according to the suggestion and
// returns the corrected table. The input table is never modified. This is
// the apply-and-return counterpart to Execute's annotate-only mode.
func Apply(tbl *dataset.Table, rec *quality.AnomalyRecord, s *quality.RepairSuggestion) (*dataset.Table, error) {
	if tbl == nil {
		return nil, fmt.Errorf("apply: nil table")
	}
	out := tbl.Clone()

	switch s.Action {
	case quality.ActionRemove:
		rows := affectedRows(rec, s)
		return out.DropRows(rows), nil

	case quality.ActionInterpolate:
		for _, field := range rec.AffectedFields {
			col := out.Column(field)
			if col == nil || col.Kind != dataset.KindNumeric {
				continue
			}
			interpolateColumn(col)
		}
		return out, nil

	case quality.ActionReplace:
		for _, field := range rec.AffectedFields {
			col := out.Column(field)
			if col == nil || col.Kind != dataset.KindNumeric {
				continue
			}
			fillMedian(col)
		}
		return out, nil

	case quality.ActionCorrect:
		rows := affectedRows(rec, s)
		for _, field := range rec.AffectedFields {
			col := out.Column(field)
			if col == nil || col.Kind != dataset.KindNumeric {
				continue
			}
			winsorizeRows(col, rows)
		}
		return out, nil

	case quality.ActionIgnore:
		return out, nil

	default:
		return nil, fmt.Errorf("apply: action %q cannot rewrite a dataset", s.Action)
	}
}

// interpolateColumn fills nulls linearly between the nearest non-null
// neighbors. Leading and trailing gaps extend the nearest known value.
func interpolateColumn(col *dataset.Column) {
	n := col.Len()
	for i := 0; i < n; i++ {
		if !col.IsNull(i) {
			continue
		}
		prev, next := -1, -1
		for j := i - 1; j >= 0; j-- {
			if !col.IsNull(j) {
				prev = j
				break
			}
		}
		for j := i + 1; j < n; j++ {
			if !col.IsNull(j) {
				next = j
				break
			}
		}
		switch {
		case prev >= 0 && next >= 0:
			frac := float64(i-prev) / float64(next-prev)
			col.Floats[i] = col.Floats[prev] + frac*(col.Floats[next]-col.Floats[prev])
		case prev >= 0:
			col.Floats[i] = col.Floats[prev]
		case next >= 0:
			col.Floats[i] = col.Floats[next]
		default:
			continue // whole column is null, nothing to anchor on
		}
		col.Null[i] = false
	}
}

func fillMedian(col *dataset.Column) {
	vals := col.NonNullFloats()
	if len(vals) == 0 {
		return
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	med := sorted[mid]
	if len(sorted)%2 == 0 {
		med = (sorted[mid-1] + sorted[mid]) / 2
	}
	for i := 0; i < col.Len(); i++ {
		if col.IsNull(i) {
			col.Floats[i] = med
			col.Null[i] = false
		}
	}
}

// winsorizeRows caps the targeted rows to the 5th/95th percentile of the
// remaining values.
func winsorizeRows(col *dataset.Column, rows []int) {
	target := make(map[int]bool, len(rows))
	for _, r := range rows {
		target[r] = true
	}

	var background []float64
	for i := 0; i < col.Len(); i++ {
		if !col.IsNull(i) && !target[i] {
			background = append(background, col.Floats[i])
		}
	}
	if len(background) == 0 {
		return
	}
	sort.Float64s(background)
	lo := background[int(float64(len(background))*0.05)]
	hi := background[min(int(float64(len(background))*0.95), len(background)-1)]

	for r := range target {
		if r < 0 || r >= col.Len() || col.IsNull(r) {
			continue
		}
		if col.Floats[r] < lo {
			col.Floats[r] = lo
		} else if col.Floats[r] > hi {
			col.Floats[r] = hi
		}
	}
}
