package ml

import "math"

// DBSCAN label values. Noise rows are the pattern breaks the detector reports.
const (
	labelUndefined = 0
	// LabelNoise marks rows that belong to no dense cluster.
	LabelNoise = -1
)

// DBSCAN clusters rows by density. Rows labelled LabelNoise sit outside
// every dense region.
type DBSCAN struct {
	eps        float64
	minSamples int
}

func NewDBSCAN(eps float64, minSamples int) *DBSCAN {
	if eps <= 0 {
		eps = 0.5
	}
	if minSamples < 1 {
		minSamples = 5
	}
	return &DBSCAN{eps: eps, minSamples: minSamples}
}

// FitPredict assigns each row a cluster label starting at 1, or LabelNoise.
func (d *DBSCAN) FitPredict(rows [][]float64) []int {
	n := len(rows)
	labels := make([]int, n)
	cluster := 0

	for i := 0; i < n; i++ {
		if labels[i] != labelUndefined {
			continue
		}
		neighbors := d.regionQuery(rows, i)
		if len(neighbors) < d.minSamples {
			labels[i] = LabelNoise
			continue
		}
		cluster++
		labels[i] = cluster
		d.expand(rows, labels, neighbors, cluster)
	}
	return labels
}

// NoiseRows returns the indices labelled LabelNoise.
func NoiseRows(labels []int) []int {
	var out []int
	for i, l := range labels {
		if l == LabelNoise {
			out = append(out, i)
		}
	}
	return out
}

func (d *DBSCAN) expand(rows [][]float64, labels []int, seeds []int, cluster int) {
	for k := 0; k < len(seeds); k++ {
		i := seeds[k]
		if labels[i] == LabelNoise {
			// Border point: reachable but not dense, so it is not expanded.
			labels[i] = cluster
			continue
		}
		if labels[i] != labelUndefined {
			continue
		}
		labels[i] = cluster
		neighbors := d.regionQuery(rows, i)
		if len(neighbors) >= d.minSamples {
			seeds = append(seeds, neighbors...)
		}
	}
}

func (d *DBSCAN) regionQuery(rows [][]float64, idx int) []int {
	var out []int
	for i := range rows {
		if euclidean(rows[idx], rows[i]) <= d.eps {
			out = append(out, i)
		}
	}
	return out
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
