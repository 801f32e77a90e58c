package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Package ml houses the statistical models used by the detectors: an
// isolation forest for row-level outlier scoring, a standard scaler, and a
// DBSCAN clusterer for pattern-break detection. All models are stateless
// across detection calls; they are refit from scratch on every pass.

// IsolationTree is a single randomized partition tree.
type isolationTree struct {
	splitFeature int
	splitValue   float64
	left         *isolationTree
	right        *isolationTree
	size         int
	isLeaf       bool
}

// IsolationForest scores rows by how quickly random partitions isolate them.
// Scores are in (0,1): higher means more anomalous.
type IsolationForest struct {
	trees         []*isolationTree
	numTrees      int
	subSampleSize int
	maxDepth      int
	contamination float64 // expected anomaly fraction, sets the flag threshold
	rng           *rand.Rand

	threshold float64 // score cutoff derived from contamination at fit time
	fitted    bool
}

// detectorSeed fixes the RNG so identical datasets produce identical scores.
const detectorSeed = 42

// minFlagScore is the lowest score ever treated as anomalous. Scores near
// 0.5 are ordinary under the isolation forest convention, so a clean dataset
// must not flag its own upper quantile just because the quantile exists.
const minFlagScore = 0.55

// NewIsolationForest builds a forest with the given contamination fraction.
// The tree count and subsample size follow the standard defaults.
func NewIsolationForest(contamination float64) *IsolationForest {
	if contamination <= 0 || contamination >= 0.5 {
		contamination = 0.1
	}
	return &IsolationForest{
		numTrees:      100,
		subSampleSize: 256,
		maxDepth:      int(math.Ceil(math.Log2(256))),
		contamination: contamination,
		rng:           rand.New(rand.NewSource(detectorSeed)),
	}
}

// Fit builds the forest over a feature matrix (rows x features) and derives
// the flag threshold so that the top contamination fraction of training rows
// scores at or above it.
func (f *IsolationForest) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return fmt.Errorf("isolation forest: empty training set")
	}
	width := len(rows[0])
	for i, r := range rows {
		if len(r) != width {
			return fmt.Errorf("isolation forest: row %d has %d features, expected %d", i, len(r), width)
		}
	}

	f.trees = f.trees[:0]
	sub := f.subSampleSize
	if sub > len(rows) {
		sub = len(rows)
	}
	depth := int(math.Ceil(math.Log2(float64(sub) + 1)))
	if depth < 1 {
		depth = 1
	}
	f.maxDepth = depth

	for i := 0; i < f.numTrees; i++ {
		sample := f.sample(rows, sub)
		f.trees = append(f.trees, f.buildTree(sample, 0))
	}
	f.fitted = true

	// Flag cutoff: the (1 - contamination) quantile of the training scores,
	// placed so the contamination fraction of rows scores at or above it,
	// then floored at minFlagScore so clean data yields no flags at all.
	scores := make([]float64, len(rows))
	for i, r := range rows {
		scores[i] = f.Score(r)
	}
	sort.Float64s(scores)
	idx := int(math.Ceil(float64(len(scores))*(1-f.contamination))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(scores) {
		idx = len(scores) - 1
	}
	f.threshold = math.Max(scores[idx], minFlagScore)
	return nil
}

// Score returns the anomaly score for one row. 0.5 when the model is unfit.
func (f *IsolationForest) Score(row []float64) float64 {
	if !f.fitted || len(f.trees) == 0 {
		return 0.5
	}
	total := 0.0
	for _, tree := range f.trees {
		total += f.pathLength(tree, row, 0)
	}
	avg := total / float64(len(f.trees))
	c := averagePathLength(f.subSampleSize)
	if c == 0 {
		return 0.5
	}
	return math.Pow(2, -avg/c)
}

// DecisionScore maps the anomaly score onto a signed scale where negative
// values are anomalous: decision = (0.5 - score) * 2, so a score of 0.75
// lands at -0.5, the severe/mild split used by suggestion generation.
func (f *IsolationForest) DecisionScore(row []float64) float64 {
	return (0.5 - f.Score(row)) * 2
}

// IsFlagged reports whether the row scores at or above the
// contamination-derived threshold fixed at fit time.
func (f *IsolationForest) IsFlagged(row []float64) bool {
	return f.fitted && f.Score(row) >= f.threshold
}

// Threshold returns the score cutoff derived at fit time.
func (f *IsolationForest) Threshold() float64 { return f.threshold }

func (f *IsolationForest) sample(rows [][]float64, n int) [][]float64 {
	shuffled := make([][]float64, len(rows))
	copy(shuffled, rows)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := f.rng.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:n]
}

func (f *IsolationForest) buildTree(rows [][]float64, depth int) *isolationTree {
	if len(rows) <= 1 || depth >= f.maxDepth || allIdentical(rows) {
		return &isolationTree{size: len(rows), isLeaf: true}
	}

	feature := f.rng.Intn(len(rows[0]))
	minVal, maxVal := featureRange(rows, feature)
	if minVal == maxVal {
		return &isolationTree{size: len(rows), isLeaf: true}
	}
	split := minVal + f.rng.Float64()*(maxVal-minVal)

	var left, right [][]float64
	for _, r := range rows {
		if r[feature] < split {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &isolationTree{size: len(rows), isLeaf: true}
	}

	return &isolationTree{
		splitFeature: feature,
		splitValue:   split,
		left:         f.buildTree(left, depth+1),
		right:        f.buildTree(right, depth+1),
		size:         len(rows),
	}
}

func (f *IsolationForest) pathLength(tree *isolationTree, row []float64, depth int) float64 {
	if tree.isLeaf {
		return float64(depth) + averagePathLength(tree.size)
	}
	if row[tree.splitFeature] < tree.splitValue {
		return f.pathLength(tree.left, row, depth+1)
	}
	return f.pathLength(tree.right, row, depth+1)
}

// averagePathLength is the expected path length of an unsuccessful BST
// search: c(n) = 2H(n-1) - 2(n-1)/n.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	h := math.Log(float64(n-1)) + 0.5772156649
	return 2*h - (2 * float64(n-1) / float64(n))
}

func allIdentical(rows [][]float64) bool {
	if len(rows) <= 1 {
		return true
	}
	first := rows[0]
	for _, r := range rows[1:] {
		for j := range first {
			if math.Abs(r[j]-first[j]) > 1e-10 {
				return false
			}
		}
	}
	return true
}

func featureRange(rows [][]float64, feature int) (float64, float64) {
	minVal, maxVal := rows[0][feature], rows[0][feature]
	for _, r := range rows {
		v := r[feature]
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	return minVal, maxVal
}
