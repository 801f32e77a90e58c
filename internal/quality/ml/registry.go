package ml

import "sync"

// ModelKey identifies the model bundle for one data stream.
type ModelKey struct {
	DataSource string
	DataType   string
}

// Bundle groups the models backing one stream's detectors. The bundle owns a
// mutex so concurrent detection calls on the same stream serialize their
// refit/score cycles without blocking other streams.
type Bundle struct {
	mu     sync.Mutex
	Scaler *StandardScaler
	Forest *IsolationForest
	Labels *DBSCAN
}

// Lock takes the bundle's refit lock.
func (b *Bundle) Lock() { b.mu.Lock() }

// Unlock releases the bundle's refit lock.
func (b *Bundle) Unlock() { b.mu.Unlock() }

// Registry maps data streams to their model bundles. Bundles are created on
// first use and live for the registry's lifetime.
type Registry struct {
	mu            sync.RWMutex
	bundles       map[ModelKey]*Bundle
	contamination float64
	eps           float64
	minSamples    int
}

// NewRegistry builds an empty registry. New bundles inherit the given
// outlier contamination and DBSCAN parameters.
func NewRegistry(contamination, eps float64, minSamples int) *Registry {
	return &Registry{
		bundles:       make(map[ModelKey]*Bundle),
		contamination: contamination,
		eps:           eps,
		minSamples:    minSamples,
	}
}

// Bundle returns the bundle for the key, creating it if needed.
func (r *Registry) Bundle(key ModelKey) *Bundle {
	r.mu.RLock()
	b, ok := r.bundles[key]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.bundles[key]; ok {
		return b
	}
	b = &Bundle{
		Scaler: NewStandardScaler(),
		Forest: NewIsolationForest(r.contamination),
		Labels: NewDBSCAN(r.eps, r.minSamples),
	}
	r.bundles[key] = b
	return b
}

// Reset drops the bundle for the key so the next detection refits fresh
// models. Used when a stream's behavior changes shape.
func (r *Registry) Reset(key ModelKey) {
	r.mu.Lock()
	delete(r.bundles, key)
	r.mu.Unlock()
}

// Len reports how many streams currently hold bundles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bundles)
}
