package store

import "math"

// Magnitude returns the Euclidean norm of v.
func Magnitude(v []float32) float64 {
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	return math.Sqrt(sumSq)
}

// Cosine returns the cosine similarity of a and b, clamped to [-1, 1].
// The second return value is false when the vectors have mismatched
// lengths, either has zero magnitude, or the result is non-finite —
// mirroring the cases where similarity is simply undefined.
func Cosine(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}

	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}

	magA := Magnitude(a)
	magB := Magnitude(b)
	if magA == 0 || magB == 0 {
		return 0, false
	}

	sim := dot / (magA * magB)
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0, false
	}

	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}

	return sim, true
}

// MagnitudeCache lazily memoizes per-id embedding magnitudes, invalidated
// on delete.
type MagnitudeCache struct {
	values map[string]float64
}

// NewMagnitudeCache creates an empty cache.
func NewMagnitudeCache() *MagnitudeCache {
	return &MagnitudeCache{values: make(map[string]float64)}
}

// Get returns the cached magnitude for id, computing and storing it from v
// on a miss.
func (c *MagnitudeCache) Get(id string, v []float32) float64 {
	if m, ok := c.values[id]; ok {
		return m
	}
	m := Magnitude(v)
	c.values[id] = m
	return m
}

// Invalidate drops the cached magnitude for id (on delete).
func (c *MagnitudeCache) Invalidate(id string) {
	delete(c.values, id)
}

// Clear empties the cache entirely (on Stacks.clear()).
func (c *MagnitudeCache) Clear() {
	c.values = make(map[string]float64)
}

// FastCosine computes cosine similarity between a query vector (with
// precomputed magnitude queryMag) and an entry, using the magnitude cache
// for the entry's magnitude instead of recomputing it.
func FastCosine(query []float32, queryMag float64, entryID string, entry []float32, cache *MagnitudeCache) (float64, bool) {
	if len(query) != len(entry) || len(query) == 0 {
		return 0, false
	}

	entryMag := cache.Get(entryID, entry)
	if queryMag == 0 || entryMag == 0 {
		return 0, false
	}

	var dot float64
	for i := range query {
		dot += float64(query[i]) * float64(entry[i])
	}

	sim := dot / (queryMag * entryMag)
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0, false
	}

	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}

	return sim, true
}
