// Package recommend implements weighted recommendation over the candidate
// set: a blend of vector similarity, recency decay, and access frequency,
// nudged by the learning engine's per-id boost.
package recommend

import (
	"math"
	"sort"

	"github.com/libraryengine/stacks/internal/store"
)

// Weights are the normalized combine coefficients for vector, recency, and
// frequency components. Defaults are {0.6, 0.2, 0.2}.
type Weights struct {
	Vector    float64
	Recency   float64
	Frequency float64
}

// DefaultWeights returns the baseline recommendation weighting.
func DefaultWeights() Weights {
	return Weights{Vector: 0.6, Recency: 0.2, Frequency: 0.2}
}

// BoostFunc computes the learning-engine boost for a candidate, clamped to
// [0.8, 1.2] by the caller (internal/learning owns that invariant).
type BoostFunc func(id string, embedding []float32) float64

// Options parameterizes Recommend.
type Options struct {
	QueryEmbedding []float32
	HalfLifeMs     int64
	MinScore       float64
	MaxResults     int
	Weights        Weights
	Boost          BoostFunc
	// Topic, if set, is forwarded to Boost so a topic-aware learning engine
	// can prefer its per-topic interest profile over the global one.
	Topic string
}

// DefaultMaxResults mirrors the combined-ranking default.
const DefaultMaxResults = 10

// Result is one scored candidate.
type Result struct {
	Volume *store.Volume
	Score  float64
}

// Recommend scores every candidate and returns the top MaxResults above
// MinScore, sorted descending. It never increments access stats — that is
// the caller's responsibility for search operations only, not
// recommendation.
func Recommend(candidates []*store.Volume, access map[string]store.AccessStats, now int64, opts Options) []Result {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	weights := opts.Weights
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}

	halfLife := opts.HalfLifeMs
	if halfLife <= 0 {
		halfLife = 7 * 24 * 60 * 60 * 1000
	}

	sum := weights.Vector + weights.Recency + weights.Frequency
	if sum <= 0 {
		sum = 1
	}
	nv, nr, nf := weights.Vector/sum, weights.Recency/sum, weights.Frequency/sum

	hasQuery := len(opts.QueryEmbedding) > 0

	var maxAccess uint64
	for _, v := range candidates {
		if stats, ok := access[v.ID]; ok && stats.AccessCount > maxAccess {
			maxAccess = stats.AccessCount
		}
	}

	results := make([]Result, 0, len(candidates))

	for _, v := range candidates {
		var vectorScore float64
		if hasQuery {
			if sim, ok := store.Cosine(opts.QueryEmbedding, v.Embedding); ok {
				vectorScore = sim
			}
		}

		recencyScore := decay(now, v.Timestamp, halfLife)

		var frequencyScore float64
		if maxAccess > 0 {
			if stats, ok := access[v.ID]; ok {
				frequencyScore = float64(stats.AccessCount) / float64(maxAccess)
			}
		}

		score := nv*vectorScore + nr*recencyScore + nf*frequencyScore

		if opts.Boost != nil {
			boost := opts.Boost(v.ID, v.Embedding)
			if boost < 0.8 {
				boost = 0.8
			}
			if boost > 1.2 {
				boost = 1.2
			}
			score *= boost
		}

		if score < opts.MinScore {
			continue
		}

		results = append(results, Result{Volume: v, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > maxResults {
		results = results[:maxResults]
	}

	return results
}

func decay(now, timestamp, halfLifeMs int64) float64 {
	age := float64(now - timestamp)
	if age < 0 {
		age = 0
	}
	score := math.Exp(-math.Ln2 * age / float64(halfLifeMs))
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}
