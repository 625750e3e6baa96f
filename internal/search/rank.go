package search

import (
	"math"
	"sort"

	"github.com/libraryengine/stacks/internal/store"
)

// RankBy selects how AdvancedSearch combines a candidate's component
// scores into a single ranking value.
type RankBy string

const (
	RankVector   RankBy = "vector"
	RankText     RankBy = "text"
	RankAverage  RankBy = "average"
	RankMultiply RankBy = "multiply"
	RankWeighted RankBy = "weighted"
)

// RankWeights are the weighted-combine coefficients for vector, text,
// metadata-pass boost, and recency, in that order. Defaults sum to 1.
type RankWeights struct {
	Vector   float64
	Text     float64
	Metadata float64
	Recency  float64
}

// DefaultRankWeights returns the baseline {0.5, 0.3, 0.1, 0.1} weighting.
func DefaultRankWeights() RankWeights {
	return RankWeights{Vector: 0.5, Text: 0.3, Metadata: 0.1, Recency: 0.1}
}

// FieldBoosts scales or nudges the final score after combination.
type FieldBoosts struct {
	Text            float64
	Metadata        float64
	MetadataEnabled bool
	Topic           float64
}

// DefaultFieldBoosts leaves text untouched and disables the additive
// metadata/topic boosts.
func DefaultFieldBoosts() FieldBoosts {
	return FieldBoosts{Text: 1.0, Metadata: 0.0, MetadataEnabled: false, Topic: 0.0}
}

// TextQuery bundles the text-search portion of an AdvancedSearchOptions.
type TextQuery struct {
	Query                 string
	Mode                  TextMode
	Threshold             float64
	MaxRegexPatternLength int
}

// DateRange filters volumes by inclusive [From, To] unix-millisecond
// timestamp bounds. A side is bounded only when its HasFrom/HasTo flag is
// set; otherwise it is unbounded.
type DateRange struct {
	From    int64
	HasFrom bool
	To      int64
	HasTo   bool
}

// AdvancedSearchOptions is the full parameter set for AdvancedSearch.
type AdvancedSearchOptions struct {
	QueryEmbedding      []float32
	SimilarityThreshold float64
	HasSimilarity       bool

	Text    *TextQuery
	Filters []store.MetadataFilter
	Dates   *DateRange

	TopicFilter []string

	RankBy      RankBy
	RankWeights RankWeights
	FieldBoosts FieldBoosts

	RecencyHalfLifeMs int64

	MaxResults int
}

// DefaultMaxResults is applied when MaxResults is unset (<=0).
const DefaultMaxResults = 10

// RankedResult is one scored volume from AdvancedSearch, with its
// component scores retained for callers that want to inspect them (e.g.
// the learning engine, or diagnostics).
type RankedResult struct {
	Volume       *store.Volume
	Score        float64
	VectorScore  float64
	HasVector    bool
	TextScoreVal float64
	HasText      bool
	TopicBoosted bool
	RecencyScore float64

	// MetadataPassed is true when metadata filters were requested and this
	// candidate passed all of them (it always did, by the time AdvancedSearch
	// reaches the combine step — survivors of step 2 are the only ones
	// scored). It feeds the weighted combine's metadataPassBoost term.
	MetadataPassed bool

	// VectorRequested/TextRequested record whether the caller asked for that
	// component at all (a non-empty QueryEmbedding / Text.Query), as opposed
	// to it simply being absent. RankMultiply needs this distinction: a
	// requested-but-missing component drops the candidate, while a
	// never-requested component is just excluded from the product.
	VectorRequested bool
	TextRequested   bool
}

// RegexLogger is implemented by callers that want to observe rejected
// regex-mode queries (see RegexRejectLogger in textsearch.go).
type RegexLogger = RegexRejectLogger

// AdvancedSearch runs the nine-step composition over candidates: metadata
// filter, date-range filter, vector scoring, text scoring, topic-boost
// flag, combine per RankBy, field boosts, then sort+truncate. metadataIdx
// may be nil, in which case the metadata filter falls back to a full
// MatchesAll scan over every candidate.
func AdvancedSearch(
	candidates []*store.Volume,
	opts AdvancedSearchOptions,
	magCache *store.MagnitudeCache,
	invertedIndex *store.InvertedIndex,
	now int64,
	logger RegexLogger,
	metadataIdx *store.MetadataIndex,
) []RankedResult {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	weights := opts.RankWeights
	if weights == (RankWeights{}) {
		weights = DefaultRankWeights()
	}

	boosts := opts.FieldBoosts
	if boosts == (FieldBoosts{}) {
		boosts = DefaultFieldBoosts()
	}

	halfLife := opts.RecencyHalfLifeMs
	if halfLife <= 0 {
		halfLife = 7 * 24 * 60 * 60 * 1000
	}

	var queryMag float64
	hasQuery := len(opts.QueryEmbedding) > 0
	if hasQuery {
		queryMag = store.Magnitude(opts.QueryEmbedding)
	}

	var topicMatched map[string]bool
	if len(opts.TopicFilter) > 0 {
		topicMatched = make(map[string]bool)
		for _, t := range opts.TopicFilter {
			topicMatched[t] = true
		}
	}

	var allowedIDs map[string]bool
	var metadataNarrowed bool
	if len(opts.Filters) > 0 && metadataIdx != nil {
		allowedIDs, metadataNarrowed = metadataIdx.Candidates(opts.Filters)
	}

	results := make([]RankedResult, 0, len(candidates))

	for _, v := range candidates {
		// 2. metadata filter — the index narrows the candidate set first
		// (when at least one filter mode is indexable), then MatchesAll
		// remains the authoritative check for every mode the index can't
		// serve.
		if len(opts.Filters) > 0 {
			if metadataNarrowed && !allowedIDs[v.ID] {
				continue
			}
			if !store.MatchesAll(v.Metadata, opts.Filters) {
				continue
			}
		}

		// 3. date-range filter (inclusive)
		if opts.Dates != nil {
			if opts.Dates.HasFrom && v.Timestamp < opts.Dates.From {
				continue
			}
			if opts.Dates.HasTo && v.Timestamp > opts.Dates.To {
				continue
			}
		}

		rr := RankedResult{
			Volume:          v,
			MetadataPassed:  len(opts.Filters) > 0,
			VectorRequested: hasQuery,
			TextRequested:   opts.Text != nil && opts.Text.Query != "",
		}

		// 4. vector scoring
		if hasQuery {
			sim, ok := store.FastCosine(opts.QueryEmbedding, queryMag, v.ID, v.Embedding, magCache)
			if ok {
				if opts.HasSimilarity && sim < opts.SimilarityThreshold {
					continue
				}
				rr.VectorScore = sim
				rr.HasVector = true
			} else if opts.HasSimilarity {
				continue
			}
		}

		// 5. text scoring
		if opts.Text != nil && opts.Text.Query != "" {
			score, ok := textScoreForMode(*opts.Text, v, invertedIndex, logger)
			// Below-threshold counts as no text score, not a hard drop: other
			// rank-by strategies can still use the remaining signals.
			if ok && (!ThresholdApplies(opts.Text.Mode) || score >= opts.Text.Threshold) {
				rr.TextScoreVal = score
				rr.HasText = true
			}
		}

		// 6. topic boost flag
		if topicMatched != nil {
			if topic, ok := v.Metadata["topic"]; ok && store.MatchTopicAny(topic, opts.TopicFilter) {
				rr.TopicBoosted = true
			}
		}

		// recency component, used by weighted combine
		rr.RecencyScore = recencyScore(now, v.Timestamp, halfLife)

		score, keep := combine(opts.RankBy, rr, weights)
		if !keep {
			continue
		}

		// 8. field boosts
		if rr.HasText {
			score *= boosts.Text
		}
		if boosts.MetadataEnabled && (len(opts.Filters) == 0 || store.MatchesAll(v.Metadata, opts.Filters)) {
			score += boosts.Metadata
		}
		if rr.TopicBoosted {
			score += boosts.Topic
		}

		rr.Score = score
		results = append(results, rr)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > maxResults {
		results = results[:maxResults]
	}

	return results
}

func textScoreForMode(tq TextQuery, v *store.Volume, idx *store.InvertedIndex, logger RegexLogger) (float64, bool) {
	if tq.Mode == ModeBM25 {
		if idx == nil {
			return 0, false
		}
		scores := BM25Search(idx, tq.Query)
		score, ok := scores[v.ID]
		return score, ok
	}
	return TextScore(tq.Mode, tq.Query, v.Text, tq.MaxRegexPatternLength, logger)
}

// combine applies the rankBy strategy. keep is false when the volume must
// be dropped (missing a required component).
func combine(rankBy RankBy, rr RankedResult, weights RankWeights) (float64, bool) {
	switch rankBy {
	case RankVector:
		if !rr.HasVector {
			return 0, false
		}
		return rr.VectorScore, true
	case RankText:
		if !rr.HasText {
			return 0, false
		}
		return rr.TextScoreVal, true
	case RankAverage:
		var sum float64
		var n int
		if rr.HasVector {
			sum += rr.VectorScore
			n++
		}
		if rr.HasText {
			sum += rr.TextScoreVal
			n++
		}
		if n == 0 {
			return 0, false
		}
		return sum / float64(n), true
	case RankMultiply:
		// A requested-but-missing component drops the candidate outright;
		// a component never requested is simply excluded from the product.
		if rr.VectorRequested && !rr.HasVector {
			return 0, false
		}
		if rr.TextRequested && !rr.HasText {
			return 0, false
		}
		if !rr.HasVector && !rr.HasText {
			return 1, true
		}
		product := 1.0
		if rr.HasVector {
			product *= rr.VectorScore
		}
		if rr.HasText {
			product *= rr.TextScoreVal
		}
		return product, true
	case RankWeighted:
		fallthrough
	default:
		metadataBoost := 0.0
		if rr.MetadataPassed {
			metadataBoost = 1.0
		}
		score := weights.Vector*rr.VectorScore +
			weights.Text*rr.TextScoreVal +
			weights.Metadata*metadataBoost +
			weights.Recency*rr.RecencyScore
		return score, true
	}
}

// recencyScore is the exponential decay exp(-ln2 * age / halfLifeMs),
// clamped to [0,1] against non-finite inputs.
func recencyScore(now, timestamp, halfLifeMs int64) float64 {
	if halfLifeMs <= 0 {
		return 0
	}
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
