package store

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9]+`)

// Tokenize lowercases text and splits it into alphanumeric runs, the
// bag-of-words unit both the inverted index and the token-cosine search
// mode build their vectors from.
func Tokenize(text string) []string {
	matches := tokenPattern.FindAllString(strings.ToLower(text), -1)
	return matches
}

// TermFrequencies counts occurrences of each token.
func TermFrequencies(tokens []string) map[string]int {
	freq := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freq[t]++
	}
	return freq
}

// posting is one document's contribution to a term's postings list.
type posting struct {
	id string
	tf int
}

// InvertedIndex maintains per-term postings, per-document lengths, and the
// running corpus statistics (N, summed length) a BM25 query needs without
// re-scanning every document. Hand-rolled rather than built on an opaque
// full-text engine because callers need exact per-term df/idf exposed and
// the ability to renormalize scores into [0,1] themselves.
type InvertedIndex struct {
	postings  map[string][]posting // term -> postings
	docLength map[string]int       // id -> token count
	totalLen  int64
}

// NewInvertedIndex creates an empty index.
func NewInvertedIndex() *InvertedIndex {
	return &InvertedIndex{
		postings:  make(map[string][]posting),
		docLength: make(map[string]int),
	}
}

// Add indexes a document's text under id. Calling Add twice for the same id
// without a prior Remove double-counts it; callers replace by removing
// first.
func (idx *InvertedIndex) Add(id, text string) {
	tokens := Tokenize(text)
	freq := TermFrequencies(tokens)

	idx.docLength[id] = len(tokens)
	idx.totalLen += int64(len(tokens))

	for term, tf := range freq {
		idx.postings[term] = append(idx.postings[term], posting{id: id, tf: tf})
	}
}

// Remove drops id from every term it was indexed under.
func (idx *InvertedIndex) Remove(id, text string) {
	tokens := Tokenize(text)
	freq := TermFrequencies(tokens)

	if length, ok := idx.docLength[id]; ok {
		idx.totalLen -= int64(length)
		delete(idx.docLength, id)
	}

	for term := range freq {
		list := idx.postings[term]
		filtered := list[:0]
		for _, p := range list {
			if p.id != id {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) == 0 {
			delete(idx.postings, term)
		} else {
			idx.postings[term] = filtered
		}
	}
}

// Clear empties the index.
func (idx *InvertedIndex) Clear() {
	idx.postings = make(map[string][]posting)
	idx.docLength = make(map[string]int)
	idx.totalLen = 0
}

// N is the number of indexed documents.
func (idx *InvertedIndex) N() int {
	return len(idx.docLength)
}

// AverageDocLength is the corpus's mean token count, 0 when empty.
func (idx *InvertedIndex) AverageDocLength() float64 {
	n := idx.N()
	if n == 0 {
		return 0
	}
	return float64(idx.totalLen) / float64(n)
}

// DocFrequency is the number of documents containing term at least once.
func (idx *InvertedIndex) DocFrequency(term string) int {
	return len(idx.postings[strings.ToLower(term)])
}

// BM25Result is one scored document from a BM25 query, before the final
// [0,1] renormalization pass.
type BM25Result struct {
	ID    string
	Score float64
}

// bm25IDF computes term's BM25 inverse document frequency over the
// current index (0 for an empty index or an unseen term).
func (idx *InvertedIndex) bm25IDF(term string) float64 {
	n := float64(idx.N())
	df := float64(idx.DocFrequency(term))
	if n == 0 || df == 0 {
		return 0
	}
	// Classic Robertson/Sparck-Jones BM25 idf, floored at 0 so very common
	// terms (df > n/2) don't contribute a negative score.
	idf := math.Log((n-df+0.5)/(df+0.5) + 1)
	if idf < 0 {
		return 0
	}
	return idf
}

// candidateScores computes raw BM25 scores over every document that
// contains at least one query term.
func (idx *InvertedIndex) candidateScores(queryTerms []string) map[string]float64 {
	avgdl := idx.AverageDocLength()
	scores := make(map[string]float64)

	seenTerms := make(map[string]bool)
	for _, term := range queryTerms {
		term = strings.ToLower(term)
		if seenTerms[term] {
			continue
		}
		seenTerms[term] = true

		postings, ok := idx.postings[term]
		if !ok {
			continue
		}
		idf := idx.bm25IDF(term)
		if idf == 0 {
			continue
		}

		for _, p := range postings {
			dl := float64(idx.docLength[p.id])
			tf := float64(p.tf)
			denom := tf + bm25K1*(1-bm25B+bm25B*dl/maxFloat(avgdl, 1))
			score := idf * (tf * (bm25K1 + 1) / denom)
			scores[p.id] += score
		}
	}

	return scores
}

// Query runs a BM25 search for text, returning results sorted by
// descending score with scores linearly renormalized into [0,1] by
// dividing every raw score by the maximum raw score in the result set (the
// max score itself maps to 1.0). An empty result set is returned as-is.
func (idx *InvertedIndex) Query(text string) []BM25Result {
	terms := Tokenize(text)
	if len(terms) == 0 {
		return nil
	}

	raw := idx.candidateScores(terms)
	if len(raw) == 0 {
		return nil
	}

	results := make([]BM25Result, 0, len(raw))
	var max float64
	for id, score := range raw {
		if score > max {
			max = score
		}
		results = append(results, BM25Result{ID: id, Score: score})
	}

	if max > 0 {
		for i := range results {
			results[i].Score /= max
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	return results
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// TokenVector builds a sparse bag-of-words frequency vector for text, used
// by the token-cosine search mode.
func TokenVector(text string) map[string]int {
	return TermFrequencies(Tokenize(text))
}

// TokenCosine computes cosine similarity between two bag-of-words frequency
// vectors. Returns 0 if either vector is empty.
func TokenCosine(a, b map[string]int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	var dot, magA, magB float64
	for term, fa := range a {
		magA += float64(fa) * float64(fa)
		if fb, ok := b[term]; ok {
			dot += float64(fa) * float64(fb)
		}
	}
	for _, fb := range b {
		magB += float64(fb) * float64(fb)
	}

	if magA == 0 || magB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}
	return sim
}
