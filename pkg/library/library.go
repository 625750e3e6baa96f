package library

import (
	"context"
	"log/slog"
	"time"

	"github.com/libraryengine/stacks/internal/circulation"
	"github.com/libraryengine/stacks/internal/config"
	"github.com/libraryengine/stacks/internal/dedup"
	liberrors "github.com/libraryengine/stacks/internal/errors"
	"github.com/libraryengine/stacks/internal/librarian"
	"github.com/libraryengine/stacks/internal/logging"
	"github.com/libraryengine/stacks/internal/recommend"
	"github.com/libraryengine/stacks/internal/search"
	"github.com/libraryengine/stacks/internal/stacks"
	"github.com/libraryengine/stacks/internal/store"
)

// Re-exported types so callers never need to import internal packages.
type (
	// Volume is a single stored record: text, embedding, metadata, timestamp.
	Volume = store.Volume
	// AccessStats tracks per-volume retrieval activity.
	AccessStats = store.AccessStats
	// MetadataFilter is one predicate evaluated by FilterByMetadata/Search.
	MetadataFilter = store.MetadataFilter
	// FilterMode selects a MetadataFilter's comparison.
	FilterMode = store.FilterMode
	// TextMode selects how TextSearch/Search compares a query to volume text.
	TextMode = search.TextMode
	// RankBy selects how Search combines component scores.
	RankBy = search.RankBy
	// RankWeights are the weighted-combine coefficients.
	RankWeights = search.RankWeights
	// FieldBoosts scales or nudges a result's score after combination.
	FieldBoosts = search.FieldBoosts
	// RankedResult is one scored volume from Search.
	RankedResult = search.RankedResult
	// DuplicateGroup is a cluster of near-duplicate volumes.
	DuplicateGroup = dedup.Group
	// DuplicateMatch is a single-probe duplicate result.
	DuplicateMatch = dedup.Match
	// RecommendResult is one scored candidate from Recommend.
	RecommendResult = recommend.Result
	// Config is the full Stacks configuration (durations, thresholds, weights).
	Config = config.Config
	// Generator is the pluggable external text-generation client the
	// Librarian facade wraps; the concrete HTTP/provider client lives
	// outside this module.
	Generator = librarian.Generator
)

const (
	FilterEq         = store.FilterEq
	FilterNeq        = store.FilterNeq
	FilterContains   = store.FilterContains
	FilterStartsWith = store.FilterStartsWith
	FilterEndsWith   = store.FilterEndsWith
	FilterRegex      = store.FilterRegex
	FilterExists     = store.FilterExists
	FilterNotExists  = store.FilterNotExists
	FilterGt         = store.FilterGt
	FilterGte        = store.FilterGte
	FilterLt         = store.FilterLt
	FilterLte        = store.FilterLte
	FilterIn         = store.FilterIn
	FilterNotIn      = store.FilterNotIn
	FilterBetween    = store.FilterBetween

	ModeExact     = search.ModeExact
	ModeSubstring = search.ModeSubstring
	ModeRegex     = search.ModeRegex
	ModeFuzzy     = search.ModeFuzzy
	ModeToken     = search.ModeToken
	ModeBM25      = search.ModeBM25

	RankVector   = search.RankVector
	RankText     = search.RankText
	RankAverage  = search.RankAverage
	RankMultiply = search.RankMultiply
	RankWeighted = search.RankWeighted
)

// DefaultConfig returns the library's baseline configuration.
func DefaultConfig() Config { return config.Default() }

// Options parameterizes Open.
type Options struct {
	// Path is the backend file path. Empty means an in-memory backend that
	// never persists across process restarts.
	Path string
	// Config overrides the default configuration. Zero value uses
	// DefaultConfig().
	Config Config
	// Logger receives structured diagnostics; defaults to a discard logger.
	Logger *slog.Logger
	// Generator, if set, wires a Librarian facade over it for Extract/
	// Summarize/ClassifyTopic/Reorganize.
	Generator Generator
	// CirculationWorkers, if > 0, starts that many circulation-desk workers
	// processing librarian work in the background.
	CirculationWorkers int
}

// Library is the embeddable facade over one Stacks instance, its optional
// Librarian, and its optional circulation desk.
type Library struct {
	stacks    *stacks.Stacks
	librarian *librarian.Librarian
	desk      *circulation.Desk
	logger    *slog.Logger
}

// Open constructs a Library, loads its backend, and starts any configured
// background workers. The caller must call Close when done.
func Open(ctx context.Context, opts Options) (*Library, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	cfg := opts.Config
	if cfg == (config.Config{}) {
		cfg = config.Default()
	}

	var backend store.Backend
	if opts.Path == "" {
		backend = store.NewMemBackend()
	} else {
		backend = store.NewFileBackend(opts.Path)
	}

	s := stacks.New(backend, cfg, logger)
	if err := s.Load(ctx); err != nil {
		return nil, err
	}

	lib := &Library{stacks: s, logger: logger}

	if opts.Generator != nil {
		breaker := liberrors.NewCircuitBreaker("librarian", 5, 30*time.Second)
		lib.librarian = librarian.New(opts.Generator, breaker)
	}

	if opts.CirculationWorkers > 0 {
		lib.desk = circulation.New(logger)
		lib.desk.Run(ctx, opts.CirculationWorkers)
	}

	return lib, nil
}

// Close drains and disposes the circulation desk (if any), then disposes
// the underlying Stacks: flushing a final save if dirty and closing the
// backend.
func (l *Library) Close(ctx context.Context) error {
	if l.desk != nil {
		l.desk.Drain()
		l.desk.Dispose()
	}
	return l.stacks.Dispose(ctx)
}

// Save forces a persistence snapshot outside the background flush loop.
func (l *Library) Save(ctx context.Context) error {
	return l.stacks.Save(ctx)
}

// Add validates and inserts one volume, applying the configured duplicate
// behavior if DuplicateThreshold > 0. Returns the new (or, on skip, the
// existing) id.
func (l *Library) Add(ctx context.Context, text string, embedding []float32, metadata map[string]string) (string, error) {
	return l.stacks.Add(ctx, stacks.Entry{Text: text, Embedding: embedding, Metadata: metadata})
}

// Entry is one item accepted by AddBatch.
type Entry = stacks.Entry

// AddBatch validates every entry before inserting any of them.
func (l *Library) AddBatch(ctx context.Context, entries []Entry) ([]string, error) {
	return l.stacks.AddBatch(ctx, entries)
}

// Delete removes a volume, reporting whether it was present.
func (l *Library) Delete(ctx context.Context, id string) (bool, error) {
	return l.stacks.Delete(ctx, id)
}

// DeleteBatch removes every present id, returning the count removed.
func (l *Library) DeleteBatch(ctx context.Context, ids []string) (int, error) {
	return l.stacks.DeleteBatch(ctx, ids)
}

// Clear resets the entire collection: volumes, every index, access stats,
// and the learning engine.
func (l *Library) Clear(ctx context.Context) error {
	return l.stacks.Clear(ctx)
}

// GetAll returns every stored volume, in no particular order.
func (l *Library) GetAll() ([]*Volume, error) {
	return l.stacks.GetAll()
}

// GetByID returns the volume with id, if present.
func (l *Library) GetByID(id string) (*Volume, bool, error) {
	return l.stacks.GetByID(id)
}

// GetTopics returns every registered topic path.
func (l *Library) GetTopics() ([]string, error) {
	return l.stacks.GetTopics()
}

// FilterByTopic returns every volume registered under a topic matching one
// of the given glob patterns.
func (l *Library) FilterByTopic(patterns []string) ([]*Volume, error) {
	return l.stacks.FilterByTopic(patterns)
}

// FilterByMetadata returns every volume matching all filters (AND).
func (l *Library) FilterByMetadata(filters []MetadataFilter) ([]*Volume, error) {
	return l.stacks.FilterByMetadata(filters)
}

// FilterByDateRange returns every volume with a timestamp inside the
// inclusive [from, to] unix-millisecond bounds.
func (l *Library) FilterByDateRange(from, to int64) ([]*Volume, error) {
	return l.stacks.FilterByDateRange(from, to, true, true)
}

// TextQuery bundles the text-search portion of SearchOptions.
type TextQuery = search.TextQuery

// DateRange filters volumes by inclusive unix-millisecond timestamp bounds.
type DateRange = search.DateRange

// SearchOptions is the full parameter set for Search.
type SearchOptions struct {
	QueryEmbedding      []float32
	SimilarityThreshold float64
	HasSimilarity       bool

	Text    *TextQuery
	Filters []MetadataFilter
	Dates   *DateRange

	TopicFilter []string
	// Topic, if set, is mirrored into the learning engine's per-topic
	// profile alongside the global one (when TopicStates is enabled).
	Topic string

	RankBy      RankBy
	RankWeights RankWeights
	FieldBoosts FieldBoosts

	MaxResults int
}

// Search runs the full candidate->filter->score->rank composition:
// metadata filter, date-range filter, vector scoring, text scoring, topic
// boost, combine per RankBy, field boosts, sort, and truncate. Returned
// volumes have their access stats incremented; a successful query with a
// non-empty embedding is observed by the learning engine.
func (l *Library) Search(opts SearchOptions) ([]RankedResult, error) {
	return l.stacks.AdvancedSearch(search.AdvancedSearchOptions{
		QueryEmbedding:      opts.QueryEmbedding,
		SimilarityThreshold: opts.SimilarityThreshold,
		HasSimilarity:       opts.HasSimilarity,
		Text:                opts.Text,
		Filters:             opts.Filters,
		Dates:               opts.Dates,
		TopicFilter:         opts.TopicFilter,
		RankBy:              opts.RankBy,
		RankWeights:         opts.RankWeights,
		FieldBoosts:         opts.FieldBoosts,
		RecencyHalfLifeMs:   l.stacks.RecencyHalfLifeMs(),
		MaxResults:          opts.MaxResults,
	}, opts.Topic)
}

// FindDuplicates clusters every volume by similarity, returning groups with
// at least one duplicate.
func (l *Library) FindDuplicates(threshold float64) ([]DuplicateGroup, error) {
	return l.stacks.FindDuplicates(threshold)
}

// CheckDuplicate reports the single best match at or above threshold.
func (l *Library) CheckDuplicate(embedding []float32, threshold float64) (DuplicateMatch, bool, error) {
	return l.stacks.CheckDuplicate(embedding, threshold)
}

// RecommendOptions parameterizes Recommend.
type RecommendOptions = recommend.Options

// Recommend scores the candidate set by a weighted blend of vector
// similarity, recency, and access frequency, nudged by the learning
// engine's boost. It never increments access stats.
func (l *Library) Recommend(opts RecommendOptions) ([]RecommendResult, error) {
	return l.stacks.Recommend(opts)
}

// RecordFeedback forwards explicit relevance feedback (thumbs up/down on a
// volume) to the learning engine.
func (l *Library) RecordFeedback(id string, relevant bool) error {
	return l.stacks.RecordFeedback(id, relevant)
}

// Librarian returns the configured Librarian facade, or nil if Options
// never supplied a Generator.
func (l *Library) Librarian() *librarian.Librarian {
	return l.librarian
}

// EnqueueExtraction schedules background extraction of durable memories
// from a conversational turn, invoking onResult (if non-nil) with the
// librarian's result once processed. Requires Options.CirculationWorkers
// > 0 and a configured Generator; returns false otherwise.
func (l *Library) EnqueueExtraction(ctx context.Context, topic, turn string, onResult func(librarian.ExtractResult)) bool {
	if l.desk == nil || l.librarian == nil {
		return false
	}
	l.desk.Enqueue(circulation.Item{
		Kind:  circulation.KindExtraction,
		Topic: topic,
		Run: func(ctx context.Context) error {
			result := l.librarian.Extract(ctx, turn)
			if onResult != nil {
				onResult(result)
			}
			return nil
		},
	})
	return true
}

// LearningWeights returns the learning engine's adapted {vector, recency,
// frequency} weights for topic (or the global weights, if topic states are
// disabled or the topic hasn't reached its activation threshold).
func (l *Library) LearningWeights(topic string) (vector, recency, frequency float64) {
	w := l.stacks.LearningWeights(topic)
	return w.Vector, w.Recency, w.Frequency
}

