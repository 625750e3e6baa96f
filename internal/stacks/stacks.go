// Package stacks implements the coordinating store (C12): the single
// owner of volumes, every index, the text/embedding caches, and the
// learning engine, serialized behind a write-lock chain and a separate
// save chain so concurrent callers observe a consistent, single-threaded
// ordering of mutations.
package stacks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/libraryengine/stacks/internal/config"
	"github.com/libraryengine/stacks/internal/dedup"
	liberrors "github.com/libraryengine/stacks/internal/errors"
	"github.com/libraryengine/stacks/internal/learning"
	"github.com/libraryengine/stacks/internal/recommend"
	"github.com/libraryengine/stacks/internal/search"
	"github.com/libraryengine/stacks/internal/store"
)

const (
	blobVolumePrefix = "volume:"
	blobAccessKey    = "access"
	blobLearningKey  = "learning"
)

// Entry is one item accepted by Add/AddBatch.
type Entry struct {
	Text      string
	Embedding []float32
	Metadata  map[string]string
}

// Stacks owns the whole in-memory collection and its persistence.
type Stacks struct {
	mu  sync.RWMutex
	cfg config.Config
	log *slog.Logger

	backend store.Backend

	loaded bool
	dirty  bool

	volumes map[string]*store.Volume
	access  map[string]store.AccessStats

	metadataIdx *store.MetadataIndex
	topicIdx    *store.TopicIndex
	invertedIdx *store.InvertedIndex
	magCache    *store.MagnitudeCache
	textCache   *store.TextCache

	learningEngine *learning.Engine

	writeMu sync.Mutex
	saveMu  sync.Mutex
	loadG   singleflight.Group

	flushStop chan struct{}
	flushDone chan struct{}

	now func() int64
}

// New constructs a Stacks over backend with cfg. Load must be called
// before any other operation.
func New(backend store.Backend, cfg config.Config, logger *slog.Logger) *Stacks {
	if logger == nil {
		logger = slog.Default()
	}

	textCache, err := store.NewTextCache(cfg.TextCache.MaxEntries, cfg.TextCache.MaxBytes)
	if err != nil {
		textCache, _ = store.NewTextCache(5000, 64*1024*1024)
	}

	s := &Stacks{
		cfg:         cfg,
		log:         logger,
		backend:     backend,
		volumes:     make(map[string]*store.Volume),
		access:      make(map[string]store.AccessStats),
		metadataIdx: store.NewMetadataIndex(),
		topicIdx:    store.NewTopicIndex(),
		invertedIdx: store.NewInvertedIndex(),
		magCache:    store.NewMagnitudeCache(),
		textCache:   textCache,
		now:         func() int64 { return time.Now().UnixMilli() },
	}
	s.learningEngine = learning.New(toLearningConfig(cfg.Learning))

	return s
}

func toLearningConfig(c config.LearningConfig) learning.Config {
	return learning.Config{
		Enabled:                c.Enabled,
		MaxQueryHistory:        c.MaxQueryHistory,
		QueryDecayMs:           c.QueryDecayMs,
		WeightAdaptationRate:   c.WeightAdaptationRate,
		InterestBoostWeight:    c.InterestBoostWeight,
		TopicStates:            c.TopicStates,
		TopicActivationQueries: c.TopicActivationQueries,
	}
}

// Load reads the backend's snapshot and rebuilds every index. Concurrent
// Load calls coalesce onto a single in-flight load. Load is idempotent:
// calling it again after a successful load is a cheap no-op.
func (s *Stacks) Load(ctx context.Context) error {
	s.mu.RLock()
	alreadyLoaded := s.loaded
	s.mu.RUnlock()
	if alreadyLoaded {
		return nil
	}

	_, err, _ := s.loadG.Do("load", func() (interface{}, error) {
		return nil, s.doLoad(ctx)
	})
	return err
}

func (s *Stacks) doLoad(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return nil
	}

	blobs, err := s.backend.Load()
	corrupt := 0
	if err != nil {
		if !store.ErrChecksumMismatch(err) {
			return liberrors.New(liberrors.CodeIO, "failed to load store backend", err)
		}
		// A checksum mismatch is soft corruption: the envelope still
		// decoded into a usable blob map, so keep it and recover whatever
		// individual records parse cleanly below, marking the store dirty
		// so the next save rewrites a clean snapshot.
		corrupt++
		s.log.Warn("store_snapshot_checksum_mismatch", slog.String("error", err.Error()))
	}

	volumes := make(map[string]*store.Volume)
	for key, blob := range blobs {
		if !hasPrefix(key, blobVolumePrefix) {
			continue
		}
		v, err := store.DecodeVolume(blob)
		if err != nil {
			corrupt++
			s.log.Warn("volume_record_corrupted", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		volumes[v.ID] = v
	}

	access := make(map[string]store.AccessStats)
	if blob, ok := blobs[blobAccessKey]; ok {
		decoded, err := store.DecodeAccessStats(blob)
		if err != nil {
			corrupt++
			s.log.Warn("access_stats_corrupted", slog.String("error", err.Error()))
		} else {
			access = decoded
		}
	}

	s.volumes = volumes
	s.access = access
	s.rebuildIndexes()

	s.learningEngine = learning.New(toLearningConfig(s.cfg.Learning))
	if blob, ok := blobs[blobLearningKey]; ok {
		skipped, err := s.learningEngine.Restore(blob)
		if err != nil {
			corrupt++
			s.log.Warn("learning_state_corrupted", slog.String("error", err.Error()))
			s.learningEngine = learning.New(toLearningConfig(s.cfg.Learning))
		} else if skipped > 0 {
			corrupt += skipped
		}
	}

	s.loaded = true
	s.dirty = corrupt > 0

	if s.cfg.AutoSave {
		s.startFlushLoop()
	}

	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// rebuildIndexes repopulates every derived index from s.volumes. Caller
// must hold the write lock.
func (s *Stacks) rebuildIndexes() {
	s.metadataIdx.Clear()
	s.topicIdx.Clear()
	s.invertedIdx.Clear()
	s.magCache.Clear()
	s.textCache.Clear()

	for id, v := range s.volumes {
		s.indexVolume(id, v)
	}
}

// indexVolume adds one volume to every derived index. Caller must hold the
// write lock.
func (s *Stacks) indexVolume(id string, v *store.Volume) {
	s.metadataIdx.Add(id, v.Metadata)
	if topic, ok := v.Metadata["topic"]; ok {
		s.topicIdx.Add(topic, id)
	}
	s.invertedIdx.Add(id, v.Text)
	s.textCache.Put(id, v.Text)
}

// deindexVolume removes one volume from every derived index. Caller must
// hold the write lock.
func (s *Stacks) deindexVolume(id string, v *store.Volume) {
	s.metadataIdx.Remove(id, v.Metadata)
	if topic, ok := v.Metadata["topic"]; ok {
		s.topicIdx.Remove(topic, id)
	}
	s.invertedIdx.Remove(id, v.Text)
	s.magCache.Invalidate(id)
	s.textCache.Remove(id)
	delete(s.access, id)
}

// ensureLoaded is the guard every public operation calls first.
func (s *Stacks) ensureLoaded() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return liberrors.NotLoaded()
	}
	return nil
}

// runWriteChain serializes fn against every other write-chain call so
// mutations apply in arrival order; a failed mutation does not poison the
// chain for subsequent callers.
func (s *Stacks) runWriteChain(fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	g := new(errgroup.Group)
	g.Go(fn)
	return g.Wait()
}

// Add validates and inserts one volume, applying duplicate handling if
// cfg.DuplicateThreshold > 0. Returns the new (or existing, on skip) id.
func (s *Stacks) Add(ctx context.Context, e Entry) (string, error) {
	if err := s.ensureLoaded(); err != nil {
		return "", err
	}
	if e.Text == "" {
		return "", liberrors.EmptyText()
	}
	if len(e.Embedding) == 0 {
		return "", liberrors.EmptyEmbedding()
	}

	var newID string
	err := s.runWriteChain(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		id, err := s.addLocked(e)
		if err != nil {
			return err
		}
		newID = id
		return nil
	})
	return newID, err
}

// addLocked performs the duplicate-check-then-insert sequence. Caller must
// hold the full write lock (s.mu).
func (s *Stacks) addLocked(e Entry) (string, error) {
	if s.cfg.DuplicateThreshold > 0 {
		match, found := dedup.CheckDuplicate(s.allVolumesLocked(), e.Embedding, s.cfg.DuplicateThreshold)
		if found {
			switch s.cfg.DuplicateBehavior {
			case config.DuplicateSkip:
				return match.ID, nil
			case config.DuplicateError:
				return "", liberrors.DuplicateOf(match.ID)
			default: // warn
				s.log.Warn("duplicate_volume_inserted", slog.String("existing_id", match.ID), slog.Float64("similarity", match.Similarity))
			}
		}
	}

	id := uuid.NewString()
	v := &store.Volume{
		ID:        id,
		Text:      e.Text,
		Embedding: e.Embedding,
		Metadata:  e.Metadata,
		Timestamp: s.now(),
	}

	s.volumes[id] = v
	s.indexVolume(id, v)
	s.dirty = true

	return id, nil
}

func (s *Stacks) allVolumesLocked() []*store.Volume {
	out := make([]*store.Volume, 0, len(s.volumes))
	for _, v := range s.volumes {
		out = append(out, v)
	}
	return out
}

// AddBatch validates every entry before applying any of them, then applies
// per-item duplicate handling as one write-chain mutation.
func (s *Stacks) AddBatch(ctx context.Context, entries []Entry) ([]string, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Text == "" {
			return nil, liberrors.EmptyText()
		}
		if len(e.Embedding) == 0 {
			return nil, liberrors.EmptyEmbedding()
		}
	}

	var ids []string
	err := s.runWriteChain(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		ids = make([]string, 0, len(entries))
		for _, e := range entries {
			id, err := s.addLocked(e)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	return ids, err
}

// Delete removes a volume from every index, returning whether it was
// present.
func (s *Stacks) Delete(ctx context.Context, id string) (bool, error) {
	if err := s.ensureLoaded(); err != nil {
		return false, err
	}

	var removed bool
	err := s.runWriteChain(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		v, ok := s.volumes[id]
		if !ok {
			return nil
		}
		s.deindexVolume(id, v)
		s.topicIdx.RemoveID(id)
		delete(s.volumes, id)
		s.dirty = true
		removed = true
		return nil
	})
	return removed, err
}

// DeleteBatch removes every id present, returning the count removed.
func (s *Stacks) DeleteBatch(ctx context.Context, ids []string) (int, error) {
	if err := s.ensureLoaded(); err != nil {
		return 0, err
	}

	var count int
	err := s.runWriteChain(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		for _, id := range ids {
			v, ok := s.volumes[id]
			if !ok {
				continue
			}
			s.deindexVolume(id, v)
			s.topicIdx.RemoveID(id)
			delete(s.volumes, id)
			count++
		}
		if count > 0 {
			s.dirty = true
		}
		return nil
	})
	return count, err
}

// Clear resets volumes, every index, access stats, and the learning engine.
func (s *Stacks) Clear(ctx context.Context) error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	return s.runWriteChain(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.volumes = make(map[string]*store.Volume)
		s.access = make(map[string]store.AccessStats)
		s.metadataIdx.Clear()
		s.topicIdx.Clear()
		s.invertedIdx.Clear()
		s.magCache.Clear()
		s.textCache.Clear()
		s.learningEngine = learning.New(toLearningConfig(s.cfg.Learning))
		s.dirty = true
		return nil
	})
}

// Save persists a fresh snapshot through the save chain, retrying once on
// failure before surfacing the error. If a prior save failed, the chain
// still attempts the new save.
func (s *Stacks) Save(ctx context.Context) error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	retryCfg := liberrors.DefaultRetryConfig()
	err := liberrors.Retry(ctx, retryCfg, func() error {
		return s.saveOnce()
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()
	return nil
}

func (s *Stacks) saveOnce() error {
	s.mu.RLock()
	blobs := make(map[string][]byte, len(s.volumes)+2)

	for id, v := range s.volumes {
		encoded, err := store.EncodeVolume(v)
		if err != nil {
			s.mu.RUnlock()
			return liberrors.New(liberrors.CodeIO, "failed to encode volume", err)
		}
		blobs[blobVolumePrefix+id] = encoded
	}

	accessBlob, err := store.EncodeAccessStats(s.access)
	if err != nil {
		s.mu.RUnlock()
		return liberrors.New(liberrors.CodeIO, "failed to encode access stats", err)
	}
	blobs[blobAccessKey] = accessBlob

	learningBlob, err := s.learningEngine.Serialize()
	s.mu.RUnlock()
	if err != nil {
		return liberrors.New(liberrors.CodeIO, "failed to encode learning state", err)
	}
	blobs[blobLearningKey] = learningBlob

	if err := s.backend.Save(blobs); err != nil {
		return liberrors.New(liberrors.CodeIO, "failed to save store backend", err)
	}
	return nil
}

// Dispose drains the write lock, awaits any in-flight save, flushes a
// final save if dirty, closes the backend, and cancels the flush timer.
func (s *Stacks) Dispose(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.stopFlushLoop()

	s.saveMu.Lock()
	s.mu.RLock()
	dirty := s.dirty
	loaded := s.loaded
	s.mu.RUnlock()
	s.saveMu.Unlock()

	if loaded && dirty {
		if err := s.Save(ctx); err != nil {
			s.log.Warn("dispose_save_failed", slog.String("error", err.Error()))
		}
	}

	return s.backend.Close()
}

func (s *Stacks) startFlushLoop() {
	if s.flushStop != nil {
		return
	}
	interval := s.cfg.FlushIntervalMs
	if interval <= 0 {
		interval = 5000
	}

	s.flushStop = make(chan struct{})
	s.flushDone = make(chan struct{})

	go func() {
		defer close(s.flushDone)
		ticker := time.NewTicker(time.Duration(interval) * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-s.flushStop:
				return
			case <-ticker.C:
				s.mu.RLock()
				dirty := s.dirty
				loaded := s.loaded
				s.mu.RUnlock()
				if dirty && loaded {
					go func() {
						if err := s.Save(context.Background()); err != nil {
							s.log.Warn("background_flush_failed", slog.String("error", err.Error()))
						}
					}()
				}
			}
		}
	}()
}

func (s *Stacks) stopFlushLoop() {
	if s.flushStop == nil {
		return
	}
	close(s.flushStop)
	<-s.flushDone
	s.flushStop = nil
	s.flushDone = nil
}

// GetAll returns every volume, in no particular order.
func (s *Stacks) GetAll() ([]*store.Volume, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allVolumesLocked(), nil
}

// GetByID returns the volume with id, if present. A found lookup counts as
// a retrieval and bumps its access stats, same as search and advancedSearch.
func (s *Stacks) GetByID(id string) (*store.Volume, bool, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.volumes[id]
	if !ok {
		return nil, false, nil
	}

	stats := s.access[id]
	stats.AccessCount++
	stats.LastAccessed = s.now()
	s.access[id] = stats
	s.dirty = true

	return v, true, nil
}

// GetTopics returns every registered topic path.
func (s *Stacks) GetTopics() ([]string, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topicIdx.Topics(), nil
}

// FilterByTopic returns every volume registered under a topic matching one
// of patterns.
func (s *Stacks) FilterByTopic(patterns []string) ([]*store.Volume, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.topicIdx.FilterByTopic(patterns)
	out := make([]*store.Volume, 0, len(ids))
	for _, id := range ids {
		if v, ok := s.volumes[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// FilterByMetadata returns every volume matching all filters (AND).
func (s *Stacks) FilterByMetadata(filters []store.MetadataFilter) ([]*store.Volume, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*store.Volume
	if allowed, narrowed := s.metadataIdx.Candidates(filters); narrowed {
		for id := range allowed {
			v, ok := s.volumes[id]
			if ok && store.MatchesAll(v.Metadata, filters) {
				out = append(out, v)
			}
		}
		return out, nil
	}

	for _, v := range s.volumes {
		if store.MatchesAll(v.Metadata, filters) {
			out = append(out, v)
		}
	}
	return out, nil
}

// FilterByDateRange returns every volume with timestamp within the
// inclusive [from, to] bounds.
func (s *Stacks) FilterByDateRange(from, to int64, hasFrom, hasTo bool) ([]*store.Volume, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*store.Volume
	for _, v := range s.volumes {
		if hasFrom && v.Timestamp < from {
			continue
		}
		if hasTo && v.Timestamp > to {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// FindDuplicates clusters every volume by similarity, returning groups with
// at least one duplicate.
func (s *Stacks) FindDuplicates(threshold float64) ([]dedup.Group, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return dedup.FindDuplicates(s.allVolumesLocked(), threshold), nil
}

// CheckDuplicate reports the single best match at or above threshold.
func (s *Stacks) CheckDuplicate(embedding []float32, threshold float64) (dedup.Match, bool, error) {
	if err := s.ensureLoaded(); err != nil {
		return dedup.Match{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	match, found := dedup.CheckDuplicate(s.allVolumesLocked(), embedding, threshold)
	return match, found, nil
}

// AdvancedSearch runs the full candidate->filter->score->rank composition
// and, when appropriate, records the query with the learning engine.
func (s *Stacks) AdvancedSearch(opts search.AdvancedSearchOptions, topic string) ([]search.RankedResult, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if opts.Text != nil && opts.Text.MaxRegexPatternLength <= 0 {
		// Copy rather than mutate the caller's TextQuery in place: opts is a
		// value, but Text is a pointer the caller may reuse across calls.
		textCopy := *opts.Text
		textCopy.MaxRegexPatternLength = s.cfg.MaxRegexPatternLength
		opts.Text = &textCopy
	}

	results := search.AdvancedSearch(s.allVolumesLocked(), opts, s.magCache, s.invertedIdx, s.now(), regexLoggerFor(s.log), s.metadataIdx)

	for _, r := range results {
		stats := s.access[r.Volume.ID]
		stats.AccessCount++
		stats.LastAccessed = s.now()
		s.access[r.Volume.ID] = stats
	}

	if s.cfg.Learning.Enabled && len(results) > 0 && len(opts.QueryEmbedding) > 0 {
		ids := make([]string, len(results))
		for i, r := range results {
			ids[i] = r.Volume.ID
		}
		s.learningEngine.RecordQuery(opts.QueryEmbedding, ids, topic, s.now())
	}

	if len(results) > 0 {
		s.dirty = true
	}

	return results, nil
}

// Recommend scores the candidate set without incrementing access stats.
func (s *Stacks) Recommend(opts recommend.Options) ([]recommend.Result, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	learningEngine := s.learningEngine
	topic := opts.Topic
	opts.Boost = func(id string, embedding []float32) float64 {
		return learningEngine.ComputeBoost(id, embedding, topic)
	}

	return recommend.Recommend(s.allVolumesLocked(), s.access, s.now(), opts), nil
}

// RecordFeedback forwards explicit relevance feedback to the learning
// engine.
func (s *Stacks) RecordFeedback(id string, relevant bool) error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.learningEngine.RecordFeedback(id, relevant)
	s.dirty = true
	return nil
}

// RecencyHalfLifeMs returns the configured recency half-life, defaulting
// to 7 days when unset.
func (s *Stacks) RecencyHalfLifeMs() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg.Recency.HalfLifeMs <= 0 {
		return 7 * 24 * 60 * 60 * 1000
	}
	return s.cfg.Recency.HalfLifeMs
}

// LearningWeights returns the learning engine's adapted weights for topic,
// or the global weights if per-topic state isn't active for it.
func (s *Stacks) LearningWeights(topic string) learning.Weights {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.learningEngine.GetAdaptedWeights(topic)
}

type slogRegexLogger struct {
	log *slog.Logger
}

func (l slogRegexLogger) RegexRejected(pattern, reason string) {
	l.log.Warn("regex_query_rejected", slog.String("pattern", pattern), slog.String("reason", reason))
}

func regexLoggerFor(log *slog.Logger) search.RegexLogger {
	return slogRegexLogger{log: log}
}
