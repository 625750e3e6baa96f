package learning

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/libraryengine/stacks/internal/store"
)

// feedbackRow, historyRow, and profileRow are the gob-serializable forms of
// the engine's in-memory state. Query-history embeddings are stored
// quantized (store.EncodeEmbedding) to match the rest of the snapshot's
// on-disk footprint.
type feedbackRow struct {
	ID                 string
	QueryCount         int
	TotalRetrievals    uint64
	LastQueryTimestamp int64
	Positive           uint64
	Negative           uint64
	Samples            [][]byte
}

type historyRow struct {
	Embedding   []byte
	Timestamp   int64
	ResultCount int
}

type profileRow struct {
	History      []historyRow
	Weights      Weights
	Interest     []byte
	HasInterest  bool
	TotalQueries int
}

type snapshot struct {
	Global   profileRow
	Feedback []feedbackRow
	Topics   map[string]profileRow
}

// Serialize encodes the engine's full state into a single blob.
func (e *Engine) Serialize() ([]byte, error) {
	snap := snapshot{
		Global: toProfileRow(e.global),
		Topics: make(map[string]profileRow, len(e.topics)),
	}

	for id, fb := range e.feedback {
		row := feedbackRow{
			ID:                 id,
			QueryCount:         fb.queryCount,
			TotalRetrievals:    fb.totalRetrievals,
			LastQueryTimestamp: fb.lastQueryTimestamp,
			Positive:           fb.positive,
			Negative:           fb.negative,
		}
		for _, s := range fb.samples {
			row.Samples = append(row.Samples, store.EncodeEmbedding(s.embedding))
		}
		snap.Feedback = append(snap.Feedback, row)
	}

	for topic, p := range e.topics {
		snap.Topics[topic] = toProfileRow(p)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, fmt.Errorf("encode learning snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Restore rebuilds engine state from a blob produced by Serialize.
// Individual corrupt rows (bad embeddings) are skipped and counted rather
// than aborting the whole restore; the returned skipped count lets the
// caller mark the store dirty so a later save rewrites a clean snapshot.
func (e *Engine) Restore(data []byte) (skipped int, err error) {
	var snap snapshot
	if decErr := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); decErr != nil {
		return 0, fmt.Errorf("decode learning snapshot: %w", decErr)
	}

	global, gSkipped := fromProfileRow(snap.Global)
	e.global = global
	skipped += gSkipped

	e.feedback = make(map[string]feedbackEntry, len(snap.Feedback))
	for _, row := range snap.Feedback {
		fb := feedbackEntry{
			queryCount:         row.QueryCount,
			totalRetrievals:    row.TotalRetrievals,
			lastQueryTimestamp: row.LastQueryTimestamp,
			positive:           row.Positive,
			negative:           row.Negative,
		}
		for _, encoded := range row.Samples {
			embedding, decErr := store.DecodeEmbedding(encoded)
			if decErr != nil {
				skipped++
				continue
			}
			fb.samples = append(fb.samples, querySample{embedding: embedding})
		}
		e.feedback[row.ID] = fb
	}

	e.topics = make(map[string]*profile, len(snap.Topics))
	for topic, row := range snap.Topics {
		p, tSkipped := fromProfileRow(row)
		e.topics[topic] = p
		skipped += tSkipped
	}

	return skipped, nil
}

func toProfileRow(p *profile) profileRow {
	entries := p.historyEntries()
	row := profileRow{
		Weights:      p.weights,
		HasInterest:  p.hasInterest,
		TotalQueries: p.totalQueries,
	}
	if p.hasInterest {
		row.Interest = store.EncodeEmbedding(p.interest)
	}
	for _, entry := range entries {
		row.History = append(row.History, historyRow{
			Embedding:   store.EncodeEmbedding(entry.embedding),
			Timestamp:   entry.timestamp,
			ResultCount: entry.resultCount,
		})
	}
	return row
}

func fromProfileRow(row profileRow) (*profile, int) {
	p := newProfile()
	p.weights = row.Weights
	p.totalQueries = row.TotalQueries

	skipped := 0

	if row.HasInterest {
		interest, err := store.DecodeEmbedding(row.Interest)
		if err != nil {
			skipped++
		} else {
			p.interest = interest
			p.hasInterest = true
		}
	}

	for _, hr := range row.History {
		embedding, err := store.DecodeEmbedding(hr.Embedding)
		if err != nil {
			skipped++
			continue
		}
		p.queryHistory = append(p.queryHistory, historyEntry{
			embedding:   embedding,
			timestamp:   hr.Timestamp,
			resultCount: hr.ResultCount,
		})
	}
	p.historyFilled = len(p.queryHistory)

	return p, skipped
}
