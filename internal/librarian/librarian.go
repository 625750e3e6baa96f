// Package librarian is a contract-only façade over an external text
// generator: it defines the JSON shapes four operations must produce.
// Extract and ClassifyTopic degrade to empty/neutral results on a failed
// call or malformed response; Summarize and Reorganize return the error.
// Either way a flaky or misbehaving provider can never corrupt the core
// store's state. The core
// never interprets volume content itself — that's entirely this package's
// job, behind a pluggable Generator.
package librarian

import (
	"context"
	"encoding/json"

	"github.com/libraryengine/stacks/internal/errors"
	"github.com/libraryengine/stacks/internal/store"
)

// Generator is the pluggable external text-generation client. The concrete
// HTTP/provider implementation is not part of this module.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// EntryType enumerates the kinds of memory extract() can emit.
type EntryType string

const (
	EntryFact        EntryType = "fact"
	EntryDecision    EntryType = "decision"
	EntryObservation EntryType = "observation"
)

// Memory is one extracted candidate volume.
type Memory struct {
	Text      string    `json:"text"`
	Topic     string    `json:"topic"`
	Tags      []string  `json:"tags"`
	EntryType EntryType `json:"entryType"`
}

// ExtractResult is extract()'s JSON contract.
type ExtractResult struct {
	Memories []Memory `json:"memories"`
}

// SummaryResult is summarize()'s JSON contract.
type SummaryResult struct {
	Text      string   `json:"text"`
	SourceIDs []string `json:"sourceIds"`
}

// ClassificationResult is classifyTopic()'s JSON contract.
type ClassificationResult struct {
	Topic      string  `json:"topic"`
	Confidence float64 `json:"confidence"`
}

// Move describes relocating a volume to a different topic during
// reorganize().
type Move struct {
	ID      string `json:"id"`
	ToTopic string `json:"toTopic"`
}

// Merge describes collapsing several topics into one during reorganize().
type Merge struct {
	Topics []string `json:"topics"`
	Into   string   `json:"into"`
}

// ReorganizeResult is reorganize()'s JSON contract.
type ReorganizeResult struct {
	Moves        []Move   `json:"moves"`
	NewSubtopics []string `json:"newSubtopics"`
	Merges       []Merge  `json:"merges"`
}

// Librarian wraps a Generator with strictly-shaped JSON contracts, guarded
// by a circuit breaker so a flaky provider degrades instead of cascading.
type Librarian struct {
	gen     Generator
	breaker *errors.CircuitBreaker
}

// New creates a Librarian over gen, protected by breaker. A nil breaker
// disables the protection.
func New(gen Generator, breaker *errors.CircuitBreaker) *Librarian {
	return &Librarian{gen: gen, breaker: breaker}
}

func (l *Librarian) call(ctx context.Context, prompt string) (string, error) {
	if l.breaker != nil && !l.breaker.Allow() {
		return "", errors.ErrCircuitOpen
	}

	out, err := l.gen.Generate(ctx, prompt)
	if l.breaker != nil {
		if err != nil {
			l.breaker.RecordFailure()
		} else {
			l.breaker.RecordSuccess()
		}
	}
	return out, err
}

// Extract asks the generator to pull candidate memories out of a
// conversational turn. On generator error, JSON parse failure, or a
// response missing the memories field, it returns an empty result rather
// than propagating the failure.
func (l *Librarian) Extract(ctx context.Context, turn string) ExtractResult {
	raw, err := l.call(ctx, extractPrompt(turn))
	if err != nil {
		return ExtractResult{}
	}

	var result ExtractResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return ExtractResult{}
	}
	return result
}

// Summarize asks the generator to condense a set of volumes under topic
// into one summary with source attribution.
func (l *Librarian) Summarize(ctx context.Context, volumes []*store.Volume, topic string) (SummaryResult, error) {
	raw, err := l.call(ctx, summarizePrompt(volumes, topic))
	if err != nil {
		return SummaryResult{}, err
	}

	var result SummaryResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return SummaryResult{}, err
	}
	return result, nil
}

// ClassifyTopic asks the generator to place text under one of
// existingTopics (or propose a new one). On failure it returns the
// {"uncategorized", 0} fallback rather than an error, since callers treat
// classification as advisory.
func (l *Librarian) ClassifyTopic(ctx context.Context, text string, existingTopics []string) ClassificationResult {
	raw, err := l.call(ctx, classifyPrompt(text, existingTopics))
	if err != nil {
		return ClassificationResult{Topic: "uncategorized", Confidence: 0}
	}

	var result ClassificationResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return ClassificationResult{Topic: "uncategorized", Confidence: 0}
	}
	if result.Topic == "" {
		return ClassificationResult{Topic: "uncategorized", Confidence: 0}
	}
	return result
}

// Reorganize asks the generator to propose moves, new subtopics, and
// merges for a topic's volumes.
func (l *Librarian) Reorganize(ctx context.Context, topic string, volumes []*store.Volume) (ReorganizeResult, error) {
	raw, err := l.call(ctx, reorganizePrompt(topic, volumes))
	if err != nil {
		return ReorganizeResult{}, err
	}

	var result ReorganizeResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return ReorganizeResult{}, err
	}
	return result, nil
}
