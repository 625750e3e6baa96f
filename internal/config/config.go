// Package config defines the Stacks configuration schema and its defaults,
// loadable from a YAML file with sane built-in defaults for anything the
// file omits.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DuplicateBehavior selects what happens when add() finds a near-duplicate.
type DuplicateBehavior string

const (
	DuplicateSkip  DuplicateBehavior = "skip"
	DuplicateWarn  DuplicateBehavior = "warn"
	DuplicateError DuplicateBehavior = "error"
)

// RecencyConfig configures the exponential recency decay used by C9.
type RecencyConfig struct {
	HalfLifeMs int64 `yaml:"half_life_ms" json:"half_life_ms"`
}

// LearningConfig configures the adaptive learning engine (C10).
type LearningConfig struct {
	Enabled              bool    `yaml:"enabled" json:"enabled"`
	MaxQueryHistory      int     `yaml:"max_query_history" json:"max_query_history"`
	QueryDecayMs         int64   `yaml:"query_decay_ms" json:"query_decay_ms"`
	WeightAdaptationRate float64 `yaml:"weight_adaptation_rate" json:"weight_adaptation_rate"`
	InterestBoostWeight  float64 `yaml:"interest_boost_weight" json:"interest_boost_weight"`
	FeedbackPersistence  bool    `yaml:"feedback_persistence" json:"feedback_persistence"`
	// TopicStates enables the optional per-topic learning profiles.
	// Defaults to off; per-topic state is an opt-in refinement over the
	// global interest profile, not required for baseline adaptation.
	TopicStates bool `yaml:"topic_states" json:"topic_states"`
	// TopicActivationQueries is how many queries a topic needs before its
	// per-topic state becomes authoritative instead of the global one.
	TopicActivationQueries int `yaml:"topic_activation_queries" json:"topic_activation_queries"`
}

// TextCacheConfig bounds the in-memory text cache (C11).
type TextCacheConfig struct {
	MaxEntries int `yaml:"max_entries" json:"max_entries"`
	MaxBytes   int `yaml:"max_bytes" json:"max_bytes"`
}

// FieldBoostsConfig holds field-boost settings: a text multiplier, and
// additive nudges when a result passes its metadata filters or matches a
// topic filter. Stacks does not read this block; each search takes its
// boosts from search.FieldBoosts, whose text multiplier scales the
// combined score of results that have a text score.
type FieldBoostsConfig struct {
	Text            float64 `yaml:"text" json:"text"`
	Metadata        float64 `yaml:"metadata" json:"metadata"`
	MetadataEnabled bool    `yaml:"metadata_enabled" json:"metadata_enabled"`
	Topic           float64 `yaml:"topic" json:"topic"`
}

// Config is the complete Stacks configuration.
type Config struct {
	AutoSave              bool              `yaml:"auto_save" json:"auto_save"`
	FlushIntervalMs       int64             `yaml:"flush_interval_ms" json:"flush_interval_ms"`
	MaxRegexPatternLength int               `yaml:"max_regex_pattern_length" json:"max_regex_pattern_length"`
	DuplicateThreshold    float64           `yaml:"duplicate_threshold" json:"duplicate_threshold"`
	DuplicateBehavior     DuplicateBehavior `yaml:"duplicate_behavior" json:"duplicate_behavior"`
	Recency               RecencyConfig     `yaml:"recency" json:"recency"`
	Learning              LearningConfig    `yaml:"learning" json:"learning"`
	TextCache             TextCacheConfig   `yaml:"text_cache" json:"text_cache"`
	FieldBoosts           FieldBoostsConfig `yaml:"field_boosts" json:"field_boosts"`
}

// Default returns the baseline configuration a Stacks is constructed with
// when the caller supplies no overrides.
func Default() Config {
	return Config{
		AutoSave:              false,
		FlushIntervalMs:       5000,
		MaxRegexPatternLength: 256,
		DuplicateThreshold:    0,
		DuplicateBehavior:     DuplicateWarn,
		Recency: RecencyConfig{
			HalfLifeMs: int64(7 * 24 * time.Hour / time.Millisecond),
		},
		Learning: LearningConfig{
			Enabled:                true,
			MaxQueryHistory:        50,
			QueryDecayMs:           int64(7 * 24 * time.Hour / time.Millisecond),
			WeightAdaptationRate:   0.05,
			InterestBoostWeight:    0.15,
			FeedbackPersistence:    true,
			TopicStates:            false,
			TopicActivationQueries: 10,
		},
		TextCache: TextCacheConfig{
			MaxEntries: 5000,
			MaxBytes:   64 * 1024 * 1024,
		},
		FieldBoosts: FieldBoostsConfig{
			Text:            1.0,
			Metadata:        0.0,
			MetadataEnabled: false,
			Topic:           1.0,
		},
	}
}

// Load reads a YAML config file and overlays it on Default().
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
