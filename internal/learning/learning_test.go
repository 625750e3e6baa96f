package learning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine_DisabledIsNoop(t *testing.T) {
	e := New(Config{Enabled: false})
	e.RecordQuery([]float32{1, 0, 0}, []string{"v1"}, "", 100)

	weights := e.GetAdaptedWeights("")
	assert.Equal(t, DefaultWeights(), weights)
}

func TestRecordQuery_EmptyInputsAreNoop(t *testing.T) {
	e := New(DefaultConfig())
	e.RecordQuery(nil, []string{"v1"}, "", 100)
	e.RecordQuery([]float32{1, 0, 0}, nil, "", 100)

	assert.Equal(t, DefaultWeights(), e.GetAdaptedWeights(""))
}

func TestAdaptWeights_DriftsTowardFrequencyWhenResultsAreProven_S4Scenario(t *testing.T) {
	// Given: an engine whose feedback already shows these ids retrieved
	// more than 3 times each (so the next observation counts as "proven")
	e := New(DefaultConfig())
	for i := 0; i < 4; i++ {
		e.RecordQuery([]float32{1, 0, 0}, []string{"v1"}, "", int64(i*1000))
	}
	before := e.GetAdaptedWeights("")

	// When: observing the same proven result again
	e.RecordQuery([]float32{1, 0, 0}, []string{"v1"}, "", 5000)
	after := e.GetAdaptedWeights("")

	// Then: frequency weight increases relative to baseline
	assert.GreaterOrEqual(t, after.Frequency, before.Frequency)

	// And: weights stay within the clamp and remain normalized
	assert.GreaterOrEqual(t, after.Vector, 0.05)
	assert.LessOrEqual(t, after.Vector, 0.9)
	assert.InDelta(t, 1.0, after.Vector+after.Recency+after.Frequency, 1e-9)
}

func TestRecordFeedback_TracksPositiveAndNegative(t *testing.T) {
	e := New(DefaultConfig())
	e.RecordFeedback("v1", true)
	e.RecordFeedback("v1", true)
	e.RecordFeedback("v1", false)

	score := e.RelevanceScore("v1")
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestComputeBoost_ClampedToRange(t *testing.T) {
	e := New(DefaultConfig())
	e.RecordQuery([]float32{1, 0, 0}, []string{"v1"}, "", 100)
	for i := 0; i < 20; i++ {
		e.RecordFeedback("v1", true)
	}

	boost := e.ComputeBoost("v1", []float32{1, 0, 0}, "")
	assert.GreaterOrEqual(t, boost, 0.8)
	assert.LessOrEqual(t, boost, 1.2)
}

func TestComputeBoost_NoHistoryReturnsNeutral(t *testing.T) {
	e := New(DefaultConfig())
	boost := e.ComputeBoost("unseen", []float32{1, 0, 0}, "")
	assert.InDelta(t, 1.0, boost, 1e-9)
}

func TestGetAdaptedWeights_TopicBelowActivationThresholdFallsBackToGlobal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TopicStates = true
	cfg.TopicActivationQueries = 10
	e := New(cfg)

	e.RecordQuery([]float32{1, 0, 0}, []string{"v1"}, "go", 100)

	weights := e.GetAdaptedWeights("go")
	assert.Equal(t, e.global.weights, weights)
}

func TestGetAdaptedWeights_TopicActivatesAfterThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TopicStates = true
	cfg.TopicActivationQueries = 2
	e := New(cfg)

	e.RecordQuery([]float32{1, 0, 0}, []string{"v1"}, "go", 100)
	e.RecordQuery([]float32{0, 1, 0}, []string{"v1"}, "go", 200)

	require.Contains(t, e.topics, "go")
	assert.Equal(t, e.topics["go"].weights, e.GetAdaptedWeights("go"))
}

func TestRecomputeInterest_UnitNorm(t *testing.T) {
	e := New(DefaultConfig())
	e.RecordQuery([]float32{3, 4, 0}, []string{"v1"}, "", 100)

	require.True(t, e.global.hasInterest)
	var magSq float64
	for _, v := range e.global.interest {
		magSq += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, magSq, 1e-4)
}
