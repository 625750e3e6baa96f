package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchTopicAny_Star(t *testing.T) {
	assert.True(t, MatchTopicAny("docs/go", []string{"docs/*"}))
	assert.False(t, MatchTopicAny("docs/go/advanced", []string{"docs/*"}))
}

func TestMatchTopicAny_DoubleStarSpansSegments(t *testing.T) {
	assert.True(t, MatchTopicAny("docs/go/advanced", []string{"docs/**"}))
	assert.True(t, MatchTopicAny("docs", []string{"docs/**"}))
}

func TestMatchTopicAny_QuestionMarkSingleChar(t *testing.T) {
	assert.True(t, MatchTopicAny("docs/v1", []string{"docs/v?"}))
	assert.False(t, MatchTopicAny("docs/v10", []string{"docs/v?"}))
}

func TestMatchTopicAny_BraceAlternation(t *testing.T) {
	assert.True(t, MatchTopicAny("docs/go", []string{"docs/{go,js}"}))
	assert.True(t, MatchTopicAny("docs/js", []string{"docs/{go,js}"}))
	assert.False(t, MatchTopicAny("docs/py", []string{"docs/{go,js}"}))
}

func TestMatchTopicAny_NegationUnmatchesEarlierPositive(t *testing.T) {
	patterns := []string{"docs/*", "!docs/internal"}
	assert.True(t, MatchTopicAny("docs/go", patterns))
	assert.False(t, MatchTopicAny("docs/internal", patterns))
}

func TestMatchTopics_OrderedApplicationAcrossCandidates(t *testing.T) {
	candidates := []string{"docs/go", "docs/js", "docs/internal"}
	selected := MatchTopics([]string{"docs/*", "!docs/internal"}, candidates)
	assert.ElementsMatch(t, []string{"docs/go", "docs/js"}, selected)
}
