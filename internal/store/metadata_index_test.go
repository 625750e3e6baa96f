package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesFilter_Modes(t *testing.T) {
	meta := map[string]string{"topic": "docs/go", "priority": "7"}

	cases := []struct {
		name   string
		filter MetadataFilter
		want   bool
	}{
		{"eq match", MetadataFilter{Key: "topic", Mode: FilterEq, Value: "docs/go"}, true},
		{"eq miss", MetadataFilter{Key: "topic", Mode: FilterEq, Value: "docs/js"}, false},
		{"neq", MetadataFilter{Key: "topic", Mode: FilterNeq, Value: "docs/js"}, true},
		{"contains", MetadataFilter{Key: "topic", Mode: FilterContains, Value: "go"}, true},
		{"startsWith", MetadataFilter{Key: "topic", Mode: FilterStartsWith, Value: "docs/"}, true},
		{"endsWith", MetadataFilter{Key: "topic", Mode: FilterEndsWith, Value: "/go"}, true},
		{"exists", MetadataFilter{Key: "topic", Mode: FilterExists}, true},
		{"notExists", MetadataFilter{Key: "missing", Mode: FilterNotExists}, true},
		{"gt numeric", MetadataFilter{Key: "priority", Mode: FilterGt, Value: "5"}, true},
		{"lt numeric", MetadataFilter{Key: "priority", Mode: FilterLt, Value: "5"}, false},
		{"gte numeric boundary", MetadataFilter{Key: "priority", Mode: FilterGte, Value: "7"}, true},
		{"between", MetadataFilter{Key: "priority", Mode: FilterBetween, Low: "1", High: "10"}, true},
		{"in", MetadataFilter{Key: "topic", Mode: FilterIn, Values: []string{"docs/go", "docs/js"}}, true},
		{"notIn", MetadataFilter{Key: "topic", Mode: FilterNotIn, Values: []string{"docs/js"}}, true},
		{"regex", MetadataFilter{Key: "topic", Mode: FilterRegex, Value: "^docs/"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MatchesFilter(meta, tc.filter))
		})
	}
}

func TestMatchesFilter_NonNumericValueSkipsOrderingModes(t *testing.T) {
	meta := map[string]string{"priority": "not-a-number"}
	assert.False(t, MatchesFilter(meta, MetadataFilter{Key: "priority", Mode: FilterGt, Value: "5"}))
}

func TestMatchesAll_IsConjunction(t *testing.T) {
	meta := map[string]string{"topic": "docs/go", "priority": "7"}
	filters := []MetadataFilter{
		{Key: "topic", Mode: FilterEq, Value: "docs/go"},
		{Key: "priority", Mode: FilterGt, Value: "10"},
	}
	assert.False(t, MatchesAll(meta, filters))
}

func TestMetadataIndex_AddRemove(t *testing.T) {
	idx := NewMetadataIndex()
	idx.Add("v1", map[string]string{"topic": "a"})
	idx.Add("v2", map[string]string{"topic": "a"})

	idx.Remove("v1", map[string]string{"topic": "a"})

	// After removing v1, the key/value pair should still map only to v2.
	assert.Equal(t, map[string]bool{"v2": true}, idx.idsForValue("topic", "a"))
	idx.Add("v3", map[string]string{"topic": "b"})
	idx.Remove("v2", map[string]string{"topic": "a"})
	idx.Remove("v3", map[string]string{"topic": "b"})

	// Fully drained index should have no leftover keys.
	assert.Empty(t, idx.index)
	idx.Clear()
}

func TestMetadataIndex_Candidates_NarrowsOnIndexableModes(t *testing.T) {
	idx := NewMetadataIndex()
	idx.Add("v1", map[string]string{"topic": "docs/go", "lang": "go"})
	idx.Add("v2", map[string]string{"topic": "docs/js", "lang": "js"})
	idx.Add("v3", map[string]string{"topic": "docs/go"})

	ids, ok := idx.Candidates([]MetadataFilter{{Key: "topic", Mode: FilterEq, Value: "docs/go"}})
	assert.True(t, ok)
	assert.Equal(t, map[string]bool{"v1": true, "v3": true}, ids)

	ids, ok = idx.Candidates([]MetadataFilter{{Key: "topic", Mode: FilterIn, Values: []string{"docs/go", "docs/js"}}})
	assert.True(t, ok)
	assert.Equal(t, map[string]bool{"v1": true, "v2": true, "v3": true}, ids)

	ids, ok = idx.Candidates([]MetadataFilter{{Key: "lang", Mode: FilterExists}})
	assert.True(t, ok)
	assert.Equal(t, map[string]bool{"v1": true, "v2": true}, ids)

	ids, ok = idx.Candidates([]MetadataFilter{
		{Key: "topic", Mode: FilterEq, Value: "docs/go"},
		{Key: "lang", Mode: FilterExists},
	})
	assert.True(t, ok)
	assert.Equal(t, map[string]bool{"v1": true}, ids)

	_, ok = idx.Candidates([]MetadataFilter{{Key: "topic", Mode: FilterContains, Value: "docs"}})
	assert.False(t, ok, "non-indexable modes must not claim a narrowing")
}
