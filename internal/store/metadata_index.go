package store

import (
	"regexp"
	"strconv"
	"strings"
)

// FilterMode selects how a MetadataFilter compares Value against a
// volume's metadata[Key].
type FilterMode string

const (
	FilterEq         FilterMode = "eq"
	FilterNeq        FilterMode = "neq"
	FilterContains   FilterMode = "contains"
	FilterStartsWith FilterMode = "startsWith"
	FilterEndsWith   FilterMode = "endsWith"
	FilterRegex      FilterMode = "regex"
	FilterExists     FilterMode = "exists"
	FilterNotExists  FilterMode = "notExists"
	FilterGt         FilterMode = "gt"
	FilterGte        FilterMode = "gte"
	FilterLt         FilterMode = "lt"
	FilterLte        FilterMode = "lte"
	FilterIn         FilterMode = "in"
	FilterNotIn      FilterMode = "notIn"
	FilterBetween    FilterMode = "between"
)

// MetadataFilter is a single predicate; advancedSearch ANDs a list of these
// together.
type MetadataFilter struct {
	Key    string
	Mode   FilterMode
	Value  string   // used by eq/neq/contains/startsWith/endsWith/regex/gt/gte/lt/lte
	Values []string // used by in/notIn
	Low    string   // used by between
	High   string   // used by between
}

// MetadataIndex maps (key, value) -> ids, rebuilt on load and maintained
// incrementally on mutation.
type MetadataIndex struct {
	index map[string]map[string]map[string]bool // key -> value -> ids
}

// NewMetadataIndex creates an empty index.
func NewMetadataIndex() *MetadataIndex {
	return &MetadataIndex{index: make(map[string]map[string]map[string]bool)}
}

// Add indexes id's metadata.
func (m *MetadataIndex) Add(id string, metadata map[string]string) {
	for k, v := range metadata {
		values, ok := m.index[k]
		if !ok {
			values = make(map[string]map[string]bool)
			m.index[k] = values
		}
		ids, ok := values[v]
		if !ok {
			ids = make(map[string]bool)
			values[v] = ids
		}
		ids[id] = true
	}
}

// Remove un-indexes id's metadata (called before re-adding on metadata
// replace, and on delete).
func (m *MetadataIndex) Remove(id string, metadata map[string]string) {
	for k, v := range metadata {
		values, ok := m.index[k]
		if !ok {
			continue
		}
		ids, ok := values[v]
		if !ok {
			continue
		}
		delete(ids, id)
		if len(ids) == 0 {
			delete(values, v)
		}
		if len(values) == 0 {
			delete(m.index, k)
		}
	}
}

// Clear empties the index.
func (m *MetadataIndex) Clear() {
	m.index = make(map[string]map[string]map[string]bool)
}

// idsForValue returns the ids registered with metadata[key] == value.
func (m *MetadataIndex) idsForValue(key, value string) map[string]bool {
	values, ok := m.index[key]
	if !ok {
		return nil
	}
	return values[value]
}

// idsForKey returns the union of ids registered under any value for key,
// the fast path for the `exists` mode.
func (m *MetadataIndex) idsForKey(key string) map[string]bool {
	values, ok := m.index[key]
	if !ok {
		return nil
	}
	out := make(map[string]bool)
	for _, ids := range values {
		for id := range ids {
			out[id] = true
		}
	}
	return out
}

// Candidates narrows filters down to the ids that can satisfy the
// indexable modes (eq, in, exists) by intersecting their (key,value)
// postings, avoiding a full volume scan when at least one filter is
// indexable. The returned set is a narrowing only, not the final answer:
// modes the index doesn't serve (neq, contains, startsWith, endsWith,
// regex, notExists, notIn, gt/gte/lt/lte, between) are not reflected here,
// so callers must still evaluate MatchesAll against each returned id's
// actual metadata. ok is false when no filter was indexable, meaning the
// caller must fall back to scanning every volume.
func (m *MetadataIndex) Candidates(filters []MetadataFilter) (ids map[string]bool, ok bool) {
	var result map[string]bool

	intersect := func(next map[string]bool) {
		if !ok {
			result = next
			ok = true
			return
		}
		merged := make(map[string]bool, len(result))
		for id := range result {
			if next[id] {
				merged[id] = true
			}
		}
		result = merged
	}

	for _, f := range filters {
		switch f.Mode {
		case FilterEq:
			intersect(m.idsForValue(f.Key, f.Value))
		case FilterIn:
			union := make(map[string]bool)
			for _, v := range f.Values {
				for id := range m.idsForValue(f.Key, v) {
					union[id] = true
				}
			}
			intersect(union)
		case FilterExists:
			intersect(m.idsForKey(f.Key))
		}
	}

	return result, ok
}

// MatchesFilter evaluates a single filter against a volume's metadata
// directly (used as a fallback for modes the (key,value) index can't serve
// — regex, contains, ordering comparisons — and as the authoritative
// definition the indexed fast paths must agree with).
func MatchesFilter(metadata map[string]string, f MetadataFilter) bool {
	value, has := metadata[f.Key]

	switch f.Mode {
	case FilterExists:
		return has
	case FilterNotExists:
		return !has
	case FilterEq:
		return has && value == f.Value
	case FilterNeq:
		return !has || value != f.Value
	case FilterContains:
		return has && strings.Contains(value, f.Value)
	case FilterStartsWith:
		return has && strings.HasPrefix(value, f.Value)
	case FilterEndsWith:
		return has && strings.HasSuffix(value, f.Value)
	case FilterRegex:
		if !has {
			return false
		}
		re, err := regexp.Compile(f.Value)
		if err != nil {
			return false
		}
		return re.MatchString(value)
	case FilterIn:
		if !has {
			return false
		}
		for _, v := range f.Values {
			if v == value {
				return true
			}
		}
		return false
	case FilterNotIn:
		if !has {
			return true
		}
		for _, v := range f.Values {
			if v == value {
				return false
			}
		}
		return true
	case FilterGt, FilterGte, FilterLt, FilterLte:
		if !has {
			return false
		}
		num, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return false
		}
		bound, err := strconv.ParseFloat(f.Value, 64)
		if err != nil {
			return false
		}
		switch f.Mode {
		case FilterGt:
			return num > bound
		case FilterGte:
			return num >= bound
		case FilterLt:
			return num < bound
		default: // FilterLte
			return num <= bound
		}
	case FilterBetween:
		if !has {
			return false
		}
		num, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return false
		}
		low, errLow := strconv.ParseFloat(f.Low, 64)
		high, errHigh := strconv.ParseFloat(f.High, 64)
		if errLow != nil || errHigh != nil {
			return false
		}
		return num >= low && num <= high
	default:
		return false
	}
}

// MatchesAll reports whether metadata satisfies every filter (AND).
func MatchesAll(metadata map[string]string, filters []MetadataFilter) bool {
	for _, f := range filters {
		if !MatchesFilter(metadata, f) {
			return false
		}
	}
	return true
}
