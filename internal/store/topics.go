package store

// TopicIndex maps hierarchical '/'-separated topic paths to the set of
// volume ids registered under them. A query for topic T matches only ids
// registered exactly at T; children are not implicitly included unless the
// caller enumerates them via glob patterns.
type TopicIndex struct {
	topics map[string]map[string]bool
}

// NewTopicIndex creates an empty topic catalog.
func NewTopicIndex() *TopicIndex {
	return &TopicIndex{topics: make(map[string]map[string]bool)}
}

// Add registers id under topic.
func (t *TopicIndex) Add(topic, id string) {
	if topic == "" {
		return
	}
	ids, ok := t.topics[topic]
	if !ok {
		ids = make(map[string]bool)
		t.topics[topic] = ids
	}
	ids[id] = true
}

// Remove unregisters id from topic. If the topic becomes empty it is
// dropped from the index.
func (t *TopicIndex) Remove(topic, id string) {
	ids, ok := t.topics[topic]
	if !ok {
		return
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(t.topics, topic)
	}
}

// RemoveID unregisters id from every topic it appears under (used on
// volume delete).
func (t *TopicIndex) RemoveID(id string) {
	for topic, ids := range t.topics {
		if ids[id] {
			delete(ids, id)
			if len(ids) == 0 {
				delete(t.topics, topic)
			}
		}
	}
}

// Exact returns the ids registered exactly at topic.
func (t *TopicIndex) Exact(topic string) []string {
	ids, ok := t.topics[topic]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	return out
}

// Topics returns every registered topic path, for getTopics().
func (t *TopicIndex) Topics() []string {
	out := make([]string, 0, len(t.topics))
	for topic := range t.topics {
		out = append(out, topic)
	}
	return out
}

// FilterByTopic returns the union of ids registered at any topic matching
// one of the glob patterns in topics.
func (t *TopicIndex) FilterByTopic(patterns []string) []string {
	if len(patterns) == 0 {
		return nil
	}

	allTopics := t.Topics()
	matched := MatchTopics(patterns, allTopics)

	seen := make(map[string]bool)
	var out []string
	for _, topic := range matched {
		for id := range t.topics[topic] {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// Clear empties the index.
func (t *TopicIndex) Clear() {
	t.topics = make(map[string]map[string]bool)
}
