// Package dedup implements duplicate detection over volume embeddings: a
// single-probe linear scan for insert-time checks, and greedy single-pass
// clustering for a full-collection sweep.
package dedup

import (
	"sort"

	"github.com/libraryengine/stacks/internal/store"
)

// Match is the result of a single-probe duplicate check.
type Match struct {
	ID         string
	Similarity float64
}

// CheckDuplicate performs a linear scan over volumes whose embedding length
// matches query, returning the single best match at or above threshold. If
// no candidate reaches the threshold, ok is false.
func CheckDuplicate(volumes []*store.Volume, query []float32, threshold float64) (Match, bool) {
	best := Match{}
	found := false

	for _, v := range volumes {
		if len(v.Embedding) != len(query) {
			continue
		}
		sim, ok := store.Cosine(query, v.Embedding)
		if !ok || sim < threshold {
			continue
		}
		if !found || sim > best.Similarity {
			best = Match{ID: v.ID, Similarity: sim}
			found = true
		}
	}

	return best, found
}

// Group is a cluster of duplicates sharing a representative (the first
// volume, by timestamp, that anchored the cluster).
type Group struct {
	RepresentativeID  string
	Members           []Match // every non-representative member and its similarity to the representative
	AverageSimilarity float64
}

// FindDuplicates greedily clusters volumes sorted by timestamp ascending:
// each volume either joins the first existing group whose representative
// it matches at or above threshold, or starts a new group as its own
// representative. Only groups with at least one duplicate member are
// returned, each annotated with the mean similarity of its members to the
// representative.
func FindDuplicates(volumes []*store.Volume, threshold float64) []Group {
	sorted := make([]*store.Volume, len(volumes))
	copy(sorted, volumes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	type building struct {
		repr    *store.Volume
		members []Match
	}
	var groups []*building

	for _, v := range sorted {
		placed := false
		for _, g := range groups {
			if len(g.repr.Embedding) != len(v.Embedding) {
				continue
			}
			sim, ok := store.Cosine(g.repr.Embedding, v.Embedding)
			if ok && sim >= threshold {
				g.members = append(g.members, Match{ID: v.ID, Similarity: sim})
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, &building{repr: v})
		}
	}

	var out []Group
	for _, g := range groups {
		if len(g.members) == 0 {
			continue
		}
		var sum float64
		for _, m := range g.members {
			sum += m.Similarity
		}
		out = append(out, Group{
			RepresentativeID:  g.repr.ID,
			Members:           g.members,
			AverageSimilarity: sum / float64(len(g.members)),
		})
	}

	return out
}
