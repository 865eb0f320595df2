package catalog

import (
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Match is a search hit. Lower Distance is closer.
type Match struct {
	Entry    Entry  `json:"entry"`
	Matched  string `json:"matched"`
	Distance int    `json:"distance"`
}

// Index is an in-memory, concurrency-safe set of care guides searchable
// by name, scientific name and alias.
type Index struct {
	mu      sync.RWMutex
	entries []Entry
	// targets[i] is a searchable name of entries[owner[i]].
	targets []string
	owner   []int
}

func NewIndex() *Index {
	return &Index{}
}

// Replace swaps in a new set of entries.
func (ix *Index) Replace(entries []Entry) {
	var targets []string
	var owner []int
	for i, e := range entries {
		for _, n := range e.names() {
			targets = append(targets, n)
			owner = append(owner, i)
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = slices.Clone(entries)
	ix.targets = targets
	ix.owner = owner
}

// Entries returns every entry in sync order.
func (ix *Index) Entries() []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.entries == nil {
		return []Entry{}
	}
	return slices.Clone(ix.entries)
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Search ranks entries whose names contain the letters of query in order,
// closest first, one hit per entry. An empty query lists the first limit
// entries. limit <= 0 means no limit.
func (ix *Index) Search(query string, limit int) []Match {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	query = strings.TrimSpace(query)
	matches := []Match{}
	if query == "" {
		for _, e := range ix.entries {
			if limit > 0 && len(matches) == limit {
				break
			}
			matches = append(matches, Match{Entry: e, Matched: e.Name})
		}
		return matches
	}

	ranks := fuzzy.RankFindNormalizedFold(query, ix.targets)
	sort.Stable(ranks)
	seen := make(map[int]bool, len(ranks))
	for _, r := range ranks {
		i := ix.owner[r.OriginalIndex]
		if seen[i] {
			continue
		}
		seen[i] = true
		matches = append(matches, Match{Entry: ix.entries[i], Matched: r.Target, Distance: r.Distance})
		if limit > 0 && len(matches) == limit {
			break
		}
	}
	return matches
}

// Lookup returns the guide best describing name: an exact name match
// first, then a guide whose name is contained in name or contains it,
// then a close fuzzy match.
func (ix *Index) Lookup(name string) (Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return Entry{}, false
	}
	lower := strings.ToLower(name)

	best, bestScore := -1, 0
	consider := func(i, score int) {
		if best < 0 || score < bestScore {
			best, bestScore = i, score
		}
	}

	for t, target := range ix.targets {
		if strings.EqualFold(target, name) {
			return ix.entries[ix.owner[t]], true
		}
	}
	for t, target := range ix.targets {
		lt := strings.ToLower(target)
		if strings.Contains(lower, lt) || strings.Contains(lt, lower) {
			consider(ix.owner[t], abs(len(lt)-len(lower)))
		}
	}
	if best >= 0 {
		return ix.entries[best], true
	}

	for t, target := range ix.targets {
		d := fuzzy.RankMatchNormalizedFold(name, target)
		if d >= 0 && d <= max(3, len(target)/3) {
			consider(ix.owner[t], d)
		}
	}
	if best >= 0 {
		return ix.entries[best], true
	}
	return Entry{}, false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
