// Package scoring implements the Scoring half of C7: a fuzzy
// comparator over candidate paths plus a bounded top-K selection
// algorithm (spec.md §4.7).
package scoring

import (
	"container/heap"
	"sort"
	"strings"
	"sync"

	"github.com/hbollon/go-edlib"
)

// Scorer computes and caches fuzzy similarity scores between
// candidates and a query, keyed on (candidate, query) for the life of
// the session (spec.md §4.7, §5 "scorer cache ... append-only").
type Scorer struct {
	mu    sync.RWMutex
	cache map[scoreKey]float64
}

type scoreKey struct {
	candidate string
	query     string
}

// NewScorer creates an empty per-session scorer.
func NewScorer() *Scorer {
	return &Scorer{cache: make(map[scoreKey]float64)}
}

// Score returns the fuzzy similarity of candidate against query,
// memoized per (candidate, query). Subsequence matches are scored by
// position, span and coverage (see compute); Jaro-Winkler (the same
// algorithm the teacher's fuzzy matcher uses for approximate name
// matching) scores only candidates that are not subsequence matches.
func (s *Scorer) Score(candidate, query string) float64 {
	if query == "" {
		return 1
	}
	key := scoreKey{candidate: candidate, query: query}

	s.mu.RLock()
	if v, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return v
	}
	s.mu.RUnlock()

	score := compute(candidate, query)

	s.mu.Lock()
	s.cache[key] = score
	s.mu.Unlock()
	return score
}

// compute scores candidate against query around where and how
// compactly query's characters appear as a subsequence, not mere
// substring containment: an earlier match start outranks a later one,
// and among matches starting at the same position a contiguous run
// outranks one with gaps (spec.md §8 scenario 5 — "bb" against
// [bab, bbc, abb] ranks bbc above bab above abb, even though abb
// contains "bb" as a literal substring and bab does not).
func compute(candidate, query string) float64 {
	lc := strings.ToLower(candidate)
	lq := strings.ToLower(query)

	start, end, ok := bestSubsequenceSpan(lc, lq)
	if !ok {
		score, err := edlib.StringsSimilarity(lc, lq, edlib.JaroWinkler)
		if err != nil {
			return 0
		}
		return float64(score)
	}

	span := end - start + 1
	positionScore := 1 - float64(start)/float64(len(lc))
	spanScore := float64(len(lq)) / float64(span)
	coverage := float64(len(lq)) / float64(len(lc))

	// A subsequence match always outranks a non-subsequence fuzzy score
	// (which tops out below 1), and earliness is weighted above
	// contiguity so that a gapped match starting at index 0 still beats
	// a tight, contiguous match that starts later.
	return 1.0 + 0.5*positionScore + 0.3*spanScore + 0.2*coverage
}

// bestSubsequenceSpan finds the leftmost-starting occurrence of query
// as a subsequence of candidate and, for that start, the tightest
// (greedy) span covering it. Returns ok=false if query is not a
// subsequence of candidate at all.
// query is always non-empty here: Score short-circuits the empty-query
// case before compute is ever invoked.
func bestSubsequenceSpan(candidate, query string) (start, end int, ok bool) {
	for s := 0; s < len(candidate); s++ {
		if candidate[s] != query[0] {
			continue
		}
		qi := 1
		e := s
		for i := s + 1; i < len(candidate) && qi < len(query); i++ {
			if candidate[i] == query[qi] {
				qi++
				e = i
			}
		}
		if qi == len(query) {
			return s, e, true
		}
	}
	return 0, 0, false
}

// IsFuzzyMatch reports whether query fuzzy-matches candidate as a
// subsequence, the cheap boolean test the File Walker (C3) applies to
// every traversal candidate before scoring is ever invoked.
func IsFuzzyMatch(candidate, query string) bool {
	if query == "" {
		return true
	}
	lc := strings.ToLower(candidate)
	lq := strings.ToLower(query)

	qi := 0
	for i := 0; i < len(lc) && qi < len(lq); i++ {
		if lc[i] == lq[qi] {
			qi++
		}
	}
	return qi == len(lq)
}

// Compare orders two candidates by descending score against query,
// breaking ties lexicographically for a stable sort (spec.md §8
// round-trip: "sorting a result set twice is stable").
func (s *Scorer) Compare(a, b, query string) int {
	sa := s.Score(a, query)
	sb := s.Score(b, query)
	if sa != sb {
		if sa > sb {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// SortByScore stable-sorts candidates in place by descending score
// against query.
func (s *Scorer) SortByScore(candidates []string, query string) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return s.Compare(candidates[i], candidates[j], query) < 0
	})
}

// topKItem pairs a candidate with its score for the heap below.
type topKItem struct {
	candidate string
	score     float64
}

// minHeap is a min-heap over topKItem.score, used to keep only the
// current best K candidates while scanning N in a single pass
// (spec.md §4.7 "O(N log K) without sorting the tail").
type minHeap []topKItem

func (h minHeap) Len() int { return len(h) }
func (h minHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score < h[j].score
	}
	// Reverse lexicographic so the heap's worst-tie-break sits at the
	// root, matching SortByScore's ascending-name tiebreak on output.
	return h[i].candidate > h[j].candidate
}
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(topKItem)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TopK returns the K candidates with the highest score against query,
// in descending-score order, without fully sorting the remainder
// (spec.md §4.7 "Selection for max-results").
func (s *Scorer) TopK(candidates []string, query string, k int) []string {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if k >= len(candidates) {
		out := append([]string(nil), candidates...)
		s.SortByScore(out, query)
		return out
	}

	h := make(minHeap, 0, k)
	heap.Init(&h)
	for _, c := range candidates {
		item := topKItem{candidate: c, score: s.Score(c, query)}
		if h.Len() < k {
			heap.Push(&h, item)
			continue
		}
		if item.score > h[0].score || (item.score == h[0].score && item.candidate < h[0].candidate) {
			heap.Pop(&h)
			heap.Push(&h, item)
		}
	}

	out := make([]string, 0, h.Len())
	for _, it := range h {
		out = append(out, it.candidate)
	}
	s.SortByScore(out, query)
	return out
}
