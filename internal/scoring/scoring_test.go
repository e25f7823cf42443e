package scoring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScoreExactSubstringOutranksFuzzy(t *testing.T) {
	s := NewScorer()
	exact := s.Score("bbc.go", "bb")
	fuzzy := s.Score("abxbxc", "bb")
	if exact <= fuzzy {
		t.Fatalf("exact substring score %v must exceed fuzzy score %v", exact, fuzzy)
	}
}

func TestScoreIsMemoized(t *testing.T) {
	s := NewScorer()
	a := s.Score("foobar", "foo")
	if _, ok := s.cache[scoreKey{candidate: "foobar", query: "foo"}]; !ok {
		t.Fatalf("expected score to be cached after first call")
	}
	b := s.Score("foobar", "foo")
	if a != b {
		t.Fatalf("memoized score changed: %v != %v", a, b)
	}
}

func TestIsFuzzyMatchSubsequence(t *testing.T) {
	cases := []struct {
		candidate, query string
		want             bool
	}{
		{"bab", "bb", true},
		{"bbc", "bb", true},
		{"abb", "bb", true},
		{"anything", "", true},
	}
	for _, c := range cases {
		if got := IsFuzzyMatch(c.candidate, c.query); got != c.want {
			t.Errorf("IsFuzzyMatch(%q, %q) = %v, want %v", c.candidate, c.query, got, c.want)
		}
	}
}

// TestSortByScoreScenario exercises spec.md §8 scenario 5: sorting
// [bab, bbc, abb] against pattern "bb" ranks bbc first (contiguous
// match at position 0), bab second (gapped match but still starting at
// position 0), and abb last (contiguous but starting at position 1) —
// position in the candidate outweighs mere substring containment.
func TestSortByScoreScenario(t *testing.T) {
	s := NewScorer()
	candidates := []string{"bab", "bbc", "abb"}
	s.SortByScore(candidates, "bb")
	require.Equal(t, []string{"bbc", "bab", "abb"}, candidates)
}

// TestTopKScenario5MaxResultsTwo exercises the full spec.md §8 scenario
// 5: sortByScore:true, maxResults:2 against [bab, bbc, abb] and pattern
// "bb" yields [bbc, bab].
func TestTopKScenario5MaxResultsTwo(t *testing.T) {
	s := NewScorer()
	candidates := []string{"bab", "bbc", "abb"}
	got := s.TopK(candidates, "bb", 2)
	require.Equal(t, []string{"bbc", "bab"}, got)
}

func TestSortByScoreStableRoundTrip(t *testing.T) {
	s := NewScorer()
	candidates := []string{"zzz", "aaa", "bbb"}
	s.SortByScore(candidates, "")
	first := append([]string(nil), candidates...)
	s.SortByScore(candidates, "")
	require.Equal(t, first, candidates, "sorting twice must be stable")
}

func TestTopKMatchesFullSortPrefix(t *testing.T) {
	s := NewScorer()
	candidates := []string{"foobar", "foo", "fo", "barfoo", "xyz", "foobaz"}
	full := append([]string(nil), candidates...)
	s.SortByScore(full, "foo")

	top := s.TopK(candidates, "foo", 3)
	require.Equal(t, full[:3], top)
}

func TestTopKWithKGreaterThanInputReturnsAllSorted(t *testing.T) {
	s := NewScorer()
	candidates := []string{"foo", "bar"}
	got := s.TopK(candidates, "foo", 10)
	if len(got) != 2 || got[0] != "foo" {
		t.Fatalf("expected all candidates sorted, got %v", got)
	}
}

func TestTopKZeroOrNegativeK(t *testing.T) {
	s := NewScorer()
	if got := s.TopK([]string{"a"}, "a", 0); got != nil {
		t.Fatalf("expected nil for k=0, got %v", got)
	}
}
