package scoring

import (
	"context"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/wsgrep/internal/debug"
	"github.com/standardbeagle/wsgrep/internal/searchtypes"
)

// CacheRow is the unit of the prefix cache (spec.md §3 "Cache row").
// A row resolves exactly once; its result is never torn down by a
// consumer's cancellation (spec.md §5, §9 preventCancellation).
type CacheRow struct {
	Pattern string

	mu       sync.Mutex
	resolved bool
	results  []searchtypes.RawFileMatch
	err      error
	done     chan struct{}
}

func newCacheRow(pattern string) *CacheRow {
	return &CacheRow{Pattern: pattern, done: make(chan struct{})}
}

// Resolve completes the row exactly once; later calls are no-ops.
func (r *CacheRow) Resolve(results []searchtypes.RawFileMatch, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		return
	}
	r.results = results
	r.err = err
	r.resolved = true
	close(r.done)
}

// Wait blocks until the row resolves or ctx is canceled. Canceling ctx
// only stops *this* caller from waiting — the row's own resolution
// goroutine is untouched, so a later prefix query can still observe
// the completed result (spec.md §5 Cancellation: "In-flight cache rows
// are exempt").
func (r *CacheRow) Wait(ctx context.Context) ([]searchtypes.RawFileMatch, error) {
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.results, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolved reports whether the row has already completed.
func (r *CacheRow) Resolved() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved
}

// Cache is the per-cacheKey table of CacheRows, keyed by file pattern
// (spec.md §3, §4.7).
type Cache struct {
	mu   sync.Mutex
	rows map[uint64]*CacheRow
}

func newCache() *Cache {
	return &Cache{rows: make(map[uint64]*CacheRow)}
}

// rowHash derives a compact map key from filePattern with xxhash, the
// same hashing primitive the teacher's metrics cache uses for its
// content/symbol keys. The cache key is not hashed in: each cache key
// already has its own Cache in the Registry.
func rowHash(filePattern string) uint64 {
	return xxhash.Sum64String(filePattern)
}

// GetOrStart returns the existing row for filePattern, or starts a
// fresh one by invoking start in a new goroutine and storing it
// immediately so concurrent lookups observe the same in-flight row.
func (c *Cache) GetOrStart(filePattern string, start func() ([]searchtypes.RawFileMatch, error)) *CacheRow {
	h := rowHash(filePattern)

	c.mu.Lock()
	if row, ok := c.rows[h]; ok && row.Pattern == filePattern {
		c.mu.Unlock()
		return row
	}
	row := newCacheRow(filePattern)
	c.rows[h] = row
	c.mu.Unlock()

	go func() {
		results, err := start()
		row.Resolve(results, err)
	}()

	return row
}

// FindNarrowing looks for an existing row whose pattern newPattern
// narrows, per spec.md §4.7: newPattern must start with the cached
// pattern, and if newPattern contains a path separator the cached
// pattern must also (widening the domain invalidates reuse).
func (c *Cache) FindNarrowing(newPattern string) (*CacheRow, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	newHasSep := strings.ContainsRune(newPattern, '/')
	var best *CacheRow
	for _, row := range c.rows {
		if !row.Resolved() {
			continue
		}
		if !strings.HasPrefix(newPattern, row.Pattern) {
			continue
		}
		cachedHasSep := strings.ContainsRune(row.Pattern, '/')
		if newHasSep && !cachedHasSep {
			continue
		}
		if best == nil || len(row.Pattern) > len(best.Pattern) {
			best = row
		}
	}
	return best, best != nil
}

// NarrowResults filters a resolved row's results against a new
// (narrower) pattern and re-sorts them, reusing the scorer's cache
// (spec.md §4.7 "On a cache hit the cached row's completed result
// list is filtered by the new pattern's fuzzy test and re-sorted").
func NarrowResults(scorer *Scorer, rows []searchtypes.RawFileMatch, newPattern string, maxResults int) []searchtypes.RawFileMatch {
	filtered := make([]searchtypes.RawFileMatch, 0, len(rows))
	for _, r := range rows {
		if IsFuzzyMatch(r.RelativePath, newPattern) {
			filtered = append(filtered, r)
		}
	}

	names := make([]string, len(filtered))
	byName := make(map[string]searchtypes.RawFileMatch, len(filtered))
	for i, r := range filtered {
		names[i] = r.RelativePath
		byName[r.RelativePath] = r
	}

	var ordered []string
	if maxResults > 0 && maxResults < len(names) {
		ordered = scorer.TopK(names, newPattern, maxResults)
	} else {
		ordered = names
		scorer.SortByScore(ordered, newPattern)
	}

	out := make([]searchtypes.RawFileMatch, 0, len(ordered))
	for _, n := range ordered {
		out = append(out, byName[n])
	}
	return out
}

// Registry holds one Cache per caller-supplied cache key (spec.md §3
// "Cache key"). The table is process-wide; writes happen only on
// row creation and clearCache (spec.md §5).
type Registry struct {
	mu     sync.Mutex
	caches map[string]*Cache
}

// NewRegistry creates an empty cache registry.
func NewRegistry() *Registry {
	return &Registry{caches: make(map[string]*Cache)}
}

// Cache returns (creating if needed) the Cache for key.
func (r *Registry) Cache(key string) *Cache {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.caches[key]
	if !ok {
		c = newCache()
		r.caches[key] = c
	}
	return c
}

// Clear evicts the cache for key (Search Service operation clearCache).
func (r *Registry) Clear(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.caches, key)
	debug.LogCache("cleared cache key=%s", key)
}
