// Package searchservice implements the Search Service (C8): the
// public entry point that dispatches a Query to the File Walker (C3)
// or Grep Driver (C5), applies sort+cache, and exposes a cancellable
// progress stream (spec.md §4.8).
package searchservice

import (
	"context"
	"strings"
	"time"

	"github.com/standardbeagle/wsgrep/internal/batch"
	"github.com/standardbeagle/wsgrep/internal/debug"
	wserrors "github.com/standardbeagle/wsgrep/internal/errors"
	"github.com/standardbeagle/wsgrep/internal/globmatch"
	"github.com/standardbeagle/wsgrep/internal/grepdriver"
	"github.com/standardbeagle/wsgrep/internal/grepparse"
	"github.com/standardbeagle/wsgrep/internal/scoring"
	"github.com/standardbeagle/wsgrep/internal/searchconfig"
	"github.com/standardbeagle/wsgrep/internal/searchtypes"
	"github.com/standardbeagle/wsgrep/internal/walker"
)

// Service is the long-lived Search Service, holding the process-wide
// scorer and cache registry (spec.md §5 "the cache table is
// process-wide").
type Service struct {
	scorer   *scoring.Scorer
	cacheReg *scoring.Registry
}

// New creates a Search Service.
func New() *Service {
	return &Service{scorer: scoring.NewScorer(), cacheReg: scoring.NewRegistry()}
}

// ClearCache evicts the cache table for key (spec.md §4.8 "clearCache(key) → ack").
func (s *Service) ClearCache(key string) {
	s.cacheReg.Clear(key)
}

// ExtendQuery fills Query defaults from the ambient config, idempotently
// (spec.md §4.8 "extendQuery(query)").
func (s *Service) ExtendQuery(q *searchtypes.Query, cfg *searchconfig.Config) {
	cfg.ExtendQuery(q)
}

// Search dispatches query and returns a channel of progress items
// terminated by exactly one success or error item (spec.md §4.8).
// Canceling ctx closes the stream early with a terminal error{canceled}
// (spec.md §5 Cancellation).
func (s *Service) Search(ctx context.Context, query *searchtypes.Query) <-chan searchtypes.ProgressItem {
	out := make(chan searchtypes.ProgressItem, 64)

	go func() {
		defer close(out)
		debug.LogService("search start textSearch=%v folders=%d", query.IsTextSearch(), len(query.Folders))
		var err error
		if query.IsTextSearch() {
			err = s.runTextSearch(ctx, query, out)
		} else {
			err = s.runFileSearch(ctx, query, out)
		}

		if ctx.Err() != nil {
			out <- searchtypes.ProgressItem{Kind: searchtypes.ProgressKindError, Err: wserrors.NewCancelError()}
			return
		}
		if err != nil {
			out <- searchtypes.ProgressItem{Kind: searchtypes.ProgressKindError, Err: err}
		}
	}()

	return out
}

// runFileSearch implements the file-pattern dispatch: C3 per folder
// root, cache-aware via C7, batched onto out via C6.
func (s *Service) runFileSearch(ctx context.Context, query *searchtypes.Query, out chan<- searchtypes.ProgressItem) error {
	start := time.Now()

	exclude, err := globmatch.Compile(query.ExcludePattern)
	if err != nil {
		return err
	}
	include, err := globmatch.Compile(query.IncludePattern)
	if err != nil {
		return err
	}

	var cacheRow *scoring.CacheRow
	var cache *scoring.Cache
	if query.CacheKey != "" {
		cache = s.cacheReg.Cache(query.CacheKey)
		if narrowed, ok := cache.FindNarrowing(query.FilePattern); ok {
			cacheRow = narrowed
		}
	}

	var matches []searchtypes.RawFileMatch
	stats := searchtypes.Stats{}
	fromCache := false
	walkLimitHit := false

	if cacheRow != nil {
		rows, werr := cacheRow.Wait(ctx)
		if werr != nil {
			return werr
		}
		matches = scoring.NarrowResults(s.scorer, rows, query.FilePattern, query.MaxResults)
		fromCache = true
		stats.Traversal = "cache"
	} else {
		run := func(walkCtx context.Context) ([]searchtypes.RawFileMatch, error) {
			matches, limitHit, err := s.walkAllRoots(walkCtx, query, &stats)
			walkLimitHit = walkLimitHit || limitHit
			return matches, err
		}
		if cache != nil {
			// The row outlives this query, so its walk is not canceled
			// with ctx; only this caller's Wait below is.
			row := cache.GetOrStart(query.FilePattern, func() ([]searchtypes.RawFileMatch, error) {
				return run(context.WithoutCancel(ctx))
			})
			rows, werr := row.Wait(ctx)
			if werr != nil {
				return werr
			}
			matches = rows
		} else {
			matches, err = run(ctx)
			if err != nil {
				return err
			}
		}
	}

	if len(query.ExtraFiles) > 0 {
		matches = append(matches, walker.FilterExtraFiles(query.ExtraFiles, exclude, include, query.FilePattern)...)
	}

	if query.SortByScore {
		sortStart := time.Now()
		names := make([]string, len(matches))
		byName := make(map[string]searchtypes.RawFileMatch, len(matches))
		for i, m := range matches {
			names[i] = m.RelativePath
			byName[m.RelativePath] = m
		}
		if query.MaxResults > 0 && query.MaxResults < len(names) {
			names = s.scorer.TopK(names, query.FilePattern, query.MaxResults)
		} else {
			s.scorer.SortByScore(names, query.FilePattern)
		}
		matches = matches[:0]
		for _, n := range names {
			matches = append(matches, byName[n])
		}
		ms := time.Since(sortStart).Milliseconds()
		stats.SortingTimeMS = &ms
	}

	collector := batch.New(func(items []searchtypes.RawFileMatch, total int) {
		for _, m := range items {
			mm := m
			out <- searchtypes.ProgressItem{Kind: searchtypes.ProgressKindMatch, FileMatch: &mm}
		}
	})
	for _, m := range matches {
		if ctx.Err() != nil {
			return nil
		}
		collector.Add(m)
	}
	collector.Close()

	stats.FileWalkTimeMS = time.Since(start).Milliseconds()
	stats.ResultCount = len(matches)
	stats.FromCache = fromCache
	limitHit := walkLimitHit || (query.MaxResults > 0 && len(matches) >= query.MaxResults)

	out <- searchtypes.ProgressItem{Kind: searchtypes.ProgressKindSuccess, LimitHit: limitHit, Stats: stats}
	return nil
}

// walkAllRoots runs C3 across every folder query in parallel and
// flattens the results, accumulating directoriesWalked/filesWalked
// into stats for the terminal item.
func (s *Service) walkAllRoots(ctx context.Context, query *searchtypes.Query, stats *searchtypes.Stats) ([]searchtypes.RawFileMatch, bool, error) {
	opts := make([]walker.Options, len(query.Folders))
	for i, fq := range query.Folders {
		fExclude, ferr := globmatch.Compile(mergeExpr(query.ExcludePattern, fq.ExcludePattern))
		if ferr != nil {
			return nil, false, ferr
		}
		fInclude, ferr := globmatch.Compile(mergeExpr(query.IncludePattern, fq.IncludePattern))
		if ferr != nil {
			return nil, false, ferr
		}
		opts[i] = walker.Options{
			Root:                 fq.Root,
			Exclude:              fExclude,
			Include:              fInclude,
			FilePattern:          query.FilePattern,
			MaxResults:           query.MaxResults,
			ExistsOnly:           query.ExistsOnly,
			MaxFileSize:          query.MaxFileSize,
			FollowSymlinks:       query.FollowSymlinks,
			DisregardIgnoreFiles: query.DisregardIgnoreFiles || fq.DisregardIgnoreFiles,
		}
	}

	results, err := walker.WalkMany(ctx, opts)
	var matches []searchtypes.RawFileMatch
	limitHit := false
	for _, r := range results {
		if r == nil {
			continue
		}
		matches = append(matches, r.Matches...)
		stats.DirectoriesWalked += r.DirectoriesWalked
		stats.FilesWalked += r.FilesWalked
		stats.Traversal = r.Traversal
		limitHit = limitHit || r.LimitHit
	}
	return matches, limitHit, err
}

func mergeExpr(a, b searchtypes.GlobExpression) searchtypes.GlobExpression {
	out := make(searchtypes.GlobExpression, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// runTextSearch implements the content-pattern dispatch: C5 spawns a
// single grep process over every folder root, C4 parses its stdout,
// results are batched onto out via C6.
func (s *Service) runTextSearch(ctx context.Context, query *searchtypes.Query, out chan<- searchtypes.ProgressItem) error {
	start := time.Now()

	excludeArgsMatcher, err := globmatch.Compile(query.ExcludePattern)
	if err != nil {
		return err
	}
	includeArgsMatcher, err := globmatch.Compile(query.IncludePattern)
	if err != nil {
		return err
	}

	collector := batch.New(func(items []searchtypes.FileTextMatch, total int) {
		for _, m := range items {
			mm := m
			out <- searchtypes.ProgressItem{Kind: searchtypes.ProgressKindMatch, TextMatch: &mm}
		}
	})

	folders := make([]string, len(query.Folders))
	for i, fq := range query.Folders {
		folders[i] = fq.Root
	}

	var globArgs []string
	for _, t := range excludeArgsMatcher.BasenameTerms() {
		globArgs = append(globArgs, "-g", "!"+t)
	}
	for _, t := range excludeArgsMatcher.PathTerms() {
		globArgs = append(globArgs, "-g", "!"+t)
	}
	for _, t := range includeArgsMatcher.BasenameTerms() {
		globArgs = append(globArgs, "-g", t)
	}
	for _, t := range includeArgsMatcher.PathTerms() {
		globArgs = append(globArgs, "-g", t)
	}

	extraFileFallback := ""
	if len(query.ExtraFiles) == 1 && len(folders) == 0 {
		extraFileFallback = query.ExtraFiles[0]
	}

	parser := grepparse.New(func(m searchtypes.FileTextMatch) {
		collector.Add(m)
	}, query.MaxResults, extraFileFallback)

	opt := grepdriver.Options{
		Content:        query.ContentPattern,
		Folders:        folders,
		ExtraFiles:     query.ExtraFiles,
		GlobArgs:       plainGlobArgs(globArgs),
		MaxFileSize:    query.MaxFileSize,
		NoIgnoreFiles:  query.DisregardIgnoreFiles,
		FollowSymlinks: query.FollowSymlinks,
		Encoding:       firstEncoding(query.Folders),
		MaxResults:     query.MaxResults,
	}

	argv, err := grepdriver.BuildArgs(opt)
	if err != nil {
		return err
	}

	cwd := "."
	if len(folders) > 0 {
		cwd = folders[0]
	}

	cmdStart := time.Now()
	exitCode, stderrText, spawnErr := grepdriver.Spawn(ctx, argv, cwd, parser)
	if spawnErr != nil {
		return spawnErr
	}
	collector.Close()
	cmdMS := time.Since(cmdStart).Milliseconds()

	if evalErr := grepdriver.Evaluate(exitCode, stderrText, parser.Emitted()); evalErr != nil {
		return evalErr
	}

	stats := searchtypes.Stats{
		Traversal:      "grep",
		CmdTimeMS:      cmdMS,
		FileWalkTimeMS: time.Since(start).Milliseconds(),
		CmdResultCount: parser.Emitted(),
		ResultCount:    parser.Emitted(),
	}
	limitHit := query.MaxResults > 0 && parser.Emitted() >= query.MaxResults

	out <- searchtypes.ProgressItem{Kind: searchtypes.ProgressKindSuccess, LimitHit: limitHit, Stats: stats}
	return nil
}

// plainGlobArgs strips the "-g" flag markers collected above, since
// grepdriver.BuildArgs adds the "-g" flag itself per GlobArgs entry.
func plainGlobArgs(interleaved []string) []string {
	var out []string
	for i := 0; i < len(interleaved); i++ {
		if interleaved[i] == "-g" {
			continue
		}
		out = append(out, interleaved[i])
	}
	return out
}

func firstEncoding(folders []searchtypes.FolderQuery) string {
	if len(folders) == 0 {
		return ""
	}
	enc := folders[0].Encoding
	for _, fq := range folders[1:] {
		if fq.Encoding != enc {
			return "" // encoding must be shared across every folder query (spec.md §4.5)
		}
	}
	if strings.EqualFold(enc, "utf-8") || strings.EqualFold(enc, "utf8") {
		return ""
	}
	return enc
}
