package walker

import (
	"path/filepath"

	"github.com/standardbeagle/wsgrep/internal/dirtree"
	"github.com/standardbeagle/wsgrep/internal/searchtypes"
)

// filterThroughTree builds a Directory Tree (C2) from backend-emitted
// lines and runs its single DFS pass to resolve sibling-dependent
// exclude clauses (spec.md §4.3, §4.2). Plain clauses were already
// handled at the command-argument level; re-testing them here is
// redundant but harmless since they can no longer match anything in
// lines.
func filterThroughTree(lines []string, opt Options) ([]searchtypes.RawFileMatch, bool, int) {
	tree := dirtree.New()
	for _, l := range lines {
		tree.AddPath(l)
	}

	survivors := tree.Match(opt.Exclude, opt.FilePattern)

	var matches []searchtypes.RawFileMatch
	limitHit := false
	count := 0
	for _, rel := range survivors {
		basename := filepath.Base(rel)
		if opt.Include != nil && len(opt.Include.BasenameTerms())+len(opt.Include.PathTerms()) > 0 {
			if d := opt.Include.Test(rel, "", basename); !d.Matched {
				continue
			}
		}
		accept, stop := applyLimit(rel, basename, opt.FilePattern, opt.ExistsOnly, opt.MaxResults, &count)
		if accept {
			matches = append(matches, searchtypes.RawFileMatch{Base: opt.Root, RelativePath: rel, Basename: basename})
		}
		if stop {
			limitHit = true
			break
		}
	}
	return matches, limitHit, len(lines)
}
