// Package dirtree implements the Directory Tree (C2): an in-memory
// relative-path tree populated from external command output, matched
// against an exclude Matcher via a single DFS pass (spec.md §4.2).
package dirtree

import (
	"path"
	"strings"

	"github.com/standardbeagle/wsgrep/internal/globmatch"
)

// entry is one file discovered under a directory.
type entry struct {
	relPath  string
	basename string
}

// Tree is the two-level structure spec.md §4.2 describes:
// rootEntries[] and pathToEntries[relativeDirPath] -> entry[].
type Tree struct {
	rootEntries   []entry
	pathToEntries map[string][]entry
}

// New builds an empty tree.
func New() *Tree {
	return &Tree{pathToEntries: make(map[string][]entry)}
}

// AddPath streams one relative file path (forward-slash separated,
// root-relative) from the external command's output into the tree.
func (t *Tree) AddPath(relPath string) {
	relPath = strings.TrimPrefix(relPath, "./")
	if relPath == "" {
		return
	}
	dir := path.Dir(relPath)
	e := entry{relPath: relPath, basename: path.Base(relPath)}
	if dir == "." {
		t.rootEntries = append(t.rootEntries, e)
		return
	}
	t.pathToEntries[dir] = append(t.pathToEntries[dir], e)
}

// siblingSetFor lazily builds the basename set for a directory's
// entries, used to resolve sibling clauses with a single pass
// (spec.md §9 "a single readdir caches the basenames").
func siblingSetFor(entries []entry) map[string]struct{} {
	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		set[e.basename] = struct{}{}
	}
	return set
}

// Match runs the DFS spec.md §4.2 describes: the exclude predicate is
// applied once per directory, computing hasSibling lazily from the
// entry list. literalFilePattern is the user's exact file pattern (if
// any); a file whose relative path equals it is always reported even
// if its directory's siblings would otherwise exclude it ("I know
// exactly what I want" semantics).
func (t *Tree) Match(exclude *globmatch.Matcher, literalFilePattern string) []string {
	var out []string

	emit := func(entries []entry) {
		set := siblingSetFor(entries)
		for _, e := range entries {
			if e.relPath == literalFilePattern {
				out = append(out, e.relPath)
				continue
			}
			d := exclude.Test(e.relPath, "", e.basename)
			if d.Matched {
				continue
			}
			if len(d.Deferred) > 0 && globmatch.ResolveDeferred(d.Deferred, set) {
				continue
			}
			out = append(out, e.relPath)
		}
	}

	emit(t.rootEntries)
	for dir := range t.pathToEntries {
		// Directory itself may be excluded; test it like a path
		// candidate so "**/node_modules/**" prunes everything below
		// without per-file glob work inside it.
		dDecision := exclude.Test(dir+"/", "", path.Base(dir))
		if dDecision.Matched {
			for _, e := range t.pathToEntries[dir] {
				if e.relPath == literalFilePattern {
					out = append(out, e.relPath)
				}
			}
			continue
		}
		emit(t.pathToEntries[dir])
	}

	return out
}

// Walk returns every path in the tree without filtering. The walker
// does not call it: when no sibling clauses remain after argument
// synthesis it streams lines directly and builds no tree at all
// (spec.md §4.3 optimization).
func (t *Tree) Walk() []string {
	out := make([]string, 0, len(t.rootEntries))
	for _, e := range t.rootEntries {
		out = append(out, e.relPath)
	}
	for _, entries := range t.pathToEntries {
		for _, e := range entries {
			out = append(out, e.relPath)
		}
	}
	return out
}
