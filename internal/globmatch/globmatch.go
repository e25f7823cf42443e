// Package globmatch implements the Glob Matcher (C1): compiling an
// include or exclude GlobExpression into a callable predicate, split
// into absolute- and relative-path halves so a candidate is never
// path-joined against every clause (spec.md §4.1).
package globmatch

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	wserrors "github.com/standardbeagle/wsgrep/internal/errors"
	"github.com/standardbeagle/wsgrep/internal/searchtypes"
)

// clause is one compiled entry of a GlobExpression.
type clause struct {
	pattern string
	negate  bool // pattern maps to a literal `false` value (never match)
	sibling string // non-empty for `{when: "$(basename).ext"}` clauses
}

// Matcher is a compiled GlobExpression, split into the absolute-path
// and relative-path halves spec.md §4.1 requires.
type Matcher struct {
	absolute []clause
	relative []clause
}

// isAbsoluteGlob reports whether a glob key starts with a path root
// (unix "/" or a drive-letter/UNC Windows root), mirroring the
// teacher's path-classification helpers (pkg/pathutil).
func isAbsoluteGlob(key string) bool {
	if strings.HasPrefix(key, "/") {
		return true
	}
	if len(key) >= 3 && key[1] == ':' && (key[2] == '/' || key[2] == '\\') {
		return true
	}
	if strings.HasPrefix(key, `\\`) {
		return true
	}
	return false
}

// Compile parses a GlobExpression into absolute and relative halves.
// Each key is validated against doublestar's pattern grammar at
// compile time so a malformed glob surfaces as a user-fatal error
// before any candidate is ever tested (spec.md §7, kind 1).
func Compile(expr searchtypes.GlobExpression) (*Matcher, error) {
	m := &Matcher{}
	for key, val := range expr {
		normalized := filepathToSlash(key)
		if _, err := doublestar.Match(normalized, "probe"); err != nil {
			return nil, wserrors.NewGlobError(key, err)
		}

		c := clause{pattern: normalized}
		if val.IsSibling() {
			c.sibling = val.When
		} else {
			c.negate = !val.BoolValue()
		}

		if isAbsoluteGlob(normalized) {
			m.absolute = append(m.absolute, c)
		} else {
			m.relative = append(m.relative, c)
		}
	}
	return m, nil
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// Decision is the result of a fast-path Test call.
type Decision struct {
	// Matched is true if a plain (non-sibling) clause already decided
	// the outcome.
	Matched bool
	// Deferred holds sibling clauses whose resolution requires a
	// directory listing (spec.md §4.1, §9 "Sibling predicates").
	Deferred []string
}

// Test evaluates the fast (synchronous) path: relativePath is
// slash-normalized and path-absolute is the absolute form (used
// against the absolute half). Sibling clauses whose base pattern
// matches are returned in Deferred rather than resolved here.
func (m *Matcher) Test(relativePath, absolutePath, basename string) Decision {
	var d Decision
	for _, c := range m.relative {
		d.merge(m.testClause(c, relativePath, basename))
	}
	if absolutePath != "" {
		for _, c := range m.absolute {
			d.merge(m.testClause(c, absolutePath, basename))
		}
	}
	return d
}

func (d *Decision) merge(matched bool, deferredWhen string) {
	if deferredWhen != "" {
		d.Deferred = append(d.Deferred, deferredWhen)
		return
	}
	if matched {
		d.Matched = true
	}
}

// testClause returns (matched, deferredWhen). deferredWhen is
// non-empty when the clause is a sibling predicate whose base
// pattern matched and whose `when` template needs resolving.
func (m *Matcher) testClause(c clause, candidate, basename string) (bool, string) {
	matched := doublestarMatch(c.pattern, candidate)
	if !matched {
		return false, ""
	}
	if c.sibling != "" {
		return false, expandSibling(c.sibling, basename)
	}
	return !c.negate, ""
}

func doublestarMatch(pattern, candidate string) bool {
	ok, err := doublestar.Match(pattern, candidate)
	if err != nil {
		return false
	}
	if ok {
		return true
	}
	// A pattern with no separator also matches against the basename,
	// same as grep's -g / gitignore basename-anchoring semantics.
	if !strings.Contains(pattern, "/") {
		if ok, _ := doublestar.Match(pattern, path.Base(candidate)); ok {
			return true
		}
	}
	return false
}

// expandSibling substitutes "$(basename)" in a sibling template: the
// template names the *sibling's* full filename, with "$(basename)"
// substituted by the candidate's basename stem (the basename without
// its final extension), e.g. "$(basename).ts" for basename "foo.js"
// => "foo.ts".
func expandSibling(template, basename string) string {
	stem := basename
	if i := strings.LastIndex(basename, "."); i > 0 {
		stem = basename[:i]
	}
	return strings.ReplaceAll(template, "$(basename)", stem)
}

// ResolveDeferred resolves sibling clauses against a directory's
// cached basename set (spec.md §9: "a single readdir caches the
// basenames used by all sibling queries in that directory").
func ResolveDeferred(deferred []string, siblingNames map[string]struct{}) bool {
	for _, want := range deferred {
		if _, ok := siblingNames[want]; ok {
			return true
		}
	}
	return false
}

// BasenameTerms returns bare filename patterns with no path separator
// (e.g. "*.png", "foo"), used by the walker to push exclude work into
// the external command's -g flags (spec.md §4.1, §4.3).
func (m *Matcher) BasenameTerms() []string {
	var out []string
	for _, c := range m.relative {
		if c.sibling == "" && !strings.Contains(c.pattern, "/") {
			out = append(out, c.pattern)
		}
	}
	return out
}

// PathTerms returns patterns containing a path separator.
func (m *Matcher) PathTerms() []string {
	var out []string
	for _, c := range m.relative {
		if c.sibling == "" && strings.Contains(c.pattern, "/") {
			out = append(out, c.pattern)
		}
	}
	return out
}

// HasSiblingClauses reports whether any clause (absolute or relative)
// is sibling-dependent. The walker uses this to decide whether it can
// skip building a Directory Tree (C2) entirely (spec.md §4.3).
func (m *Matcher) HasSiblingClauses() bool {
	for _, c := range m.relative {
		if c.sibling != "" {
			return true
		}
	}
	for _, c := range m.absolute {
		if c.sibling != "" {
			return true
		}
	}
	return false
}

// String renders the matcher for debug logging.
func (m *Matcher) String() string {
	return fmt.Sprintf("globmatch.Matcher{relative=%d absolute=%d}", len(m.relative), len(m.absolute))
}
