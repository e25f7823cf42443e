// Package pathutil converts between absolute and relative paths at
// output boundaries.
//
// Architecture Pattern:
// wsgrep uses absolute paths internally for consistency and to avoid
// ambiguity. User-facing output, however, should use relative paths
// for readability and portability. This package is the conversion
// layer between internal (absolute) and external (relative)
// representations.
package pathutil

import (
	"path/filepath"
	"strings"

	"github.com/standardbeagle/wsgrep/internal/searchtypes"
)

// ToRelative converts an absolute path to relative based on a root directory.
// Falls back to the original path if conversion fails or path is already relative.
//
// Examples:
//   - ToRelative("/home/user/project/src/main.go", "/home/user/project") → "src/main.go"
//   - ToRelative("/other/location/file.go", "/home/user/project") → "/other/location/file.go" (outside root)
//   - ToRelative("src/main.go", "/home/user/project") → "src/main.go" (already relative)
func ToRelative(absPath, rootDir string) string {
	if absPath == "" || rootDir == "" {
		return absPath
	}
	if !filepath.IsAbs(absPath) {
		return absPath
	}

	absPath = filepath.Clean(absPath)
	rootDir = filepath.Clean(rootDir)

	relPath, err := filepath.Rel(rootDir, absPath)
	if err != nil {
		return absPath
	}
	if strings.HasPrefix(relPath, "..") {
		return absPath
	}
	return relPath
}

// DisplayPath renders a RawFileMatch's absolute location (spec.md §3
// invariant: Base + "/" + RelativePath == AbsolutePath).
func DisplayPath(m searchtypes.RawFileMatch) string {
	return filepath.Join(m.Base, m.RelativePath)
}

// ToRelativeMatches renders file matches relative to viewRoot, for
// CLI output when viewRoot differs from a match's own Base (multiple
// folder roots printed from one invocation).
func ToRelativeMatches(matches []searchtypes.RawFileMatch, viewRoot string) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = ToRelative(DisplayPath(m), viewRoot)
	}
	return out
}

// ToRelativeTextMatch converts a FileTextMatch's absolute path to
// relative, for CLI text-search rendering.
func ToRelativeTextMatch(m searchtypes.FileTextMatch, viewRoot string) searchtypes.FileTextMatch {
	m.AbsolutePath = ToRelative(m.AbsolutePath, viewRoot)
	return m
}
