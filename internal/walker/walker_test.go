package walker

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/standardbeagle/wsgrep/internal/globmatch"
	"github.com/standardbeagle/wsgrep/internal/searchtypes"
)

func writeFixture(t *testing.T, root string, paths ...string) {
	t.Helper()
	for _, p := range paths {
		full := filepath.Join(root, p)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func relPaths(matches []searchtypes.RawFileMatch) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.RelativePath
	}
	sort.Strings(out)
	return out
}

func TestWalkNativeBasic(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "a.go", "b.go", "vendor/c.go")

	res, err := walkNative(context.Background(), Options{Root: root})
	if err != nil {
		t.Fatalf("walkNative: %v", err)
	}
	got := relPaths(res.Matches)
	want := []string{"a.go", "b.go", "vendor/c.go"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestWalkNativeExcludesPlainGlob(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "a.go", "vendor/c.go")

	exclude, err := globmatch.Compile(searchtypes.GlobExpression{
		"**/vendor/**": searchtypes.GlobValue{},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	res, err := walkNative(context.Background(), Options{Root: root, Exclude: exclude})
	if err != nil {
		t.Fatalf("walkNative: %v", err)
	}
	got := relPaths(res.Matches)
	if len(got) != 1 || got[0] != "a.go" {
		t.Fatalf("expected only a.go, got %v", got)
	}
}

func TestWalkNativeMaxFileSizeFilters(t *testing.T) {
	root := t.TempDir()
	small := filepath.Join(root, "small.txt")
	big := filepath.Join(root, "big.txt")
	if err := os.WriteFile(small, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(big, make([]byte, 1024), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	res, err := walkNative(context.Background(), Options{Root: root, MaxFileSize: 10})
	if err != nil {
		t.Fatalf("walkNative: %v", err)
	}
	got := relPaths(res.Matches)
	if len(got) != 1 || got[0] != "small.txt" {
		t.Fatalf("expected only small.txt under the size cap, got %v", got)
	}
}

func TestWalkNativeExistsOnlyStopsAtFirstMatch(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "a.go", "b.go", "c.go")

	res, err := walkNative(context.Background(), Options{Root: root, ExistsOnly: true})
	if err != nil {
		t.Fatalf("walkNative: %v", err)
	}
	if !res.LimitHit {
		t.Fatalf("expected existsOnly to set LimitHit")
	}
	if len(res.Matches) != 1 {
		t.Fatalf("expected exactly one match when existsOnly, got %v", res.Matches)
	}
}

func TestWalkNativeMaxResults(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "a.go", "b.go", "c.go", "d.go")

	res, err := walkNative(context.Background(), Options{Root: root, MaxResults: 2})
	if err != nil {
		t.Fatalf("walkNative: %v", err)
	}
	if !res.LimitHit {
		t.Fatalf("expected LimitHit once maxResults was reached")
	}
	if len(res.Matches) != 2 {
		t.Fatalf("expected exactly 2 matches, got %v", res.Matches)
	}
}

func TestWalkNativeFilePatternFuzzy(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "abb.go", "bab.go", "bbc.go")

	res, err := walkNative(context.Background(), Options{Root: root, FilePattern: "bb"})
	if err != nil {
		t.Fatalf("walkNative: %v", err)
	}
	got := relPaths(res.Matches)
	// "bb" is a subsequence of all three basenames (bab.go matches with
	// a gap), so all three survive the fuzzy filter; ordering/ranking is
	// scoring's job, not the walker's.
	want := []string{"abb.go", "bab.go", "bbc.go"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestWalkNativeSymlinkCycleBroken(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	loop := filepath.Join(sub, "loop")
	if err := os.Symlink(root, loop); err != nil {
		t.Skipf("symlinks unsupported in this environment: %v", err)
	}
	writeFixture(t, root, "a.go")

	res, err := walkNative(context.Background(), Options{Root: root, FollowSymlinks: true})
	if err != nil {
		t.Fatalf("walkNative: %v", err)
	}
	// Must terminate and find the one real file without infinite recursion.
	got := relPaths(res.Matches)
	if len(got) != 1 || got[0] != "a.go" {
		t.Fatalf("expected the cycle to be broken with a.go found once, got %v", got)
	}
}

func TestFilterExtraFilesBypassesWalk(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "keep.go", "skip.go")

	exclude, _ := globmatch.Compile(searchtypes.GlobExpression{
		"skip.go": searchtypes.GlobValue{},
	})

	extra := []string{filepath.Join(root, "keep.go"), filepath.Join(root, "skip.go")}
	matches := FilterExtraFiles(extra, exclude, nil, "")
	if len(matches) != 1 || matches[0].Basename != "keep.go" {
		t.Fatalf("expected only keep.go to survive, got %v", matches)
	}
}

func TestWalkManyAggregatesPerRootErrors(t *testing.T) {
	goodRoot := t.TempDir()
	writeFixture(t, goodRoot, "a.go")
	badRoot := filepath.Join(t.TempDir(), "does-not-exist")

	results, err := WalkMany(context.Background(), []Options{
		{Root: goodRoot},
		{Root: badRoot},
	})
	if err == nil {
		t.Fatalf("expected an aggregated error for the missing root")
	}
	if results[0] == nil || len(results[0].Matches) != 1 {
		t.Fatalf("expected the good root to still produce results, got %v", results)
	}
}
