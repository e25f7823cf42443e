package dirtree

import (
	"sort"
	"testing"

	"github.com/standardbeagle/wsgrep/internal/globmatch"
	"github.com/standardbeagle/wsgrep/internal/searchtypes"
)

func boolVal(b bool) searchtypes.GlobValue { return searchtypes.GlobValue{Bool: &b} }

func TestTreeMatchExcludesDirectory(t *testing.T) {
	tree := New()
	for _, p := range []string{
		"main.go",
		"node_modules/left-pad/index.js",
		"src/app.go",
		"src/app_test.go",
	} {
		tree.AddPath(p)
	}

	m, err := globmatch.Compile(searchtypes.GlobExpression{
		"**/node_modules/**": boolVal(true),
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	got := tree.Match(m, "")
	sort.Strings(got)
	want := []string{"main.go", "src/app.go", "src/app_test.go"}
	sort.Strings(want)

	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestTreeMatchLiteralPatternOverridesExclude(t *testing.T) {
	tree := New()
	tree.AddPath("node_modules/pkg/secret.js")
	tree.AddPath("node_modules/pkg/other.js")

	m, err := globmatch.Compile(searchtypes.GlobExpression{
		"**/node_modules/**": boolVal(true),
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	got := tree.Match(m, "node_modules/pkg/secret.js")
	if len(got) != 1 || got[0] != "node_modules/pkg/secret.js" {
		t.Fatalf("expected literal pattern to survive exclusion, got %v", got)
	}
}

func TestTreeMatchSiblingExclude(t *testing.T) {
	tree := New()
	tree.AddPath("src/foo.js")
	tree.AddPath("src/foo.ts")
	tree.AddPath("src/bar.js")

	m, err := globmatch.Compile(searchtypes.GlobExpression{
		"*.js": searchtypes.GlobValue{When: "$(basename).ts"},
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	got := tree.Match(m, "")
	sort.Strings(got)
	want := []string{"src/bar.js", "src/foo.ts"}
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
