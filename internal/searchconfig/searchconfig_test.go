package searchconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/standardbeagle/wsgrep/internal/searchtypes"
)

func TestDefaultHasBuiltinExcludes(t *testing.T) {
	cfg := Default()
	if _, ok := cfg.Excludes["**/node_modules/**"]; !ok {
		t.Fatalf("expected node_modules in default excludes")
	}
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Encoding != "utf-8" {
		t.Fatalf("expected default encoding, got %q", cfg.Encoding)
	}
}

func TestLoadParsesKDL(t *testing.T) {
	root := t.TempDir()
	content := `
encoding "latin1"
max_file_size "2MB"
max_results 500
follow_symlinks true
exclude "**/testdata/**" "**/fixtures/**"
`
	if err := os.WriteFile(filepath.Join(root, ".search.kdl"), []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Encoding != "latin1" {
		t.Fatalf("expected encoding latin1, got %q", cfg.Encoding)
	}
	if cfg.MaxFileSize != 2*1024*1024 {
		t.Fatalf("expected 2MB max file size, got %d", cfg.MaxFileSize)
	}
	if cfg.MaxResults != 500 {
		t.Fatalf("expected max_results 500, got %d", cfg.MaxResults)
	}
	if !cfg.FollowSymlinks {
		t.Fatalf("expected follow_symlinks true")
	}
	if _, ok := cfg.Excludes["**/testdata/**"]; !ok {
		t.Fatalf("expected **/testdata/** in excludes, got %v", cfg.Excludes)
	}
	if _, ok := cfg.Excludes["**/fixtures/**"]; !ok {
		t.Fatalf("expected **/fixtures/** in excludes, got %v", cfg.Excludes)
	}
}

func TestExtendQueryIsIdempotent(t *testing.T) {
	cfg := Default()
	q := &searchtypes.Query{}

	cfg.ExtendQuery(q)
	firstCount := len(q.ExcludePattern)

	cfg.ExtendQuery(q)
	if len(q.ExcludePattern) != firstCount {
		t.Fatalf("expected extendQuery to be idempotent, got %d then %d entries", firstCount, len(q.ExcludePattern))
	}
}

func TestExtendQueryDoesNotOverrideExplicitValues(t *testing.T) {
	cfg := Default()
	q := &searchtypes.Query{MaxResults: 42}
	cfg.ExtendQuery(q)
	if q.MaxResults != 42 {
		t.Fatalf("expected explicit maxResults to survive extendQuery, got %d", q.MaxResults)
	}
}
