package pathutil

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/standardbeagle/wsgrep/internal/searchtypes"
)

func TestToRelative(t *testing.T) {
	tests := []struct {
		name     string
		absPath  string
		rootDir  string
		expected string
	}{
		{
			name:     "simple relative path",
			absPath:  "/home/user/project/src/main.go",
			rootDir:  "/home/user/project",
			expected: "src/main.go",
		},
		{
			name:     "nested relative path",
			absPath:  "/home/user/project/internal/core/search.go",
			rootDir:  "/home/user/project",
			expected: "internal/core/search.go",
		},
		{
			name:     "root level file",
			absPath:  "/home/user/project/README.md",
			rootDir:  "/home/user/project",
			expected: "README.md",
		},
		{
			name:     "same directory",
			absPath:  "/home/user/project",
			rootDir:  "/home/user/project",
			expected: ".",
		},
		{
			name:     "already relative path",
			absPath:  "src/main.go",
			rootDir:  "/home/user/project",
			expected: "src/main.go",
		},
		{
			name:     "path outside root - fallback to absolute",
			absPath:  "/other/location/file.go",
			rootDir:  "/home/user/project",
			expected: "/other/location/file.go",
		},
		{
			name:     "empty root directory",
			absPath:  "/home/user/project/file.go",
			rootDir:  "",
			expected: "/home/user/project/file.go",
		},
		{
			name:     "empty absolute path",
			absPath:  "",
			rootDir:  "/home/user/project",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToRelative(tt.absPath, tt.rootDir)
			if runtime.GOOS == "windows" {
				result = filepath.ToSlash(result)
				expected := filepath.ToSlash(tt.expected)
				if result != expected {
					t.Errorf("ToRelative() = %v, want %v", result, expected)
				}
			} else if result != tt.expected {
				t.Errorf("ToRelative() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestDisplayPath(t *testing.T) {
	m := searchtypes.RawFileMatch{Base: "/home/user/project", RelativePath: "src/main.go", Basename: "main.go"}
	got := DisplayPath(m)
	want := filepath.Join("/home/user/project", "src/main.go")
	if got != want {
		t.Errorf("DisplayPath() = %v, want %v", got, want)
	}
}

func TestToRelativeMatches(t *testing.T) {
	rootDir := "/home/user/project"
	matches := []searchtypes.RawFileMatch{
		{Base: rootDir, RelativePath: "src/main.go", Basename: "main.go"},
		{Base: rootDir, RelativePath: "README.md", Basename: "README.md"},
		{Base: "/other/location", RelativePath: "file.go", Basename: "file.go"},
	}

	got := ToRelativeMatches(matches, rootDir)
	want := []string{"src/main.go", "README.md", filepath.Join("/other/location", "file.go")}

	if len(got) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(got))
	}
	for i := range want {
		g, w := got[i], want[i]
		if runtime.GOOS == "windows" {
			g, w = filepath.ToSlash(g), filepath.ToSlash(w)
		}
		if g != w {
			t.Errorf("result %d: got %v, want %v", i, g, w)
		}
	}
}

func TestToRelativeTextMatch(t *testing.T) {
	rootDir := "/home/user/project"
	m := searchtypes.FileTextMatch{AbsolutePath: filepath.Join(rootDir, "src/main.go")}

	got := ToRelativeTextMatch(m, rootDir)
	if got.AbsolutePath != "src/main.go" {
		t.Errorf("expected relative path, got %v", got.AbsolutePath)
	}
}
