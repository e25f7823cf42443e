// Package searchconfig loads ambient search defaults from a
// `.search.kdl` file, consulted by Search Service operation
// extendQuery (spec.md §4.8, SPEC_FULL.md §2.3).
package searchconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"

	wserrors "github.com/standardbeagle/wsgrep/internal/errors"
	"github.com/standardbeagle/wsgrep/internal/searchtypes"
)

// Config holds the ambient defaults a Query is extended with.
type Config struct {
	Excludes       searchtypes.GlobExpression
	Encoding       string
	MaxFileSize    int64
	MaxResults     int
	FollowSymlinks bool
}

// Default returns the built-in fallback, used when no `.search.kdl`
// file is present.
func Default() *Config {
	return &Config{
		Excludes:    defaultExcludes(),
		Encoding:    "utf-8",
		MaxFileSize: 0,
		MaxResults:  0,
	}
}

// Load reads `.search.kdl` from projectRoot, falling back to Default
// when the file does not exist.
func Load(projectRoot string) (*Config, error) {
	path := filepath.Join(projectRoot, ".search.kdl")
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, wserrors.NewConfigError("file", path, err)
	}

	cfg := Default()
	doc, err := kdl.Parse(strings.NewReader(string(content)))
	if err != nil {
		return nil, wserrors.NewConfigError("parse", path, err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "encoding":
			if s, ok := firstStringArg(n); ok {
				cfg.Encoding = s
			}
		case "max_file_size":
			if s, ok := firstStringArg(n); ok {
				size, err := parseSize(s)
				if err != nil {
					return nil, wserrors.NewConfigError("max_file_size", s, err)
				}
				cfg.MaxFileSize = size
			} else if i, ok := firstIntArg(n); ok {
				cfg.MaxFileSize = int64(i)
			}
		case "max_results":
			if i, ok := firstIntArg(n); ok {
				cfg.MaxResults = i
			}
		case "follow_symlinks":
			if b, ok := firstBoolArg(n); ok {
				cfg.FollowSymlinks = b
			}
		case "exclude":
			for _, pattern := range collectStringArgs(n) {
				cfg.Excludes[pattern] = searchtypes.GlobValue{}
			}
		}
	}

	return cfg, nil
}

// ExtendQuery fills Query fields left at their zero value from the
// config's defaults, idempotently (spec.md §4.8 "extendQuery ...
// idempotent"). Fields the caller already set are left untouched.
func (c *Config) ExtendQuery(q *searchtypes.Query) {
	if q.ExcludePattern == nil {
		q.ExcludePattern = searchtypes.GlobExpression{}
	}
	for pattern, val := range c.Excludes {
		if _, exists := q.ExcludePattern[pattern]; !exists {
			q.ExcludePattern[pattern] = val
		}
	}
	for i := range q.Folders {
		if q.Folders[i].Encoding == "" {
			q.Folders[i].Encoding = c.Encoding
		}
	}
	if q.MaxFileSize == 0 {
		q.MaxFileSize = c.MaxFileSize
	}
	if q.MaxResults == 0 {
		q.MaxResults = c.MaxResults
	}
}

func defaultExcludes() searchtypes.GlobExpression {
	patterns := []string{
		"**/.*/**",
		"**/node_modules/**",
		"**/vendor/**",
		"**/dist/**",
		"**/build/**",
		"**/target/**",
		"**/.git/**",
	}
	expr := make(searchtypes.GlobExpression, len(patterns))
	for _, p := range patterns {
		expr[p] = searchtypes.GlobValue{}
	}
	return expr
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

// collectStringArgs reads either inline arguments (`exclude "a" "b"`)
// or block-form children (`exclude { "a" "b" }`).
func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 && len(n.Children) > 0 {
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

// parseSize handles size strings like "10MB", "500KB", "1GB".
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	var multiplier int64 = 1
	var numStr string
	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		numStr = strings.TrimSuffix(s, "B")
	default:
		numStr = s
	}
	num, err := strconv.ParseInt(strings.TrimSpace(numStr), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return num * multiplier, nil
}
