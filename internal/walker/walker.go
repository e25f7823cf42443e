// Package walker implements the File Walker (C3): traversal of a root
// folder via one of three backends, producing candidate
// searchtypes.RawFileMatch results (spec.md §4.3).
package walker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/wsgrep/internal/debug"
	wserrors "github.com/standardbeagle/wsgrep/internal/errors"
	"github.com/standardbeagle/wsgrep/internal/globmatch"
	"github.com/standardbeagle/wsgrep/internal/scoring"
	"github.com/standardbeagle/wsgrep/internal/searchtypes"
)

// Binary is the grep executable used for the preferred listing backend
// (spec.md §6 "a grep binary at a configurable filesystem path").
var Binary = "rg"

// GrepDisabled forces the grep-based backend off, e.g. in sandboxes
// where spawning the binary is not permitted.
var GrepDisabled bool

const (
	TraversalGrep = "grep"
	TraversalFind = "find"
	TraversalNode = "node"
)

// Options configures one root folder's walk (spec.md §4.3, §3 Folder query).
type Options struct {
	Root                 string
	Exclude              *globmatch.Matcher
	Include              *globmatch.Matcher
	FilePattern          string
	MaxResults           int
	ExistsOnly           bool
	MaxFileSize          int64
	FollowSymlinks       bool
	DisregardIgnoreFiles bool
}

// Result is the outcome of one root folder's walk.
type Result struct {
	Matches           []searchtypes.RawFileMatch
	LimitHit          bool
	Traversal         string
	DirectoriesWalked int
	FilesWalked       int
}

// chooseBackend implements spec.md §4.3's backend-selection rule:
// native traversal is mandatory whenever per-file size checks are
// needed since external tools don't report sizes reliably.
func chooseBackend(opt Options) string {
	if opt.MaxFileSize > 0 {
		return TraversalNode
	}
	if !GrepDisabled {
		if _, err := exec.LookPath(Binary); err == nil {
			return TraversalGrep
		}
	}
	if runtime.GOOS == "linux" || runtime.GOOS == "darwin" {
		if _, err := exec.LookPath("find"); err == nil {
			return TraversalFind
		}
	}
	return TraversalNode
}

// Walk traverses opt.Root with the appropriate backend and returns
// every candidate surviving exclude/include/file-pattern gates.
func Walk(ctx context.Context, opt Options) (*Result, error) {
	backend := chooseBackend(opt)
	debug.LogWalk("root=%s backend=%s", opt.Root, backend)

	switch backend {
	case TraversalGrep:
		res, err := walkGrep(ctx, opt)
		if err != nil {
			// Grep may be present but fail to spawn (sandboxed PATH,
			// missing exec bit); fall back rather than aborting the root.
			debug.LogWalk("grep backend failed for %s, falling back to native: %v", opt.Root, err)
			return walkNative(ctx, opt)
		}
		return res, nil
	case TraversalFind:
		res, err := walkFind(ctx, opt)
		if err != nil {
			debug.LogWalk("find backend failed for %s, falling back to native: %v", opt.Root, err)
			return walkNative(ctx, opt)
		}
		return res, nil
	default:
		return walkNative(ctx, opt)
	}
}

// WalkMany traverses every folder query's root in parallel, matching
// spec.md §5 "folder roots within one query are traversed in
// parallel; completion is signalled when every root has finished."
// An error from one root aborts only that root's traversal
// (spec.md §7); all per-root errors are aggregated.
func WalkMany(ctx context.Context, opts []Options) ([]*Result, error) {
	results := make([]*Result, len(opts))
	errs := make([]error, len(opts))

	g, gctx := errgroup.WithContext(ctx)
	for i, opt := range opts {
		i, opt := i, opt
		g.Go(func() error {
			res, err := Walk(gctx, opt)
			if err != nil {
				errs[i] = wserrors.NewWalkError("walk", opt.Root, err)
				return nil // don't cancel sibling roots
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	if me := wserrors.NewMultiError(errs); len(me.Errors) > 0 {
		return results, me
	}
	return results, nil
}

// FilterExtraFiles applies step 1 of spec.md §4.3: extra files bypass
// directory walks entirely, filtered against the global exclude and
// matched against include + file pattern directly.
func FilterExtraFiles(extraFiles []string, exclude, include *globmatch.Matcher, filePattern string) []searchtypes.RawFileMatch {
	var out []searchtypes.RawFileMatch
	for _, abs := range extraFiles {
		base := filepath.Dir(abs)
		rel := filepath.Base(abs)
		basename := rel

		if exclude != nil {
			d := exclude.Test(rel, abs, basename)
			if d.Matched {
				continue
			}
		}
		if include != nil {
			d := include.Test(rel, abs, basename)
			if !d.Matched && len(include.BasenameTerms())+len(include.PathTerms()) > 0 {
				continue
			}
		}
		if filePattern != "" && !scoring.IsFuzzyMatch(basename, filePattern) {
			continue
		}
		out = append(out, searchtypes.RawFileMatch{Base: base, RelativePath: rel, Basename: basename})
	}
	return out
}

// excludeArgs renders a Matcher's plain (non-sibling) terms as rg -g
// arguments, negated so they act as excludes (spec.md §4.3 "plain
// excludes are passed as command arguments").
func excludeArgs(m *globmatch.Matcher) []string {
	if m == nil {
		return nil
	}
	var out []string
	for _, t := range m.BasenameTerms() {
		out = append(out, "!"+t)
	}
	for _, t := range m.PathTerms() {
		out = append(out, "!"+t)
	}
	return out
}

func includeArgs(m *globmatch.Matcher) []string {
	if m == nil {
		return nil
	}
	return append(append([]string{}, m.BasenameTerms()...), m.PathTerms()...)
}

// applyLimit applies spec.md §4.3 step 4 to one candidate relative
// path: fuzzy file-pattern test, then result-count/limit bookkeeping.
// Returns (accept, stop).
func applyLimit(relPath, basename, filePattern string, existsOnly bool, maxResults int, count *int) (accept bool, stop bool) {
	if filePattern != "" && !scoring.IsFuzzyMatch(basename, filePattern) {
		return false, false
	}
	*count++
	if existsOnly {
		return true, true
	}
	if maxResults > 0 && *count >= maxResults {
		return true, true
	}
	return true, false
}

// walkGrep implements backend 1: spawn the grep binary with --files
// (no pattern), read newline-separated paths from stdout.
func walkGrep(ctx context.Context, opt Options) (*Result, error) {
	args := []string{"--files", "--hidden"}
	for _, g := range excludeArgs(opt.Exclude) {
		args = append(args, "-g", g)
	}
	for _, g := range includeArgs(opt.Include) {
		args = append(args, "-g", g)
	}
	if opt.DisregardIgnoreFiles {
		args = append(args, "--no-ignore")
	}
	if opt.FollowSymlinks {
		args = append(args, "--follow")
	}
	// Search "." (cmd.Dir is the root) so rg prints root-relative
	// "./"-prefixed paths rather than absolute ones.
	args = append(args, "--no-config", "--no-ignore-global", ".")

	cmd := exec.CommandContext(ctx, Binary, args...)
	cmd.Dir = opt.Root
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	var stderrBuf strings.Builder
	cmd.Stderr = &stderrBuf
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	res := &Result{Traversal: TraversalGrep}
	needTree := opt.Exclude != nil && opt.Exclude.HasSiblingClauses()
	var lines []string
	count := 0

	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimPrefix(sc.Text(), "./")
		if line == "" {
			continue
		}
		if needTree {
			lines = append(lines, line)
			continue
		}
		res.FilesWalked++
		accept, stop := applyLimit(line, filepath.Base(line), opt.FilePattern, opt.ExistsOnly, opt.MaxResults, &count)
		if accept {
			res.Matches = append(res.Matches, searchtypes.RawFileMatch{
				Base: opt.Root, RelativePath: line, Basename: filepath.Base(line),
			})
		}
		if stop {
			res.LimitHit = true
			_ = cmd.Process.Kill()
			break
		}
	}
	waitErr := cmd.Wait()
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok && exitErr.ExitCode() > 1 && !res.LimitHit {
			return nil, wserrors.NewGrepError(strings.Join(args, " "), fmt.Errorf("%s", stderrBuf.String()))
		}
	}

	if needTree {
		res.Matches, res.LimitHit, res.FilesWalked = filterThroughTree(lines, opt)
	}

	return res, nil
}

// walkFind implements backend 2: POSIX find with a -not ( -name ...
// -path ... ) -prune expression built from C1's bare terms
// (spec.md §4.3).
func walkFind(ctx context.Context, opt Options) (*Result, error) {
	// find only accepts -P/-L before the starting path.
	args := []string{"-P"}
	if opt.FollowSymlinks {
		args = []string{"-L"}
	}
	args = append(args, opt.Root)

	var pruneExpr []string
	for _, t := range excludeArgs(opt.Exclude) {
		name := strings.TrimPrefix(t, "!")
		if strings.Contains(name, "/") {
			pruneExpr = append(pruneExpr, "-path", "./"+name, "-o")
		} else {
			pruneExpr = append(pruneExpr, "-name", name, "-o")
		}
	}
	if len(pruneExpr) > 0 {
		pruneExpr = pruneExpr[:len(pruneExpr)-1] // drop trailing -o
		args = append(args, "(")
		args = append(args, pruneExpr...)
		args = append(args, ")", "-prune", "-o")
	}
	args = append(args, "-type", "f", "-print")

	cmd := exec.CommandContext(ctx, "find", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	res := &Result{Traversal: TraversalFind}
	needTree := opt.Exclude != nil && opt.Exclude.HasSiblingClauses()
	var lines []string
	count := 0

	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		abs := sc.Text()
		rel, err := filepath.Rel(opt.Root, abs)
		if err != nil || rel == "." {
			continue
		}
		rel = filepath.ToSlash(rel)
		if needTree {
			lines = append(lines, rel)
			continue
		}
		res.FilesWalked++
		accept, stop := applyLimit(rel, filepath.Base(rel), opt.FilePattern, opt.ExistsOnly, opt.MaxResults, &count)
		if accept {
			res.Matches = append(res.Matches, searchtypes.RawFileMatch{
				Base: opt.Root, RelativePath: rel, Basename: filepath.Base(rel),
			})
		}
		if stop {
			res.LimitHit = true
			_ = cmd.Process.Kill()
			break
		}
	}
	if waitErr := cmd.Wait(); waitErr != nil && !res.LimitHit {
		// A missing or unreadable root makes find exit nonzero; report
		// it so Walk falls back to the native backend.
		return nil, waitErr
	}

	if needTree {
		res.Matches, res.LimitHit, res.FilesWalked = filterThroughTree(lines, opt)
	}

	return res, nil
}

// walkNative implements backend 3: a recursive os.ReadDir traversal
// with lstat + realpath symlink-cycle detection (spec.md §4.3 step 3),
// mandatory whenever MaxFileSize is set.
func walkNative(ctx context.Context, opt Options) (*Result, error) {
	res := &Result{Traversal: TraversalNode}
	// visited holds the real path of every directory already entered,
	// closing symlink cycles regardless of how many hops lead back to
	// a directory already on (or behind) the walk.
	visited := map[string]struct{}{}
	count := 0

	if _, err := os.ReadDir(opt.Root); err != nil {
		return res, wserrors.NewWalkError("readdir", opt.Root, err)
	}

	if real, err := filepath.EvalSymlinks(opt.Root); err == nil {
		visited[real] = struct{}{}
	}

	var walkDir func(dir string) error
	walkDir = func(dir string) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			debug.LogWalk("native: skipping unreadable dir %s: %v", dir, err)
			return nil // transient (spec.md §7 kind 2)
		}
		res.DirectoriesWalked++

		// siblingNames caches this directory's basename set, built lazily
		// and only once, for resolving sibling (`{when: ...}`) glob clauses
		// the same way dirtree.Match does.
		var siblingNames map[string]struct{}
		siblingSet := func() map[string]struct{} {
			if siblingNames == nil {
				siblingNames = make(map[string]struct{}, len(entries))
				for _, e := range entries {
					siblingNames[e.Name()] = struct{}{}
				}
			}
			return siblingNames
		}

		for _, ent := range entries {
			abs := filepath.Join(dir, ent.Name())
			rel, err := filepath.Rel(opt.Root, abs)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			isDir := ent.IsDir()
			if ent.Type()&os.ModeSymlink != 0 {
				if !opt.FollowSymlinks {
					continue
				}
				real, err := filepath.EvalSymlinks(abs)
				if err != nil {
					continue
				}
				info, err := os.Stat(real)
				if err != nil {
					continue
				}
				isDir = info.IsDir()
				if isDir {
					if _, seen := visited[real]; seen {
						continue // cycle
					}
					visited[real] = struct{}{}
				}
				abs = real
			}

			basename := ent.Name()
			if opt.Exclude != nil {
				d := opt.Exclude.Test(rel, abs, basename)
				if isDir {
					dirDecision := opt.Exclude.Test(rel+"/", abs, basename)
					if dirDecision.Matched {
						continue
					}
					if len(dirDecision.Deferred) > 0 && globmatch.ResolveDeferred(dirDecision.Deferred, siblingSet()) {
						continue
					}
				} else {
					if d.Matched {
						continue
					}
					if len(d.Deferred) > 0 && globmatch.ResolveDeferred(d.Deferred, siblingSet()) {
						continue
					}
				}
			}

			if isDir {
				if err := walkDir(abs); err != nil {
					return err
				}
				continue
			}

			if opt.Include != nil && len(opt.Include.BasenameTerms())+len(opt.Include.PathTerms()) > 0 {
				d := opt.Include.Test(rel, abs, basename)
				if !d.Matched {
					continue
				}
			}

			if opt.MaxFileSize > 0 {
				info, err := ent.Info()
				if err != nil || info.Size() > opt.MaxFileSize {
					continue
				}
			}

			res.FilesWalked++
			accept, stop := applyLimit(rel, basename, opt.FilePattern, opt.ExistsOnly, opt.MaxResults, &count)
			if accept {
				sizePtr := (*int64)(nil)
				if opt.MaxFileSize > 0 {
					if info, err := ent.Info(); err == nil {
						sz := info.Size()
						sizePtr = &sz
					}
				}
				res.Matches = append(res.Matches, searchtypes.RawFileMatch{
					Base: opt.Root, RelativePath: rel, Basename: basename, Size: sizePtr,
				})
			}
			if stop {
				res.LimitHit = true
				return errStop
			}
		}
		return nil
	}

	if err := walkDir(opt.Root); err != nil && err != errStop {
		if err == ctx.Err() {
			return res, wserrors.NewCancelError()
		}
		return res, wserrors.NewWalkError("readdir", opt.Root, err)
	}
	return res, nil
}

var errStop = fmt.Errorf("walker: limit reached")

// filterThroughTree is the sibling-clause post-filter step 2 applies
// when the Glob Matcher has any `{when: ...}` clause left after
// argument synthesis (spec.md §4.3: "sibling-dependent excludes...
// are post-applied by feeding the command's output through the
// Directory Tree"). Declared in tree.go to keep C2 wiring local.
