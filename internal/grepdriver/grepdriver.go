// Package grepdriver implements the Grep Driver (C5): building the
// child grep argv from a Query, spawning it, and feeding its stdout to
// the Grep Parser (C4), enforcing the exit-code and stderr-whitelist
// policy of spec.md §4.5 and §6.
package grepdriver

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"regexp"
	"strings"
	"sync"
	"syscall"

	wserrors "github.com/standardbeagle/wsgrep/internal/errors"
	"github.com/standardbeagle/wsgrep/internal/grepparse"
	"github.com/standardbeagle/wsgrep/internal/searchtypes"
)

// liveChildren tracks running child processes so a process-wide exit
// handler can signal them all on parent shutdown (spec.md §4.5).
var (
	liveChildren   = map[*exec.Cmd]struct{}{}
	liveChildrenMu sync.Mutex
	exitHandlerSet bool
	exitHandlerCh  chan os.Signal
)

func registerChild(cmd *exec.Cmd) {
	liveChildrenMu.Lock()
	defer liveChildrenMu.Unlock()
	liveChildren[cmd] = struct{}{}
	if !exitHandlerSet {
		installExitHandlerLocked()
	}
}

func unregisterChild(cmd *exec.Cmd) {
	liveChildrenMu.Lock()
	defer liveChildrenMu.Unlock()
	delete(liveChildren, cmd)
	if len(liveChildren) == 0 && exitHandlerSet {
		uninstallExitHandlerLocked()
	}
}

// installExitHandlerLocked wires SIGINT/SIGTERM to terminate every
// live child before the parent process exits. Callers hold liveChildrenMu.
func installExitHandlerLocked() {
	exitHandlerCh = make(chan os.Signal, 1)
	signal.Notify(exitHandlerCh, os.Interrupt, syscall.SIGTERM)
	exitHandlerSet = true
	go func() {
		if _, ok := <-exitHandlerCh; !ok {
			return
		}
		liveChildrenMu.Lock()
		for cmd := range liveChildren {
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
		}
		liveChildrenMu.Unlock()
	}()
}

// uninstallExitHandlerLocked removes the signal handler once no
// children remain (spec.md §4.5: "uninstalled at normal termination").
// Callers hold liveChildrenMu.
func uninstallExitHandlerLocked() {
	signal.Stop(exitHandlerCh)
	close(exitHandlerCh)
	exitHandlerSet = false
}

// Binary is the configurable filesystem path to the grep executable
// (spec.md §6 "Consumed: a grep binary at a configurable filesystem path").
var Binary = "rg"

// fatalStderrPrefixes whitelists known user-fatal stderr first lines
// (spec.md §4.5, §7 kind 1).
var fatalStderrPrefixes = []string{
	"regex parse error",
	"error parsing glob",
	"unsupported encoding",
	"error: Invalid",
}

// Options configures one grep-driver invocation, derived from a Query.
type Options struct {
	Content        *searchtypes.ContentPattern
	Folders        []string
	ExtraFiles     []string
	GlobArgs       []string // -g args already synthesized by the caller (C1 terms)
	HoistedGlobs   []string // globs shared by every folder query, hoisted once
	MaxFileSize    int64
	NoIgnoreFiles  bool
	NoIgnoreParent bool
	FollowSymlinks bool
	Encoding       string
	MaxResults     int
}

// BuildArgs synthesizes the argv for the child process, matching the
// grep argv contract of spec.md §6.
func BuildArgs(opt Options) ([]string, error) {
	args := []string{
		"--hidden",
		"--heading",
		"--line-number",
		"--color", "ansi",
		"--colors", "path:none",
		"--colors", "line:none",
		"--colors", "match:fg:red",
		"--colors", "match:style:nobold",
	}

	if opt.Content != nil && opt.Content.IsCaseSensitive {
		args = append(args, "--case-sensitive")
	} else {
		args = append(args, "--ignore-case")
	}

	for _, g := range opt.GlobArgs {
		args = append(args, "-g", g)
	}
	for _, g := range opt.HoistedGlobs {
		args = append(args, "-g", g)
	}

	if opt.MaxFileSize > 0 {
		args = append(args, "--max-filesize", fmt.Sprintf("%d", opt.MaxFileSize))
	}

	if opt.NoIgnoreFiles {
		args = append(args, "--no-ignore")
	} else if opt.NoIgnoreParent {
		args = append(args, "--no-ignore-parent")
	}

	if opt.FollowSymlinks {
		args = append(args, "--follow")
	}

	if opt.Encoding != "" {
		args = append(args, "--encoding", opt.Encoding)
	}

	args = append(args, "--no-config", "--no-ignore-global")

	pattern, isRegex, err := synthesizePattern(opt.Content)
	if err != nil {
		return nil, err
	}

	if isRegex {
		args = append(args, "--regexp", pattern)
	} else {
		args = append(args, "--fixed-strings")
	}
	args = append(args, "--")
	if !isRegex {
		args = append(args, pattern)
	}

	args = append(args, opt.Folders...)
	args = append(args, opt.ExtraFiles...)

	return args, nil
}

var trailingDollarRe = regexp.MustCompile(`(^|[^\\])\$$`)

// synthesizePattern builds the positional PATTERN argument per
// spec.md §4.5 "Pattern synthesis": word-bound for word matches,
// rewrite a trailing unescaped "$" to "\r?$" for CRLF files, and force
// regex mode + escaping when the user typed exactly "--".
func synthesizePattern(cp *searchtypes.ContentPattern) (string, bool, error) {
	if cp == nil {
		return "", false, fmt.Errorf("grepdriver: content pattern required for text search")
	}

	pattern := cp.Pattern
	isRegex := cp.IsRegExp

	if pattern == "--" {
		isRegex = true
		// regexp.QuoteMeta leaves '-' alone, so escape it by hand.
		pattern = `\-\-`
	}

	if isRegex && trailingDollarRe.MatchString(pattern) {
		pattern = trailingDollarRe.ReplaceAllString(pattern, `$1\r?$`)
	}

	if cp.IsWordMatch {
		body := pattern
		if !isRegex {
			body = regexp.QuoteMeta(body)
		}
		isRegex = true
		seps := cp.WordSeparators
		if seps == "" {
			pattern = `\b` + body + `\b`
		} else {
			class := "[" + regexp.QuoteMeta(seps) + "]|^|$"
			pattern = fmt.Sprintf(`(?:%s)%s(?:%s)`, class, body, class)
		}
	}

	return pattern, isRegex, nil
}

// Spawn starts the child process with the given argv and feeds its
// stdout to parser until the process exits or ctx is canceled. It
// returns (exitCode, stderrText, err) where err is non-nil for a spawn
// failure, or context.Canceled when ctx was canceled while the child
// ran; exit-code/stderr policy is left to the caller
// (Evaluate) so HitLimitErr can still be distinguished from a crash.
func Spawn(ctx context.Context, argv []string, cwd string, parser *grepparse.Parser) (exitCode int, stderrText string, spawnErr error) {
	cmd := exec.CommandContext(ctx, Binary, argv...)
	cmd.Dir = cwd

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, "", wserrors.NewGrepError(strings.Join(argv, " "), err)
	}
	var stderrBuf strings.Builder
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return -1, "", wserrors.NewGrepError(strings.Join(argv, " "), err)
	}
	registerChild(cmd)
	defer unregisterChild(cmd)

	var wg sync.WaitGroup
	wg.Add(1)
	var parseErr error
	go func() {
		defer wg.Done()
		r := bufio.NewReader(stdout)
		parseErr = parser.FeedReader(r)
		parser.Flush()
	}()
	wg.Wait()

	if _, isLimit := parseErr.(grepparse.HitLimitErr); isLimit {
		// The parser stopped reading once maxResults was reached; kill
		// the child rather than let it block writing to a stdout pipe
		// nobody drains any further.
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		_ = cmd.Wait()
		return 0, stderrBuf.String(), nil
	}

	waitErr := cmd.Wait()
	code := 0
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
	} else if waitErr != nil && ctx.Err() != nil {
		return -1, stderrBuf.String(), context.Canceled
	}

	return code, stderrBuf.String(), nil
}

// Evaluate applies the exit-code and stderr-whitelist policy of
// spec.md §4.5/§7: exit 0, or exit 1 with data already received
// (grep's "no match"), is success; otherwise the first whitelisted
// stderr line becomes a user-fatal GrepError, else a generic crash
// GrepError.
func Evaluate(exitCode int, stderrText string, matchesEmitted int) error {
	if exitCode == 0 {
		return nil
	}
	if exitCode == 1 {
		// rg/grep use exit 1 for "no matches found" - success either way.
		return nil
	}

	firstLine := firstStderrLine(stderrText)
	for _, prefix := range fatalStderrPrefixes {
		if strings.HasPrefix(firstLine, prefix) {
			return wserrors.NewGrepError(firstLine, fmt.Errorf("%s", firstLine)).
				WithExit(exitCode, firstLine).WithUserFatal(true)
		}
	}

	return wserrors.NewGrepError(firstLine, fmt.Errorf("%s", stderrText)).
		WithExit(exitCode, strings.TrimSpace(stderrText))
}

func firstStderrLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
