// Package grepparse implements the Grep Parser (C4): a stateful
// line-oriented decoder that turns a child grep process's colorized
// stdout into FileTextMatch records (spec.md §4.4).
package grepparse

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/standardbeagle/wsgrep/internal/debug"
	"github.com/standardbeagle/wsgrep/internal/searchtypes"
)

const (
	// matchStart/matchEnd delimit a match run inside a result line,
	// per the grep argv contract (spec.md §6): reset, then red fg.
	matchStart = "\x1b[0m\x1b[31m"
	matchEnd   = "\x1b[0m"
	utf8BOM    = "\xef\xbb\xbf"
)

// fileHeaderRe recognizes a heading line: reset, path, reset, nothing else.
var fileHeaderRe = regexp.MustCompile(`^\x1b\[0m([^\x1b]*)\x1b\[0m$`)

// resultLineRe recognizes "<1-based line number>:<line with markers>".
// The line number is wrapped in its own reset pair, same as the file
// header (spec.md §4.4/§6) since grepdriver always passes
// "--colors line:none". resultLineFallbackRe tolerates a bare,
// unwrapped line number for hand-built fixtures / non-rg greps.
var resultLineRe = regexp.MustCompile(`^\x1b\[0m(\d+)\x1b\[0m:(.*)$`)
var resultLineFallbackRe = regexp.MustCompile(`^(\d+):(.*)$`)

// HitLimitErr is returned by Feed/FeedReader once the parser has emitted
// maxResults matches; the driver (C5) must cancel the child on seeing it.
type HitLimitErr struct{}

func (HitLimitErr) Error() string { return "grep parser hit max-results limit" }

// Sink receives completed FileTextMatch records as they are flushed.
type Sink func(searchtypes.FileTextMatch)

// Parser is the C4 state machine. It is fed complete lines (already
// split on \r?\n by the caller's chunk assembler) and flushes a
// FileTextMatch whenever a new file header line arrives or Flush is
// called explicitly.
type Parser struct {
	sink       Sink
	maxResults int
	emitted    int

	current      *searchtypes.FileTextMatch
	sawFirstLine bool

	// extraFileFallback supplies a synthetic header when grep never
	// emits one because it is searching a single loose file
	// (spec.md §4.4 edge case).
	extraFileFallback string
}

// New creates a parser that calls sink for every completed file and
// stops (returning HitLimitErr from Feed/FeedReader) after maxResults
// matches have been emitted. maxResults <= 0 means unlimited.
func New(sink Sink, maxResults int, extraFileFallback string) *Parser {
	return &Parser{sink: sink, maxResults: maxResults, extraFileFallback: extraFileFallback}
}

// FeedReader drains r line-by-line using the chunk-assembly rule
// (join carried-over remainder with the new chunk, split on \r?\n,
// carry the last possibly-incomplete line forward) and feeds each
// complete line to Feed. It returns HitLimitErr if the limit was hit,
// or any scan error otherwise.
func (p *Parser) FeedReader(r *bufio.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	scanner.Split(splitCRLF)
	for scanner.Scan() {
		if err := p.Feed(scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// splitCRLF is a bufio.SplitFunc that treats both "\n" and "\r\n" as
// line terminators while preserving an incomplete trailing line for
// the next chunk, matching spec.md §4.4's chunk-assembly rule.
func splitCRLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := indexByte(data, '\n'); i >= 0 {
		end := i
		if end > 0 && data[end-1] == '\r' {
			end--
		}
		return i + 1, data[:end], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// Feed processes one complete line of grep output.
func (p *Parser) Feed(line string) error {
	if !p.sawFirstLine {
		p.sawFirstLine = true
		line = strings.TrimPrefix(line, utf8BOM)
	}

	if m := fileHeaderRe.FindStringSubmatch(line); m != nil {
		p.flushCurrent()
		p.current = &searchtypes.FileTextMatch{AbsolutePath: m[1]}
		return nil
	}

	if m := resultLineRe.FindStringSubmatch(line); m != nil {
		return p.feedResultLine(m[1], m[2])
	}
	if m := resultLineFallbackRe.FindStringSubmatch(line); m != nil {
		return p.feedResultLine(m[1], m[2])
	}

	// A line with no file header and no line-number prefix: only
	// tolerated when searching a single loose file, per spec.md §4.4.
	if p.current == nil {
		if p.extraFileFallback == "" {
			debug.CatastrophicError("grepparse: result line with no known file: %q", line)
			return nil
		}
		p.current = &searchtypes.FileTextMatch{AbsolutePath: p.extraFileFallback}
	}
	return nil
}

func (p *Parser) feedResultLine(lineNumStr, text string) error {
	if p.current == nil {
		if p.extraFileFallback == "" {
			debug.CatastrophicError("grepparse: result line with no known file: %q:%q", lineNumStr, text)
			return nil
		}
		p.current = &searchtypes.FileTextMatch{AbsolutePath: p.extraFileFallback}
	}

	lineNum, err := strconv.Atoi(lineNumStr)
	if err != nil {
		debug.CatastrophicError("grepparse: malformed line number %q", lineNumStr)
		return nil
	}
	zeroBasedLine := lineNum - 1

	// A trailing \r immediately before EOL loses its MATCH_END; splice
	// one back in so the final match is not dropped (spec.md §4.4).
	if strings.HasSuffix(text, matchStart) {
		text += matchEnd
	} else if idx := lastUnterminatedMatchStart(text); idx >= 0 {
		text += matchEnd
	}

	var b strings.Builder
	var ranges []searchtypes.Range
	realIdx := 0
	inMatch := false
	matchStartCol := 0

	i := 0
	for i < len(text) {
		if strings.HasPrefix(text[i:], matchStart) {
			inMatch = true
			matchStartCol = realIdx
			i += len(matchStart)
			continue
		}
		if strings.HasPrefix(text[i:], matchEnd) {
			if inMatch {
				ranges = append(ranges, searchtypes.Range{
					StartLine: zeroBasedLine,
					StartCol:  matchStartCol,
					EndLine:   zeroBasedLine,
					EndCol:    realIdx,
				})
				inMatch = false
			}
			i += len(matchEnd)
			continue
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		b.WriteRune(r)
		realIdx++
		i += size
	}

	preview := b.String()
	for _, rg := range ranges {
		p.current.Matches = append(p.current.Matches, searchtypes.PreviewMatch{Preview: preview, Range: rg})
		p.emitted++
	}

	if p.maxResults > 0 && p.emitted >= p.maxResults {
		p.flushCurrent()
		return HitLimitErr{}
	}
	return nil
}

// lastUnterminatedMatchStart reports whether text ends mid-match (a
// MATCH_START with no closing MATCH_END), used for the \r-before-EOL
// edge case when the marker itself was not literally "\r"-adjacent.
func lastUnterminatedMatchStart(text string) int {
	lastStart := strings.LastIndex(text, matchStart)
	if lastStart < 0 {
		return -1
	}
	lastEnd := strings.LastIndex(text, matchEnd)
	if lastEnd <= lastStart {
		return lastStart
	}
	return -1
}

func (p *Parser) flushCurrent() {
	if p.current == nil {
		return
	}
	p.sink(*p.current)
	p.current = nil
}

// Flush finalizes any in-progress FileMatch. Call once after the
// underlying reader is exhausted.
func (p *Parser) Flush() {
	p.flushCurrent()
}

// Emitted returns the number of matches emitted so far, for stats.
func (p *Parser) Emitted() int { return p.emitted }
