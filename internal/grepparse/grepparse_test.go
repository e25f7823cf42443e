package grepparse

import (
	"bufio"
	"strconv"
	"strings"
	"testing"

	"github.com/standardbeagle/wsgrep/internal/searchtypes"
)

func header(path string) string {
	return "\x1b[0m" + path + "\x1b[0m"
}

// lineNum renders a result line's number field the way a real rg
// invocation does under "--colors line:none" (spec.md §4.4/§6): wrapped
// in its own reset pair, same as the file header.
func lineNum(n int) string {
	return "\x1b[0m" + strconv.Itoa(n) + "\x1b[0m"
}

func TestFeedBasicFileAndMatch(t *testing.T) {
	var got []searchtypes.FileTextMatch
	p := New(func(m searchtypes.FileTextMatch) { got = append(got, m) }, 0, "")

	lines := []string{
		header("/fx/a.go"),
		"3:foo " + matchStart + "bar" + matchEnd + " baz",
	}
	for _, l := range lines {
		if err := p.Feed(l); err != nil {
			t.Fatalf("Feed: %v", err)
		}
	}
	p.Flush()

	if len(got) != 1 {
		t.Fatalf("expected 1 file match, got %d", len(got))
	}
	fm := got[0]
	if fm.AbsolutePath != "/fx/a.go" {
		t.Fatalf("unexpected path: %s", fm.AbsolutePath)
	}
	if len(fm.Matches) != 1 {
		t.Fatalf("expected 1 range, got %d", len(fm.Matches))
	}
	rg := fm.Matches[0].Range
	if rg.StartLine != 2 {
		t.Fatalf("expected 0-based line 2, got %d", rg.StartLine)
	}
	if fm.Matches[0].Preview != "foo bar baz" {
		t.Fatalf("unexpected preview: %q", fm.Matches[0].Preview)
	}
	wantStart, wantEnd := 4, 7
	if rg.StartCol != wantStart || rg.EndCol != wantEnd {
		t.Fatalf("got range [%d,%d), want [%d,%d)", rg.StartCol, rg.EndCol, wantStart, wantEnd)
	}
}

func TestFeedMultipleFilesFlushesOnHeader(t *testing.T) {
	var got []searchtypes.FileTextMatch
	p := New(func(m searchtypes.FileTextMatch) { got = append(got, m) }, 0, "")

	lines := []string{
		header("/fx/a.go"),
		"1:" + matchStart + "hit" + matchEnd,
		header("/fx/b.go"),
		"2:" + matchStart + "hit" + matchEnd,
	}
	for _, l := range lines {
		if err := p.Feed(l); err != nil {
			t.Fatalf("Feed: %v", err)
		}
	}
	p.Flush()

	if len(got) != 2 {
		t.Fatalf("expected 2 files, got %d", len(got))
	}
	if got[0].AbsolutePath != "/fx/a.go" || got[1].AbsolutePath != "/fx/b.go" {
		t.Fatalf("unexpected file order: %+v", got)
	}
}

func TestFeedHonorsMaxResults(t *testing.T) {
	var got []searchtypes.FileTextMatch
	p := New(func(m searchtypes.FileTextMatch) { got = append(got, m) }, 1, "")

	if err := p.Feed(header("/fx/a.go")); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	err := p.Feed("1:" + matchStart + "x" + matchEnd + " " + matchStart + "y" + matchEnd)
	if err == nil {
		t.Fatalf("expected HitLimitErr once max results reached")
	}
	if _, ok := err.(HitLimitErr); !ok {
		t.Fatalf("expected HitLimitErr, got %T", err)
	}
}

func TestFeedSynthesizesHeaderForLooseFile(t *testing.T) {
	var got []searchtypes.FileTextMatch
	p := New(func(m searchtypes.FileTextMatch) { got = append(got, m) }, 0, "/fx/loose.go")

	if err := p.Feed("5:" + matchStart + "hit" + matchEnd); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	p.Flush()

	if len(got) != 1 || got[0].AbsolutePath != "/fx/loose.go" {
		t.Fatalf("expected synthesized loose-file header, got %+v", got)
	}
}

func TestFeedStripsBOMOnlyFirstLine(t *testing.T) {
	var got []searchtypes.FileTextMatch
	p := New(func(m searchtypes.FileTextMatch) { got = append(got, m) }, 0, "")

	if err := p.Feed(utf8BOM + header("/fx/a.go")); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	p.Flush()

	if len(got) != 1 || got[0].AbsolutePath != "/fx/a.go" {
		t.Fatalf("expected BOM stripped from first line, got %+v", got)
	}
}

// TestFeedRealWireFormatLineNumber uses the actual argv contract's
// line-number wrapping (grepdriver.go always passes "--colors
// line:none") rather than a bare "N:" fixture, so a regression that
// only matches the hand-built fixture shape doesn't slip back in.
func TestFeedRealWireFormatLineNumber(t *testing.T) {
	var got []searchtypes.FileTextMatch
	p := New(func(m searchtypes.FileTextMatch) { got = append(got, m) }, 0, "")

	lines := []string{
		header("/fx/a.go"),
		lineNum(3) + ":foo " + matchStart + "bar" + matchEnd + " baz",
	}
	for _, l := range lines {
		if err := p.Feed(l); err != nil {
			t.Fatalf("Feed: %v", err)
		}
	}
	p.Flush()

	if len(got) != 1 {
		t.Fatalf("expected 1 file match, got %d", len(got))
	}
	fm := got[0]
	if len(fm.Matches) != 1 {
		t.Fatalf("expected 1 range, got %d", len(fm.Matches))
	}
	if fm.Matches[0].Range.StartLine != 2 {
		t.Fatalf("expected 0-based line 2, got %d", fm.Matches[0].Range.StartLine)
	}
	if fm.Matches[0].Preview != "foo bar baz" {
		t.Fatalf("unexpected preview: %q", fm.Matches[0].Preview)
	}
}

func TestFeedReaderSplitsOnCRLF(t *testing.T) {
	var got []searchtypes.FileTextMatch
	p := New(func(m searchtypes.FileTextMatch) { got = append(got, m) }, 0, "")

	raw := header("/fx/a.go") + "\r\n" + "1:" + matchStart + "hit" + matchEnd + "\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	if err := p.FeedReader(r); err != nil {
		t.Fatalf("FeedReader: %v", err)
	}
	p.Flush()

	if len(got) != 1 || len(got[0].Matches) != 1 {
		t.Fatalf("expected 1 file with 1 match, got %+v", got)
	}
}
