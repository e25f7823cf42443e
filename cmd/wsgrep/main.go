package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/wsgrep/internal/debug"
	"github.com/standardbeagle/wsgrep/internal/searchconfig"
	"github.com/standardbeagle/wsgrep/internal/searchservice"
	"github.com/standardbeagle/wsgrep/internal/searchtypes"
	"github.com/standardbeagle/wsgrep/internal/version"
	"github.com/standardbeagle/wsgrep/pkg/pathutil"
)

func main() {
	app := &cli.App{
		Name:                   "wsgrep",
		Usage:                  "workspace-aware file and text search",
		Version:                version.FullInfo(),
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Show debug information"},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				debug.EnableDebug = "true"
				debug.SetDebugOutput(os.Stderr)
			}
			return nil
		},
		Commands: []*cli.Command{
			filesCommand(),
			textCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "wsgrep:", err)
		os.Exit(1)
	}
}

func sharedFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{Name: "exclude", Aliases: []string{"e"}, Usage: "Exclude glob (repeatable)"},
		&cli.StringSliceFlag{Name: "include", Aliases: []string{"i"}, Usage: "Include glob (repeatable)"},
		&cli.IntFlag{Name: "max-results", Aliases: []string{"m"}, Usage: "Stop after N results"},
		&cli.Int64Flag{Name: "max-filesize", Usage: "Skip files larger than N bytes"},
		&cli.BoolFlag{Name: "no-ignore", Usage: "Disregard .gitignore and similar ignore files"},
		&cli.BoolFlag{Name: "follow", Usage: "Follow symbolic links"},
		&cli.StringFlag{Name: "cache-key", Usage: "Stable key to reuse the prefix cache across invocations"},
		&cli.BoolFlag{Name: "json", Usage: "Emit the raw progress stream as newline-delimited JSON"},
	}
}

func filesCommand() *cli.Command {
	return &cli.Command{
		Name:      "files",
		Usage:     "Fuzzy-match file paths under one or more roots",
		ArgsUsage: "PATTERN ROOT...",
		Flags:     sharedFlags(),
		Action: func(c *cli.Context) error {
			args := c.Args().Slice()
			if len(args) < 1 {
				return cli.Exit("usage: wsgrep files PATTERN [ROOT...]", 1)
			}
			pattern := args[0]
			roots := args[1:]
			if len(roots) == 0 {
				roots = []string{"."}
			}

			query := &searchtypes.Query{
				FilePattern:          pattern,
				ExcludePattern:       globExprFrom(c.StringSlice("exclude")),
				IncludePattern:       globExprFrom(c.StringSlice("include")),
				MaxResults:           c.Int("max-results"),
				MaxFileSize:          c.Int64("max-filesize"),
				DisregardIgnoreFiles: c.Bool("no-ignore"),
				FollowSymlinks:       c.Bool("follow"),
				CacheKey:             c.String("cache-key"),
				SortByScore:          pattern != "",
			}
			for _, root := range roots {
				abs, err := filepath.Abs(root)
				if err != nil {
					return err
				}
				query.Folders = append(query.Folders, searchtypes.FolderQuery{Root: abs})
			}

			return runQuery(c, query)
		},
	}
}

func textCommand() *cli.Command {
	return &cli.Command{
		Name:      "text",
		Usage:     "Search file contents via the grep driver",
		ArgsUsage: "PATTERN ROOT...",
		Flags: append(sharedFlags(),
			&cli.BoolFlag{Name: "regexp", Aliases: []string{"E"}, Usage: "Interpret PATTERN as a regular expression"},
			&cli.BoolFlag{Name: "case-sensitive", Aliases: []string{"s"}, Usage: "Case-sensitive match"},
			&cli.BoolFlag{Name: "word-regexp", Aliases: []string{"w"}, Usage: "Match whole words only"},
		),
		Action: func(c *cli.Context) error {
			args := c.Args().Slice()
			if len(args) < 1 {
				return cli.Exit("usage: wsgrep text PATTERN [ROOT...]", 1)
			}
			pattern := args[0]
			roots := args[1:]
			if len(roots) == 0 {
				roots = []string{"."}
			}

			query := &searchtypes.Query{
				ContentPattern: &searchtypes.ContentPattern{
					Pattern:         pattern,
					IsRegExp:        c.Bool("regexp"),
					IsCaseSensitive: c.Bool("case-sensitive"),
					IsWordMatch:     c.Bool("word-regexp"),
				},
				ExcludePattern:       globExprFrom(c.StringSlice("exclude")),
				IncludePattern:       globExprFrom(c.StringSlice("include")),
				MaxResults:           c.Int("max-results"),
				MaxFileSize:          c.Int64("max-filesize"),
				DisregardIgnoreFiles: c.Bool("no-ignore"),
				FollowSymlinks:       c.Bool("follow"),
				CacheKey:             c.String("cache-key"),
			}
			for _, root := range roots {
				abs, err := filepath.Abs(root)
				if err != nil {
					return err
				}
				query.Folders = append(query.Folders, searchtypes.FolderQuery{Root: abs})
			}

			return runQuery(c, query)
		},
	}
}

func globExprFrom(patterns []string) searchtypes.GlobExpression {
	if len(patterns) == 0 {
		return nil
	}
	expr := make(searchtypes.GlobExpression, len(patterns))
	for _, p := range patterns {
		expr[p] = searchtypes.GlobValue{}
	}
	return expr
}

// runQuery extends the query from ambient config, dispatches it to the
// Search Service, and renders the progress stream until a terminal
// item or an interrupt cancels it.
func runQuery(c *cli.Context, query *searchtypes.Query) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg, err := searchconfig.Load(cwd)
	if err != nil {
		return err
	}

	if query.CacheKey == "" {
		query.CacheKey = version.BuildID()
	}

	svc := searchservice.New()
	svc.ExtendQuery(query, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	asJSON := c.Bool("json")
	enc := json.NewEncoder(os.Stdout)

	var exitErr error
	for item := range svc.Search(ctx, query) {
		switch {
		case item.Kind == searchtypes.ProgressKindMatch && item.FileMatch != nil:
			if asJSON {
				_ = enc.Encode(item.FileMatch)
			} else {
				fmt.Println(pathutil.ToRelative(pathutil.DisplayPath(*item.FileMatch), cwd))
			}
		case item.Kind == searchtypes.ProgressKindMatch && item.TextMatch != nil:
			rel := pathutil.ToRelativeTextMatch(*item.TextMatch, cwd)
			if asJSON {
				_ = enc.Encode(rel)
			} else {
				printTextMatch(rel)
			}
		case item.Kind == searchtypes.ProgressKindSuccess:
			if asJSON {
				_ = enc.Encode(item.Stats)
			}
		case item.Kind == searchtypes.ProgressKindError:
			exitErr = item.Err
		}
	}

	if exitErr != nil {
		return cli.Exit(exitErr.Error(), 2)
	}
	return nil
}

func printTextMatch(m searchtypes.FileTextMatch) {
	for _, mm := range m.Matches {
		fmt.Printf("%s:%d: %s\n", m.AbsolutePath, mm.Range.StartLine+1, mm.Preview)
	}
}
