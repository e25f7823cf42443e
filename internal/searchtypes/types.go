// Package searchtypes holds the wire-level data model shared by every
// component of the core search subsystem (spec.md §3 DATA MODEL).
package searchtypes

import "encoding/json"

// FolderQuery is a single root folder plus the excludes/includes/encoding
// that apply to it (GLOSSARY: Folder query).
type FolderQuery struct {
	Root               string          `json:"root"`
	ExcludePattern     GlobExpression  `json:"excludePattern,omitempty"`
	IncludePattern     GlobExpression  `json:"includePattern,omitempty"`
	Encoding           string          `json:"encoding,omitempty"`
	DisregardIgnoreFiles bool          `json:"disregardIgnoreFiles,omitempty"`
}

// GlobValue is either a plain boolean (always exclude/include) or a
// sibling predicate `{when: "$(basename).ext"}`. A zero-value
// GlobValue (neither Bool nor When set) counts as true.
type GlobValue struct {
	Bool *bool
	When string
}

// IsSibling reports whether this glob value is a sibling-dependent clause.
func (v GlobValue) IsSibling() bool { return v.When != "" }

// BoolValue reports the effective boolean, defaulting to true when
// neither Bool nor When was set (the common "just exclude this" case).
func (v GlobValue) BoolValue() bool {
	if v.Bool != nil {
		return *v.Bool
	}
	return true
}

// MarshalJSON renders booleans as bare JSON booleans and sibling
// clauses as `{"when": "..."}`, matching the wire format spec.md §3
// describes.
func (v GlobValue) MarshalJSON() ([]byte, error) {
	if v.When != "" {
		return json.Marshal(struct {
			When string `json:"when"`
		}{v.When})
	}
	return json.Marshal(v.BoolValue())
}

// UnmarshalJSON accepts either a bare boolean or a `{"when": "..."}` object.
func (v *GlobValue) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		v.Bool = &b
		v.When = ""
		return nil
	}
	var obj struct {
		When string `json:"when"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	v.When = obj.When
	v.Bool = nil
	return nil
}

// GlobExpression is a mapping from glob string to GlobValue (spec.md §3).
type GlobExpression map[string]GlobValue

// ContentPattern describes a text-search pattern (spec.md §3).
type ContentPattern struct {
	Pattern         string `json:"pattern"`
	IsRegExp        bool   `json:"isRegExp,omitempty"`
	IsCaseSensitive bool   `json:"isCaseSensitive,omitempty"`
	IsWordMatch     bool   `json:"isWordMatch,omitempty"`
	WordSeparators  string `json:"wordSeparators,omitempty"`
}

// PreviewOptions bounds how much context to keep around a match (spec.md §3).
type PreviewOptions struct {
	MatchLines    int `json:"matchLines,omitempty"`
	CharsBefore   int `json:"charsBefore,omitempty"`
	CharsAfter    int `json:"charsAfter,omitempty"`
}

// Query is a single search request, covering both file search and text
// search (spec.md §3 DATA MODEL).
type Query struct {
	Folders              []FolderQuery   `json:"folders"`
	ExtraFiles           []string        `json:"extraFiles,omitempty"`
	FilePattern          string          `json:"filePattern,omitempty"`
	IncludePattern       GlobExpression  `json:"includePattern,omitempty"`
	ExcludePattern       GlobExpression  `json:"excludePattern,omitempty"`
	MaxResults           int             `json:"maxResults,omitempty"`
	ExistsOnly           bool            `json:"existsOnly,omitempty"`
	MaxFileSize          int64           `json:"maxFileSize,omitempty"`
	SortByScore          bool            `json:"sortByScore,omitempty"`
	CacheKey             string          `json:"cacheKey,omitempty"`
	DisregardIgnoreFiles bool            `json:"disregardIgnoreFiles,omitempty"`
	FollowSymlinks       bool            `json:"followSymlinks,omitempty"`

	// Text search only.
	ContentPattern *ContentPattern `json:"contentPattern,omitempty"`
	Preview        PreviewOptions  `json:"previewOptions,omitempty"`
}

// IsTextSearch reports whether the query is a text search rather than
// a file-pattern search.
func (q *Query) IsTextSearch() bool { return q.ContentPattern != nil }

// RawFileMatch is a candidate file surfaced by the File Walker (C3).
// Invariant: base + "/" + RelativePath == AbsolutePath, and
// Basename == leafname(RelativePath) (spec.md §3).
type RawFileMatch struct {
	Base         string `json:"base"`
	RelativePath string `json:"relativePath"`
	Basename     string `json:"basename"`
	Size         *int64 `json:"size,omitempty"`
}

// Range is a 0-based match span within a single line (spec.md §3).
type Range struct {
	StartLine int `json:"startLine"`
	StartCol  int `json:"startCol"`
	EndLine   int `json:"endLine"`
	EndCol    int `json:"endCol"`
}

// PreviewMatch is one matched span plus the rendered preview text it
// was found in.
type PreviewMatch struct {
	Preview string `json:"preview"`
	Range   Range  `json:"range"`
}

// FileTextMatch collects every text match found within one file
// (spec.md §3). Invariant: ranges within a file are produced in
// output order.
type FileTextMatch struct {
	AbsolutePath string         `json:"absolutePath"`
	Matches      []PreviewMatch `json:"matches"`
}

// Stats accompanies the terminal success item (spec.md §6).
type Stats struct {
	Traversal          string  `json:"traversal"`
	FileWalkTimeMS     int64   `json:"fileWalkTime"`
	CmdTimeMS          int64   `json:"cmdTime"`
	DirectoriesWalked  int     `json:"directoriesWalked"`
	FilesWalked        int     `json:"filesWalked"`
	CmdResultCount     int     `json:"cmdResultCount"`
	SortingTimeMS      *int64  `json:"sortingTime,omitempty"`
	FromCache          bool    `json:"fromCache,omitempty"`
	ResultCount        int     `json:"resultCount"`
}

// ProgressItemKind discriminates the union of progress-stream payloads.
type ProgressItemKind int

const (
	ProgressKindMatch ProgressItemKind = iota
	ProgressKindInfo
	ProgressKindSuccess
	ProgressKindError
)

// ProgressItem is one element of the cancellable progress stream
// produced by Search Service operation `search` (spec.md §6).
type ProgressItem struct {
	Kind ProgressItemKind

	// ProgressKindMatch
	FileMatch *RawFileMatch
	TextMatch *FileTextMatch

	// ProgressKindInfo
	Message string
	Total   int
	Worked  int

	// ProgressKindSuccess
	LimitHit bool
	Stats    Stats

	// ProgressKindError
	Err error
}

// IsTerminal reports whether this item ends the stream.
func (p ProgressItem) IsTerminal() bool {
	return p.Kind == ProgressKindSuccess || p.Kind == ProgressKindError
}
