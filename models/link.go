// Package models defines data structures for the downloader.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Category identifies one group of downloadable content on a listing page.
type Category string

const (
	CategoryEpisode Category = "episode"
	CategoryOVA     Category = "ova"
	CategorySpecial Category = "special"
	CategoryMovie   Category = "movie"
)

// Categories returns every listing category in its fixed processing order.
func Categories() []Category {
	return []Category{CategoryEpisode, CategoryOVA, CategorySpecial, CategoryMovie}
}

// Label returns the plural form used in console output.
func (c Category) Label() string {
	switch c {
	case CategoryEpisode:
		return "Episodes"
	case CategoryOVA:
		return "OVAs"
	case CategorySpecial:
		return "Specials"
	case CategoryMovie:
		return "Movies"
	}
	return string(c)
}

// SelectionPolicy is the ranking rule used to pick one download entry per
// episode page. It is chosen once per run and applied uniformly.
type SelectionPolicy int

const (
	PolicyBiggestSize SelectionPolicy = iota
	PolicyMostDownloaded
	PolicyLatest
)

func (p SelectionPolicy) String() string {
	switch p {
	case PolicyBiggestSize:
		return "biggest"
	case PolicyMostDownloaded:
		return "downloads"
	case PolicyLatest:
		return "latest"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParsePolicy maps a flag value or prompt label to a SelectionPolicy.
func ParsePolicy(s string) (SelectionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "biggest", "size", "biggest size":
		return PolicyBiggestSize, nil
	case "downloads", "most downloaded", "downloaded":
		return PolicyMostDownloaded, nil
	case "latest", "date":
		return PolicyLatest, nil
	}
	return PolicyBiggestSize, fmt.Errorf("unknown selection policy %q", s)
}

// Candidate is one download option extracted from an episode page. Fields
// holds the entry's bold-text values in source order, Anchors every anchor
// href in source order.
type Candidate struct {
	Fields  []string
	Anchors []string
}

// Field returns the i-th bold-text field when present.
func (c Candidate) Field(i int) (string, bool) {
	if i < 0 || i >= len(c.Fields) {
		return "", false
	}
	return c.Fields[i], true
}

// Anchor returns the i-th anchor href when present.
func (c Candidate) Anchor(i int) (string, bool) {
	if i < 0 || i >= len(c.Anchors) {
		return "", false
	}
	return c.Anchors[i], true
}

// Resolution status values. Informational only; they are logged but never
// change control flow.
const (
	StatusSuccess     = "Success"
	StatusNoValidLink = "Failed: no valid link found"
)

// ResolvedLink is the outcome of resolving a single episode page. DownloadURL
// may hold a sentinel "No valid link found ..." string when the page had no
// link on the expected domain. Filename is empty unless custom naming was
// enabled for the run.
type ResolvedLink struct {
	DownloadURL string   `json:"url"`
	EpisodeID   string   `json:"episode"`
	Category    Category `json:"category"`
	Filename    string   `json:"filename,omitempty"`
	Status      string   `json:"status"`
}

// CategoryCounts maps each category to the number of entries discovered for
// it on the listing page.
type CategoryCounts map[Category]int

// Listing is the outcome of extracting a listing page: the anime title, the
// episode-page URLs the user selected (in category order, ascending episode
// number within a category), and the per-category entry counts.
type Listing struct {
	Title  string
	URLs   []string
	Counts CategoryCounts
}

// ResolveRequest describes one resolution run: the ranking policy, the
// episode-page URLs to resolve, the custom-naming settings, and the category
// counts filename padding derives from.
type ResolveRequest struct {
	Policy       SelectionPolicy
	URLs         []string
	CustomNames  bool
	NameTemplate string
	Counts       CategoryCounts
}

// ResolveStats summarizes one resolution run.
type ResolveStats struct {
	StartTime    time.Time
	EndTime      time.Time
	Dispatched   int
	Resolved     int
	Sentinels    int
	ErrorCount   int
	FailedURLs   []string
	ErrorsByType map[string]int
	RetryCount   int
	RequestCount int
}
