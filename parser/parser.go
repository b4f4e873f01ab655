package parser

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/phase7/Tokyo-Downloader/models"
)

// Bold-text field positions of a download entry. The site renders a row's
// metadata as a fixed sequence of <b> elements; this block is the only place
// that ordering is encoded.
const (
	FieldName      = 0
	FieldSize      = 1
	FieldDownloads = 2
	FieldUploader  = 3
	FieldDate      = 4
)

// DownloadAnchor is the position of the real download href among an entry's
// anchors. The first anchor on this site is a non-download link.
const DownloadAnchor = 1

// DateFormat is the upload-date layout used on episode pages (MM/DD/YY).
const DateFormat = "01/02/06"

// ParseSize converts a human-readable size like "345.6 MB" or "1.5 GB" to
// megabytes. ok is false when the text carries neither unit marker or no
// parseable number, in which case the value degrades to 0.
func ParseSize(text string) (float64, bool) {
	s := strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(text, ",", "")))
	var mult float64
	switch {
	case strings.Contains(s, "GB"):
		mult = 1024
		s = strings.ReplaceAll(s, "GB", "")
	case strings.Contains(s, "MB"):
		mult = 1
		s = strings.ReplaceAll(s, "MB", "")
	default:
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return n * mult, true
}

// ParseDate parses an upload date in DateFormat. ok is false on any parse
// failure, in which case the value degrades to the zero time, which orders
// before every real date.
func ParseDate(text string) (time.Time, bool) {
	t, err := time.Parse(DateFormat, strings.TrimSpace(text))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// EpisodeSortKey returns the numeric order of an episode id. ok is false for
// ids that are not plain integers ("special"); those order after every
// numeric id.
func EpisodeSortKey(id string) (int, bool) {
	n, err := strconv.Atoi(id)
	if err != nil {
		return 0, false
	}
	return n, true
}

// LessByEpisodeID orders two episode ids: numeric ascending first, then
// non-numeric ids in their existing order.
func LessByEpisodeID(a, b string) bool {
	ka, aok := EpisodeSortKey(a)
	kb, bok := EpisodeSortKey(b)
	if aok && bok {
		return ka < kb
	}
	return aok && !bok
}

// SelectBest ranks candidates ascending by the policy key and returns the
// last one (largest, most downloaded, or latest). Ties keep source order, so
// the later-listed of two equal entries wins. ok is false for an empty slice.
func SelectBest(policy models.SelectionPolicy, cands []models.Candidate) (models.Candidate, bool) {
	if len(cands) == 0 {
		return models.Candidate{}, false
	}
	ranked := make([]models.Candidate, len(cands))
	copy(ranked, cands)
	switch policy {
	case models.PolicyMostDownloaded:
		sort.SliceStable(ranked, func(i, j int) bool {
			return downloadsKey(ranked[i]) < downloadsKey(ranked[j])
		})
	case models.PolicyLatest:
		sort.SliceStable(ranked, func(i, j int) bool {
			return dateKey(ranked[i]).Before(dateKey(ranked[j]))
		})
	default:
		sort.SliceStable(ranked, func(i, j int) bool {
			return sizeKey(ranked[i]) < sizeKey(ranked[j])
		})
	}
	return ranked[len(ranked)-1], true
}

func sizeKey(c models.Candidate) float64 {
	f, ok := c.Field(FieldSize)
	if !ok {
		return 0
	}
	mb, _ := ParseSize(f)
	return mb
}

func downloadsKey(c models.Candidate) int {
	f, ok := c.Field(FieldDownloads)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(f))
	if err != nil {
		return 0
	}
	return n
}

func dateKey(c models.Candidate) time.Time {
	f, ok := c.Field(FieldDate)
	if !ok {
		return time.Time{}
	}
	t, _ := ParseDate(f)
	return t
}
