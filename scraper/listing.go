package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html"

	"github.com/phase7/Tokyo-Downloader/models"
)

// RangeSelector chooses an inclusive 1-based episode range for one category.
// Range position 1 is the last-listed entry, matching the site's newest-first
// ordering. Implementations return skip=true to take nothing from the
// category; the CLI implements this with a prompt, tests with a script.
type RangeSelector interface {
	SelectRange(category models.Category, count int) (start, end int, skip bool, err error)
}

// listingEntry is one download-link element from the listing page: its
// resolved href, the <em> labels that decide category membership, and the
// element's first text node (index 3 of the episode group carries the anime
// title).
type listingEntry struct {
	href      string
	labels    []string
	firstText string
}

func (e listingEntry) inCategory(cat models.Category) bool {
	for _, l := range e.labels {
		if l == string(cat) {
			return true
		}
	}
	return false
}

// ExtractListing fetches the listing page, partitions its download entries
// into categories, and asks sel for the range to take from each non-empty
// category. The returned listing carries the selected episode-page URLs in
// category order (ascending episode number within a category) and the
// per-category counts used later for filename padding.
func (s *Scraper) ExtractListing(ctx context.Context, sel RangeSelector) (*models.Listing, error) {
	if sel == nil {
		return nil, fmt.Errorf("range selector cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.configureHandlers()

	slog.Info("extracting links from listing page", slog.String("url", s.cfg.ListingURL))

	cctx := colly.NewContext()
	cctx.Put(ctxKind, pageListing)
	if err := s.collector.Request(http.MethodGet, s.cfg.ListingURL, nil, cctx, nil); err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	s.collector.Wait()

	s.mu.Lock()
	entries, lerr := s.listingEntries, s.listingErr
	s.mu.Unlock()
	if lerr != nil {
		return nil, fmt.Errorf("fetch listing: %w", lerr)
	}
	if entries == nil {
		return nil, fmt.Errorf("listing page produced no content")
	}

	counts := make(models.CategoryCounts, 4)
	byCategory := make(map[models.Category][]listingEntry, 4)
	for _, cat := range models.Categories() {
		var group []listingEntry
		for _, e := range entries {
			if e.inCategory(cat) {
				group = append(group, e)
			}
		}
		byCategory[cat] = group
		counts[cat] = len(group)
	}

	title := ""
	if eps := byCategory[models.CategoryEpisode]; len(eps) > 3 {
		title = strings.TrimSpace(eps[3].firstText)
	}
	if title != "" {
		slog.Info("anime name", slog.String("title", title))
	} else {
		slog.Warn("listing carries no readable anime title",
			slog.Int("episodes", counts[models.CategoryEpisode]),
		)
	}

	var urls []string
	for _, cat := range models.Categories() {
		group := byCategory[cat]
		if len(group) == 0 {
			continue
		}
		start, end, skip, err := sel.SelectRange(cat, len(group))
		if err != nil {
			return nil, fmt.Errorf("select %s range: %w", cat, err)
		}
		if skip {
			continue
		}
		if start < 1 || end > len(group) || start > end {
			return nil, fmt.Errorf("invalid %s range %d-%d (%d entries)", cat, start, end, len(group))
		}
		// Position 1 is the last-listed entry, so episode n is group[len-n].
		for i := start; i <= end; i++ {
			e := group[len(group)-i]
			if e.href == "" {
				slog.Warn("listing entry has no link",
					slog.String("category", string(cat)),
					slog.Int("episode", i),
				)
				continue
			}
			urls = append(urls, e.href)
		}
	}

	return &models.Listing{Title: title, URLs: urls, Counts: counts}, nil
}

func (s *Scraper) handleListingPage(r *colly.Response) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	if err != nil {
		s.mu.Lock()
		s.listingErr = fmt.Errorf("parse listing page: %w", err)
		s.mu.Unlock()
		return
	}

	entries := []listingEntry{}
	doc.Find(".download-link").Each(func(_ int, sel *goquery.Selection) {
		e := listingEntry{firstText: firstTextNode(sel)}
		if href, ok := sel.Attr("href"); ok {
			e.href = r.Request.AbsoluteURL(href)
		}
		sel.Find("em").Each(func(_ int, em *goquery.Selection) {
			e.labels = append(e.labels, em.Text())
		})
		entries = append(entries, e)
	})

	s.mu.Lock()
	s.listingEntries = entries
	s.mu.Unlock()
}

// firstTextNode returns the content of the element's first direct text
// node, or "" when the element starts with child elements only.
func firstTextNode(sel *goquery.Selection) string {
	if len(sel.Nodes) == 0 {
		return ""
	}
	for n := sel.Nodes[0].FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.TextNode {
			return n.Data
		}
	}
	return ""
}
