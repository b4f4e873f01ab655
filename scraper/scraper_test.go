package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/phase7/Tokyo-Downloader/config"
	"github.com/phase7/Tokyo-Downloader/models"
)

const testListingURL = "http://example.test/anime/B/Bleach_TV"

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.ListingURL = testListingURL
	cfg.MaxRetries = 0
	cfg.RetryBackoff = 5 * time.Millisecond
	cfg.RetryBackoffMax = 50 * time.Millisecond
	return cfg
}

type rangeChoice struct {
	start, end int
	skip       bool
}

// scriptedSelector answers range prompts from a fixed table, taking the full
// range for categories it has no entry for.
type scriptedSelector struct {
	mu      sync.Mutex
	choices map[models.Category]rangeChoice
	err     error
	calls   []models.Category
}

func (ss *scriptedSelector) SelectRange(category models.Category, count int) (int, int, bool, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.calls = append(ss.calls, category)
	if ss.err != nil {
		return 0, 0, false, ss.err
	}
	if choice, ok := ss.choices[category]; ok {
		return choice.start, choice.end, choice.skip, nil
	}
	return 1, count, false, nil
}

type collectingSink struct {
	mu    sync.Mutex
	links []models.ResolvedLink
}

func (cs *collectingSink) Put(link models.ResolvedLink) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.links = append(cs.links, link)
}

func (cs *collectingSink) All() []models.ResolvedLink {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]models.ResolvedLink, len(cs.links))
	copy(out, cs.links)
	return out
}

func (cs *collectingSink) byEpisode(id string) (models.ResolvedLink, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, link := range cs.links {
		if link.EpisodeID == id {
			return link, true
		}
	}
	return models.ResolvedLink{}, false
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

// buildListingPage renders download-link anchors the way the site lists them,
// newest entry first within each category. extra is appended verbatim before
// the closing tags.
func buildListingPage(animeName string, episodes, ovas, movies int, extra string) string {
	var builder strings.Builder
	builder.WriteString("<html><body><div id=\"inner_page\">")

	for i := episodes; i >= 1; i-- {
		fmt.Fprintf(&builder, "<a class=\"download-link\" href=\"/anime/%s/episode/%d\">%s <em>episode</em> %d</a>", animeName, i, animeName, i)
	}
	for i := ovas; i >= 1; i-- {
		fmt.Fprintf(&builder, "<a class=\"download-link\" href=\"/anime/%s/ova/%d\">%s <em>ova</em> %d</a>", animeName, i, animeName, i)
	}
	for i := movies; i >= 1; i-- {
		fmt.Fprintf(&builder, "<a class=\"download-link\" href=\"/anime/%s/movie/%d\">%s <em>movie</em> %d</a>", animeName, i, animeName, i)
	}

	builder.WriteString(extra)
	builder.WriteString("</div></body></html>")
	return builder.String()
}

// downloadEntry is one fake c_h2 block on an episode page: field texts in the
// site's bold order plus the two anchors, forum first and download second.
type downloadEntry struct {
	name      string
	size      string
	downloads string
	uploader  string
	date      string
	href      string
}

func buildEpisodePage(entries ...downloadEntry) string {
	var builder strings.Builder
	builder.WriteString("<html><body>")

	for i, e := range entries {
		class := "c_h2"
		if i%2 == 1 {
			class = "c_h2b"
		}
		fmt.Fprintf(&builder, "<div class=\"%s\">", class)
		fmt.Fprintf(&builder, "<a href=\"/forum/thread-%d\">discuss</a>", i+1)
		fmt.Fprintf(&builder, "<a href=\"%s\">download</a>", e.href)
		fmt.Fprintf(&builder, "<b>%s</b><b>%s</b><b>%s</b><b>%s</b><b>%s</b>", e.name, e.size, e.downloads, e.uploader, e.date)
		builder.WriteString("</div>")
	}

	builder.WriteString("</body></html>")
	return builder.String()
}

func episodeURL(category string, id int) string {
	return fmt.Sprintf("http://example.test/anime/Bleach_TV/%s/%d", category, id)
}

func TestExtractListingPartitionsAndOrders(t *testing.T) {
	cfg := testConfig()

	var gotUA, gotLang string
	page := buildListingPage("Bleach_TV", 5, 2, 1, "")
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testListingURL, func(req *http.Request) (*http.Response, error) {
		gotUA = req.Header.Get("User-Agent")
		gotLang = req.Header.Get("Accept-Language")
		resp := httpmock.NewStringResponse(200, page)
		resp.Header.Set("Content-Type", "text/html")
		return resp, nil
	})

	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.collector.WithTransport(transport)

	sel := &scriptedSelector{choices: map[models.Category]rangeChoice{
		models.CategoryEpisode: {start: 1, end: 2},
		models.CategoryOVA:     {skip: true},
	}}

	listing, err := s.ExtractListing(context.Background(), sel)
	if err != nil {
		t.Fatalf("extract listing: %v", err)
	}

	if listing.Title != "Bleach_TV" {
		t.Fatalf("title = %q, want %q", listing.Title, "Bleach_TV")
	}

	wantCounts := models.CategoryCounts{
		models.CategoryEpisode: 5,
		models.CategoryOVA:     2,
		models.CategorySpecial: 0,
		models.CategoryMovie:   1,
	}
	for cat, want := range wantCounts {
		if got := listing.Counts[cat]; got != want {
			t.Fatalf("count[%s] = %d, want %d", cat, got, want)
		}
	}

	wantURLs := []string{
		episodeURL("episode", 1),
		episodeURL("episode", 2),
		episodeURL("movie", 1),
	}
	if len(listing.URLs) != len(wantURLs) {
		t.Fatalf("urls = %v, want %v", listing.URLs, wantURLs)
	}
	for i, want := range wantURLs {
		if listing.URLs[i] != want {
			t.Fatalf("urls[%d] = %q, want %q", i, listing.URLs[i], want)
		}
	}

	wantCalls := []models.Category{models.CategoryEpisode, models.CategoryOVA, models.CategoryMovie}
	if len(sel.calls) != len(wantCalls) {
		t.Fatalf("selector calls = %v, want %v", sel.calls, wantCalls)
	}
	for i, want := range wantCalls {
		if sel.calls[i] != want {
			t.Fatalf("selector calls[%d] = %v, want %v", i, sel.calls[i], want)
		}
	}

	if gotUA != cfg.UserAgent {
		t.Fatalf("user agent = %q, want %q", gotUA, cfg.UserAgent)
	}
	if gotLang != cfg.AcceptLanguage {
		t.Fatalf("accept-language = %q, want %q", gotLang, cfg.AcceptLanguage)
	}
}

func TestExtractListingMultiCategoryEntry(t *testing.T) {
	cfg := testConfig()

	dual := "<a class=\"download-link\" href=\"/anime/Bleach_TV/special/1\">Bleach_TV <em>episode</em> <em>special</em></a>"
	page := buildListingPage("Bleach_TV", 4, 0, 0, dual)
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testListingURL, htmlResponder(page))

	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.collector.WithTransport(transport)

	sel := &scriptedSelector{choices: map[models.Category]rangeChoice{
		models.CategoryEpisode: {skip: true},
		models.CategorySpecial: {skip: true},
	}}

	listing, err := s.ExtractListing(context.Background(), sel)
	if err != nil {
		t.Fatalf("extract listing: %v", err)
	}

	if got := listing.Counts[models.CategoryEpisode]; got != 5 {
		t.Fatalf("episode count = %d, want 5 (dual-labeled entry included)", got)
	}
	if got := listing.Counts[models.CategorySpecial]; got != 1 {
		t.Fatalf("special count = %d, want 1", got)
	}
	if len(listing.URLs) != 0 {
		t.Fatalf("urls = %v, want none", listing.URLs)
	}
}

func TestExtractListingInvalidRange(t *testing.T) {
	cfg := testConfig()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testListingURL, htmlResponder(buildListingPage("Bleach_TV", 5, 0, 0, "")))

	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.collector.WithTransport(transport)

	sel := &scriptedSelector{choices: map[models.Category]rangeChoice{
		models.CategoryEpisode: {start: 2, end: 9},
	}}

	_, err = s.ExtractListing(context.Background(), sel)
	if err == nil || !strings.Contains(err.Error(), "invalid episode range") {
		t.Fatalf("expected invalid range error, got %v", err)
	}
}

func TestExtractListingSelectorError(t *testing.T) {
	cfg := testConfig()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testListingURL, htmlResponder(buildListingPage("Bleach_TV", 2, 0, 0, "")))

	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.collector.WithTransport(transport)

	boom := errors.New("terminal gone")
	sel := &scriptedSelector{err: boom}

	_, err = s.ExtractListing(context.Background(), sel)
	if err == nil || !errors.Is(err, boom) {
		t.Fatalf("expected selector error, got %v", err)
	}
}

func TestResolveLinksEndToEnd(t *testing.T) {
	cfg := testConfig()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testListingURL, htmlResponder(buildListingPage("Bleach_TV", 3, 0, 0, "")))

	// Episode 1 ranks two entries; the 1.5 GB one must win under the
	// biggest-size policy even though it is listed second.
	transport.RegisterResponder("GET", episodeURL("episode", 1), htmlResponder(buildEpisodePage(
		downloadEntry{name: "small.mkv", size: "100 MB", downloads: "900", uploader: "alice", date: "01/05/15", href: "http://media.tokyoinsider.example/small.mkv"},
		downloadEntry{name: "big.mkv", size: "1.5 GB", downloads: "10", uploader: "bob", date: "01/01/10", href: "http://media.tokyoinsider.example/big.mkv"},
	)))
	transport.RegisterResponder("GET", episodeURL("episode", 2), htmlResponder(buildEpisodePage(
		downloadEntry{name: "ep2.avi", size: "200 MB", downloads: "5", uploader: "carol", date: "02/01/15", href: "http://media.tokyoinsider.example/ep2.avi"},
	)))
	// Episode 3's only entry points off-site, so it resolves to the
	// sentinel line.
	transport.RegisterResponder("GET", episodeURL("episode", 3), htmlResponder(buildEpisodePage(
		downloadEntry{name: "ep3.mkv", size: "300 MB", downloads: "7", uploader: "dave", date: "03/01/15", href: "http://elsewhere.example/ep3.mkv"},
	)))

	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.collector.WithTransport(transport)

	listing, err := s.ExtractListing(context.Background(), &scriptedSelector{})
	if err != nil {
		t.Fatalf("extract listing: %v", err)
	}
	if len(listing.URLs) != 3 {
		t.Fatalf("urls = %v, want 3 entries", listing.URLs)
	}

	sink := &collectingSink{}
	stats, err := s.ResolveLinks(context.Background(), models.ResolveRequest{
		Policy: models.PolicyBiggestSize,
		URLs:   listing.URLs,
		Counts: listing.Counts,
	}, sink)
	if err != nil {
		t.Fatalf("resolve links: %v", err)
	}

	if stats.Dispatched != 3 {
		t.Fatalf("dispatched = %d, want 3", stats.Dispatched)
	}
	if stats.Resolved != 3 {
		t.Fatalf("resolved = %d, want 3 (failed=%v)", stats.Resolved, stats.FailedURLs)
	}
	if stats.Sentinels != 1 {
		t.Fatalf("sentinels = %d, want 1", stats.Sentinels)
	}
	if stats.RequestCount != 4 {
		t.Fatalf("requests = %d, want 4 (listing + 3 episodes)", stats.RequestCount)
	}

	links := sink.All()
	if len(links) != 3 {
		t.Fatalf("sink links = %d, want 3", len(links))
	}

	ep1, ok := sink.byEpisode("1")
	if !ok {
		t.Fatalf("episode 1 missing from sink")
	}
	if ep1.DownloadURL != "http://media.tokyoinsider.example/big.mkv" {
		t.Fatalf("episode 1 url = %q, want the 1.5 GB entry", ep1.DownloadURL)
	}
	if ep1.Category != models.CategoryEpisode || ep1.Status != models.StatusSuccess {
		t.Fatalf("episode 1 = %+v", ep1)
	}
	if ep1.Filename != "" {
		t.Fatalf("filename = %q, want empty without custom names", ep1.Filename)
	}

	ep3, ok := sink.byEpisode("3")
	if !ok {
		t.Fatalf("episode 3 missing from sink")
	}
	if ep3.Status != models.StatusNoValidLink {
		t.Fatalf("episode 3 status = %q, want %q", ep3.Status, models.StatusNoValidLink)
	}
	if ep3.DownloadURL != "No valid link found episode: 3" {
		t.Fatalf("episode 3 url = %q", ep3.DownloadURL)
	}
}

func TestResolveLinksCustomNames(t *testing.T) {
	cfg := testConfig()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testListingURL, htmlResponder(buildListingPage("Bleach_TV", 12, 0, 0, "")))
	transport.RegisterResponder("GET", episodeURL("episode", 7), htmlResponder(buildEpisodePage(
		downloadEntry{name: "bleach-ep7.mkv", size: "345.6 MB", downloads: "120", uploader: "alice", date: "01/05/15", href: "http://media.tokyoinsider.example/bleach-ep7.mkv"},
	)))

	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.collector.WithTransport(transport)

	sel := &scriptedSelector{choices: map[models.Category]rangeChoice{
		models.CategoryEpisode: {start: 7, end: 7},
	}}
	listing, err := s.ExtractListing(context.Background(), sel)
	if err != nil {
		t.Fatalf("extract listing: %v", err)
	}

	sink := &collectingSink{}
	if _, err := s.ResolveLinks(context.Background(), models.ResolveRequest{
		Policy:      models.PolicyBiggestSize,
		URLs:        listing.URLs,
		CustomNames: true,
		Counts:      listing.Counts,
	}, sink); err != nil {
		t.Fatalf("resolve links: %v", err)
	}

	link, ok := sink.byEpisode("7")
	if !ok {
		t.Fatalf("episode 7 missing from sink")
	}
	want := "Bleach_TV - episode07 [alice].mkv"
	if link.Filename != want {
		t.Fatalf("filename = %q, want %q", link.Filename, want)
	}
}

func TestResolveLinksNoCandidates(t *testing.T) {
	cfg := testConfig()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", episodeURL("episode", 1),
		htmlResponder("<html><body><p>maintenance</p></body></html>"))

	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.collector.WithTransport(transport)

	sink := &collectingSink{}
	stats, err := s.ResolveLinks(context.Background(), models.ResolveRequest{
		Policy: models.PolicyBiggestSize,
		URLs:   []string{episodeURL("episode", 1)},
		Counts: models.CategoryCounts{},
	}, sink)
	if err != nil {
		t.Fatalf("resolve links: %v", err)
	}

	if stats.Dispatched != 1 {
		t.Fatalf("dispatched = %d, want 1", stats.Dispatched)
	}
	if stats.Resolved != 0 {
		t.Fatalf("resolved = %d, want 0", stats.Resolved)
	}
	if got := len(sink.All()); got != 0 {
		t.Fatalf("sink links = %d, want 0", got)
	}
}

func TestResolveLinksNilSink(t *testing.T) {
	s, err := NewScraper(testConfig())
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}

	if _, err := s.ResolveLinks(context.Background(), models.ResolveRequest{}, nil); err == nil {
		t.Fatalf("expected error for nil sink")
	}
}

func TestResolveLinksRejectedDomain(t *testing.T) {
	cfg := testConfig()

	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.collector.WithTransport(httpmock.NewMockTransport())

	sink := &collectingSink{}
	stats, err := s.ResolveLinks(context.Background(), models.ResolveRequest{
		Policy: models.PolicyBiggestSize,
		URLs:   []string{"http://evil.test/anime/X/episode/1"},
		Counts: models.CategoryCounts{},
	}, sink)
	if err != nil {
		t.Fatalf("resolve links: %v", err)
	}

	if stats.Dispatched != 0 {
		t.Fatalf("dispatched = %d, want 0", stats.Dispatched)
	}
	if len(stats.FailedURLs) != 1 {
		t.Fatalf("failed urls = %v, want 1 entry", stats.FailedURLs)
	}
}

func TestResolveLinksRetriesTransientFailure(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1

	var attempts int64
	page := buildEpisodePage(downloadEntry{
		name: "ep1.mkv", size: "100 MB", downloads: "3", uploader: "alice", date: "01/05/15",
		href: "http://media.tokyoinsider.example/ep1.mkv",
	})

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", episodeURL("episode", 1), func(req *http.Request) (*http.Response, error) {
		if atomic.AddInt64(&attempts, 1) == 1 {
			return httpmock.NewStringResponse(500, ""), nil
		}
		resp := httpmock.NewStringResponse(200, page)
		resp.Header.Set("Content-Type", "text/html")
		return resp, nil
	})

	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.collector.WithTransport(transport)

	sink := &collectingSink{}
	stats, err := s.ResolveLinks(context.Background(), models.ResolveRequest{
		Policy: models.PolicyBiggestSize,
		URLs:   []string{episodeURL("episode", 1)},
		Counts: models.CategoryCounts{models.CategoryEpisode: 1},
	}, sink)
	if err != nil {
		t.Fatalf("resolve links: %v", err)
	}

	if got := atomic.LoadInt64(&attempts); got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}
	if stats.RetryCount != 1 {
		t.Fatalf("retries = %d, want 1", stats.RetryCount)
	}
	if stats.Resolved != 1 {
		t.Fatalf("resolved = %d, want 1", stats.Resolved)
	}
	if _, ok := sink.byEpisode("1"); !ok {
		t.Fatalf("episode 1 missing from sink after retry")
	}
}

func TestScraperHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusTooManyRequests, expected: "rate_limited"},
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusNotFound, expected: "not_found"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			cfg := testConfig()

			pageURL := episodeURL("episode", 1)
			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", pageURL, httpmock.NewStringResponder(tt.status, ""))

			s, err := NewScraper(cfg)
			if err != nil {
				t.Fatalf("new scraper: %v", err)
			}
			s.collector.WithTransport(transport)

			sink := &collectingSink{}
			stats, err := s.ResolveLinks(context.Background(), models.ResolveRequest{
				Policy: models.PolicyBiggestSize,
				URLs:   []string{pageURL},
				Counts: models.CategoryCounts{},
			}, sink)
			if err != nil {
				t.Fatalf("resolve links: %v", err)
			}

			if got := stats.ErrorsByType[tt.expected]; got == 0 {
				t.Fatalf("expected %q classification for status %d, got %v", tt.expected, tt.status, stats.ErrorsByType)
			}
			if len(stats.FailedURLs) != 1 || stats.FailedURLs[0] != pageURL {
				t.Fatalf("failed urls = %v, want [%s]", stats.FailedURLs, pageURL)
			}
		})
	}
}

func TestRetryManagerScheduleRespectsLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 2
	cfg.RetryBackoff = time.Hour
	cfg.RetryBackoffMax = time.Hour

	rm := newRetryManager(func(string) error { return nil }, cfg, NewMetrics())
	defer rm.Stop()

	if !rm.Schedule("http://example.test/page") {
		t.Fatalf("first retry should be scheduled")
	}
	if !rm.Schedule("http://example.test/page") {
		t.Fatalf("second retry should be scheduled")
	}
	if rm.Schedule("http://example.test/page") {
		t.Fatalf("third retry should not be scheduled")
	}

	if got := rm.TotalRetries(); got != 2 {
		t.Fatalf("total retries = %d, want 2", got)
	}
}

func TestRetryManagerBackoffCapped(t *testing.T) {
	cfg := testConfig()
	cfg.RetryBackoff = 200 * time.Millisecond
	cfg.RetryBackoffMax = 500 * time.Millisecond

	rm := newRetryManager(func(string) error { return nil }, cfg, NewMetrics())
	defer rm.Stop()

	if delay := rm.backoff(4); delay > cfg.RetryBackoffMax {
		t.Fatalf("delay %v exceeds max %v", delay, cfg.RetryBackoffMax)
	}
	if delay := rm.backoff(1); delay != cfg.RetryBackoff {
		t.Fatalf("first delay = %v, want %v", delay, cfg.RetryBackoff)
	}
}

func TestRetryManagerDispatchesScheduledRetry(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	cfg.RetryBackoff = 5 * time.Millisecond

	var calls int64
	rm := newRetryManager(func(string) error {
		atomic.AddInt64(&calls, 1)
		return nil
	}, cfg, NewMetrics())
	defer rm.Stop()

	if !rm.Schedule("http://example.test/page") {
		t.Fatalf("retry should be scheduled")
	}

	rm.WaitPending()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("visit calls = %d, want 1", got)
	}
}

func TestRetryManagerStopCancelsTimers(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	cfg.RetryBackoff = time.Hour
	cfg.RetryBackoffMax = time.Hour

	var calls int64
	rm := newRetryManager(func(string) error {
		atomic.AddInt64(&calls, 1)
		return nil
	}, cfg, NewMetrics())

	if !rm.Schedule("http://example.test/page") {
		t.Fatalf("retry should be scheduled")
	}
	rm.Stop()

	if rm.WaitPending() {
		t.Fatalf("stopped manager should not report pending retries")
	}
	if got := atomic.LoadInt64(&calls); got != 0 {
		t.Fatalf("visit calls = %d, want 0 after stop", got)
	}
	if rm.Schedule("http://example.test/page") {
		t.Fatalf("stopped manager should reject new retries")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}
