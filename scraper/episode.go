package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/phase7/Tokyo-Downloader/models"
	"github.com/phase7/Tokyo-Downloader/namer"
	"github.com/phase7/Tokyo-Downloader/parser"
)

// ResultSink receives resolved links from concurrent workers. Implementations
// must be safe for concurrent use.
type ResultSink interface {
	Put(models.ResolvedLink)
}

// resolveSession carries the per-run request and sink the response handlers
// read. One session is active at a time.
type resolveSession struct {
	req  models.ResolveRequest
	sink ResultSink

	resolved  int64
	sentinels int64
}

// ResolveLinks fans resolution of every episode URL out across the worker
// pool and blocks until each one has been attempted, including bounded
// retries. Resolved links land in sink in completion order; the caller drains
// and orders them afterwards. The returned stats cover this run's requests,
// failures, and retries.
func (s *Scraper) ResolveLinks(ctx context.Context, req models.ResolveRequest, sink ResultSink) (*models.ResolveStats, error) {
	if sink == nil {
		return nil, fmt.Errorf("sink cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.configureHandlers()
	s.retry.SetContext(ctx)

	sess := &resolveSession{req: req, sink: sink}
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()

	start := time.Now()
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			s.collector.Wait()
			s.retry.Stop()
		case <-done:
		}
	}()

	slog.Info("fetching episode pages",
		slog.Int("episodes", len(req.URLs)),
		slog.String("policy", req.Policy.String()),
	)

	dispatched := 0
	for _, u := range req.URLs {
		if ctx.Err() != nil {
			break
		}
		if err := s.requestEpisode(u); err != nil {
			slog.Error("dispatch failed", slog.String("url", u), slog.Any("error", err))
			s.recordFailed(u)
			continue
		}
		dispatched++
	}

	s.collector.Wait()
	for s.retry.WaitPending() {
		s.collector.Wait()
	}
	s.retry.Stop()

	return &models.ResolveStats{
		StartTime:    start,
		EndTime:      time.Now(),
		Dispatched:   dispatched,
		Resolved:     int(atomic.LoadInt64(&sess.resolved)),
		Sentinels:    int(atomic.LoadInt64(&sess.sentinels)),
		ErrorCount:   int(atomic.LoadInt64(&s.errorCount)),
		FailedURLs:   s.snapshotFailedURLs(),
		ErrorsByType: s.snapshotErrors(),
		RetryCount:   s.retry.TotalRetries(),
		RequestCount: int(atomic.LoadInt64(&s.requestCount)),
	}, nil
}

func (s *Scraper) currentSession() *resolveSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *Scraper) handleEpisodePage(r *colly.Response) {
	sess := s.currentSession()
	if sess == nil {
		return
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	if err != nil {
		slog.Debug("unparseable episode page",
			slog.String("url", r.Request.URL.String()),
			slog.Any("error", err),
		)
		return
	}

	cands := extractCandidates(doc)
	if len(cands) == 0 {
		slog.Debug("no download entries", slog.String("url", r.Request.URL.String()))
		return
	}

	best, ok := parser.SelectBest(sess.req.Policy, cands)
	if !ok {
		return
	}

	link, ok := s.buildResolvedLink(r.Request.URL, best, sess.req)
	if !ok {
		return
	}

	atomic.AddInt64(&sess.resolved, 1)
	if link.Status != models.StatusSuccess {
		atomic.AddInt64(&sess.sentinels, 1)
	}
	s.Metrics.IncResolved()
	sess.sink.Put(link)
	logResolved(link, best)
}

// extractCandidates pulls every download entry from an episode page: the divs
// carrying either layout class, each with its bold-text fields and anchor
// hrefs in source order.
func extractCandidates(doc *goquery.Document) []models.Candidate {
	var out []models.Candidate
	doc.Find("div.c_h2, div.c_h2b").Each(func(_ int, div *goquery.Selection) {
		var c models.Candidate
		div.Find("b").Each(func(_ int, b *goquery.Selection) {
			c.Fields = append(c.Fields, strings.TrimSpace(b.Text()))
		})
		div.Find("a").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			c.Anchors = append(c.Anchors, href)
		})
		out = append(out, c)
	})
	return out
}

// buildResolvedLink turns the winning candidate of one episode page into a
// ResolvedLink. The episode id, category, and anime name come from the page
// URL's trailing path segments. A winner without a download anchor, or a page
// URL too short to carry the expected segments, is an extraction miss.
func (s *Scraper) buildResolvedLink(pageURL *url.URL, best models.Candidate, req models.ResolveRequest) (models.ResolvedLink, bool) {
	segs := strings.Split(strings.Trim(pageURL.Path, "/"), "/")
	if len(segs) < 3 {
		slog.Debug("episode url carries no id segments", slog.String("url", pageURL.String()))
		return models.ResolvedLink{}, false
	}
	id := segs[len(segs)-1]
	cat := models.Category(segs[len(segs)-2])
	animeName := segs[len(segs)-3]

	href, ok := best.Anchor(parser.DownloadAnchor)
	if !ok {
		slog.Debug("winning entry lacks a download anchor", slog.String("url", pageURL.String()))
		return models.ResolvedLink{}, false
	}

	link := models.ResolvedLink{
		DownloadURL: href,
		EpisodeID:   id,
		Category:    cat,
		Status:      models.StatusSuccess,
	}
	if !strings.Contains(href, s.cfg.LinkMarker) {
		link.DownloadURL = fmt.Sprintf("No valid link found %s: %s", cat, id)
		link.Status = models.StatusNoValidLink
	}

	if req.CustomNames {
		size, _ := best.Field(parser.FieldSize)
		uploader, _ := best.Field(parser.FieldUploader)
		date, _ := best.Field(parser.FieldDate)
		link.Filename = namer.Format(namer.Input{
			Template:        req.NameTemplate,
			AnimeName:       animeName,
			Category:        cat,
			EpisodeID:       id,
			Size:            size,
			Uploader:        uploader,
			UploadDate:      date,
			TotalInCategory: req.Counts[cat],
			Extension:       namer.ExtensionGuess(link.DownloadURL),
		})
	}

	return link, true
}

func logResolved(link models.ResolvedLink, best models.Candidate) {
	size, _ := best.Field(parser.FieldSize)
	downloads, _ := best.Field(parser.FieldDownloads)
	uploader, _ := best.Field(parser.FieldUploader)
	date, _ := best.Field(parser.FieldDate)
	slog.Info("episode resolved",
		slog.String("episode", fmt.Sprintf("%s: %s", link.Category, link.EpisodeID)),
		slog.String("size", size),
		slog.String("downloads", downloads),
		slog.String("uploader", uploader),
		slog.String("date", date),
		slog.String("status", link.Status),
	)
}
