// Package scraper fetches the listing and episode pages of the target site
// and resolves each selected episode to its best download link.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/phase7/Tokyo-Downloader/config"
)

// Request context keys and page kinds used to route collector callbacks.
const (
	ctxKind  = "kind"
	ctxStart = "start"

	pageListing = "listing"
	pageEpisode = "episode"
)

// Scraper wraps one colly collector serving both page kinds: the listing
// page fetched synchronously and the episode pages fanned out across the
// bounded worker pool.
type Scraper struct {
	cfg       *config.Config
	collector *colly.Collector
	retry     *retryManager
	Metrics   *Metrics

	requestCount int64
	errorCount   int64

	mu             sync.Mutex
	failedURLs     []string
	errorsByType   map[string]int
	listingEntries []listingEntry
	listingErr     error
	session        *resolveSession

	handlersOnce sync.Once
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	parsed, err := url.Parse(cfg.ListingURL)
	if err != nil {
		return nil, fmt.Errorf("parse listing url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("listing url must include a host")
	}

	collector := colly.NewCollector(
		colly.Async(true),
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(cfg.UserAgent),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	// Retried URLs are requested again, so revisits must be allowed.
	collector.AllowURLRevisit = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Workers,
	}); err != nil {
		return nil, fmt.Errorf("configure worker pool: %w", err)
	}

	s := &Scraper{
		cfg:          cfg,
		collector:    collector,
		errorsByType: make(map[string]int),
		Metrics:      NewMetrics(),
	}
	s.retry = newRetryManager(s.requestEpisode, cfg, s.Metrics)
	return s, nil
}

// requestEpisode dispatches one episode page fetch into the worker pool.
func (s *Scraper) requestEpisode(u string) error {
	cctx := colly.NewContext()
	cctx.Put(ctxKind, pageEpisode)
	return s.collector.Request(http.MethodGet, u, nil, cctx, nil)
}

func (s *Scraper) configureHandlers() {
	s.handlersOnce.Do(func() {
		s.collector.OnRequest(func(r *colly.Request) {
			r.Headers.Set("Accept-Language", s.cfg.AcceptLanguage)
			r.Ctx.Put(ctxStart, time.Now())
			atomic.AddInt64(&s.requestCount, 1)
			s.Metrics.IncRequest(r.Ctx.Get(ctxKind))
			slog.Debug("requesting page",
				slog.String("kind", r.Ctx.Get(ctxKind)),
				slog.String("url", r.URL.String()),
			)
		})

		s.collector.OnResponse(func(r *colly.Response) {
			if r.StatusCode >= http.StatusBadRequest {
				slog.Error("non-200 response",
					slog.Int("status", r.StatusCode),
					slog.String("url", r.Request.URL.String()),
				)
			}
			if start, ok := r.Request.Ctx.GetAny(ctxStart).(time.Time); ok {
				s.Metrics.ObserveDuration(time.Since(start))
			}

			switch r.Request.Ctx.Get(ctxKind) {
			case pageListing:
				s.handleListingPage(r)
			case pageEpisode:
				s.handleEpisodePage(r)
			}
		})

		s.collector.OnError(func(r *colly.Response, err error) {
			atomic.AddInt64(&s.errorCount, 1)
			statusCode := 0
			if r != nil {
				statusCode = r.StatusCode
			}
			classified := classifyError(err, statusCode)
			category := errorTypeLabel(classified)

			s.mu.Lock()
			s.errorsByType[category]++
			s.mu.Unlock()

			kind, pageURL := "", ""
			if r != nil && r.Request != nil {
				kind = r.Request.Ctx.Get(ctxKind)
				if r.Request.URL != nil {
					pageURL = r.Request.URL.String()
				}
			}
			slog.Error("request error",
				slog.String("url", pageURL),
				slog.String("category", category),
				slog.Any("error", err),
			)
			s.Metrics.IncError(category)

			// The listing fetch fails fast; only episode pages retry.
			if kind == pageListing {
				s.mu.Lock()
				s.listingErr = classified
				s.mu.Unlock()
				return
			}

			if !s.retry.Schedule(pageURL) {
				s.mu.Lock()
				s.failedURLs = append(s.failedURLs, pageURL)
				s.mu.Unlock()
			}
		})
	})
}

func (s *Scraper) recordFailed(u string) {
	s.mu.Lock()
	s.failedURLs = append(s.failedURLs, u)
	s.mu.Unlock()
}

func (s *Scraper) snapshotFailedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.failedURLs))
	copy(out, s.failedURLs)
	return out
}

func (s *Scraper) snapshotErrors() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}
	return err
}
