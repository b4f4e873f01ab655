// Package check probes persisted download links with lightweight HEAD
// requests, without downloading any media.
package check

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/phase7/Tokyo-Downloader/models"
)

// Result summarizes one verification run.
type Result struct {
	Checked     int
	Reachable   int
	Skipped     int
	Unreachable []string
}

// Options configure a Verifier. Zero values fall back to defaults.
type Options struct {
	Timeout        time.Duration
	Workers        int
	UserAgent      string
	AcceptLanguage string
}

// Verifier issues HEAD requests against resolved links.
type Verifier struct {
	client  *resty.Client
	workers int
}

// NewVerifier builds a verifier with its own HTTP client.
func NewVerifier(opts Options) *Verifier {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(1)
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	if opts.AcceptLanguage != "" {
		client.SetHeader("Accept-Language", opts.AcceptLanguage)
	}

	return &Verifier{
		client:  client,
		workers: opts.Workers,
	}
}

// Verify probes each link once. Sentinel entries carry no real URL and are
// skipped, as is everything still pending when ctx is cancelled.
func (v *Verifier) Verify(ctx context.Context, links []models.ResolvedLink) Result {
	var (
		mu  sync.Mutex
		res Result
		wg  sync.WaitGroup
	)

	sem := make(chan struct{}, v.workers)

	for _, link := range links {
		if link.Status != models.StatusSuccess || !strings.HasPrefix(link.DownloadURL, "http") {
			res.Skipped++
			continue
		}

		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				mu.Lock()
				res.Skipped++
				mu.Unlock()
				return
			}

			ok := v.head(ctx, url)

			mu.Lock()
			res.Checked++
			if ok {
				res.Reachable++
			} else {
				res.Unreachable = append(res.Unreachable, url)
			}
			mu.Unlock()
		}(link.DownloadURL)
	}

	wg.Wait()
	return res
}

func (v *Verifier) head(ctx context.Context, url string) bool {
	resp, err := v.client.R().SetContext(ctx).Head(url)
	if err != nil {
		slog.Warn("link check failed", slog.String("url", url), slog.Any("error", err))
		return false
	}
	if resp.StatusCode() >= 400 {
		slog.Warn("link check failed",
			slog.String("url", url),
			slog.Int("status", resp.StatusCode()),
		)
		return false
	}
	slog.Debug("link reachable",
		slog.String("url", url),
		slog.Int("status", resp.StatusCode()),
		slog.String("size", resp.Header().Get("Content-Length")),
	)
	return true
}
