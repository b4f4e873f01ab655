package scraper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/phase7/Tokyo-Downloader/config"
)

// retryManager schedules bounded re-fetches of failed episode pages with
// exponential backoff. Retries stay in memory; nothing persists across runs.
type retryManager struct {
	visit   func(string) error
	cfg     *config.Config
	metrics *Metrics
	ctx     context.Context

	mu           sync.Mutex
	cond         *sync.Cond
	attempts     map[string]int
	timers       map[string]*time.Timer
	totalRetries int
	fired        bool
	stopped      bool
}

func newRetryManager(visit func(string) error, cfg *config.Config, metrics *Metrics) *retryManager {
	rm := &retryManager{
		visit:    visit,
		cfg:      cfg,
		attempts: make(map[string]int),
		timers:   make(map[string]*time.Timer),
		metrics:  metrics,
		ctx:      context.Background(),
	}
	rm.cond = sync.NewCond(&rm.mu)
	return rm
}

// Schedule queues one more attempt for url. It returns false once the URL has
// exhausted its retry budget or the manager is stopped.
func (rm *retryManager) Schedule(url string) bool {
	if rm.cfg.MaxRetries == 0 || url == "" {
		return false
	}

	if rm.ctx != nil {
		select {
		case <-rm.ctx.Done():
			return false
		default:
		}
	}

	rm.mu.Lock()

	if rm.stopped {
		rm.mu.Unlock()
		return false
	}
	if rm.ctx != nil && rm.ctx.Err() != nil {
		rm.mu.Unlock()
		return false
	}

	attempt := rm.attempts[url]
	if attempt >= rm.cfg.MaxRetries {
		rm.mu.Unlock()
		return false
	}

	attempt++
	rm.attempts[url] = attempt
	rm.totalRetries++
	rm.metrics.IncRetries()

	delay := rm.backoff(attempt)
	rm.resetTimerLocked(url)
	rm.timers[url] = time.AfterFunc(delay, func() {
		rm.fireRetry(url)
	})
	rm.mu.Unlock()
	return true
}

func (rm *retryManager) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rm.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := rm.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func (rm *retryManager) resetTimerLocked(url string) {
	if timer, ok := rm.timers[url]; ok {
		timer.Stop()
		delete(rm.timers, url)
	}
}

func (rm *retryManager) fireRetry(url string) {
	defer func() {
		rm.mu.Lock()
		delete(rm.timers, url)
		rm.fired = true
		rm.cond.Broadcast()
		rm.mu.Unlock()
	}()

	rm.mu.Lock()
	if rm.stopped {
		rm.mu.Unlock()
		return
	}
	ctx := rm.ctx
	rm.mu.Unlock()

	if ctx != nil && ctx.Err() != nil {
		return
	}
	if err := rm.visit(url); err != nil {
		slog.Debug("retry request failed", slog.String("url", url), slog.Any("error", err))
	}
}

// WaitPending blocks until every currently scheduled retry has dispatched its
// request. It reports whether any retry fired since the previous call, so
// callers re-join the collector until a call comes back clean. A retry that
// fires between a collector join and this call would otherwise slip past the
// barrier with its request still in flight.
func (rm *retryManager) WaitPending() bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped {
		rm.fired = false
		return false
	}

	waited := rm.fired
	rm.fired = false
	for len(rm.timers) > 0 && !rm.stopped {
		waited = true
		rm.cond.Wait()
	}
	return waited
}

func (rm *retryManager) Stop() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped {
		return
	}

	rm.stopped = true
	for url, timer := range rm.timers {
		timer.Stop()
		delete(rm.timers, url)
	}
	rm.cond.Broadcast()
}

func (rm *retryManager) TotalRetries() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.totalRetries
}

func (rm *retryManager) SetContext(ctx context.Context) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if ctx == nil {
		rm.ctx = context.Background()
		return
	}
	rm.ctx = ctx
}
