// Package pipeline collects resolved download links from concurrent
// scraper workers and persists them once the crawl has drained.
package pipeline

import (
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/phase7/Tokyo-Downloader/models"
	"github.com/phase7/Tokyo-Downloader/parser"
)

// Sink accumulates resolved links from concurrent workers. An episode that
// resolves twice under the same category contributes a single entry; the
// first arrival wins.
type Sink struct {
	mu      sync.Mutex
	links   []models.ResolvedLink
	seen    *lru.Cache[string, struct{}]
	dropped int
}

// NewSink builds a sink whose duplicate window holds up to maxEntries
// category/episode pairs.
func NewSink(maxEntries int) (*Sink, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("sink window must be positive, got %d", maxEntries)
	}

	seen, err := lru.New[string, struct{}](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}

	return &Sink{seen: seen}, nil
}

// Put records one resolved link. Safe for concurrent use.
func (s *Sink) Put(link models.ResolvedLink) {
	key := string(link.Category) + "/" + link.EpisodeID

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen.Get(key); ok {
		s.dropped++
		return
	}
	s.seen.Add(key, struct{}{})
	s.links = append(s.links, link)
}

// Drain returns the collected links in arrival order and empties the sink.
func (s *Sink) Drain() []models.ResolvedLink {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.links
	s.links = nil
	return out
}

// Len reports how many links the sink currently holds.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links)
}

// Dropped reports how many duplicate links were discarded.
func (s *Sink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// SortByEpisodeID orders links by numeric episode id ascending. Ids that do
// not parse as integers sort after every numeric id. The sort is stable, so
// ties and non-numeric ids keep their arrival order.
func SortByEpisodeID(links []models.ResolvedLink) {
	sort.SliceStable(links, func(i, j int) bool {
		return parser.LessByEpisodeID(links[i].EpisodeID, links[j].EpisodeID)
	})
}
