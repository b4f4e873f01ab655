package pipeline

import (
	"fmt"
	"sync"

	"github.com/phase7/Tokyo-Downloader/models"
)

// DualWriter persists links to the plain text and JSONL formats at once.
type DualWriter struct {
	links *LinksWriter
	jsonl *JSONLWriter
	mu    sync.Mutex
}

// NewDualWriter creates writers for both output files.
func NewDualWriter(linksPath, jsonlPath string) (*DualWriter, error) {
	links, err := NewLinksWriter(linksPath)
	if err != nil {
		return nil, fmt.Errorf("create links writer: %w", err)
	}

	jsonl, err := NewJSONLWriter(jsonlPath)
	if err != nil {
		links.Close()
		return nil, fmt.Errorf("create jsonl writer: %w", err)
	}

	return &DualWriter{
		links: links,
		jsonl: jsonl,
	}, nil
}

// Write writes links to both formats.
func (dw *DualWriter) Write(links []models.ResolvedLink) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.links.Write(links); err != nil {
		return fmt.Errorf("links write failed: %w", err)
	}

	if err := dw.jsonl.Write(links); err != nil {
		return fmt.Errorf("jsonl write failed: %w", err)
	}

	return nil
}

// Close closes both writers.
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	var errs []error

	if err := dw.links.Close(); err != nil {
		errs = append(errs, fmt.Errorf("links close failed: %w", err))
	}

	if err := dw.jsonl.Close(); err != nil {
		errs = append(errs, fmt.Errorf("jsonl close failed: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("multiple errors: %v", errs)
	}

	return nil
}

// Validate validates both output files.
func (dw *DualWriter) Validate() error {
	var errs []error

	if err := dw.links.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("links validation failed: %w", err))
	}

	if err := dw.jsonl.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("jsonl validation failed: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors: %v", errs)
	}

	return nil
}
