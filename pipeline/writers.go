package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/phase7/Tokyo-Downloader/models"
)

// OutputWriter defines the interface for link persistence.
type OutputWriter interface {
	Write(links []models.ResolvedLink) error
	Close() error
	Validate() error
}

// NewWriter builds the writer for the given output format. The dual format
// writes link lines to path and JSONL records to its .jsonl sibling.
func NewWriter(format, path string) (OutputWriter, error) {
	switch format {
	case "links":
		return NewLinksWriter(path)
	case "jsonl":
		return NewJSONLWriter(path)
	case "dual":
		return NewDualWriter(path, JSONLPath(path))
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// JSONLPath derives the JSONL sibling of a text output path.
func JSONLPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".jsonl"
}

// LinksWriter writes one link per line, ready to paste into a download
// manager. Lines carry the bare URL, or URL|FILENAME when a filename
// was built.
type LinksWriter struct {
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

// NewLinksWriter truncates filename and prepares it for link lines.
func NewLinksWriter(filename string) (*LinksWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create links file: %w", err)
	}

	return &LinksWriter{
		file:   f,
		writer: bufio.NewWriter(f),
	}, nil
}

// Write appends links in the order given, one line each.
func (lw *LinksWriter) Write(links []models.ResolvedLink) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	for _, link := range links {
		line := link.DownloadURL
		if link.Filename != "" {
			line += "|" + link.Filename
		}
		if _, err := fmt.Fprintln(lw.writer, line); err != nil {
			return fmt.Errorf("write link line: %w", err)
		}
	}

	if err := lw.writer.Flush(); err != nil {
		return fmt.Errorf("flush links file: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (lw *LinksWriter) Close() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if err := lw.writer.Flush(); err != nil {
		return fmt.Errorf("flush links file: %w", err)
	}
	return lw.file.Close()
}

// Validate checks the output file is still reachable. An empty file is a
// valid result; selecting zero episodes produces one.
func (lw *LinksWriter) Validate() error {
	if _, err := lw.file.Stat(); err != nil {
		return fmt.Errorf("stat links file: %w", err)
	}
	return nil
}

// JSONLWriter writes newline-delimited JSON records.
type JSONLWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONLWriter initialises the JSONL writer.
func NewJSONLWriter(filename string) (*JSONLWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create jsonl file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONLWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends links in JSONL format.
func (jw *JSONLWriter) Write(links []models.ResolvedLink) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, link := range links {
		if err := jw.encoder.Encode(link); err != nil {
			return fmt.Errorf("encode jsonl record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush jsonl writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush jsonl writer: %w", err)
	}
	return jw.file.Close()
}

// Validate checks the output file is still reachable.
func (jw *JSONLWriter) Validate() error {
	if _, err := jw.file.Stat(); err != nil {
		return fmt.Errorf("stat jsonl file: %w", err)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
