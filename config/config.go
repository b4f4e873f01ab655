package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/phase7/Tokyo-Downloader/models"
)

// Config holds downloader configuration.
type Config struct {
	ListingURL       string
	Workers          int
	Timeout          time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	RetryBackoffMax  time.Duration
	OutputFile       string
	OutputFormat     string // links, jsonl, or dual
	UserAgent        string
	AcceptLanguage   string
	LinkMarker       string
	DedupeMaxSize    int
	Policy           string // empty means ask interactively
	CustomNames      bool
	NameTemplate     string
	Verify           bool
	VerifyWorkers    int
	MetricsAddr      string
	Verbose          bool
	RespectRobotsTxt bool
}

// DefaultConfig returns the defaults for the site this tool targets.
func DefaultConfig() *Config {
	return &Config{
		ListingURL:       "https://www.tokyoinsider.com/anime/B/Bleach_(TV)",
		Workers:          5,
		Timeout:          30 * time.Second,
		MaxRetries:       2,
		RetryBackoff:     500 * time.Millisecond,
		RetryBackoffMax:  5 * time.Second,
		OutputFile:       "links.txt",
		OutputFormat:     "links",
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/44.0.2403.157 Safari/537.36",
		AcceptLanguage:   "en-US, en;q=0.5",
		LinkMarker:       "tokyoinsider",
		DedupeMaxSize:    4096,
		Policy:           "",
		CustomNames:      false,
		NameTemplate:     "",
		Verify:           false,
		VerifyWorkers:    4,
		MetricsAddr:      "",
		Verbose:          false,
		RespectRobotsTxt: false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.ListingURL == "" {
		return fmt.Errorf("listing URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.ListingURL)
	if err != nil {
		return fmt.Errorf("invalid listing URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("listing URL must include a host")
	}

	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "links" && c.OutputFormat != "jsonl" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be links, jsonl, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.LinkMarker == "" {
		return fmt.Errorf("link marker cannot be empty")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.Policy != "" {
		if _, err := models.ParsePolicy(c.Policy); err != nil {
			return fmt.Errorf("invalid policy: %w", err)
		}
	}
	if c.VerifyWorkers <= 0 {
		return fmt.Errorf("verify workers must be positive")
	}

	return nil
}
