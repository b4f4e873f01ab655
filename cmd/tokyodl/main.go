package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/manifoldco/promptui"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/phase7/Tokyo-Downloader/check"
	"github.com/phase7/Tokyo-Downloader/config"
	"github.com/phase7/Tokyo-Downloader/models"
	"github.com/phase7/Tokyo-Downloader/namer"
	"github.com/phase7/Tokyo-Downloader/pipeline"
	"github.com/phase7/Tokyo-Downloader/scraper"
)

func main() {
	_ = godotenv.Load(".env")

	defaultCfg := config.DefaultConfig()

	listingURL := flag.String("url", config.EnvString("TOKYODL_URL", ""), "Anime listing URL (prompted when omitted)")
	workers := flag.Int("workers", config.EnvInt("TOKYODL_WORKERS", defaultCfg.Workers), "Concurrent episode-page fetches")
	timeout := flag.Duration("timeout", config.EnvDuration("TOKYODL_TIMEOUT", defaultCfg.Timeout), "HTTP request timeout")
	maxRetries := flag.Int("max-retries", defaultCfg.MaxRetries, "Maximum retry attempts per episode page")
	retryBackoffMs := flag.Int("retry-backoff", int(defaultCfg.RetryBackoff/time.Millisecond), "Initial retry backoff (milliseconds)")
	retryBackoffMaxMs := flag.Int("retry-backoff-max", int(defaultCfg.RetryBackoffMax/time.Millisecond), "Maximum retry backoff (milliseconds)")
	respectRobots := flag.Bool("respect-robots", false, "Respect robots.txt directives")
	outputFile := flag.String("output", config.EnvString("TOKYODL_OUTPUT", defaultCfg.OutputFile), "Output file path")
	outputFormat := flag.String("format", config.EnvString("TOKYODL_FORMAT", defaultCfg.OutputFormat), "Output format: links, jsonl, or dual")
	policy := flag.String("policy", config.EnvString("TOKYODL_POLICY", ""), "Selection policy: biggest, downloads, or latest (prompted when omitted)")
	all := flag.Bool("all", false, "Take every entry in every category without prompting")
	customNames := flag.Bool("custom-names", config.EnvBool("TOKYODL_CUSTOM_NAMES", false), "Build filenames without asking")
	nameTemplate := flag.String("name-template", config.EnvString("TOKYODL_NAME_TEMPLATE", ""), "Filename template (implies -custom-names)")
	verify := flag.Bool("verify", config.EnvBool("TOKYODL_VERIFY", false), "HEAD-check resolved links after saving")
	metricsAddr := flag.String("metrics-addr", config.EnvString("TOKYODL_METRICS_ADDR", ""), "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := config.DefaultConfig()
	cfg.ListingURL = *listingURL
	cfg.Workers = *workers
	cfg.Timeout = *timeout
	cfg.MaxRetries = *maxRetries
	cfg.RetryBackoff = time.Duration(*retryBackoffMs) * time.Millisecond
	cfg.RetryBackoffMax = time.Duration(*retryBackoffMaxMs) * time.Millisecond
	cfg.RespectRobotsTxt = *respectRobots
	cfg.OutputFile = *outputFile
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.Policy = *policy
	cfg.CustomNames = *customNames
	cfg.NameTemplate = *nameTemplate
	cfg.Verify = *verify
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose

	// -all makes the run fully non-interactive.
	interactive := !*all

	if cfg.ListingURL == "" {
		if interactive {
			u, err := promptURL(defaultCfg.ListingURL)
			if err != nil {
				fatalPrompt(err)
			}
			cfg.ListingURL = u
		} else {
			cfg.ListingURL = defaultCfg.ListingURL
		}
	}
	if cfg.Policy == "" && !interactive {
		cfg.Policy = "biggest"
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	var selector scraper.RangeSelector = promptRangeSelector{}
	if !interactive {
		selector = fullRangeSelector{}
	}

	listing, err := s.ExtractListing(ctx, selector)
	if err != nil {
		slog.Error("listing extraction failed", slog.Any("error", err))
		os.Exit(1)
	}

	runPolicy, err := resolvePolicy(cfg.Policy)
	if err != nil {
		fatalPrompt(err)
	}

	useCustom, template, err := resolveNaming(cfg, interactive)
	if err != nil {
		fatalPrompt(err)
	}

	sink, err := pipeline.NewSink(cfg.DedupeMaxSize)
	if err != nil {
		slog.Error("initialising sink", slog.Any("error", err))
		os.Exit(1)
	}

	req := models.ResolveRequest{
		Policy:       runPolicy,
		URLs:         listing.URLs,
		CustomNames:  useCustom,
		NameTemplate: template,
		Counts:       listing.Counts,
	}

	stats, err := s.ResolveLinks(ctx, req, sink)
	if err != nil {
		slog.Error("link resolution failed", slog.Any("error", err))
		os.Exit(1)
	}

	links := sink.Drain()
	pipeline.SortByEpisodeID(links)

	if err := persist(cfg.OutputFormat, cfg.OutputFile, links); err != nil {
		slog.Error("saving links failed", slog.Any("error", err))
	} else {
		slog.Info("links saved",
			slog.String("path", cfg.OutputFile),
			slog.Int("links", len(links)),
		)
	}

	if cfg.Verify {
		verifier := check.NewVerifier(check.Options{
			Timeout:        cfg.Timeout,
			Workers:        cfg.VerifyWorkers,
			UserAgent:      cfg.UserAgent,
			AcceptLanguage: cfg.AcceptLanguage,
		})
		res := verifier.Verify(ctx, links)
		slog.Info("link check finished",
			slog.Int("checked", res.Checked),
			slog.Int("reachable", res.Reachable),
			slog.Int("unreachable", len(res.Unreachable)),
			slog.Int("skipped", res.Skipped),
		)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(listing, stats, len(links), sink.Dropped(), cfg.OutputFile)
}

// persist writes the final link list in one shot. Callers treat a failure
// here as non-fatal; the links are already logged per episode.
func persist(format, path string, links []models.ResolvedLink) error {
	writer, err := pipeline.NewWriter(format, path)
	if err != nil {
		return err
	}

	if err := writer.Write(links); err != nil {
		writer.Close()
		return err
	}
	if err := writer.Validate(); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

func resolvePolicy(value string) (models.SelectionPolicy, error) {
	if value != "" {
		return models.ParsePolicy(value)
	}

	prompt := promptui.Select{
		Label: "Selection policy",
		Items: []string{"Biggest Size", "Most Downloaded", "Latest"},
	}
	_, choice, err := prompt.Run()
	if err != nil {
		return models.PolicyBiggestSize, err
	}
	return models.ParsePolicy(choice)
}

// resolveNaming decides whether filenames are built and from which template.
// Flags win; otherwise the user is asked. A prompted template missing the
// episode number placeholder gets a warning and exactly one re-prompt, then
// is accepted as-is.
func resolveNaming(cfg *config.Config, interactive bool) (bool, string, error) {
	if cfg.NameTemplate != "" {
		if !strings.Contains(cfg.NameTemplate, "{episode_number}") {
			slog.Warn("name template lacks {episode_number}; filenames may collide")
		}
		return true, cfg.NameTemplate, nil
	}
	if cfg.CustomNames {
		return true, "", nil
	}
	if !interactive {
		return false, "", nil
	}

	prompt := promptui.Select{
		Label: "Use custom filenames",
		Items: []string{"No", "Yes"},
	}
	_, choice, err := prompt.Run()
	if err != nil {
		return false, "", err
	}
	if strings.ToLower(choice) != "yes" {
		return false, "", nil
	}

	template, err := promptTemplate()
	if err != nil {
		return false, "", err
	}
	return true, template, nil
}

func promptTemplate() (string, error) {
	fmt.Printf("Default pattern: %s\n", namer.DefaultTemplate)
	fmt.Println("Available args: {anime_name} {episode_number} {type} {size} {uploader} {upload_date}")

	prompt := promptui.Prompt{Label: "Name template (empty keeps the default)"}
	template, err := prompt.Run()
	if err != nil {
		return "", err
	}

	template = strings.TrimSpace(template)
	if template == "" || strings.Contains(template, "{episode_number}") {
		return template, nil
	}

	fmt.Println("Template has no {episode_number}; every file would share one name.")
	retry, err := prompt.Run()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(retry), nil
}

func promptURL(fallback string) (string, error) {
	prompt := promptui.Prompt{
		Label:   "Anime listing URL",
		Default: fallback,
	}
	return prompt.Run()
}

// promptRangeSelector asks for each category's range on the terminal.
type promptRangeSelector struct{}

func (promptRangeSelector) SelectRange(category models.Category, count int) (int, int, bool, error) {
	prompt := promptui.Prompt{
		Label:   fmt.Sprintf("%d %s found - select a range to download (0: None)", count, category.Label()),
		Default: fmt.Sprintf("1-%d", count),
		Validate: func(input string) error {
			_, _, _, err := parseRange(input, count)
			return err
		},
	}

	answer, err := prompt.Run()
	if err != nil {
		return 0, 0, false, err
	}
	return parseRange(answer, count)
}

// fullRangeSelector takes every entry, for -all runs.
type fullRangeSelector struct{}

func (fullRangeSelector) SelectRange(category models.Category, count int) (int, int, bool, error) {
	slog.Info("selecting full range",
		slog.String("category", string(category)),
		slog.Int("entries", count),
	)
	return 1, count, false, nil
}

// parseRange reads "start-end", a bare episode number, or "0" for none.
func parseRange(input string, count int) (start, end int, skip bool, err error) {
	s := strings.TrimSpace(input)
	if s == "0" {
		return 0, 0, true, nil
	}

	if before, after, found := strings.Cut(s, "-"); found {
		start, err = strconv.Atoi(strings.TrimSpace(before))
		if err != nil {
			return 0, 0, false, fmt.Errorf("range start %q is not a number", before)
		}
		end, err = strconv.Atoi(strings.TrimSpace(after))
		if err != nil {
			return 0, 0, false, fmt.Errorf("range end %q is not a number", after)
		}
	} else {
		start, err = strconv.Atoi(s)
		if err != nil {
			return 0, 0, false, fmt.Errorf("range %q is not a number", s)
		}
		end = start
	}

	if start < 1 || end > count || start > end {
		return 0, 0, false, fmt.Errorf("range must fall within 1-%d", count)
	}
	return start, end, false, nil
}

func fatalPrompt(err error) {
	if errors.Is(err, promptui.ErrInterrupt) {
		slog.Info("cancelled")
		os.Exit(1)
	}
	slog.Error("prompt failed (pass -url, -policy, or -all for non-interactive runs)", slog.Any("error", err))
	os.Exit(1)
}

func printSummary(listing *models.Listing, stats *models.ResolveStats, saved, dropped int, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Harvest complete")

	if listing.Title != "" {
		fmt.Printf("  Anime:         %s\n", listing.Title)
	}
	fmt.Printf("  Dispatched:    %d\n", stats.Dispatched)
	fmt.Printf("  Resolved:      %d\n", stats.Resolved)
	if stats.Sentinels > 0 {
		fmt.Printf("  Without link:  %d\n", stats.Sentinels)
	}
	if dropped > 0 {
		fmt.Printf("  Duplicates:    %d\n", dropped)
	}
	fmt.Printf("  Saved:         %d\n", saved)
	fmt.Printf("  Errors:        %d\n", stats.ErrorCount)
	fmt.Printf("  Retries:       %d\n", stats.RetryCount)
	fmt.Printf("  Failed URLs:   %d\n", len(stats.FailedURLs))
	if len(stats.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", stats.ErrorsByType)
	}

	duration := stats.EndTime.Sub(stats.StartTime)
	fmt.Printf("  Duration:      %v\n", duration)
	if duration.Seconds() > 0 {
		fmt.Printf("  Links/sec:     %.2f\n", float64(stats.Resolved)/duration.Seconds())
	}
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
