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
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-chocolate/config"
	"github.com/aluiziolira/go-scrape-chocolate/models"
	"github.com/aluiziolira/go-scrape-chocolate/pipeline"
	"github.com/aluiziolira/go-scrape-chocolate/report"
	"github.com/aluiziolira/go-scrape-chocolate/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type cliOptions struct {
	siteFile     string
	baseURL      string
	startURL     string
	maxPages     int
	timeout      time.Duration
	userAgent    string
	outputFile   string
	outputFormat string
	metricsAddr  string
	reportFile   string
	verbose      bool
}

func main() {
	defaultCfg := config.DefaultConfig()
	pagesDefault := defaultCfg.MaxPages
	if value, ok, err := config.EnvInt("SCRAPER_PAGES"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_PAGES: %v\n", err)
		os.Exit(1)
	} else if ok {
		pagesDefault = value
	}
	outputDefault := defaultCfg.OutputFile
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		outputDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		metricsDefault = value
	}
	siteDefault, _ := config.EnvString("SCRAPER_SITE_FILE")
	reportDefault, _ := config.EnvString("SCRAPER_REPORT")

	var opts cliOptions
	flag.StringVar(&opts.siteFile, "site", siteDefault, "YAML site file overriding origin, start URL, selectors and price boilerplate")
	flag.StringVar(&opts.baseURL, "base-url", "", "Origin prepended to relative next-page links (default from site file or "+defaultCfg.BaseURL+")")
	flag.StringVar(&opts.startURL, "start-url", "", "First listing page to fetch (default from site file or "+defaultCfg.StartURL+")")
	flag.IntVar(&opts.maxPages, "pages", pagesDefault, "Maximum listing pages to fetch")
	flag.DurationVar(&opts.timeout, "timeout", defaultCfg.Timeout, "Per-request timeout")
	flag.StringVar(&opts.userAgent, "user-agent", defaultCfg.UserAgent, "User-Agent header sent with every request")
	flag.StringVar(&opts.outputFile, "output", outputDefault, "Output file path")
	flag.StringVar(&opts.outputFormat, "format", defaultCfg.OutputFormat, "Output format: csv, json, dual, or sqlite")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	flag.StringVar(&opts.reportFile, "report", reportDefault, "Write a Markdown crawl report to this path")
	flag.BoolVar(&opts.verbose, "v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(opts.verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg, err := buildConfig(opts)
	if err != nil {
		slog.Error("loading configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting crawl",
		slog.String("start_url", cfg.StartURL),
		slog.String("base_url", cfg.BaseURL),
		slog.Int("max_pages", cfg.MaxPages),
		slog.String("format", cfg.OutputFormat),
	)

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		os.Exit(1)
	}

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsServer := startMetricsServer(cfg.MetricsAddr, s.Metrics)

	p := pipeline.NewPipeline(ctx, writer, cfg)
	if cfg.Verbose {
		p.ReportProgress(10 * time.Second)
	}

	startTime := time.Now()
	result, crawlErr := s.Run(ctx, p)
	closeErr := p.Close()
	if err := writer.Close(); err != nil {
		slog.Error("close writer", slog.Any("error", err))
	}
	shutdownMetricsServer(metricsServer)

	if errors.Is(crawlErr, context.Canceled) {
		slog.Info("crawl interrupted", slog.Any("error", crawlErr))
	}
	if err := runError(crawlErr, closeErr); err != nil {
		if result == nil {
			slog.Error("crawl failed", slog.Any("error", err))
			os.Exit(1)
		}
		slog.Error("crawl failed",
			slog.String("url", result.LastURL),
			slog.Int("records_emitted", result.TotalCount),
			slog.Any("error", err),
		)
		printSummary(result, time.Since(startTime), cfg.OutputFile, p.Stats())
		writeReport(opts.reportFile, result, cfg.OutputFile, p.Stats(), err)
		os.Exit(1)
	}
	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		os.Exit(1)
	}

	printSummary(result, time.Since(startTime), cfg.OutputFile, p.Stats())
	writeReport(opts.reportFile, result, cfg.OutputFile, p.Stats(), nil)
}

// runError joins the crawl and pipeline errors that fail the run. An
// interrupt is not a failure.
func runError(crawlErr, closeErr error) error {
	if errors.Is(crawlErr, context.Canceled) {
		crawlErr = nil
	}
	if errors.Is(closeErr, context.Canceled) {
		closeErr = nil
	}
	return errors.Join(crawlErr, closeErr)
}

// buildConfig layers defaults, the optional site file and explicit flags,
// in that order.
func buildConfig(opts cliOptions) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if opts.siteFile != "" {
		site, err := config.LoadSiteFile(opts.siteFile)
		if err != nil {
			return nil, fmt.Errorf("site file %s: %w", opts.siteFile, err)
		}
		site.Apply(cfg)
	}

	if opts.baseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.baseURL, "/")
	}
	if opts.startURL != "" {
		cfg.StartURL = opts.startURL
	}
	cfg.MaxPages = opts.maxPages
	if cfg.VisitedCacheSize < cfg.MaxPages {
		cfg.VisitedCacheSize = cfg.MaxPages
	}
	cfg.Timeout = opts.timeout
	cfg.UserAgent = opts.userAgent
	cfg.OutputFile = opts.outputFile
	cfg.OutputFormat = strings.ToLower(opts.outputFormat)
	cfg.MetricsAddr = opts.metricsAddr
	cfg.Verbose = opts.verbose
	return cfg, nil
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		return pipeline.NewDualWriter(filename, jsonSibling(filename))
	case "sqlite":
		return pipeline.NewSQLiteWriter(filename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// jsonSibling names the JSONL file written next to a CSV output.
func jsonSibling(filename string) string {
	ext := filepath.Ext(filename)
	if ext == ".json" || ext == ".jsonl" {
		return strings.TrimSuffix(filename, ext) + ".dual" + ext
	}
	return strings.TrimSuffix(filename, ext) + ".jsonl"
}

func startMetricsServer(addr string, metrics *scraper.Metrics) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func shutdownMetricsServer(server *http.Server) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func writeReport(path string, result *models.ScraperResult, outputFile string, stats pipeline.Stats, crawlErr error) {
	if path == "" {
		return
	}
	summary := report.Summary{
		Result:     result,
		Written:    stats.Written,
		Issues:     stats.Issues,
		OutputFile: outputFile,
		Err:        crawlErr,
	}

	f, err := os.Create(path)
	if err != nil {
		slog.Error("create report", slog.String("path", path), slog.Any("error", err))
		return
	}
	defer f.Close()
	if err := report.WriteMarkdown(f, summary); err != nil {
		slog.Error("write report", slog.String("path", path), slog.Any("error", err))
		return
	}
	slog.Info("report written", slog.String("path", path))
}

func printSummary(result *models.ScraperResult, duration time.Duration, outputFile string, stats pipeline.Stats) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Crawl complete")

	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(result.TotalCount) / duration.Seconds()
	}

	fmt.Printf("  Stop reason:   %s\n", result.StopReason)
	fmt.Printf("  Pages:         %d\n", result.PageCount)
	fmt.Printf("  Requests:      %d\n", result.RequestCount)
	fmt.Printf("  Emitted:       %d\n", result.TotalCount)
	fmt.Printf("  Written:       %d\n", stats.Written)
	fmt.Printf("  Errors:        %d\n", result.ErrorCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	if len(stats.Issues) > 0 {
		fmt.Printf("  Record issues: %v\n", stats.Issues)
	}
	if result.LastURL != "" {
		fmt.Printf("  Last page:     %s\n", result.LastURL)
	}
	fmt.Printf("  Duration:      %v\n", duration)
	fmt.Printf("  Items/sec:     %.2f\n", itemsPerSec)
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
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
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
