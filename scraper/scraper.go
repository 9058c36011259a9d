package scraper

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-chocolate/config"
	"github.com/aluiziolira/go-scrape-chocolate/models"
	"github.com/aluiziolira/go-scrape-chocolate/parser"
)

// Sink receives products one at a time, in listing order.
// A non-nil error aborts the crawl.
type Sink interface {
	Emit(product *models.Product) error
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(product *models.Product) error

// Emit calls f(product).
func (f SinkFunc) Emit(product *models.Product) error {
	return f(product)
}

var (
	errConsumerStopped = errors.New("scraper: consumer stopped")
	errNotHTML         = errors.New("scraper: response is not an HTML document")
)

// Scraper walks the pagination chain of a collection listing with a
// synchronous colly collector: one request in flight, page N+1 only after
// page N has been emitted.
type Scraper struct {
	cfg       *config.Config
	collector *colly.Collector
	cleaner   *parser.PriceCleaner
	Metrics   *Metrics

	// mu serialises crawls; the handlers below read run without locking.
	mu  sync.Mutex
	run *crawlRun

	handlersOnce sync.Once
}

// crawlRun is the state of one Crawl call.
type crawlRun struct {
	sink   Sink
	result *models.ScraperResult
	next   string
	status int
	parsed bool
	err    error
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	hosts, err := allowedHosts(cfg.BaseURL, cfg.StartURL)
	if err != nil {
		return nil, err
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(hosts...),
		colly.UserAgent(cfg.UserAgent),
	)
	// Revisits are detected per crawl by the frontier.
	collector.AllowURLRevisit = true
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &Scraper{
		cfg:       cfg,
		collector: collector,
		cleaner:   parser.NewPriceCleaner(cfg.PriceLabel, cfg.Currency),
		Metrics:   NewMetrics(),
	}, nil
}

func allowedHosts(rawURLs ...string) ([]string, error) {
	var hosts []string
	seen := make(map[string]bool)
	for _, raw := range rawURLs {
		parsed, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse url %q: %w", raw, err)
		}
		// colly matches allowed domains against the host without its port.
		host := parsed.Hostname()
		if host == "" {
			return nil, fmt.Errorf("url %q must include a host", raw)
		}
		if !seen[host] {
			seen[host] = true
			hosts = append(hosts, host)
		}
	}
	return hosts, nil
}

// Run crawls from the configured start URL.
func (s *Scraper) Run(ctx context.Context, sink Sink) (*models.ScraperResult, error) {
	return s.Crawl(ctx, s.cfg.StartURL, sink)
}

// Products returns the crawl as a lazy sequence. Breaking out of the loop
// stops the crawl before the next page is requested. A fatal crawl error is
// yielded last, with a nil product.
func (s *Scraper) Products(ctx context.Context, startURL string) iter.Seq2[*models.Product, error] {
	return func(yield func(*models.Product, error) bool) {
		_, err := s.Crawl(ctx, startURL, SinkFunc(func(p *models.Product) error {
			if !yield(p, nil) {
				return errConsumerStopped
			}
			return nil
		}))
		if err != nil {
			yield(nil, err)
		}
	}
}

// Crawl fetches startURL, emits its products to sink and follows the
// next-page link until the chain ends. Fetch and extraction failures are
// fatal: the crawl stops and returns the error with the partial result.
// Records emitted before the failure stay with the sink.
func (s *Scraper) Crawl(ctx context.Context, startURL string, sink Sink) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if sink == nil {
		return nil, fmt.Errorf("sink cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.configureHandlers()

	visited, err := lru.New[string, struct{}](s.cfg.VisitedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create visited cache: %w", err)
	}

	run := &crawlRun{
		sink: sink,
		result: &models.ScraperResult{
			StartTime:    time.Now(),
			ErrorsByType: make(map[string]int),
		},
	}
	s.run = run
	defer func() { s.run = nil }()

	pending := startURL
	for pending != "" {
		if ctx.Err() != nil {
			slog.Info("crawl cancelled", slog.String("next_url", pending))
			return s.finish(run, models.StopCancelled, nil)
		}
		if run.result.PageCount >= s.cfg.MaxPages {
			slog.Warn("page limit reached, not following next link",
				slog.Int("max_pages", s.cfg.MaxPages),
				slog.String("next_url", pending),
			)
			return s.finish(run, models.StopMaxPages, nil)
		}
		if visited.Contains(pending) {
			slog.Warn("next link points to a visited page, stopping",
				slog.String("url", pending),
			)
			return s.finish(run, models.StopCycle, nil)
		}
		visited.Add(pending, struct{}{})

		run.next, run.status, run.parsed, run.err = "", 0, false, nil
		run.result.LastURL = pending

		if err := s.collector.Visit(pending); err != nil {
			fetchErr := &FetchError{URL: pending, Status: run.status, Err: classifyError(err, run.status)}
			return s.finish(run, models.StopError, fetchErr)
		}
		if run.err == nil && !run.parsed {
			run.err = &ExtractError{URL: pending, Err: errNotHTML}
		}
		if run.err != nil {
			if errors.Is(run.err, errConsumerStopped) {
				return s.finish(run, models.StopConsumerStopped, nil)
			}
			return s.finish(run, models.StopError, run.err)
		}

		pending = run.next
	}

	return s.finish(run, models.StopExhausted, nil)
}

func (s *Scraper) finish(run *crawlRun, reason models.StopReason, err error) (*models.ScraperResult, error) {
	run.result.EndTime = time.Now()
	run.result.StopReason = reason
	if err != nil {
		label := errorTypeLabel(err)
		run.result.ErrorCount++
		run.result.ErrorsByType[label]++
		s.Metrics.IncError(label)
	}
	return run.result, err
}

func (s *Scraper) configureHandlers() {
	s.handlersOnce.Do(func() {
		s.collector.OnRequest(func(r *colly.Request) {
			r.Ctx.Put("start", time.Now())
			s.Metrics.IncRequest("started")
			if s.run != nil {
				s.run.result.RequestCount++
			}
			slog.Debug("requesting listing page", slog.String("url", r.URL.String()))
		})

		s.collector.OnError(func(r *colly.Response, err error) {
			if s.run == nil || r == nil {
				return
			}
			s.run.status = r.StatusCode
			s.Metrics.IncRequest("failed")
			slog.Error("request error",
				slog.String("url", r.Request.URL.String()),
				slog.Int("status", r.StatusCode),
				slog.Any("error", err),
			)
		})

		s.collector.OnResponse(func(r *colly.Response) {
			if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
				s.Metrics.ObserveDuration(time.Since(start))
			}
			if s.run != nil {
				s.run.status = r.StatusCode
			}
		})

		s.collector.OnHTML("html", func(e *colly.HTMLElement) {
			if s.run == nil || s.run.parsed {
				return
			}
			s.handlePage(s.run, e.Request.URL.String(), e.DOM)
		})
	})
}

// handlePage emits the products of one fetched page and records the next
// link. Errors are stored on run for Crawl to act on.
func (s *Scraper) handlePage(run *crawlRun, pageURL string, root *goquery.Selection) {
	run.parsed = true
	run.result.PageCount++
	s.Metrics.IncPages()

	page, parseErr := parser.ParsePage(root, pageURL, s.cfg.Selectors, s.cleaner)
	for _, product := range page.Products {
		product.ScrapedAt = time.Now()
		if err := run.sink.Emit(product); err != nil {
			if !errors.Is(err, errConsumerStopped) {
				err = fmt.Errorf("emit product from %s: %w", pageURL, err)
			}
			run.err = err
			return
		}
		run.result.TotalCount++
		s.Metrics.IncItems()
	}

	if page.UncleanPrices > 0 {
		s.Metrics.AddUncleanPrices(page.UncleanPrices)
		slog.Warn("price markup did not match the expected boilerplate",
			slog.String("url", pageURL),
			slog.Int("count", page.UncleanPrices),
		)
	}

	if parseErr != nil {
		run.err = &ExtractError{URL: pageURL, Err: parseErr}
		return
	}

	run.next = parser.NextPageURL(s.cfg.BaseURL, page.Next)
	slog.Debug("listing page parsed",
		slog.String("url", pageURL),
		slog.Int("products", len(page.Products)),
		slog.String("next", run.next),
	)
}
