package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-chocolate/config"
	"github.com/aluiziolira/go-scrape-chocolate/models"
	"github.com/aluiziolira/go-scrape-chocolate/parser"
)

var (
	// ErrPipelineClosed is returned by Emit after Close.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when pending records are not
	// written within the drain timeout.
	ErrPipelineCloseTimeout = errors.New("pipeline: timed out draining records")
)

var drainTimeout = 30 * time.Second

// Record quality issues. Records carrying them are still written.
const (
	IssueInvalidRecord = "invalid_record"
	IssueUncleanPrice  = "unclean_price"
	IssueUnnamed       = "unnamed"
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(products []*models.Product) error
	Close() error
	Validate() error
}

// Stats is a snapshot of what the pipeline has written.
type Stats struct {
	Written int64
	Issues  map[string]int
}

// Pipeline writes emitted products in emission order. A single goroutine
// owns the writer and flushes every BatchSize records and on Close.
type Pipeline struct {
	ctx       context.Context
	writer    OutputWriter
	records   chan *models.Product
	batchSize int

	// sendMu serialises Emit against Close so a send never hits a closed
	// channel.
	sendMu sync.Mutex
	closed bool

	failed   chan struct{}
	failOnce sync.Once
	done     chan struct{}

	statsMu sync.Mutex
	err     error
	written int64
	issues  map[string]int
}

// NewPipeline starts the writer loop, buffered and batched per cfg.
func NewPipeline(ctx context.Context, writer OutputWriter, cfg *config.Config) *Pipeline {
	if ctx == nil {
		ctx = context.Background()
	}
	p := &Pipeline{
		ctx:       ctx,
		writer:    writer,
		records:   make(chan *models.Product, max(cfg.PipelineBufferSize, 1)),
		batchSize: max(cfg.BatchSize, 1),
		failed:    make(chan struct{}),
		done:      make(chan struct{}),
		issues:    make(map[string]int),
	}
	go p.run()
	return p
}

// Emit queues one product. It blocks while the buffer is full and fails
// once the pipeline is closed, the writer has failed or ctx is done.
func (p *Pipeline) Emit(product *models.Product) error {
	if product == nil {
		return nil
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	if p.closed {
		return ErrPipelineClosed
	}
	select {
	case <-p.failed:
		return p.Err()
	default:
	}

	select {
	case p.records <- product:
		return nil
	case <-p.failed:
		return p.Err()
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Close stops accepting records and waits for the queued ones to be
// written. It returns the first write error, if any.
func (p *Pipeline) Close() error {
	p.sendMu.Lock()
	if !p.closed {
		p.closed = true
		close(p.records)
	}
	p.sendMu.Unlock()

	select {
	case <-p.done:
		return p.Err()
	case <-time.After(drainTimeout):
		return ErrPipelineCloseTimeout
	}
}

// Err returns the first write error.
func (p *Pipeline) Err() error {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.err
}

// Stats returns the records written so far and the issue counts.
func (p *Pipeline) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	issues := make(map[string]int, len(p.issues))
	for k, v := range p.issues {
		issues[k] = v
	}
	return Stats{Written: p.written, Issues: issues}
}

// ReportProgress logs Stats every interval until the pipeline finishes.
func (p *Pipeline) ReportProgress(interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				stats := p.Stats()
				slog.Info("pipeline progress",
					slog.Int64("written", stats.Written),
					slog.Any("issues", stats.Issues),
				)
			case <-p.done:
				return
			}
		}
	}()
}

func (p *Pipeline) run() {
	defer close(p.done)

	batch := make([]*models.Product, 0, p.batchSize)
	for product := range p.records {
		p.inspect(product)
		batch = append(batch, product)
		if len(batch) < p.batchSize {
			continue
		}
		if err := p.flush(batch); err != nil {
			p.fail(err)
			return
		}
		batch = batch[:0]
	}
	if err := p.flush(batch); err != nil {
		p.fail(err)
	}
}

func (p *Pipeline) flush(batch []*models.Product) error {
	if len(batch) == 0 {
		return nil
	}
	if err := p.writer.Write(batch); err != nil {
		return fmt.Errorf("write %d records: %w", len(batch), err)
	}
	p.statsMu.Lock()
	p.written += int64(len(batch))
	p.statsMu.Unlock()
	return nil
}

// inspect counts quality issues on a record without altering or dropping it.
func (p *Pipeline) inspect(product *models.Product) {
	var found []string
	if err := parser.ValidateProduct(product); err != nil {
		found = append(found, IssueInvalidRecord)
		slog.Warn("writing incomplete record", slog.String("url", product.URL), slog.Any("error", err))
	}
	if strings.ContainsAny(product.Price, "<>") {
		found = append(found, IssueUncleanPrice)
	}
	if product.Name == nil {
		found = append(found, IssueUnnamed)
	}
	if len(found) == 0 {
		return
	}

	p.statsMu.Lock()
	for _, issue := range found {
		p.issues[issue]++
	}
	p.statsMu.Unlock()
}

func (p *Pipeline) fail(err error) {
	p.statsMu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.statsMu.Unlock()
	p.failOnce.Do(func() { close(p.failed) })
	slog.Error("pipeline writer failed", slog.Any("error", err))
}
