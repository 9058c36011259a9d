package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-chocolate/models"
)

var csvHeader = []string{"name", "price", "url", "page_url", "scraped_at"}

// outputFile is the buffered file shared by the line-oriented writers.
type outputFile struct {
	mu      sync.Mutex
	format  string
	file    *os.File
	buf     *bufio.Writer
	records int
}

func openOutputFile(filename, format string) (*outputFile, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create %s file: %w", format, err)
	}
	return &outputFile{format: format, file: f, buf: bufio.NewWriter(f)}, nil
}

// finish flushes buffered bytes and closes the file. Callers hold mu.
func (o *outputFile) finish() error {
	if err := o.buf.Flush(); err != nil {
		_ = o.file.Close()
		return fmt.Errorf("flush %s file: %w", o.format, err)
	}
	return o.file.Close()
}

// Validate fails when nothing but a header reached the file.
func (o *outputFile) Validate() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.records == 0 {
		return fmt.Errorf("%s file %s has no records", o.format, o.file.Name())
	}
	return nil
}

// CSVWriter writes one row per product under a fixed header.
// An absent name is an empty field.
type CSVWriter struct {
	*outputFile
	csv *csv.Writer
}

// NewCSVWriter creates filename and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	out, err := openOutputFile(filename, "csv")
	if err != nil {
		return nil, err
	}
	w := &CSVWriter{outputFile: out, csv: csv.NewWriter(out.buf)}
	if err := w.csv.Write(csvHeader); err != nil {
		_ = out.file.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	if err := w.sync(); err != nil {
		_ = out.file.Close()
		return nil, err
	}
	return w, nil
}

func csvRow(p *models.Product) []string {
	return []string{p.NameOrEmpty(), p.Price, p.URL, p.PageURL, p.ScrapedAt.Format(time.RFC3339)}
}

// Write appends one row per product and flushes the batch to disk.
func (w *CSVWriter) Write(products []*models.Product) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range products {
		if err := w.csv.Write(csvRow(p)); err != nil {
			return fmt.Errorf("write csv row for %s: %w", p.URL, err)
		}
		w.records++
	}
	return w.sync()
}

func (w *CSVWriter) sync() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("flush csv rows: %w", err)
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush csv file: %w", err)
	}
	return nil
}

// Close flushes pending rows and closes the file.
func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.csv.Flush()
	return w.finish()
}

// JSONWriter writes JSON Lines, one object per product. An absent name is
// encoded as null.
type JSONWriter struct {
	*outputFile
	enc *json.Encoder
}

// NewJSONWriter creates filename.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	out, err := openOutputFile(filename, "json")
	if err != nil {
		return nil, err
	}
	return &JSONWriter{outputFile: out, enc: json.NewEncoder(out.buf)}, nil
}

// Write encodes each product on its own line and flushes the batch.
func (w *JSONWriter) Write(products []*models.Product) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range products {
		if err := w.enc.Encode(p); err != nil {
			return fmt.Errorf("encode %s: %w", p.URL, err)
		}
		w.records++
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush json file: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (w *JSONWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finish()
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
