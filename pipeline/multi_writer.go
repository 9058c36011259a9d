package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-chocolate/models"
)

// MultiWriter fans each batch out to several writers in order.
type MultiWriter struct {
	mu      sync.Mutex
	names   []string
	writers []OutputWriter
}

// NewMultiWriter combines writers; names label errors from each one.
func NewMultiWriter(names []string, writers ...OutputWriter) (*MultiWriter, error) {
	if len(names) != len(writers) {
		return nil, fmt.Errorf("multi writer: %d names for %d writers", len(names), len(writers))
	}
	if len(writers) == 0 {
		return nil, fmt.Errorf("multi writer: no writers")
	}
	return &MultiWriter{names: names, writers: writers}, nil
}

// NewDualWriter writes CSV and JSON Lines side by side.
func NewDualWriter(csvFilename, jsonFilename string) (*MultiWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("create CSV writer: %w", err)
	}

	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		_ = csvWriter.Close()
		return nil, fmt.Errorf("create JSON writer: %w", err)
	}

	return NewMultiWriter([]string{"csv", "json"}, csvWriter, jsonWriter)
}

// Write stops at the first writer that fails.
func (mw *MultiWriter) Write(products []*models.Product) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	for i, w := range mw.writers {
		if err := w.Write(products); err != nil {
			return fmt.Errorf("%s write: %w", mw.names[i], err)
		}
	}
	return nil
}

// Close closes every writer and joins their errors.
func (mw *MultiWriter) Close() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for i, w := range mw.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s close: %w", mw.names[i], err))
		}
	}
	return errors.Join(errs...)
}

// Validate validates every output and joins their errors.
func (mw *MultiWriter) Validate() error {
	var errs []error
	for i, w := range mw.writers {
		if err := w.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s validation: %w", mw.names[i], err))
		}
	}
	return errors.Join(errs...)
}
