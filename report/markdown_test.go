package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-chocolate/models"
)

func sampleResult() *models.ScraperResult {
	start := time.Date(2025, 11, 4, 13, 0, 0, 0, time.UTC)
	return &models.ScraperResult{
		StartTime:    start,
		EndTime:      start.Add(1500 * time.Millisecond),
		TotalCount:   3,
		PageCount:    2,
		RequestCount: 2,
		ErrorsByType: map[string]int{},
		LastURL:      "https://www.chocolate.co.uk/collections/all?page=2",
		StopReason:   models.StopExhausted,
	}
}

func TestWriteMarkdownCompletedCrawl(t *testing.T) {
	var buf bytes.Buffer
	err := WriteMarkdown(&buf, Summary{
		Result:     sampleResult(),
		Written:    3,
		Issues:     map[string]int{"unclean_price": 1},
		OutputFile: "output/products.csv",
	})
	if err != nil {
		t.Fatalf("write markdown: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"# Crawl Report",
		"exhausted",
		"Records written",
		"output/products.csv",
		"unclean_price",
		"Pagination chain exhausted.",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Errors by type") {
		t.Fatalf("empty error table should be omitted:\n%s", out)
	}
}

func TestWriteMarkdownFailedCrawl(t *testing.T) {
	result := sampleResult()
	result.StopReason = models.StopError
	result.ErrorCount = 1
	result.ErrorsByType["not_found"] = 1

	var buf bytes.Buffer
	if err := WriteMarkdown(&buf, Summary{Result: result, Err: errors.New("fetch failed")}); err != nil {
		t.Fatalf("write markdown: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "fetch failed") || !strings.Contains(out, "not_found") {
		t.Fatalf("failure details missing:\n%s", out)
	}
}

func TestWriteMarkdownNilResult(t *testing.T) {
	if err := WriteMarkdown(&bytes.Buffer{}, Summary{}); err == nil {
		t.Fatalf("expected error for nil result")
	}
}
