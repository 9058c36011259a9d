// Package models defines data structures for the scraper.
package models

import "time"

// Product is one entry of the collection listing.
// Name is nil when the listing has no title link for the item.
type Product struct {
	Name      *string   `csv:"name" json:"name"`
	Price     string    `csv:"price" json:"price"`
	URL       string    `csv:"url" json:"url"`
	PageURL   string    `csv:"page_url" json:"page_url"`
	ScrapedAt time.Time `csv:"scraped_at" json:"scraped_at"`
}

// NameOrEmpty returns the product name, or "" when it is absent.
func (p *Product) NameOrEmpty() string {
	if p == nil || p.Name == nil {
		return ""
	}
	return *p.Name
}

// StopReason records why a crawl ended.
type StopReason string

const (
	StopExhausted       StopReason = "exhausted"
	StopMaxPages        StopReason = "max_pages"
	StopCycle           StopReason = "cycle"
	StopCancelled       StopReason = "cancelled"
	StopConsumerStopped StopReason = "consumer_stopped"
	StopError           StopReason = "error"
)

// ScraperResult holds the overall result of a crawl.
type ScraperResult struct {
	StartTime    time.Time
	EndTime      time.Time
	TotalCount   int
	PageCount    int
	RequestCount int
	ErrorCount   int
	ErrorsByType map[string]int
	LastURL      string
	StopReason   StopReason
}
