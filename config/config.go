package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Selectors are the CSS selectors used against the collection markup.
type Selectors struct {
	ProductItem string `yaml:"product_item"`
	Title       string `yaml:"title"`
	Price       string `yaml:"price"`
	ProductLink string `yaml:"product_link"`
	NextPage    string `yaml:"next_page"`
}

// DefaultSelectors match the collection markup of www.chocolate.co.uk.
func DefaultSelectors() Selectors {
	return Selectors{
		ProductItem: "product-item",
		Title:       "a.product-item-meta__title",
		Price:       "span.price",
		ProductLink: "div.product-item-meta a",
		NextPage:    `[rel="next"]`,
	}
}

// Config holds scraper configuration.
type Config struct {
	BaseURL            string
	StartURL           string
	Selectors          Selectors
	PriceLabel         string
	Currency           string
	MaxPages           int
	VisitedCacheSize   int
	Timeout            time.Duration
	OutputFile         string
	OutputFormat       string // csv, json, dual or sqlite
	UserAgent          string
	PipelineBufferSize int
	BatchSize          int
	MetricsAddr        string
	Verbose            bool
}

// DefaultConfig returns the defaults for the chocolate.co.uk collection.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "https://www.chocolate.co.uk",
		StartURL:           "https://www.chocolate.co.uk/collections/all",
		Selectors:          DefaultSelectors(),
		PriceLabel:         "Sale price",
		Currency:           "£",
		MaxPages:           100,
		VisitedCacheSize:   1024,
		Timeout:            10 * time.Second,
		OutputFile:         "output/products.csv",
		OutputFormat:       "csv",
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		PipelineBufferSize: 256,
		BatchSize:          32,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if err := validateURL("base URL", c.BaseURL); err != nil {
		return err
	}
	if err := validateURL("start URL", c.StartURL); err != nil {
		return err
	}
	if err := c.Selectors.Validate(); err != nil {
		return err
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.VisitedCacheSize < c.MaxPages {
		return fmt.Errorf("visited cache size (%d) cannot be smaller than max pages (%d)", c.VisitedCacheSize, c.MaxPages)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	switch c.OutputFormat {
	case "csv", "json", "dual", "sqlite":
	default:
		return fmt.Errorf("output format must be csv, json, dual, or sqlite")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	return nil
}

// Validate reports the first empty selector.
func (s Selectors) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"product item", s.ProductItem},
		{"title", s.Title},
		{"price", s.Price},
		{"product link", s.ProductLink},
		{"next page", s.NextPage},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%s selector cannot be empty", f.name)
		}
	}
	return nil
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}
