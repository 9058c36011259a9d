package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "zero max pages",
			mutate: func(cfg *Config) {
				cfg.MaxPages = 0
			},
			wantErr: "max pages",
		},
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.BaseURL = ""
			},
			wantErr: "base URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.BaseURL = "http://"
			},
			wantErr: "base URL",
		},
		{
			name: "start url without host",
			mutate: func(cfg *Config) {
				cfg.StartURL = "/collections/all"
			},
			wantErr: "start URL",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "empty price selector",
			mutate: func(cfg *Config) {
				cfg.Selectors.Price = " "
			},
			wantErr: "price selector",
		},
		{
			name: "visited cache below page cap",
			mutate: func(cfg *Config) {
				cfg.MaxPages = 10
				cfg.VisitedCacheSize = 5
			},
			wantErr: "visited cache",
		},
		{
			name: "unknown output format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xml"
			},
			wantErr: "output format",
		},
		{
			name: "zero batch size",
			mutate: func(cfg *Config) {
				cfg.BatchSize = 0
			},
			wantErr: "batch size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.StartURL != "https://www.chocolate.co.uk/collections/all" {
		t.Fatalf("start url = %q", cfg.StartURL)
	}
	if cfg.Selectors != DefaultSelectors() {
		t.Fatalf("selectors = %+v, want defaults", cfg.Selectors)
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("SCRAPER_TEST_INT", " 42 ")
	value, ok, err := EnvInt("SCRAPER_TEST_INT")
	if err != nil || !ok || value != 42 {
		t.Fatalf("EnvInt = %d, %v, %v; want 42, true, nil", value, ok, err)
	}

	t.Setenv("SCRAPER_TEST_INT", "many")
	if _, _, err := EnvInt("SCRAPER_TEST_INT"); err == nil {
		t.Fatalf("expected parse error")
	}

	if _, ok, err := EnvInt("SCRAPER_TEST_UNSET"); ok || err != nil {
		t.Fatalf("unset variable should report ok=false, got ok=%v err=%v", ok, err)
	}
}

func TestEnvStringBlank(t *testing.T) {
	t.Setenv("SCRAPER_TEST_STRING", "   ")
	if _, ok := EnvString("SCRAPER_TEST_STRING"); ok {
		t.Fatalf("blank variable should report ok=false")
	}
}

func TestLoadSiteFileApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	content := `base_url: http://example.test/
start_url: http://example.test/collections/all
price:
  currency: "$"
selectors:
  product_item: li.product
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write site file: %v", err)
	}

	sf, err := LoadSiteFile(path)
	if err != nil {
		t.Fatalf("load site file: %v", err)
	}

	cfg := DefaultConfig()
	sf.Apply(cfg)

	if cfg.BaseURL != "http://example.test" {
		t.Fatalf("base url = %q", cfg.BaseURL)
	}
	if cfg.Currency != "$" {
		t.Fatalf("currency = %q, want $", cfg.Currency)
	}
	if cfg.PriceLabel != "Sale price" {
		t.Fatalf("price label should keep default, got %q", cfg.PriceLabel)
	}
	if cfg.Selectors.ProductItem != "li.product" {
		t.Fatalf("product item selector = %q", cfg.Selectors.ProductItem)
	}
	if cfg.Selectors.Title != DefaultSelectors().Title {
		t.Fatalf("title selector should keep default, got %q", cfg.Selectors.Title)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config should validate after apply: %v", err)
	}
}

func TestLoadSiteFileMissing(t *testing.T) {
	_, err := LoadSiteFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, ErrSiteFileNotFound) {
		t.Fatalf("expected ErrSiteFileNotFound, got %v", err)
	}
}
