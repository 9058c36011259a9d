package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrSiteFileNotFound is returned when the site file does not exist.
var ErrSiteFileNotFound = errors.New("site file not found")

// SiteFile describes a target site in YAML. Empty fields keep the
// values already present on the Config.
//
//	base_url: https://www.chocolate.co.uk
//	start_url: https://www.chocolate.co.uk/collections/all
//	price:
//	  label: Sale price
//	  currency: "£"
//	selectors:
//	  product_item: product-item
type SiteFile struct {
	BaseURL   string    `yaml:"base_url"`
	StartURL  string    `yaml:"start_url"`
	Price     PriceSpec `yaml:"price"`
	Selectors Selectors `yaml:"selectors"`
}

// PriceSpec is the boilerplate wrapped around the price text.
type PriceSpec struct {
	Label    string `yaml:"label"`
	Currency string `yaml:"currency"`
}

// LoadSiteFile reads a YAML site description from path.
func LoadSiteFile(path string) (*SiteFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSiteFileNotFound
		}
		return nil, fmt.Errorf("read site file: %w", err)
	}

	var sf SiteFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse site file %s: %w", path, err)
	}
	return &sf, nil
}

// Apply overlays the non-empty fields of sf onto c.
func (sf *SiteFile) Apply(c *Config) {
	if sf == nil || c == nil {
		return
	}
	setIf(&c.BaseURL, strings.TrimRight(sf.BaseURL, "/"))
	setIf(&c.StartURL, sf.StartURL)
	setIf(&c.PriceLabel, sf.Price.Label)
	setIf(&c.Currency, sf.Price.Currency)
	setIf(&c.Selectors.ProductItem, sf.Selectors.ProductItem)
	setIf(&c.Selectors.Title, sf.Selectors.Title)
	setIf(&c.Selectors.Price, sf.Selectors.Price)
	setIf(&c.Selectors.ProductLink, sf.Selectors.ProductLink)
	setIf(&c.Selectors.NextPage, sf.Selectors.NextPage)
}

func setIf(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
