package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-chocolate/config"
	"github.com/aluiziolira/go-scrape-chocolate/models"
)

var (
	// ErrMissingPrice means a product item has no price element.
	ErrMissingPrice = errors.New("parser: product has no price element")
	// ErrMissingProductLink means a product item has no link, or the link has no href.
	ErrMissingProductLink = errors.New("parser: product has no link")
)

// Page is what one listing page yields.
type Page struct {
	Products []*models.Product
	// Next is the raw href of the next-page link, empty on the last page.
	Next string
	// UncleanPrices counts prices whose markup did not match the boilerplate.
	UncleanPrices int
}

// ParsePage extracts products in document order and the next-page link.
// It depends only on the document, so parsing the same page twice gives the
// same records. On a missing mandatory element it returns the products
// extracted before the failing item together with the error.
func ParsePage(root *goquery.Selection, pageURL string, sel config.Selectors, cleaner *PriceCleaner) (*Page, error) {
	page := &Page{}

	var extractErr error
	root.Find(sel.ProductItem).EachWithBreak(func(i int, item *goquery.Selection) bool {
		product, clean, err := extractProduct(item, sel, cleaner)
		if err != nil {
			extractErr = fmt.Errorf("product %d: %w", i, err)
			return false
		}
		if !clean {
			page.UncleanPrices++
		}
		product.PageURL = pageURL
		page.Products = append(page.Products, product)
		return true
	})
	if extractErr != nil {
		return page, extractErr
	}

	page.Next = nextHref(root, sel.NextPage)
	return page, nil
}

func extractProduct(item *goquery.Selection, sel config.Selectors, cleaner *PriceCleaner) (*models.Product, bool, error) {
	product := &models.Product{}

	if title := item.Find(sel.Title).First(); title.Length() > 0 {
		name := strings.TrimSpace(title.Text())
		product.Name = &name
	}

	priceEl := item.Find(sel.Price).First()
	if priceEl.Length() == 0 {
		return nil, false, ErrMissingPrice
	}
	markup, err := goquery.OuterHtml(priceEl)
	if err != nil {
		return nil, false, fmt.Errorf("render price: %w", err)
	}
	price, clean := cleaner.Clean(markup)
	product.Price = price

	href, ok := item.Find(sel.ProductLink).First().Attr("href")
	if !ok {
		return nil, false, ErrMissingProductLink
	}
	product.URL = href

	return product, clean, nil
}

func nextHref(root *goquery.Selection, selector string) string {
	next := root.Find(selector).First()
	if next.Length() == 0 {
		return ""
	}
	if href, ok := next.Attr("href"); ok {
		return strings.TrimSpace(href)
	}
	href, _ := next.Find("[href]").First().Attr("href")
	return strings.TrimSpace(href)
}

// NextPageURL prefixes a relative next-page href with the site origin,
// verbatim. Absolute hrefs are returned unchanged.
func NextPageURL(origin, href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return origin + href
}

// ValidateProduct ensures the record carries the fields a sink needs.
func ValidateProduct(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if strings.TrimSpace(p.URL) == "" {
		return fmt.Errorf("product missing url")
	}
	if strings.TrimSpace(p.Price) == "" {
		return fmt.Errorf("product missing price for %s", p.URL)
	}
	return nil
}
