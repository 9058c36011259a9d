package parser

import (
	"regexp"
	"strings"
)

// PriceCleaner strips the markup the listing wraps around a price:
//
//	<span class="price">
//	  <span class="visually-hidden">Sale price</span>£4.50</span>
type PriceCleaner struct {
	prefix *regexp.Regexp
}

// NewPriceCleaner builds a cleaner for the given hidden label and currency.
func NewPriceCleaner(label, currency string) *PriceCleaner {
	pattern := `<span class="price">\s*<span class="visually-hidden">` +
		regexp.QuoteMeta(label) + `</span>\s*` + regexp.QuoteMeta(currency)
	return &PriceCleaner{prefix: regexp.MustCompile(pattern)}
}

// Clean returns the bare price and whether the markup matched the
// boilerplate. Unmatched markup is returned with closing tags removed and
// everything else left in place.
func (pc *PriceCleaner) Clean(markup string) (string, bool) {
	matched := pc.prefix.MatchString(markup)
	price := pc.prefix.ReplaceAllLiteralString(markup, "")
	price = strings.TrimSpace(strings.ReplaceAll(price, "</span>", ""))
	return price, matched && !strings.ContainsAny(price, "<>")
}

