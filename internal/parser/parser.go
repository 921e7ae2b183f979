// Package parser extracts company details from exhibitor detail pages.
package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Details is what a detail page yields about a company. Empty fields are unknown.
type Details struct {
	Name        string
	Description string
	Address     string
	Phone       string
	Email       string
	WWW         string
}

// Extractor parses one family of detail pages.
type Extractor interface {
	Name() string
	// Parse returns nil, false when the page does not describe a company.
	Parse(html, pageURL string) (*Details, bool)
}

// fieldSelectors lists CSS selectors per field in priority order.
type fieldSelectors struct {
	name        []string
	address     []string
	phone       []string
	email       []string
	description []string
	website     []string
}

// selectorExtractor is an Extractor driven purely by CSS selectors.
type selectorExtractor struct {
	name        string
	selectors   fieldSelectors
	externalWWW bool
	pageAsWWW   bool
}

func (e *selectorExtractor) Name() string { return e.name }

func (e *selectorExtractor) Parse(html, pageURL string) (*Details, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false
	}
	details := &Details{
		Name:        firstText(doc.Selection, e.selectors.name...),
		Address:     firstText(doc.Selection, e.selectors.address...),
		Phone:       firstText(doc.Selection, e.selectors.phone...),
		Email:       firstText(doc.Selection, e.selectors.email...),
		Description: firstText(doc.Selection, e.selectors.description...),
		WWW:         firstAttr(doc.Selection, "href", e.selectors.website...),
	}
	if details.Name == "" {
		return nil, false
	}
	if details.WWW == "" && e.externalWWW {
		details.WWW = externalLink(doc.Selection, pageURL)
	}
	if details.WWW == "" && e.pageAsWWW {
		details.WWW = pageURL
	}
	return details, true
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstText(sel *goquery.Selection, selectors ...string) string {
	for _, selector := range selectors {
		if text := cleanText(sel.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func firstAttr(sel *goquery.Selection, attr string, selectors ...string) string {
	for _, selector := range selectors {
		if value, ok := sel.Find(selector).First().Attr(attr); ok {
			if value = strings.TrimSpace(value); value != "" {
				return value
			}
		}
	}
	return ""
}

// externalLink returns the first absolute http(s) link pointing off the page's host.
func externalLink(sel *goquery.Selection, pageURL string) string {
	page, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	pageHost := strings.TrimPrefix(strings.ToLower(page.Hostname()), "www.")
	var found string
	sel.Find(`a[href^="http"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		u, err := url.Parse(strings.TrimSpace(href))
		if err != nil || u.Host == "" {
			return true
		}
		if strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.") == pageHost {
			return true
		}
		found = u.String()
		return false
	})
	return found
}

// Merge fills the empty fields of dst from src. Fields already set win.
func Merge(dst *Details, src Details) {
	fill := func(target *string, value string) {
		if *target == "" {
			*target = value
		}
	}
	fill(&dst.Name, src.Name)
	fill(&dst.Description, src.Description)
	fill(&dst.Address, src.Address)
	fill(&dst.Phone, src.Phone)
	fill(&dst.Email, src.Email)
	fill(&dst.WWW, src.WWW)
}
