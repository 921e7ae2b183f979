package tradefair

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const defaultMaxPages = 20

// Options configures a Site.
type Options struct {
	BaseURL         string
	EventsSearchURL string
	PageDelay       time.Duration
	MaxPages        int
}

// Site scrapes one trade-fair website through a Fetcher.
type Site struct {
	fetcher         Fetcher
	base            *url.URL
	eventsSearchURL string
	pageDelay       time.Duration
	maxPages        int
	logger          *zap.Logger
}

// NewSite validates opts and builds a Site.
func NewSite(fetcher Fetcher, opts Options, logger *zap.Logger) (*Site, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}
	if opts.EventsSearchURL == "" {
		return nil, fmt.Errorf("events search url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	return &Site{
		fetcher:         fetcher,
		base:            base,
		eventsSearchURL: opts.EventsSearchURL,
		pageDelay:       opts.PageDelay,
		maxPages:        maxPages,
		logger:          logger,
	}, nil
}

// resolve turns href into an absolute URL against the site root.
func (s *Site) resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return s.base.ResolveReference(ref).String()
}

func parseHTML(fragment string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// cleanText trims and collapses internal whitespace.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// firstText returns the text of the first selector that yields non-empty text.
func firstText(sel *goquery.Selection, selectors ...string) string {
	for _, selector := range selectors {
		if text := cleanText(sel.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}
