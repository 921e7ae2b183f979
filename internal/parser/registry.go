package parser

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ErrUnknownParser is returned when configuration names an extractor that is not registered.
var ErrUnknownParser = errors.New("unknown parser")

// Route binds a domain substring to an extractor name.
type Route struct {
	Domain string
	Parser string
}

type boundRoute struct {
	domain    string
	extractor Extractor
}

// Registry resolves the extractor for a detail page URL. Routes are checked in
// order; the first whose domain occurs in the URL wins.
type Registry struct {
	routes   []boundRoute
	fallback Extractor
	logger   *zap.Logger
}

// NewRegistry binds routes to the built-in extractors.
func NewRegistry(defaultParser string, routes []Route, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	known := builtins()
	if defaultParser == "" {
		defaultParser = TargiKielceName
	}
	newDefault, ok := known[defaultParser]
	if !ok {
		return nil, fmt.Errorf("default parser %q: %w", defaultParser, ErrUnknownParser)
	}

	reg := &Registry{fallback: newDefault(), logger: logger}
	for _, route := range routes {
		build, ok := known[route.Parser]
		if !ok {
			return nil, fmt.Errorf("route %q -> %q: %w", route.Domain, route.Parser, ErrUnknownParser)
		}
		reg.routes = append(reg.routes, boundRoute{
			domain:    strings.ToLower(route.Domain),
			extractor: build(),
		})
	}
	return reg, nil
}

// For returns the extractor responsible for pageURL.
func (r *Registry) For(pageURL string) Extractor {
	lower := strings.ToLower(pageURL)
	for _, route := range r.routes {
		if strings.Contains(lower, route.domain) {
			return route.extractor
		}
	}
	r.logger.Debug("no parser route matched, using default",
		zap.String("url", pageURL),
		zap.String("parser", r.fallback.Name()),
	)
	return r.fallback
}

// Parse runs the matching extractor and then the regex contact fallback.
func (r *Registry) Parse(html, pageURL string) (*Details, bool) {
	extractor := r.For(pageURL)
	details, ok := extractor.Parse(html, pageURL)
	if !ok {
		r.logger.Debug("detail page yielded no company",
			zap.String("url", pageURL),
			zap.String("parser", extractor.Name()),
		)
		return nil, false
	}
	ContactFallback(details, html)
	return details, true
}
