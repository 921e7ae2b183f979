package tradefair

import (
	"context"

	"go.uber.org/zap"
)

// ProbeCount fetches the listing page once and returns the number of
// exhibitors it declares, falling back to counting rendered rows. The page is
// returned for reuse by ListExhibitors; it is nil when the fetch failed.
func (s *Site) ProbeCount(ctx context.Context, exhibitorsURL string) (int, *CachedPage) {
	body, err := s.fetcher.FetchText(ctx, exhibitorsURL)
	if err != nil {
		s.logger.Warn("exhibitor probe failed", zap.String("url", exhibitorsURL), zap.Error(err))
		return 0, nil
	}
	page := &CachedPage{URL: exhibitorsURL, Body: body}

	doc, err := parseHTML(body)
	if err != nil {
		s.logger.Warn("exhibitor page unparsable", zap.String("url", exhibitorsURL), zap.Error(err))
		return 0, page
	}
	settings, ok := findSettings(doc.Selection)
	if ok {
		if count, declared := settings.declaredRowCount(); declared {
			return count, page
		}
	}

	count := countRows(doc.Selection)
	s.logger.Debug("exhibitor count from rendered rows",
		zap.String("url", exhibitorsURL),
		zap.Bool("settings_found", ok),
		zap.Int("count", count),
	)
	return count, page
}
