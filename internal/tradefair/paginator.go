package tradefair

import (
	"context"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/tradefair-crawler/internal/fetch"
)

// fallbackPageSize is used when the settings name a search endpoint but no row count.
const fallbackPageSize = 100

// ListExhibitors returns every exhibitor of the listing at exhibitorsURL.
// cached is reused only when it holds that exact URL. Failures end the
// listing with whatever was collected so far.
func (s *Site) ListExhibitors(ctx context.Context, exhibitorsURL string, cached *CachedPage) []Exhibitor {
	var body string
	if cached != nil && cached.URL == exhibitorsURL {
		body = cached.Body
	} else {
		fetched, err := s.fetcher.FetchText(ctx, exhibitorsURL)
		if err != nil {
			s.logger.Warn("exhibitor page fetch failed", zap.String("url", exhibitorsURL), zap.Error(err))
			return nil
		}
		body = fetched
	}

	doc, err := parseHTML(body)
	if err != nil {
		s.logger.Warn("exhibitor page unparsable", zap.String("url", exhibitorsURL), zap.Error(err))
		return nil
	}

	settings, ok := findSettings(doc.Selection)
	if ok {
		if rowCount, declared := settings.declaredRowCount(); declared && rowCount == 0 {
			s.logger.Debug("listing declares no exhibitors", zap.String("url", exhibitorsURL))
			return nil
		}
	}
	if !ok || settings.SearchURL == "" {
		return s.parseRows(doc.Selection)
	}
	return s.paginate(ctx, exhibitorsURL, settings)
}

func (s *Site) paginate(ctx context.Context, referer string, settings *Settings) []Exhibitor {
	searchURL, err := url.Parse(s.resolve(settings.SearchURL))
	if err != nil || searchURL.Host == "" {
		s.logger.Warn("invalid exhibitor search url", zap.String("search_url", settings.SearchURL))
		return nil
	}
	rowCount, _ := settings.declaredRowCount()
	pageSize := rowCount
	if pageSize <= 0 {
		pageSize = fallbackPageSize
	}
	total := settings.total()

	var rows []Exhibitor
	for pageIndex := 1; pageIndex <= s.maxPages; pageIndex++ {
		if pageIndex > 1 {
			if err := fetch.Pause(ctx, s.pageDelay); err != nil {
				return rows
			}
		}

		pageURL := searchPageURL(searchURL, pageIndex, pageSize, string(settings.IndustryID))
		var resp searchResponse
		if err := s.fetcher.FetchJSON(ctx, pageURL, referer, &resp); err != nil {
			s.logger.Warn("exhibitor page fetch failed",
				zap.String("url", pageURL),
				zap.Int("page", pageIndex),
				zap.Error(err),
			)
			break
		}

		pageRows, pageTotal := s.parseSearchPage(resp)
		if len(pageRows) == 0 {
			break
		}
		rows = append(rows, pageRows...)
		if pageTotal > 0 {
			total = pageTotal
		}
		if total > 0 && pageIndex >= total {
			break
		}
		if rowCount > 0 && len(rows) >= rowCount {
			break
		}
	}

	s.logger.Debug("exhibitor pagination finished",
		zap.String("url", referer),
		zap.Int("rows", len(rows)),
		zap.Int("total_pages", total),
	)
	return rows
}

// parseSearchPage extracts rows and the server's current page count from one
// AJAX response.
func (s *Site) parseSearchPage(resp searchResponse) ([]Exhibitor, int) {
	total := resp.Settings.total()
	if resp.View == "" {
		return nil, total
	}
	doc, err := parseHTML(resp.View)
	if err != nil {
		return nil, total
	}
	if total == 0 {
		if embedded, ok := findSettings(doc.Selection); ok {
			total = embedded.total()
		}
	}
	return s.parseRows(doc.Selection), total
}

func searchPageURL(base *url.URL, pageIndex, pageSize int, industryID string) string {
	u := *base
	query := u.Query()
	query.Set("pageIndex", strconv.Itoa(pageIndex))
	query.Set("count", strconv.Itoa(pageSize))
	query.Set("sort[field]", "title")
	query.Set("sort[method]", "asc")
	query.Set("filters[text]", "")
	query.Set("filters[country]", "")
	if industryID != "" {
		query.Set("industryId", industryID)
	}
	u.RawQuery = query.Encode()
	return u.String()
}
