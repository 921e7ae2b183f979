package tradefair

import (
	"context"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// ListEvents fetches the calendar and returns the events hosted on the site.
// Failures are logged and yield an empty list.
func (s *Site) ListEvents(ctx context.Context) []Event {
	var payload searchResponse
	if err := s.fetcher.FetchJSON(ctx, s.eventsSearchURL, s.base.String(), &payload); err != nil {
		s.logger.Warn("event search failed", zap.String("url", s.eventsSearchURL), zap.Error(err))
		return nil
	}
	if payload.View == "" {
		s.logger.Warn("event search returned no view", zap.String("url", s.eventsSearchURL))
		return nil
	}
	doc, err := parseHTML(payload.View)
	if err != nil {
		s.logger.Warn("event view unparsable", zap.Error(err))
		return nil
	}
	return s.parseEvents(doc.Selection)
}

func (s *Site) parseEvents(root *goquery.Selection) []Event {
	cards := root.Find(".event-item")
	if cards.Length() == 0 {
		cards = root.Find(".event-card, article.event")
	}

	seen := make(map[string]struct{})
	var events []Event
	cards.Each(func(_ int, card *goquery.Selection) {
		title := firstText(card, ".event-item__title", ".title", "h3")
		if title == "" {
			return
		}
		link := card
		if !card.Is("a[href]") {
			link = card.Find("a[href]").First()
		}
		href, _ := link.Attr("href")
		eventURL := s.resolve(href)
		if eventURL == "" {
			s.logger.Debug("event card without link", zap.String("event", title))
			return
		}
		parsed, err := url.Parse(eventURL)
		if err != nil || !sameSite(parsed.Hostname(), s.base.Hostname()) {
			s.logger.Debug("skipping external event", zap.String("event", title), zap.String("url", eventURL))
			return
		}
		if _, dup := seen[eventURL]; dup {
			return
		}
		seen[eventURL] = struct{}{}

		events = append(events, Event{
			Name:          title,
			URL:           eventURL,
			DateRange:     firstText(card, ".event-item__date", ".date", "time"),
			ExhibitorsURL: ExhibitorsURL(eventURL),
			Slug:          EventSlug(eventURL),
		})
	})
	s.logger.Info("events resolved", zap.Int("count", len(events)))
	return events
}
