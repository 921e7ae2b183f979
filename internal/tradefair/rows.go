package tradefair

import (
	"github.com/PuerkitoBio/goquery"
)

const (
	nameSelector  = "a.exhibitor-name, .exhibitor-name a"
	cardSelector  = ".exhibitor-card, li.exhibitor, .exhibitor-item"
	rowSelector   = "tr"
	logoSelector  = "img[src]"
	exhibitorName = ".exhibitor-name"
)

// parseRows extracts exhibitors from a listing fragment. Table rows are
// preferred; card layouts are used only when no table row matched.
func (s *Site) parseRows(root *goquery.Selection) []Exhibitor {
	if rows := s.parseTableRows(root); len(rows) > 0 {
		return rows
	}
	return s.parseCards(root)
}

func (s *Site) parseTableRows(root *goquery.Selection) []Exhibitor {
	var out []Exhibitor
	root.Find(rowSelector).Each(func(_ int, row *goquery.Selection) {
		nameEl := row.Find(nameSelector).First()
		if nameEl.Length() == 0 {
			nameEl = row.Find(exhibitorName).First()
		}
		name := cleanText(nameEl.Text())
		if name == "" {
			return
		}
		href, ok := nameEl.Attr("href")
		if !ok {
			href, _ = nameEl.Find("a[href]").First().Attr("href")
		}

		exhibitor := Exhibitor{Name: name, DetailsURL: s.resolve(href)}
		if cell := nameEl.Closest("td, th"); cell.Length() > 0 {
			country := cell.Next()
			exhibitor.Country = cleanText(country.Text())
			exhibitor.Stand = cleanText(country.Next().Text())
		}
		if src, ok := row.Find(logoSelector).First().Attr("src"); ok {
			exhibitor.LogoURL = s.resolve(src)
		}
		out = append(out, exhibitor)
	})
	return out
}

func (s *Site) parseCards(root *goquery.Selection) []Exhibitor {
	var out []Exhibitor
	root.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
		name := firstText(card, "[class*='__name']", ".name", "h3", "h4")
		if name == "" {
			return
		}
		href, _ := card.Find("a[href]").First().Attr("href")
		exhibitor := Exhibitor{
			Name:       name,
			Country:    firstText(card, "[class*='__country']", ".country"),
			Stand:      firstText(card, "[class*='__stand']", ".stand"),
			DetailsURL: s.resolve(href),
		}
		if src, ok := card.Find(logoSelector).First().Attr("src"); ok {
			exhibitor.LogoURL = s.resolve(src)
		}
		out = append(out, exhibitor)
	})
	return out
}

// countRows counts rendered exhibitor rows without a settings blob.
func countRows(root *goquery.Selection) int {
	count := root.Find(rowSelector).FilterFunction(func(_ int, row *goquery.Selection) bool {
		return row.Find(exhibitorName).Length() > 0
	}).Length()
	if count > 0 {
		return count
	}
	return root.Find(cardSelector).Length()
}
