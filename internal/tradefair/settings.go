package tradefair

import (
	"encoding/json"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	settingsAttr = "data-list-settings"
	// extraUnescapePasses covers payloads that were HTML-escaped twice.
	extraUnescapePasses = 2
)

// findSettings reads the first data-list-settings blob under root.
func findSettings(root *goquery.Selection) (*Settings, bool) {
	raw, ok := root.Find("[" + settingsAttr + "]").First().Attr(settingsAttr)
	if !ok {
		return nil, false
	}
	return decodeSettings(raw)
}

// decodeSettings parses raw, HTML-unescaping it again between attempts.
func decodeSettings(raw string) (*Settings, bool) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return nil, false
	}
	for pass := 0; pass <= extraUnescapePasses; pass++ {
		var settings Settings
		if err := json.Unmarshal([]byte(candidate), &settings); err == nil {
			return &settings, true
		}
		next := html.UnescapeString(candidate)
		if next == candidate {
			break
		}
		candidate = next
	}
	return nil, false
}

// declaredRowCount reports the pager row count when the blob carries a
// usable one. A missing, null or negative rowCount is not a declaration.
func (s *Settings) declaredRowCount() (int, bool) {
	if s == nil || s.Pager == nil || s.Pager.RowCount == nil || *s.Pager.RowCount < 0 {
		return 0, false
	}
	return int(*s.Pager.RowCount), true
}

func (s *Settings) total() int {
	if s == nil || s.Pager == nil {
		return 0
	}
	return int(s.Pager.Total)
}
