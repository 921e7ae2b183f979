// Package tradefair scrapes the event calendar and exhibitor listings of the
// trade-fair website.
package tradefair

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
)

// Event is one fair found in the calendar.
type Event struct {
	Name          string
	URL           string
	DateRange     string
	ExhibitorsURL string
	Slug          string
}

// Exhibitor is a single row of an exhibitor listing.
type Exhibitor struct {
	Name       string
	Country    string
	Stand      string
	DetailsURL string
	LogoURL    string
}

// CachedPage carries the listing page fetched by the probe so the paginator
// can reuse it instead of downloading it again.
type CachedPage struct {
	URL  string
	Body string
}

// Fetcher is the subset of the fetch client the site scraper needs.
type Fetcher interface {
	FetchText(ctx context.Context, rawURL string) (string, error)
	FetchJSON(ctx context.Context, rawURL, referer string, out any) error
}

// Settings is the JSON blob embedded in the listing page's data-list-settings
// attribute.
type Settings struct {
	SearchURL  string   `json:"searchUrl"`
	IndustryID flexText `json:"industryId"`
	Pager      *Pager   `json:"pager"`
}

// Pager describes the server-side pagination of a listing.
type Pager struct {
	Total    flexInt  `json:"total"`
	RowCount *flexInt `json:"rowCount"`
}

// searchResponse is the envelope returned by the AJAX endpoints.
type searchResponse struct {
	View     string    `json:"view"`
	Settings *Settings `json:"settings"`
}

// flexInt accepts JSON numbers, numeric strings and null.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	raw := strings.Trim(string(data), `"`)
	if raw == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// flexText accepts JSON strings, numbers and null.
type flexText string

func (f *flexText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexText(s)
		return nil
	}
	*f = flexText(string(data))
	return nil
}
