package tradefair

import (
	"net/url"
	"strings"
)

const (
	aboutSegment      = "o-targach"
	exhibitorsSegment = "lista-wystawcow"
)

// ExhibitorsURL derives the exhibitor listing URL of an event page. A trailing
// "o-targach" segment is replaced, otherwise "lista-wystawcow" is appended.
// Already derived URLs are returned unchanged.
func ExhibitorsURL(eventURL string) string {
	u, err := url.Parse(eventURL)
	if err != nil {
		return eventURL
	}
	segments := pathSegments(u.Path)
	switch {
	case len(segments) > 0 && segments[len(segments)-1] == exhibitorsSegment:
	case len(segments) > 0 && segments[len(segments)-1] == aboutSegment:
		segments[len(segments)-1] = exhibitorsSegment
	default:
		segments = append(segments, exhibitorsSegment)
	}
	u.Path = "/" + strings.Join(segments, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// EventSlug returns the last meaningful path segment of an event URL.
func EventSlug(eventURL string) string {
	u, err := url.Parse(eventURL)
	if err != nil {
		return ""
	}
	segments := pathSegments(u.Path)
	for len(segments) > 0 {
		last := segments[len(segments)-1]
		if last != aboutSegment && last != exhibitorsSegment {
			return last
		}
		segments = segments[:len(segments)-1]
	}
	return ""
}

func pathSegments(path string) []string {
	var segments []string
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}

// sameSite treats a host and its www. twin as the same site.
func sameSite(a, b string) bool {
	trim := func(host string) string { return strings.TrimPrefix(strings.ToLower(host), "www.") }
	return trim(a) == trim(b)
}
