package fetch

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

const (
	fallbackCharset = "utf-8"
	// latin1 is what many servers emit when nobody configured a charset.
	latin1 = "iso-8859-1"
)

// charsetTransport rewrites the Content-Type charset of textual responses when
// it is missing or the degenerate latin-1 default, so colly transcodes the body
// from the encoding actually used.
type charsetTransport struct {
	base http.RoundTripper
}

func (t *charsetTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("charset transport base roundtrip: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if resp.Body == nil || !needsDetection(contentType) {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read body for charset detection: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	mediaType := "text/html"
	if parsed, _, perr := mime.ParseMediaType(contentType); perr == nil && parsed != "" {
		mediaType = parsed
	}
	resp.Header.Set("Content-Type", mediaType+"; charset="+detectCharset(body))
	return resp, nil
}

// needsDetection reports whether a textual response lacks a trustworthy charset.
// JSON without a charset is UTF-8 by definition and is left alone.
func needsDetection(contentType string) bool {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if contentType != "" && err != nil {
		return false
	}
	declared := strings.ToLower(params["charset"])
	if declared == latin1 {
		return true
	}
	if declared != "" {
		return false
	}
	return mediaType == "" || strings.HasPrefix(mediaType, "text/")
}

// detectCharset guesses the encoding of body: BOM or <meta> declaration first,
// valid UTF-8 next, then statistical detection.
func detectCharset(body []byte) string {
	if len(body) == 0 {
		return fallbackCharset
	}
	_, name, _ := charset.DetermineEncoding(body, "")
	if name != "" && name != "windows-1252" {
		return name
	}
	if utf8.Valid(body) {
		return fallbackCharset
	}
	result, err := chardet.NewTextDetector().DetectBest(body)
	if err != nil || result == nil || result.Charset == "" {
		return fallbackCharset
	}
	if enc, _ := charset.Lookup(result.Charset); enc == nil {
		return fallbackCharset
	}
	return strings.ToLower(result.Charset)
}
