package parser

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w+`)
	phonePattern = regexp.MustCompile(`(\+?\d{1,3}[\s-]?)?\(?\d{2,3}\)?[\s-]?\d{3}[\s-]?\d{2}[\s-]?\d{2}`)
)

// ContactFallback scans raw HTML for an email address and a phone number and
// fills them in only where d has none. Matches are heuristic and can be wrong.
func ContactFallback(d *Details, html string) {
	if d == nil {
		return
	}
	if d.Email == "" {
		d.Email = emailPattern.FindString(html)
	}
	if d.Phone == "" {
		d.Phone = strings.TrimSpace(phonePattern.FindString(html))
	}
}
