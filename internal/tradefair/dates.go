package tradefair

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	fullDatePattern  = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{4})`)
	monthNamePattern = regexp.MustCompile(`(\d{1,2})\s+(\pL+)\s+(\d{4})`)
	monthYearPattern = regexp.MustCompile(`(?:^|[^\d.])(\d{1,2})\.(\d{4})\b`)
)

// polishMonths maps nominative and genitive month names.
var polishMonths = map[string]time.Month{
	"styczeń": time.January, "stycznia": time.January,
	"luty": time.February, "lutego": time.February,
	"marzec": time.March, "marca": time.March,
	"kwiecień": time.April, "kwietnia": time.April,
	"maj": time.May, "maja": time.May,
	"czerwiec": time.June, "czerwca": time.June,
	"lipiec": time.July, "lipca": time.July,
	"sierpień": time.August, "sierpnia": time.August,
	"wrzesień": time.September, "września": time.September,
	"październik": time.October, "października": time.October,
	"listopad": time.November, "listopada": time.November,
	"grudzień": time.December, "grudnia": time.December,
}

// NormalizeDate turns a human date range into the date stored for an event.
// The last full dd.mm.yyyy date wins (the end of the range); Polish month
// names and bare mm.yyyy are understood; anything else maps to today.
func NormalizeDate(raw string, now time.Time) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	text := strings.TrimSpace(raw)
	if text == "" {
		return today
	}

	if matches := fullDatePattern.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		last := matches[len(matches)-1]
		if d, ok := buildDate(last[3], last[2], last[1], now.Location()); ok {
			return d
		}
		return today
	}

	if matches := monthNamePattern.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		for i := len(matches) - 1; i >= 0; i-- {
			month, known := polishMonths[strings.ToLower(matches[i][2])]
			if !known {
				continue
			}
			if d, ok := buildDate(matches[i][3], strconv.Itoa(int(month)), matches[i][1], now.Location()); ok {
				return d
			}
			return today
		}
	}

	if matches := monthYearPattern.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		last := matches[len(matches)-1]
		if d, ok := buildDate(last[2], last[1], "1", now.Location()); ok {
			return d
		}
	}
	return today
}

// buildDate rejects out-of-range values instead of letting time.Date normalize them.
func buildDate(year, month, day string, loc *time.Location) (time.Time, bool) {
	y, errY := strconv.Atoi(year)
	m, errM := strconv.Atoi(month)
	d, errD := strconv.Atoi(day)
	if errY != nil || errM != nil || errD != nil {
		return time.Time{}, false
	}
	if m < 1 || m > 12 || d < 1 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, loc)
	if t.Day() != d || int(t.Month()) != m {
		return time.Time{}, false
	}
	return t, true
}
