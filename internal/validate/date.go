package validate

import (
	"strings"
	"time"
)

// dateLayouts are tried in order; the first that parses wins. Go's "2" and
// "1" verbs accept one or two digits, so 2/1/2024 and 02/01/2024 both parse.
var dateLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2/1/06",
	"2-1-06",
	"2006-1-2",
}

// maxFutureSkew bounds how far past "now" a receipt date may be.
const maxFutureSkew = 24 * time.Hour

// ParseDate parses a receipt date relative to now. Dates more than one day
// after now are rejected as OCR-mangled years.
func ParseDate(raw string, now time.Time) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		d, err := time.ParseInLocation(layout, s, now.Location())
		if err != nil {
			continue
		}
		if d.After(now.Add(maxFutureSkew)) {
			return time.Time{}, false
		}
		return d, true
	}
	return time.Time{}, false
}

// FormatDate renders a date in ISO form.
func FormatDate(d time.Time) string {
	return d.Format(time.DateOnly)
}
