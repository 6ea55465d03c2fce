package nntp

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
)

var (
	parenRe              = regexp.MustCompile(`\s*\([^)]*\)$`)
	threeDigitTimezoneRe = regexp.MustCompile(`\s([+-])(\d{3})\s*$`)
)

// NNTPDateLayouts are tried in order after mail.ParseDate gave up.
var NNTPDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC850,

	"Mon, _2 Jan 2006 15:04:05 -0700",
	"Mon, _2 Jan 2006 15:04:05 MST",
	"Mon, _2 Jan 06 15:04:05 -0700",
	"_2 Jan 2006 15:04:05 -0700",
	"_2 Jan 2006 15:04:05 MST",
	"_2 Jan 06 15:04:05 -0700",
	"Mon, 02-Jan-2006 15:04:05 MST",
	"Mon, 2-Jan-06 15:04:05 MST",
	"Monday, 02-Jan-06 15:04:05 MST",

	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
}

// ParseNNTPDate parses an overview Date field, handling common NNTP quirks.
// The zero time is returned when nothing matches.
func ParseNNTPDate(dateStr string) time.Time {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return time.Time{}
	}
	if t, err := mail.ParseDate(dateStr); err == nil {
		return t.UTC()
	}

	// Remove trailing parenthesized timezone, e.g., " (NZDT)"
	dateStr = strings.TrimSpace(parenRe.ReplaceAllString(dateStr, ""))

	// Fix 3-digit timezone formats like +200 -> +0200
	if match := threeDigitTimezoneRe.FindStringSubmatch(dateStr); len(match) == 3 {
		dateStr = threeDigitTimezoneRe.ReplaceAllString(dateStr, fmt.Sprintf(" %s0%s", match[1], match[2]))
	}

	for _, layout := range NNTPDateLayouts {
		if t, err := time.Parse(layout, dateStr); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
