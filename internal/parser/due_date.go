package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var dueDatePattern = regexp.MustCompile(
	`(?i)\b([a-z]{3,9})\s+(\d{1,2})(?:,\s*(\d{4}))?(?:\s+at\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?)?`)

var monthsByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// ParseDueDate materializes a due phrase into a concrete local timestamp,
// anchored at the message receipt time. Phrases without a year resolve to
// the next occurrence on or after receipt; phrases without a time default to
// end of day 23:59. Returns false when the phrase names no recognizable date.
func ParseDueDate(phrase string, received time.Time) (time.Time, bool) {
	m := dueDatePattern.FindStringSubmatch(phrase)
	if m == nil {
		return time.Time{}, false
	}

	month, ok := monthsByPrefix[strings.ToLower(m[1])[:3]]
	if !ok {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(m[2])
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}

	hour, minute := 23, 59
	if m[4] != "" {
		hour, _ = strconv.Atoi(m[4])
		if m[5] != "" {
			minute, _ = strconv.Atoi(m[5])
		} else {
			minute = 0
		}
		switch strings.ToLower(m[6]) {
		case "pm":
			if hour < 12 {
				hour += 12
			}
		case "am":
			if hour == 12 {
				hour = 0
			}
		}
		if hour > 23 || minute > 59 {
			return time.Time{}, false
		}
	}

	year := received.Year()
	if m[3] != "" {
		year, _ = strconv.Atoi(m[3])
	}

	due := time.Date(year, month, day, hour, minute, 0, 0, received.Location())
	// "due March 2" received in December means next March.
	if m[3] == "" && due.Before(received) {
		due = due.AddDate(1, 0, 0)
	}
	return due, true
}
