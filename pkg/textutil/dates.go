package textutil

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var dateTokenRegex = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2,4}|\d{1,2}[:h]\d{2}(?::\d{2})?`)

// ParseDates extracts every date mentioned in text, in order. Dates are in
// the `dd/mm/yyyy` form and may be directly followed by a time in the
// `hh:mm`, `hh:mm:ss` or `hhhmm` form, otherwise they fall on midnight. A time
// that is not directly preceded by a date re-uses the last date seen, a time
// before any date is ignored.
func ParseDates(text string, loc *time.Location) []time.Time {
	tokens := dateTokenRegex.FindAllString(text, -1)

	var dates []time.Time
	var current []int
	for i := 0; i < len(tokens); i++ {
		token := tokens[i]
		if strings.Contains(token, "/") {
			current = splitNumbers(token)
			if i+1 < len(tokens) && !strings.Contains(tokens[i+1], "/") {
				dates = append(dates, makeDate(current, splitNumbers(tokens[i+1]), loc))
				i++
				continue
			}
			dates = append(dates, makeDate(current, nil, loc))
			continue
		}
		if current != nil {
			dates = append(dates, makeDate(current, splitNumbers(token), loc))
		}
	}
	return dates
}

var numberRegex = regexp.MustCompile(`\d+`)

func splitNumbers(token string) []int {
	parts := numberRegex.FindAllString(token, -1)
	out := make([]int, len(parts))
	for i, p := range parts {
		// the regex only matches digits
		out[i], _ = strconv.Atoi(p)
	}
	return out
}

func makeDate(date, clock []int, loc *time.Location) time.Time {
	day, month, year := date[0], date[1], date[2]
	if year < 100 {
		year += 2000
	}

	var hour, minute, second int
	if len(clock) >= 2 {
		hour, minute = clock[0], clock[1]
	}
	if len(clock) >= 3 {
		second = clock[2]
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, 0, loc)
}
