package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Printed dates on the supported documents use a two-digit year and an
// uppercase English month abbreviation, e.g. "23 OCT 94".
var (
	ErrInvalidDateFormat = errors.New(`invalid date format, expected "DD MMM YY"`)
	ErrInvalidDate       = errors.New("invalid date")
)

var documentDatePattern = regexp.MustCompile(`^\d{2}\s[A-Z]{3}\s\d{2}$`)

var monthAbbreviations = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// ParseDocumentDate parses a "DD MMM YY" date into a concrete calendar
// date. Two-digit years above 50 land in the 1900s, the rest in the
// 2000s. Days that do not exist in the given month (e.g. "31 FEB 24")
// are rejected with ErrInvalidDate.
func ParseDocumentDate(dateStr string) (time.Time, error) {
	if !documentDatePattern.MatchString(dateStr) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateFormat, dateStr)
	}

	parts := strings.Fields(dateStr)
	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateFormat, dateStr)
	}

	month, ok := monthAbbreviations[strings.ToUpper(parts[1])]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: unknown month abbreviation %q", ErrInvalidDate, parts[1])
	}

	if day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("%w: day %d out of range", ErrInvalidDate, day)
	}

	year, err := strconv.Atoi(parts[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateFormat, dateStr)
	}
	fullYear := 2000 + year
	if year > 50 {
		fullYear = 1900 + year
	}

	parsed := time.Date(fullYear, month, day, 0, 0, 0, 0, time.UTC)
	if parsed.Day() != day {
		return time.Time{}, fmt.Errorf("%w: day %d does not exist in %s", ErrInvalidDate, day, parts[1])
	}

	return parsed, nil
}

// IsExpired reports whether the expiry date is strictly before now.
func IsExpired(expiry, now time.Time) bool {
	return expiry.Before(now)
}
