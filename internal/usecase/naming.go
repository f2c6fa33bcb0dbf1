package usecase

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"TrendsScanner/internal/domain"
)

const payloadNameLayout = "2006-01-02_15-04"

var (
	slugStrip      = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpaces     = regexp.MustCompile(`\s+`)
	slugHyphens    = regexp.MustCompile(`-+`)
	filenameDate   = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})`)
	leadingNumeric = regexp.MustCompile(`^\d+`)
)

// Slugify builds the URL-safe trend slug: normalized title, a hyphen, then date.
func Slugify(title, date string) string {
	s := strings.TrimSpace(strings.ToLower(title))
	s = slugStrip.ReplaceAllString(s, "")
	s = slugSpaces.ReplaceAllString(s, "-")
	s = slugHyphens.ReplaceAllString(s, "-")
	return s + "-" + date
}

// ParseRank turns a traffic string such as "500,000+" into 500000.
// Sentinels and unparseable values rank 0.
func ParseRank(traffic string) int64 {
	digits := leadingNumeric.FindString(strings.ReplaceAll(strings.TrimSpace(traffic), ",", ""))
	if digits == "" {
		return 0
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// PayloadName names a captured payload after its capture minute in loc.
func PayloadName(capturedAt time.Time, loc *time.Location, label string) string {
	if loc == nil {
		loc = time.UTC
	}
	name := capturedAt.In(loc).Format(payloadNameLayout)
	if label != "" {
		name += "_" + label
	}
	return name + ".xml"
}

// LogicalDate reads the leading YYYY-MM-DD of a payload name, falling back to
// the current day in loc.
func LogicalDate(name string, loc *time.Location, now time.Time) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	if m := filenameDate.FindStringSubmatch(name); m != nil {
		if d, err := time.ParseInLocation(domain.DateLayout, m[1], loc); err == nil {
			return d
		}
	}
	y, mo, d := now.In(loc).Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, loc)
}
