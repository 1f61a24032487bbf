package site

import (
	"strings"
	"time"
)

// Dates are shown in Nepal time regardless of the host zone.
var kathmandu = time.FixedZone("NPT", 5*3600+45*60)

const (
	dateLayout     = "Jan 2, 2006"
	dateTimeLayout = "Jan 2, 2006, 3:04 PM"

	notAvailable = "N/A"
	invalidDate  = "Invalid Date"
	ongoing      = "Ongoing"
)

var naiveLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// parseTime accepts RFC 3339 timestamps and zone-less dates. Zone-less
// values are read as Nepal local time.
func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(kathmandu), true
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, kathmandu); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func FormatDate(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	t, ok := parseTime(s)
	if !ok {
		return invalidDate
	}
	return t.Format(dateLayout)
}

func FormatDateTime(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	t, ok := parseTime(s)
	if !ok {
		return invalidDate
	}
	return t.Format(dateTimeLayout)
}

// FormatDateRange renders a case period. A missing end reads "Ongoing" and
// a range inside one calendar day collapses to a single date.
func FormatDateRange(start, end string) string {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	switch {
	case start == "" && end == "":
		return notAvailable
	case start == "":
		return FormatDate(end)
	case end == "":
		return FormatDate(start) + " - " + ongoing
	}

	s, okS := parseTime(start)
	e, okE := parseTime(end)
	if okS && okE && s.Format("2006-01-02") == e.Format("2006-01-02") {
		return s.Format(dateLayout)
	}
	return FormatDate(start) + " - " + FormatDate(end)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// textOf flattens the string-ish values templates pass to the date helpers.
func textOf(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case *string:
		return deref(x)
	default:
		return ""
	}
}

func truncate(n int, s string) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
