package core

import (
	"fmt"
	"strings"
	"time"
)

// AllMonths selects every record regardless of date.
const AllMonths MonthSelector = "all"

// DefaultMonthOptions is how many past months the selector offers.
const DefaultMonthOptions = 36

const monthLayout = "2006-01"

// MonthSelector is either AllMonths or a "YYYY-MM" calendar month.
type MonthSelector string

// DateFunc extracts the raw ISO-8601 date of a record, "" when absent.
type DateFunc[T any] func(T) string

// Window is the inclusive time range covered by a selector.
type Window struct {
	Start time.Time
	End   time.Time
}

// MonthOption is one entry of the month picker.
type MonthOption struct {
	Value MonthSelector `json:"value"`
	Label string        `json:"label"`
}

// Layouts carrying their own offset; the parsed instant is moved into the
// filtering location.
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05-07",
	"2006-01-02 15:04:05-07",
}

// Layouts without an offset are wall-clock values in the filtering location.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseMonthSelector validates a selector. The empty string means AllMonths.
func ParseMonthSelector(s string) (MonthSelector, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, string(AllMonths)) {
		return AllMonths, nil
	}
	if _, err := time.Parse(monthLayout, s); err != nil || len(s) != len(monthLayout) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSelection, s)
	}
	return MonthSelector(s), nil
}

// MonthOf returns the selector for the calendar month of t.
func MonthOf(t time.Time) MonthSelector {
	return MonthSelector(fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month())))
}

// IsAll reports whether the selector disables month filtering.
func (s MonthSelector) IsAll() bool {
	return s == AllMonths || s == ""
}

// YearMonth returns the selected year and month. ok is false for AllMonths
// and for malformed selectors.
func (s MonthSelector) YearMonth() (year int, month time.Month, ok bool) {
	if s.IsAll() || len(s) != len(monthLayout) {
		return 0, 0, false
	}
	t, err := time.Parse(monthLayout, string(s))
	if err != nil {
		return 0, 0, false
	}
	return t.Year(), t.Month(), true
}

// Label is the human readable name, e.g. "February 2024".
func (s MonthSelector) Label() string {
	year, month, ok := s.YearMonth()
	if !ok {
		return "All Time"
	}
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("January 2006")
}

// ParseRecordDate parses a backend date in loc. Date-only values are calendar
// dates in loc, values with an offset are converted into loc and values without
// one are read as wall-clock time in loc. A nil loc means time.Local.
func ParseRecordDate(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.In(loc), true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FilterByMonth keeps the records whose date falls in the selected month of
// loc. AllMonths returns records itself. Records without a parsable date are
// dropped; a malformed selector matches nothing.
func FilterByMonth[T any](records []T, sel MonthSelector, date DateFunc[T], loc *time.Location) []T {
	if sel.IsAll() {
		return records
	}
	out := make([]T, 0, len(records))
	for _, r := range records {
		t, ok := ParseRecordDate(date(r), loc)
		if !ok {
			continue
		}
		if MonthOf(t) == sel {
			out = append(out, r)
		}
	}
	return out
}

// ComputeWindow returns the range covered by sel. AllMonths (and a malformed
// selector) spans from the Unix epoch to now.
func ComputeWindow(sel MonthSelector, now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.Local
	}
	year, month, ok := sel.YearMonth()
	if !ok {
		return Window{Start: time.Unix(0, 0).In(loc), End: now}
	}
	return Window{
		Start: time.Date(year, month, 1, 0, 0, 0, 0, loc),
		End:   time.Date(year, month+1, 0, 23, 59, 59, int(999*time.Millisecond), loc),
	}
}

// IsCurrentMonth reports whether sel is the month containing now in loc.
func IsCurrentMonth(sel MonthSelector, now time.Time, loc *time.Location) bool {
	if sel.IsAll() {
		return false
	}
	if loc == nil {
		loc = time.Local
	}
	return MonthOf(now.In(loc)) == sel
}

// MonthOptions lists AllMonths followed by the n most recent months, newest first.
func MonthOptions(now time.Time, loc *time.Location, n int) []MonthOption {
	if loc == nil {
		loc = time.Local
	}
	if n <= 0 {
		n = DefaultMonthOptions
	}
	now = now.In(loc)
	options := make([]MonthOption, 0, n+1)
	options = append(options, MonthOption{Value: AllMonths, Label: AllMonths.Label()})
	for i := 0; i < n; i++ {
		d := time.Date(now.Year(), now.Month()-time.Month(i), 1, 0, 0, 0, 0, loc)
		sel := MonthOf(d)
		options = append(options, MonthOption{Value: sel, Label: sel.Label()})
	}
	return options
}
