package core

import (
	"errors"
	"testing"
	"time"
)

type dated struct {
	id   string
	date string
}

func datedDate(d dated) string { return d.date }

func ids(records []dated) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.id
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFilterByMonth(t *testing.T) {
	records := []dated{
		{"a", "2024-01-15"},
		{"b", "2024-02-01"},
		{"c", "2024-02-28"},
		{"d", ""},
		{"e", "not a date"},
		{"f", "2024-02-29T23:30:00"},
	}

	cases := []struct {
		name string
		sel  MonthSelector
		want []string
	}{
		{"february", "2024-02", []string{"b", "c", "f"}},
		{"january", "2024-01", []string{"a"}},
		{"empty month", "2023-12", []string{}},
		{"malformed selector", "2024-2", []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FilterByMonth(records, tc.sel, datedDate, time.UTC)
			if !equalStrings(ids(got), tc.want) {
				t.Fatalf("FilterByMonth() = %v, want %v", ids(got), tc.want)
			}
		})
	}
}

func TestFilterByMonthAllIsIdentity(t *testing.T) {
	records := []dated{{"a", "2024-01-15"}, {"b", ""}, {"c", "garbage"}}
	got := FilterByMonth(records, AllMonths, datedDate, time.UTC)
	if !equalStrings(ids(got), []string{"a", "b", "c"}) {
		t.Fatalf("all should keep everything, got %v", ids(got))
	}
	if &got[0] != &records[0] {
		t.Fatal("all should return the input slice")
	}
}

func TestFilterByMonthTimeZone(t *testing.T) {
	istanbul := time.FixedZone("TRT", 3*60*60)
	records := []dated{
		// 22:30 UTC on Jan 31 is already Feb 1 in Istanbul.
		{"late", "2024-01-31T22:30:00Z"},
		// date-only values are calendar dates wherever they are read.
		{"plain", "2024-02-01"},
	}

	got := FilterByMonth(records, "2024-02", datedDate, istanbul)
	if !equalStrings(ids(got), []string{"late", "plain"}) {
		t.Fatalf("Istanbul february = %v", ids(got))
	}
	got = FilterByMonth(records, "2024-01", datedDate, time.UTC)
	if !equalStrings(ids(got), []string{"late"}) {
		t.Fatalf("UTC january = %v", ids(got))
	}
}

func TestParseMonthSelector(t *testing.T) {
	valid := map[string]MonthSelector{
		"":        AllMonths,
		"all":     AllMonths,
		"ALL":     AllMonths,
		"2024-02": "2024-02",
		" 1999-12": "1999-12",
	}
	for in, want := range valid {
		got, err := ParseMonthSelector(in)
		if err != nil || got != want {
			t.Fatalf("ParseMonthSelector(%q) = %q, %v", in, got, err)
		}
	}
	for _, in := range []string{"2024-13", "2024-2", "24-02", "2024/02", "february"} {
		if _, err := ParseMonthSelector(in); !errors.Is(err, ErrInvalidSelection) {
			t.Fatalf("ParseMonthSelector(%q) should fail, got %v", in, err)
		}
	}
}

func TestComputeWindow(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	w := ComputeWindow("2024-02", now, time.UTC)
	if !w.Start.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("start = %v", w.Start)
	}
	if !w.End.Equal(time.Date(2024, 2, 29, 23, 59, 59, 999000000, time.UTC)) {
		t.Fatalf("end = %v", w.End)
	}

	w = ComputeWindow("2023-12", now, time.UTC)
	if !w.End.Equal(time.Date(2023, 12, 31, 23, 59, 59, 999000000, time.UTC)) {
		t.Fatalf("december end = %v", w.End)
	}

	w = ComputeWindow(AllMonths, now, time.UTC)
	if w.Start.Unix() != 0 || !w.End.Equal(now) {
		t.Fatalf("all window = %+v", w)
	}
}

func TestMonthLabelAndCurrent(t *testing.T) {
	if got := MonthSelector("2024-02").Label(); got != "February 2024" {
		t.Fatalf("Label() = %q", got)
	}
	if got := AllMonths.Label(); got != "All Time" {
		t.Fatalf("Label() = %q", got)
	}

	now := time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC)
	if !IsCurrentMonth("2024-03", now, time.UTC) {
		t.Fatal("expected current month")
	}
	if !IsCurrentMonth("2024-04", now, time.FixedZone("TRT", 3*60*60)) {
		t.Fatal("expected April in Istanbul")
	}
	if IsCurrentMonth(AllMonths, now, time.UTC) {
		t.Fatal("all is never the current month")
	}
}

func TestMonthOptions(t *testing.T) {
	now := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)
	opts := MonthOptions(now, time.UTC, 3)
	want := []MonthSelector{AllMonths, "2024-02", "2024-01", "2023-12"}
	if len(opts) != len(want) {
		t.Fatalf("got %d options", len(opts))
	}
	for i, o := range opts {
		if o.Value != want[i] {
			t.Fatalf("option %d = %q, want %q", i, o.Value, want[i])
		}
	}
	if opts[3].Label != "December 2023" {
		t.Fatalf("label = %q", opts[3].Label)
	}
	if got := len(MonthOptions(now, time.UTC, 0)); got != DefaultMonthOptions+1 {
		t.Fatalf("default options = %d", got)
	}
}

func TestParseRecordDate(t *testing.T) {
	loc := time.FixedZone("TRT", 3*60*60)
	cases := []struct {
		raw  string
		want time.Time
	}{
		{"2024-02-01", time.Date(2024, 2, 1, 0, 0, 0, 0, loc)},
		{"2024-02-01T10:00:00Z", time.Date(2024, 2, 1, 13, 0, 0, 0, loc)},
		{"2024-02-01T10:00:00+00:00", time.Date(2024, 2, 1, 13, 0, 0, 0, loc)},
		{"2024-02-01 10:00:00", time.Date(2024, 2, 1, 10, 0, 0, 0, loc)},
		{"2024-02-01T10:00:00.123456+03:00", time.Date(2024, 2, 1, 10, 0, 0, 123456000, loc)},
	}
	for _, tc := range cases {
		got, ok := ParseRecordDate(tc.raw, loc)
		if !ok || !got.Equal(tc.want) {
			t.Fatalf("ParseRecordDate(%q) = %v, %v", tc.raw, got, ok)
		}
	}
	if _, ok := ParseRecordDate("yesterday", loc); ok {
		t.Fatal("expected failure")
	}
}
