package qbsync

import (
	"testing"
	"time"
)

func TestFormatChangedSince_ExactShape(t *testing.T) {
	// Millisecond precision and a Z suffix on the input must not leak into
	// the output: the CDC endpoint only accepts seconds + explicit offset.
	in, err := time.Parse(time.RFC3339Nano, "2024-03-05T14:30:45.123Z")
	if err != nil {
		t.Fatal(err)
	}
	got := FormatChangedSince(in)
	want := "2024-03-05T14:30:45+00:00"
	if got != want {
		t.Fatalf("FormatChangedSince = %q, want %q", got, want)
	}
}

func TestFormatChangedSince_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	in := time.Date(2024, 3, 5, 7, 0, 0, 0, loc)
	got := FormatChangedSince(in)
	want := "2024-03-05T00:00:00+00:00"
	if got != want {
		t.Fatalf("FormatChangedSince = %q, want %q", got, want)
	}
}

func TestParseQBTime(t *testing.T) {
	if got := parseQBTime(""); got != nil {
		t.Fatalf("empty input should parse to nil, got %v", got)
	}
	if got := parseQBTime("not-a-time"); got != nil {
		t.Fatalf("garbage input should parse to nil, got %v", got)
	}
	got := parseQBTime("2024-02-01T10:00:00-08:00")
	if got == nil {
		t.Fatal("expected parse to succeed")
	}
	want := time.Date(2024, 2, 1, 18, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("parseQBTime = %v, want %v", got, want)
	}
}

func TestParseQBDate(t *testing.T) {
	got := parseQBDate("2024-06-15")
	if got == nil {
		t.Fatal("expected parse to succeed")
	}
	if got.Year() != 2024 || got.Month() != time.June || got.Day() != 15 {
		t.Fatalf("parseQBDate = %v", got)
	}
	if parseQBDate("") != nil {
		t.Fatal("empty date should be nil")
	}
}
