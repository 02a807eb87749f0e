package domain

import (
	"testing"
	"time"
)

func TestBatchNumberRoundTrip(t *testing.T) {
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	raw := FormatBatchNumber("pack-unit", day, 7)
	if raw != "pack-unit:19:10:2026:0007" {
		t.Fatalf("unexpected batch number %s", raw)
	}
	parsed, err := ParseBatchNumber(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Prefix != "pack-unit" || !parsed.Day.Equal(day) || parsed.Sequence != 7 {
		t.Fatalf("unexpected parse %+v", parsed)
	}
	if parsed.String() != raw {
		t.Fatalf("String() = %s", parsed.String())
	}
	if got := FormatBatchNumber("seed", day, 12345); got != "seed:19:10:2026:12345" {
		t.Fatalf("sequence must grow past four digits, got %s", got)
	}
}

func TestParseBatchNumberRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"seed",
		"seed:19:10:2026",
		":19:10:2026:0001",
		"seed:32:10:2026:0001",
		"seed:19:10:2026:zero",
		"seed:19:10:2026:0000",
	} {
		if _, err := ParseBatchNumber(raw); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestSortByBatchNumberIsNumeric(t *testing.T) {
	items := []string{
		"seed:20:10:2026:0001",
		"seed:19:10:2026:10000",
		"seed:19:10:2026:0002",
		"drying:19:10:2026:0001",
		"not-a-batch",
	}
	SortByBatchNumber(items, func(s string) string { return s })
	want := []string{
		"drying:19:10:2026:0001",
		"not-a-batch",
		"seed:19:10:2026:0002",
		"seed:19:10:2026:10000",
		"seed:20:10:2026:0001",
	}
	for i := range want {
		if items[i] != want[i] {
			t.Fatalf("position %d: got %s, want %s (all %v)", i, items[i], want[i], items)
		}
	}
}
