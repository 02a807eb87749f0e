package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	batchDateLayout = "02:01:2006"
	// SequenceDayLayout keys daily sequence counters.
	SequenceDayLayout = "2006-01-02"
)

// BatchNumber is the parsed form of a generated batch code
// `{prefix}:{DD:MM:YYYY}:{sequence}`.
type BatchNumber struct {
	Prefix   string
	Day      time.Time
	Sequence int
}

// FormatBatchNumber renders a batch code. The sequence is zero padded to four
// digits and grows beyond that when a day exceeds 9999 records.
func FormatBatchNumber(prefix string, day time.Time, sequence int) string {
	return fmt.Sprintf("%s:%s:%04d", prefix, day.Format(batchDateLayout), sequence)
}

// String implements fmt.Stringer.
func (b BatchNumber) String() string {
	return FormatBatchNumber(b.Prefix, b.Day, b.Sequence)
}

// ParseBatchNumber splits a batch code into prefix, calendar day and sequence.
func ParseBatchNumber(raw string) (BatchNumber, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 5 || parts[0] == "" {
		return BatchNumber{}, fmt.Errorf("invalid batch number %q", raw)
	}
	day, err := time.Parse(batchDateLayout, strings.Join(parts[1:4], ":"))
	if err != nil {
		return BatchNumber{}, fmt.Errorf("invalid batch number date %q: %w", raw, err)
	}
	seq, err := strconv.Atoi(parts[4])
	if err != nil || seq <= 0 {
		return BatchNumber{}, fmt.Errorf("invalid batch number sequence %q", raw)
	}
	return BatchNumber{Prefix: parts[0], Day: day, Sequence: seq}, nil
}

// CompareBatchNumbers orders codes by prefix, day, then numeric sequence.
// Unparseable codes fall back to string comparison.
func CompareBatchNumbers(a, b string) int {
	if a == b {
		return 0
	}
	pa, errA := ParseBatchNumber(a)
	pb, errB := ParseBatchNumber(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	if pa.Prefix != pb.Prefix {
		return strings.Compare(pa.Prefix, pb.Prefix)
	}
	if !pa.Day.Equal(pb.Day) {
		if pa.Day.Before(pb.Day) {
			return -1
		}
		return 1
	}
	switch {
	case pa.Sequence < pb.Sequence:
		return -1
	case pa.Sequence > pb.Sequence:
		return 1
	}
	return 0
}

// SortByBatchNumber orders items in place by CompareBatchNumbers.
func SortByBatchNumber[T any](items []T, number func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		return CompareBatchNumbers(number(items[i]), number(items[j])) < 0
	})
}
