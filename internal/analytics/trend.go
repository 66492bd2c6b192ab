// Package analytics computes the dashboard statistics: windowed counts,
// period trends, the decayed question ranking and the word cloud.
package analytics

import (
	"context"
	"fmt"
	"time"
)

// Counter counts the records of one dashboard series. Both bounds are
// optional and inclusive.
type Counter interface {
	Count(ctx context.Context, start, end *time.Time) (int, error)
}

// CountInWindow counts records of c between start and end.
func CountInWindow(ctx context.Context, c Counter, start, end *time.Time) (int, error) {
	n, err := c.Count(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// TrendResult is a period trend. Target holds the count so far and the
// previous period's count. Ratio is nil when the previous period is empty.
type TrendResult struct {
	Ratio  *float64 `json:"ratio"`
	Target [2]int   `json:"target"`
}

// Trend normalizes count so far to a full period and compares it with the
// previous period: normalized = current / elapsedDays * periodDays.
func Trend(current, elapsedDays, periodDays, previous int) *float64 {
	if elapsedDays < 1 {
		elapsedDays = 1
	}
	normalized := float64(current) * float64(periodDays) / float64(elapsedDays)
	return Ratio(normalized, float64(previous))
}

// Ratio returns value/previous - 1, or nil when previous is zero.
func Ratio(value, previous float64) *float64 {
	if previous == 0 {
		return nil
	}
	r := value/previous - 1
	return &r
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// justBefore is the last stored instant before t. Mongo dates have
// millisecond precision.
func justBefore(t time.Time) time.Time {
	return t.Add(-time.Millisecond)
}

func isoWeekday(t time.Time) int {
	if wd := int(t.Weekday()); wd != 0 {
		return wd
	}
	return 7
}

// Weekly compares the week so far, from Monday, with last week.
func Weekly(ctx context.Context, c Counter, now time.Time) (TrendResult, error) {
	elapsed := isoWeekday(now)
	monday := startOfDay(now).AddDate(0, 0, -(elapsed - 1))
	lastMonday := monday.AddDate(0, 0, -7)
	lastSunday := justBefore(monday)

	previous, err := CountInWindow(ctx, c, &lastMonday, &lastSunday)
	if err != nil {
		return TrendResult{}, err
	}
	current, err := CountInWindow(ctx, c, &monday, &now)
	if err != nil {
		return TrendResult{}, err
	}
	return TrendResult{
		Ratio:  Trend(current, elapsed, 7, previous),
		Target: [2]int{current, previous},
	}, nil
}

// Monthly compares the month so far, normalized to 30 days, with last month.
func Monthly(ctx context.Context, c Counter, now time.Time) (TrendResult, error) {
	y, m, _ := now.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
	lastFirst := first.AddDate(0, -1, 0)
	lastDay := justBefore(first)

	previous, err := CountInWindow(ctx, c, &lastFirst, &lastDay)
	if err != nil {
		return TrendResult{}, err
	}
	current, err := CountInWindow(ctx, c, &first, &now)
	if err != nil {
		return TrendResult{}, err
	}
	return TrendResult{
		Ratio:  Trend(current, now.Day(), 30, previous),
		Target: [2]int{current, previous},
	}, nil
}
