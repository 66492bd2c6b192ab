package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordCounter counts a fixed set of timestamps.
type recordCounter struct {
	times []time.Time
	calls int
}

func (c *recordCounter) Count(_ context.Context, start, end *time.Time) (int, error) {
	c.calls++
	n := 0
	for _, t := range c.times {
		if start != nil && t.Before(*start) {
			continue
		}
		if end != nil && t.After(*end) {
			continue
		}
		n++
	}
	return n, nil
}

type failingCounter struct{}

func (failingCounter) Count(context.Context, *time.Time, *time.Time) (int, error) {
	return 0, errors.New("connection reset")
}

func TestTrend(t *testing.T) {
	assert.Nil(t, Trend(12, 3, 7, 0), "no prior data is nil, not zero")

	r := Ratio(15, 10)
	require.NotNil(t, r)
	assert.Equal(t, 0.5, *r)

	// 6 records in 3 days normalize to 14 a week.
	r = Trend(6, 3, 7, 7)
	require.NotNil(t, r)
	assert.InDelta(t, 1.0, *r, 1e-9)

	r = Trend(15, 7, 7, 10)
	require.NotNil(t, r)
	assert.InDelta(t, 0.5, *r, 1e-9)
}

func TestWeekly(t *testing.T) {
	// Wednesday.
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	c := &recordCounter{times: []time.Time{
		time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC),  // last Monday
		time.Date(2024, 5, 8, 9, 0, 0, 0, time.UTC),  // last week
		time.Date(2024, 5, 12, 9, 0, 0, 0, time.UTC), // last Sunday
		time.Date(2024, 5, 13, 9, 0, 0, 0, time.UTC), // this Monday
		time.Date(2024, 5, 15, 8, 0, 0, 0, time.UTC), // today
		time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),  // two weeks ago
	}}

	res, err := Weekly(context.Background(), c, now)
	require.NoError(t, err)
	assert.Equal(t, [2]int{2, 3}, res.Target)
	require.NotNil(t, res.Ratio)
	// 2 in 3 days -> 14/3 a week against 3.
	assert.InDelta(t, (14.0/3.0)/3.0-1, *res.Ratio, 1e-9)
}

func TestWeekly_SundayCountsSevenDays(t *testing.T) {
	now := time.Date(2024, 5, 19, 20, 0, 0, 0, time.UTC)
	c := &recordCounter{times: []time.Time{
		time.Date(2024, 5, 7, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 14, 9, 0, 0, 0, time.UTC),
	}}

	res, err := Weekly(context.Background(), c, now)
	require.NoError(t, err)
	assert.Equal(t, [2]int{1, 1}, res.Target)
	require.NotNil(t, res.Ratio)
	assert.InDelta(t, 0.0, *res.Ratio, 1e-9)
}

func TestWeekly_MidnightMondayCountedOnce(t *testing.T) {
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	c := &recordCounter{times: []time.Time{
		time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 12, 23, 59, 59, 999e6, time.UTC),
	}}

	res, err := Weekly(context.Background(), c, now)
	require.NoError(t, err)
	assert.Equal(t, [2]int{1, 1}, res.Target)
}

func TestMonthly_MidnightFirstCountedOnce(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	c := &recordCounter{times: []time.Time{
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}}

	res, err := Monthly(context.Background(), c, now)
	require.NoError(t, err)
	assert.Equal(t, [2]int{1, 1}, res.Target)
}

func TestMonthly_NoPriorData(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	c := &recordCounter{times: []time.Time{
		time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
	}}

	res, err := Monthly(context.Background(), c, now)
	require.NoError(t, err)
	assert.Equal(t, [2]int{1, 0}, res.Target)
	assert.Nil(t, res.Ratio)
}

func TestMonthly(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	times := []time.Time{}
	for d := 1; d <= 29; d++ {
		times = append(times, time.Date(2024, 2, d, 9, 0, 0, 0, time.UTC))
	}
	for d := 1; d <= 5; d++ {
		times = append(times, time.Date(2024, 3, d, 9, 0, 0, 0, time.UTC))
	}
	c := &recordCounter{times: times}

	res, err := Monthly(context.Background(), c, now)
	require.NoError(t, err)
	assert.Equal(t, [2]int{5, 29}, res.Target)
	require.NotNil(t, res.Ratio)
	assert.InDelta(t, 15.0/29.0-1, *res.Ratio, 1e-9)
}

func TestDashboard_Summarize(t *testing.T) {
	loc := time.FixedZone("SGT", 8*3600)
	clk := testclock.NewClock(time.Date(2024, 5, 15, 4, 0, 0, 0, time.UTC)) // 12:00 SGT
	d := NewDashboard(clk, loc)

	c := &recordCounter{times: []time.Time{
		time.Date(2024, 5, 15, 1, 0, 0, 0, loc),
		time.Date(2024, 5, 15, 9, 0, 0, 0, loc),
		time.Date(2024, 5, 14, 23, 0, 0, 0, loc),
		time.Date(2024, 1, 1, 0, 0, 0, 0, loc),
	}}

	s, err := d.Summarize(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Today)
	assert.Equal(t, [2]int{3, 0}, s.Weekly.Target)
	assert.Nil(t, s.Weekly.Ratio)
}

func TestDashboard_SummarizeError(t *testing.T) {
	d := NewDashboard(testclock.NewClock(time.Now()), time.UTC)
	_, err := d.Summarize(context.Background(), failingCounter{})
	assert.ErrorContains(t, err, "connection reset")
}

func day(today time.Time, back int) time.Time {
	return startOfDay(today).AddDate(0, 0, -back)
}

func TestRankQuestions_DecayedScores(t *testing.T) {
	today := time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

	hits := []DailyHits{{QuestionID: "fresh", Day: day(today, 0), Count: 1}}
	for back := 1; back <= 6; back++ {
		hits = append(hits, DailyHits{QuestionID: "steady", Day: day(today, back), Count: 1})
	}

	rows, totals, averages, err := RankQuestions(hits, today, map[string]string{"fresh": "Refund?"}, "")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byID := map[string]RankedQuestion{}
	for _, r := range rows {
		byID[r.QuestionID] = r
	}
	assert.Equal(t, 0.875, byID["fresh"].Count)
	assert.Equal(t, "Refund?", byID["fresh"].Text)
	assert.Equal(t, 0.75, byID["steady"].Count)
	assert.Nil(t, byID["fresh"].Trend)

	assert.Equal(t, 1, totals.Today)
	assert.Equal(t, 6, totals.Prior)
	assert.InDelta(t, 1.625, totals.Count, 1e-9)
	assert.InDelta(t, 0.8125, averages.Count, 1e-9)
}

func TestRankQuestions_TrendAgainstPreviousWeek(t *testing.T) {
	today := time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)
	hits := []DailyHits{
		{QuestionID: "rising", Day: day(today, 0), Count: 4},
		{QuestionID: "rising", Day: day(today, 7), Count: 2},
		{QuestionID: "falling", Day: day(today, 0), Count: 1},
		{QuestionID: "falling", Day: day(today, 7), Count: 2},
		{QuestionID: "new", Day: day(today, 0), Count: 9},
		{QuestionID: "old", Day: day(today, 20), Count: 50},
	}

	rows, _, _, err := RankQuestions(hits, today, nil, "")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "rising", rows[0].QuestionID)
	require.NotNil(t, rows[0].Trend)
	assert.InDelta(t, 1.0, *rows[0].Trend, 1e-9)
	assert.Equal(t, "falling", rows[1].QuestionID)
	assert.InDelta(t, -0.5, *rows[1].Trend, 1e-9)
	// No previous data sorts last.
	assert.Equal(t, "new", rows[2].QuestionID)
	assert.Nil(t, rows[2].Trend)
}

func TestRankQuestions_SortOverride(t *testing.T) {
	today := time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)
	hits := []DailyHits{
		{QuestionID: "a", Day: day(today, 0), Count: 1},
		{QuestionID: "b", Day: day(today, 0), Count: 3},
		{QuestionID: "c", Day: day(today, 0), Count: 2},
	}

	rows, _, _, err := RankQuestions(hits, today, nil, "+count")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, ids(rows))

	rows, _, _, err = RankQuestions(hits, today, nil, "-today")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, ids(rows))

	_, _, _, err = RankQuestions(hits, today, nil, "-secret")
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestRankQuestions_Empty(t *testing.T) {
	rows, totals, averages, err := RankQuestions(nil, time.Now(), nil, "")
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Zero(t, totals)
	assert.Zero(t, averages)
}

func ids(rows []RankedQuestion) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.QuestionID
	}
	return out
}

func TestCountWords(t *testing.T) {
	texts := []string{
		"How do I reset my PASSWORD?",
		"password reset, please!",
		"I'm locked out… reset",
		"   ",
	}
	words := CountWords(texts, 80)
	require.NotEmpty(t, words)
	assert.Equal(t, WordCount{Word: "reset", Count: 3}, words[0])
	assert.Equal(t, WordCount{Word: "password", Count: 2}, words[1])

	for _, w := range words {
		assert.False(t, stopWords.Contains(w.Word), w.Word)
	}
	assert.Len(t, CountWords(texts, 2), 2)
}

func TestCountWords_Limit(t *testing.T) {
	var texts []string
	for i := 0; i < 100; i++ {
		texts = append(texts, string(rune('a'+i%26))+string(rune('a'+i/26))+"x")
	}
	assert.Len(t, CountWords(texts, WordCloudSize), WordCloudSize)
}

type fakeHits struct {
	hits  []DailyHits
	start time.Time
}

func (f *fakeHits) QuestionHits(_ context.Context, start, _ time.Time) ([]DailyHits, error) {
	f.start = start
	return f.hits, nil
}

func (f *fakeHits) QuestionTexts(_ context.Context, ids []string, lang string) (map[string]string, error) {
	out := map[string]string{}
	for _, id := range ids {
		out[id] = lang + ":" + id
	}
	return out, nil
}

func TestDashboard_TopQuestions(t *testing.T) {
	now := time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)
	d := NewDashboard(testclock.NewClock(now), time.UTC)
	src := &fakeHits{hits: []DailyHits{{QuestionID: "q1", Day: day(now, 0), Count: 2}}}

	ranking, err := d.TopQuestions(context.Background(), src, "EN", "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), src.start)
	require.Len(t, ranking.Table, 1)
	assert.Equal(t, "EN:q1", ranking.Table[0].Text)
	assert.Equal(t, 1.75, ranking.Table[0].Count)
}
