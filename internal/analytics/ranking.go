package analytics

import (
	"sort"
	"strings"
	"time"

	"github.com/juju/errors"

	"adminhub/internal/query"
)

const (
	todayWeight  = 0.875
	recentWeight = 0.125

	// Days of history a ranking reads: this week and the week before.
	RankingWindowDays = 14
)

// DailyHits is the number of bot matches of one question on one day.
type DailyHits struct {
	QuestionID string
	Day        time.Time
	Count      int
}

// RankedQuestion is one row of the top questions table.
type RankedQuestion struct {
	QuestionID string   `json:"id"`
	Text       string   `json:"text"`
	Today      int      `json:"today"`
	Prior      int      `json:"prior"`
	Count      float64  `json:"count"`
	Previous   float64  `json:"previous"`
	Trend      *float64 `json:"trend"`
}

type RankingTotals struct {
	Today    int     `json:"today"`
	Prior    int     `json:"prior"`
	Count    float64 `json:"count"`
	Previous float64 `json:"previous"`
}

type RankingAverages struct {
	Today    float64 `json:"today"`
	Prior    float64 `json:"prior"`
	Count    float64 `json:"count"`
	Previous float64 `json:"previous"`
}

// Decayed blends today's count with the six days before it.
func Decayed(today, prior int) float64 {
	return todayWeight*float64(today) + recentWeight*float64(prior)
}

// daysBefore counts calendar days from day to today.
func daysBefore(today, day time.Time) int {
	ty, tm, td := today.Date()
	dy, dm, dd := day.In(today.Location()).Date()
	a := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	b := time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC)
	return int(a.Sub(b).Hours() / 24)
}

type bucket struct {
	today, prior         int
	prevToday, prevPrior int
}

// RankQuestions scores every question seen in the last two weeks. The
// previous score is computed the same way for the day one week before
// today. sorter is a "[+|-]field" token over trend, count, today, prior,
// previous and text; the default is trend descending then count descending.
func RankQuestions(hits []DailyHits, today time.Time, texts map[string]string, sorter string) ([]RankedQuestion, RankingTotals, RankingAverages, error) {
	less, err := rankingOrder(sorter)
	if err != nil {
		return nil, RankingTotals{}, RankingAverages{}, err
	}

	buckets := map[string]*bucket{}
	for _, h := range hits {
		offset := daysBefore(today, h.Day)
		if offset < 0 || offset >= RankingWindowDays {
			continue
		}
		b, ok := buckets[h.QuestionID]
		if !ok {
			b = &bucket{}
			buckets[h.QuestionID] = b
		}
		switch {
		case offset == 0:
			b.today += h.Count
		case offset < 7:
			b.prior += h.Count
		case offset == 7:
			b.prevToday += h.Count
		default:
			b.prevPrior += h.Count
		}
	}

	rows := make([]RankedQuestion, 0, len(buckets))
	var totals RankingTotals
	for id, b := range buckets {
		count := Decayed(b.today, b.prior)
		previous := Decayed(b.prevToday, b.prevPrior)
		rows = append(rows, RankedQuestion{
			QuestionID: id,
			Text:       texts[id],
			Today:      b.today,
			Prior:      b.prior,
			Count:      count,
			Previous:   previous,
			Trend:      Ratio(count, previous),
		})
		totals.Today += b.today
		totals.Prior += b.prior
		totals.Count += count
		totals.Previous += previous
	}

	sort.SliceStable(rows, func(i, j int) bool { return less(rows[i], rows[j]) })

	var averages RankingAverages
	if n := float64(len(rows)); n > 0 {
		averages = RankingAverages{
			Today:    float64(totals.Today) / n,
			Prior:    float64(totals.Prior) / n,
			Count:    totals.Count / n,
			Previous: totals.Previous / n,
		}
	}
	return rows, totals, averages, nil
}

type rankLess func(a, b RankedQuestion) bool

func rankingOrder(sorter string) (rankLess, error) {
	st, ok := query.ParseSortToken(sorter)
	if !ok {
		return func(a, b RankedQuestion) bool {
			if c := compareTrend(a.Trend, b.Trend, true); c != 0 {
				return c < 0
			}
			if a.Count != b.Count {
				return a.Count > b.Count
			}
			return a.QuestionID < b.QuestionID
		}, nil
	}

	var cmp func(a, b RankedQuestion) int
	switch st.Field {
	case "trend":
		return func(a, b RankedQuestion) bool {
			if c := compareTrend(a.Trend, b.Trend, st.Descending); c != 0 {
				return c < 0
			}
			return a.QuestionID < b.QuestionID
		}, nil
	case "count":
		cmp = func(a, b RankedQuestion) int { return compareFloat(a.Count, b.Count) }
	case "today":
		cmp = func(a, b RankedQuestion) int { return a.Today - b.Today }
	case "prior":
		cmp = func(a, b RankedQuestion) int { return a.Prior - b.Prior }
	case "previous":
		cmp = func(a, b RankedQuestion) int { return compareFloat(a.Previous, b.Previous) }
	case "text":
		cmp = func(a, b RankedQuestion) int { return strings.Compare(strings.ToLower(a.Text), strings.ToLower(b.Text)) }
	default:
		return nil, errors.NotValidf("ranking sort field %q", st.Field)
	}

	return func(a, b RankedQuestion) bool {
		c := cmp(a, b)
		if st.Descending {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		return a.QuestionID < b.QuestionID
	}, nil
}

// compareTrend orders trends with nil always last.
func compareTrend(a, b *float64, descending bool) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	c := compareFloat(*a, *b)
	if descending {
		return -c
	}
	return c
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
