package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"
)

// HitSource reads question match statistics from the message store.
type HitSource interface {
	QuestionHits(ctx context.Context, start, end time.Time) ([]DailyHits, error)
	QuestionTexts(ctx context.Context, ids []string, lang string) (map[string]string, error)
}

// TextSource reads the free text of user messages.
type TextSource interface {
	MessageTexts(ctx context.Context, since *time.Time) ([]string, error)
}

// Summary is the headline card of one dashboard series.
type Summary struct {
	Total   int         `json:"total"`
	Today   int         `json:"today"`
	Weekly  TrendResult `json:"weekly"`
	Monthly TrendResult `json:"monthly"`
}

// Ranking is the top questions table.
type Ranking struct {
	Table   []RankedQuestion `json:"table"`
	Total   RankingTotals    `json:"total"`
	Average RankingAverages  `json:"average"`
}

// Dashboard evaluates the statistics in the portal's timezone.
type Dashboard struct {
	clock clock.Clock
	loc   *time.Location
}

func NewDashboard(clk clock.Clock, loc *time.Location) *Dashboard {
	if loc == nil {
		loc = time.UTC
	}
	return &Dashboard{clock: clk, loc: loc}
}

// Now returns the current time in the dashboard timezone.
func (d *Dashboard) Now() time.Time {
	return d.clock.Now().In(d.loc)
}

// Summarize returns total, today and the weekly and monthly trends of c.
func (d *Dashboard) Summarize(ctx context.Context, c Counter) (Summary, error) {
	now := d.Now()
	today := startOfDay(now)

	var s Summary
	var err error
	if s.Total, err = CountInWindow(ctx, c, nil, nil); err != nil {
		return Summary{}, err
	}
	if s.Today, err = CountInWindow(ctx, c, &today, &now); err != nil {
		return Summary{}, err
	}
	if s.Weekly, err = Weekly(ctx, c, now); err != nil {
		return Summary{}, err
	}
	if s.Monthly, err = Monthly(ctx, c, now); err != nil {
		return Summary{}, err
	}
	return s, nil
}

// TopQuestions ranks the questions the bot matched over the last two weeks.
func (d *Dashboard) TopQuestions(ctx context.Context, src HitSource, lang, sorter string) (Ranking, error) {
	now := d.Now()
	start := startOfDay(now).AddDate(0, 0, -(RankingWindowDays - 1))

	hits, err := src.QuestionHits(ctx, start, now)
	if err != nil {
		return Ranking{}, fmt.Errorf("failed to load question hits: %w", err)
	}

	ids := make([]string, 0, len(hits))
	seen := map[string]bool{}
	for _, h := range hits {
		if !seen[h.QuestionID] {
			seen[h.QuestionID] = true
			ids = append(ids, h.QuestionID)
		}
	}
	texts := map[string]string{}
	if len(ids) > 0 {
		if texts, err = src.QuestionTexts(ctx, ids, lang); err != nil {
			return Ranking{}, fmt.Errorf("failed to load question texts: %w", err)
		}
	}

	rows, totals, averages, err := RankQuestions(hits, now, texts, sorter)
	if err != nil {
		return Ranking{}, err
	}
	return Ranking{Table: rows, Total: totals, Average: averages}, nil
}

// WordCloud counts words in user messages sent since the given time.
func (d *Dashboard) WordCloud(ctx context.Context, src TextSource, since *time.Time) ([]WordCount, error) {
	texts, err := src.MessageTexts(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load message texts: %w", err)
	}
	return CountWords(texts, WordCloudSize), nil
}
