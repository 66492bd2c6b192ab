package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"

	"adminhub/internal/model"
	"adminhub/internal/query"
)

const dateLayout = "2006-01-02"

func pageOf(q url.Values) query.Page {
	current, _ := strconv.Atoi(q.Get("current"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))
	return query.NewPage(current, pageSize)
}

// listValues collects a repeated or comma separated parameter.
func listValues(q url.Values, key string) []string {
	var out []string
	for _, v := range q[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, errors.NotValidf("date %q", s)
	}
	return t, nil
}

// timeWindow reads a one or two instant range. A bare date as upper bound
// covers that whole day.
func timeWindow(q url.Values, key string, loc *time.Location) ([]time.Time, error) {
	values := listValues(q, key)
	if len(values) > 2 {
		return nil, errors.NotValidf("%s range with %d bounds", key, len(values))
	}
	window := make([]time.Time, 0, len(values))
	for i, v := range values {
		t, err := parseTime(v, loc)
		if err != nil {
			return nil, err
		}
		if i == 1 && len(v) == len(dateLayout) {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		window = append(window, t)
	}
	if len(window) == 2 && window[1].Before(window[0]) {
		return nil, errors.NotValidf("%s range ending before it starts", key)
	}
	return window, nil
}

func optionalInt(q url.Values, key string) (*int, error) {
	s := q.Get(key)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, errors.NotValidf("%s %q", key, s)
	}
	return &n, nil
}

// optionalPercent reads a 0-100 accuracy bound as a 0-1 score.
func optionalPercent(q url.Values, key string) (*float64, error) {
	s := q.Get(key)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f > 100 {
		return nil, errors.NotValidf("%s %q", key, s)
	}
	f /= 100
	return &f, nil
}

func optionalTime(q url.Values, key string, loc *time.Location) (*time.Time, error) {
	s := q.Get(key)
	if s == "" {
		return nil, nil
	}
	t, err := parseTime(s, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func readIDs(r *http.Request) ([]string, error) {
	var body model.IDsInput
	if err := decodeJSON(r, &body); err != nil {
		return nil, err
	}
	if len(body.IDs) == 0 {
		return nil, errors.NotValidf("empty ids")
	}
	return body.IDs, nil
}
