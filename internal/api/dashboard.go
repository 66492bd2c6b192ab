package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/juju/errors"

	"adminhub/internal/model"
)

func dashboardOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, model.DashboardResponse{Data: data, Status: "ok"})
}

// dashboardSummary serves the headline cards: messages, users and
// conversations.
func (d Dependencies) dashboardSummary(w http.ResponseWriter, r *http.Request) {
	series := chi.URLParam(r, "series")
	counter, ok := d.Analytics.Counter(series)
	if !ok {
		d.fail(w, r, errors.NotFoundf("dashboard series %q", series))
		return
	}

	summary, err := d.Dashboard.Summarize(r.Context(), counter)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	dashboardOK(w, summary)
}

func (d Dependencies) topQuestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lang := q.Get("language")
	if lang == "" {
		lang = d.Language
	}

	ranking, err := d.Dashboard.TopQuestions(r.Context(), d.Analytics, lang, q.Get("sortBy"))
	if err != nil {
		d.fail(w, r, err)
		return
	}
	dashboardOK(w, ranking)
}

func (d Dependencies) wordCloud(w http.ResponseWriter, r *http.Request) {
	since, err := optionalTime(r.URL.Query(), "since", d.Location)
	if err != nil {
		d.fail(w, r, err)
		return
	}

	words, err := d.Dashboard.WordCloud(r.Context(), d.Analytics, since)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	dashboardOK(w, words)
}
