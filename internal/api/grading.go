package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"adminhub/internal/db"
	"adminhub/internal/model"
)

func (d Dependencies) listGrading(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := db.ListGradingParams{
		Status:   q.Get("status"),
		Topic:    q.Get("topic"),
		Text:     q.Get("text"),
		Language: q.Get("language"),
		Sort:     q.Get("sortBy"),
		Page:     pageOf(q),
	}

	var err error
	if p.AccuracyMin, err = optionalPercent(q, "accuracyMin"); err != nil {
		d.fail(w, r, err)
		return
	}
	if p.AccuracyMax, err = optionalPercent(q, "accuracyMax"); err != nil {
		d.fail(w, r, err)
		return
	}
	if p.Created, err = timeWindow(q, "createdAt", d.Location); err != nil {
		d.fail(w, r, err)
		return
	}

	messages, total, err := d.Grading.ListGradingMessages(r.Context(), p)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewList(messages, total))
}

func (d Dependencies) gradeMessage(w http.ResponseWriter, r *http.Request) {
	var in model.GradeInput
	if err := decodeJSON(r, &in); err != nil {
		d.fail(w, r, err)
		return
	}

	res, err := d.Grading.GradeMessage(r.Context(), chi.URLParam(r, "id"), in.QuestionID)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (d Dependencies) skipMessage(w http.ResponseWriter, r *http.Request) {
	res, err := d.Grading.SkipMessage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
