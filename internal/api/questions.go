package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"adminhub/internal/db"
	"adminhub/internal/model"
)

func (d Dependencies) listQuestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	created, err := timeWindow(q, "createdAt", d.Location)
	if err != nil {
		d.fail(w, r, err)
		return
	}

	questions, total, err := d.Flows.ListQuestions(r.Context(), db.ListQuestionsParams{
		Topic:    q.Get("topic"),
		Text:     q.Get("text"),
		Language: q.Get("language"),
		Created:  created,
		Sort:     q.Get("sortBy"),
		Page:     pageOf(q),
	})
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewList(questions, total))
}

func (d Dependencies) getQuestion(w http.ResponseWriter, r *http.Request) {
	question, err := d.Flows.GetQuestion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, question)
}

func (d Dependencies) createQuestion(w http.ResponseWriter, r *http.Request) {
	var in model.QuestionInput
	if err := decodeJSON(r, &in); err != nil {
		d.fail(w, r, err)
		return
	}

	res, err := d.Flows.CreateQuestion(r.Context(), in)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (d Dependencies) deleteQuestions(w http.ResponseWriter, r *http.Request) {
	ids, err := readIDs(r)
	if err != nil {
		d.fail(w, r, err)
		return
	}

	summary, err := d.Flows.DeleteQuestions(r.Context(), ids)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
