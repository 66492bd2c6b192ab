package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"adminhub/internal/db"
	"adminhub/internal/model"
)

func (d Dependencies) listBroadcasts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sendAt, err := timeWindow(q, "sendAt", d.Location)
	if err != nil {
		d.fail(w, r, err)
		return
	}

	broadcasts, total, err := d.Broadcasts.ListBroadcasts(r.Context(), db.ListBroadcastsParams{
		SendAt: sendAt,
		Sort:   q.Get("sortBy"),
		Page:   pageOf(q),
	})
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewList(broadcasts, total))
}

func (d Dependencies) getBroadcast(w http.ResponseWriter, r *http.Request) {
	broadcast, err := d.Broadcasts.GetBroadcast(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, broadcast)
}

func (d Dependencies) broadcastTags(w http.ResponseWriter, r *http.Request) {
	tags, err := d.Broadcasts.BroadcastTags(r.Context())
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewList(tags, len(tags)))
}

func (d Dependencies) broadcastTargets(w http.ResponseWriter, r *http.Request) {
	var in model.TargetsInput
	if err := decodeJSON(r, &in); err != nil {
		d.fail(w, r, err)
		return
	}

	preview, err := d.Broadcasts.BroadcastTargets(r.Context(), in)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (d Dependencies) sendBroadcast(w http.ResponseWriter, r *http.Request) {
	var in model.BroadcastInput
	if err := decodeJSON(r, &in); err != nil {
		d.fail(w, r, err)
		return
	}

	broadcast, err := d.Broadcasts.SendBroadcast(r.Context(), in)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, broadcast)
}

func (d Dependencies) listTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	templates, total, err := d.Broadcasts.ListTemplates(r.Context(), db.ListTemplatesParams{
		Name: q.Get("name"),
		Sort: q.Get("sortBy"),
		Page: pageOf(q),
	})
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewList(templates, total))
}

func (d Dependencies) getTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := d.Broadcasts.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (d Dependencies) createTemplate(w http.ResponseWriter, r *http.Request) {
	var in model.TemplateInput
	if err := decodeJSON(r, &in); err != nil {
		d.fail(w, r, err)
		return
	}

	tpl, err := d.Broadcasts.CreateTemplate(r.Context(), in)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tpl)
}

func (d Dependencies) updateTemplate(w http.ResponseWriter, r *http.Request) {
	var in model.TemplateInput
	if err := decodeJSON(r, &in); err != nil {
		d.fail(w, r, err)
		return
	}

	tpl, err := d.Broadcasts.UpdateTemplate(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (d Dependencies) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := d.Broadcasts.DeleteTemplate(r.Context(), chi.URLParam(r, "id")); err != nil {
		d.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
