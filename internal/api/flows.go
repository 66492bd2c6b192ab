package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"adminhub/internal/db"
	"adminhub/internal/model"
)

func (d Dependencies) listFlows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := db.ListFlowsParams{
		Name:  q.Get("name"),
		Topic: q.Get("topic"),
		Sort:  q.Get("sortBy"),
		Page:  pageOf(q),
	}

	var err error
	if p.TriggeredMin, err = optionalInt(q, "triggeredMin"); err != nil {
		d.fail(w, r, err)
		return
	}
	if p.TriggeredMax, err = optionalInt(q, "triggeredMax"); err != nil {
		d.fail(w, r, err)
		return
	}
	if p.Updated, err = timeWindow(q, "updatedAt", d.Location); err != nil {
		d.fail(w, r, err)
		return
	}

	flows, total, err := d.Flows.ListFlows(r.Context(), p)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewList(flows, total))
}

func (d Dependencies) createFlow(w http.ResponseWriter, r *http.Request) {
	var in model.FlowInput
	if err := decodeJSON(r, &in); err != nil {
		d.fail(w, r, err)
		return
	}

	flow, err := d.Flows.CreateFlow(r.Context(), in)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, flow)
}

func (d Dependencies) getFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := d.Flows.AssembleFlow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

func (d Dependencies) updateFlow(w http.ResponseWriter, r *http.Request) {
	var in model.FlowInput
	if err := decodeJSON(r, &in); err != nil {
		d.fail(w, r, err)
		return
	}

	flow, err := d.Flows.UpdateFlow(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

func (d Dependencies) deleteFlows(w http.ResponseWriter, r *http.Request) {
	ids, err := readIDs(r)
	if err != nil {
		d.fail(w, r, err)
		return
	}

	n, err := d.Flows.DeleteFlows(r.Context(), ids)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.DeleteSummary{Flows: n})
}
