package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"adminhub/internal/db"
	"adminhub/internal/model"
)

func (d Dependencies) getBotUser(w http.ResponseWriter, r *http.Request) {
	user, err := d.BotUsers.GetBotUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (d Dependencies) updateBotUser(w http.ResponseWriter, r *http.Request) {
	var in model.BotUserInput
	if err := decodeJSON(r, &in); err != nil {
		d.fail(w, r, err)
		return
	}

	user, err := d.BotUsers.UpdateBotUser(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (d Dependencies) listConversations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	users, total, err := d.BotUsers.ListConversations(r.Context(), db.ListConversationsParams{
		Name:     q.Get("name"),
		Tags:     listValues(q, "tags"),
		Platform: q.Get("platform"),
		Page:     pageOf(q),
	})
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewList(users, total))
}

func (d Dependencies) listMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	created, err := timeWindow(q, "createdAt", d.Location)
	if err != nil {
		d.fail(w, r, err)
		return
	}

	messages, total, err := d.BotUsers.ListMessages(r.Context(), chi.URLParam(r, "userId"), db.ListConversationParams{
		ConvoID: q.Get("convoId"),
		Created: created,
		Page:    pageOf(q),
	})
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewList(messages, total))
}
