package api

import (
	"net/http"

	"github.com/juju/errors"

	"adminhub/internal/auth"
	"adminhub/internal/model"
)

func (d Dependencies) login(w http.ResponseWriter, r *http.Request) {
	var in model.LoginInput
	if err := decodeJSON(r, &in); err != nil {
		d.fail(w, r, err)
		return
	}

	res, err := d.Accounts.Login(r.Context(), in)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (d Dependencies) currentUser(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	if userID == "" {
		d.fail(w, r, errors.Unauthorizedf("missing session"))
		return
	}

	user, err := d.Accounts.CurrentUser(r.Context(), userID)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (d Dependencies) getBot(w http.ResponseWriter, r *http.Request) {
	bot, err := d.Bot.GetBot(r.Context())
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bot)
}
