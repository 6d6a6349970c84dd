package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/blindspot/blindspot/auth"
	"github.com/blindspot/blindspot/common"
)

// Maximum size of JSON request bodies
const maxJSONBody = 1 << 12

type sessionRequest struct {
	Passcode string `json:"passcode"`
}

type sessionResponse struct {
	Tripcode string    `json:"tripcode"`
	Expires  time.Time `json:"expires"`
}

// Decode a small JSON request body
func decodeJSON(r *http.Request, dest interface{}) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dest)
	if err != nil {
		return common.ErrInvalidInput(err.Error())
	}
	return nil
}

// Exchange the community passcode for an anonymous session
func (a *api) createSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	token, s, err := a.svc.Auth().Create(r.Context(), req.Passcode)
	if err != nil {
		httpError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  s.Expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	serveJSON(w, r, "", sessionResponse{
		Tripcode: s.Tripcode,
		Expires:  s.Expires,
	})
}

// End the session of the client. The next session gets a new tripcode.
func (a *api) endSession(w http.ResponseWriter, r *http.Request) {
	err := a.svc.Auth().End(r.Context(), sessionToken(r))
	if err != nil {
		httpError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(204)
}

func sessionToken(r *http.Request) string {
	c, err := r.Cookie(auth.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// Look up the session of the requesting client
func (a *api) session(r *http.Request) (auth.Session, error) {
	return a.svc.Auth().Lookup(r.Context(), sessionToken(r))
}
