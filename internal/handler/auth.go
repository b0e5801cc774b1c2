package handler

import (
	"context"
	"net/http"
	"time"

	"deliverycart/internal/model"
	"deliverycart/internal/mw"
)

type Authenticator interface {
	Authenticate(ctx context.Context, login, password string) (*model.User, error)
}

type UserSource interface {
	Get(ctx context.Context, id string) (*model.User, error)
}

type loginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func LoginHandler(authSvc Authenticator, secret string, ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		user, err := authSvc.Authenticate(r.Context(), req.Login, req.Password)
		if err != nil {
			writeError(w, r, err)
			return
		}

		issueToken(w, r, user, secret, ttl)
	}
}

// MeHandler returns the logged-in user's profile.
func MeHandler(users UserSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := mw.UserID(r.Context())
		user, err := users.Get(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}
