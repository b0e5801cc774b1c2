package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"deliverycart/internal/model"
	"deliverycart/internal/mw"
)

type Registrar interface {
	Register(ctx context.Context, login, password, name, phone string) (*model.User, error)
}

type registerRequest struct {
	Login    string `json:"login" validate:"required,max=64"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Name     string `json:"name" validate:"max=120"`
	Phone    string `json:"phone" validate:"max=32"`
}

type tokenResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

func RegisterHandler(authSvc Registrar, secret string, ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		user, err := authSvc.Register(r.Context(), strings.TrimSpace(req.Login), req.Password,
			strings.TrimSpace(req.Name), strings.TrimSpace(req.Phone))
		if err != nil {
			writeError(w, r, err)
			return
		}

		issueToken(w, r, user, secret, ttl)
	}
}

func issueToken(w http.ResponseWriter, r *http.Request, user *model.User, secret string, ttl time.Duration) {
	tokenString, err := mw.IssueToken(secret, user.ID, user.Role, ttl)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Authorization", "Bearer "+tokenString)
	writeJSON(w, http.StatusOK, tokenResponse{Token: tokenString, User: user})
}
