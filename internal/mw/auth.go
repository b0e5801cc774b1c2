package mw

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"deliverycart/internal/logging"
	"deliverycart/internal/model"
)

type contextKey string

const (
	UserCtxKey contextKey = "user_id"
	RoleCtxKey contextKey = "role"
)

// IssueToken signs a token carrying the user id and role.
func IssueToken(secret, userID, role string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     jwt.NewNumericDate(time.Now().Add(ttl)),
	})
	return token.SignedString([]byte(secret))
}

var errNoToken = errors.New("no token")

func parseToken(r *http.Request, secret string) (userID, role string, err error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", "", errNoToken
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", "", errors.New("invalid token format")
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", "", errors.New("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errors.New("invalid claims")
	}
	userID, ok = claims["user_id"].(string)
	if !ok || userID == "" {
		return "", "", errors.New("user_id not found in token")
	}
	role, _ = claims["role"].(string)
	return userID, role, nil
}

func withUser(r *http.Request, userID, role string) *http.Request {
	ctx := context.WithValue(r.Context(), UserCtxKey, userID)
	ctx = context.WithValue(ctx, RoleCtxKey, role)
	return r.WithContext(ctx)
}

func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, role, err := parseToken(r, jwtSecret)
			if errors.Is(err, errNoToken) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, withUser(r, userID, role))
		})
	}
}

// OptionalAuth attaches the user when a valid token is present and lets
// anonymous requests through. Checkout browsing works logged out.
func OptionalAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, role, err := parseToken(r, jwtSecret); err == nil {
				r = withUser(r, userID, role)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserLookup loads the current user record.
type UserLookup interface {
	Get(ctx context.Context, id string) (*model.User, error)
}

// RequireAdmin must run after AuthMiddleware. The role is read from users
// on every request, so a demotion takes effect before the token expires.
func RequireAdmin(users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserID(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			user, err := users.Get(r.Context(), userID)
			switch {
			case errors.Is(err, model.ErrNotFound):
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			case err != nil:
				logging.Ctx(r.Context()).Error().Err(err).Str("user", userID).Msg("load user role")
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			case user.Role != model.RoleAdmin:
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, withUser(r, userID, user.Role))
		})
	}
}

// UserID returns the authenticated user, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserCtxKey).(string)
	return id, ok && id != ""
}
