package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tastykitchen/server/internal/auth"
	"github.com/tastykitchen/server/internal/model"
)

type contextKey string

const accountKey contextKey = "account"

// AccountLookup loads the account a token was issued for
type AccountLookup interface {
	Account(ctx context.Context, id string) (*model.Account, error)
}

// AuthMiddleware validates Bearer session tokens, loads the account, and attaches both to the context
func AuthMiddleware(tokens *auth.JWTService, accounts AccountLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "Please authenticate")
				return
			}

			claims, err := tokens.Verify(tokenString)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "Please authenticate")
				return
			}

			account, err := accounts.Account(r.Context(), claims.UserID)
			if err != nil {
				if !errors.Is(err, auth.ErrAccountNotFound) {
					slog.ErrorContext(r.Context(), "failed to load account for token", "account_id", claims.UserID, "error", err)
					respondWithError(w, http.StatusInternalServerError, "Server error")
					return
				}
				respondWithError(w, http.StatusUnauthorized, "Please authenticate")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), accountKey, account)))
		})
	}
}

// RequireRole rejects requests whose authenticated account does not hold role.
// It must run after AuthMiddleware.
func RequireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, ok := GetAccount(r.Context())
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "Please authenticate")
				return
			}
			if account.Role != role {
				respondWithError(w, http.StatusForbidden, "Admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetAccount returns the account attached to the request context (set by AuthMiddleware)
func GetAccount(ctx context.Context) (*model.Account, bool) {
	a, ok := ctx.Value(accountKey).(*model.Account)
	return a, ok && a != nil
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]string{"error": message}
	_ = json.NewEncoder(w).Encode(response)
}
