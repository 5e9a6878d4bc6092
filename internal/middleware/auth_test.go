package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastykitchen/server/internal/auth"
	"github.com/tastykitchen/server/internal/model"
)

type stubAccounts map[string]*model.Account

func (s stubAccounts) Account(_ context.Context, id string) (*model.Account, error) {
	if id == "broken" {
		return nil, errors.New("store down")
	}
	a, ok := s[id]
	if !ok {
		return nil, auth.ErrAccountNotFound
	}
	return a, nil
}

func protected(tokens *auth.JWTService, accounts AccountLookup, mws ...func(http.Handler) http.Handler) http.Handler {
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, ok := GetAccount(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.Header().Set("X-Account", a.ID)
		w.WriteHeader(http.StatusOK)
	})
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return AuthMiddleware(tokens, accounts)(h)
}

func TestAuthMiddleware(t *testing.T) {
	tokens := auth.NewJWTService("test-secret")
	user := &model.Account{ID: "u1", Email: "u@example.com", Role: model.RoleUser}
	admin := &model.Account{ID: "a1", Email: "a@example.com", Role: model.RoleAdmin}
	accounts := stubAccounts{"u1": user, "a1": admin}

	userToken, err := tokens.Issue(user)
	require.NoError(t, err)
	adminToken, err := tokens.Issue(admin)
	require.NoError(t, err)
	ghostToken, err := tokens.Issue(&model.Account{ID: "ghost", Role: model.RoleUser})
	require.NoError(t, err)
	brokenToken, err := tokens.Issue(&model.Account{ID: "broken", Role: model.RoleUser})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		admin  bool
		want   int
	}{
		{"missing header", "", false, http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", false, http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", false, http.StatusUnauthorized},
		{"unknown account", "Bearer " + ghostToken, false, http.StatusUnauthorized},
		{"store failure", "Bearer " + brokenToken, false, http.StatusInternalServerError},
		{"valid user", "Bearer " + userToken, false, http.StatusOK},
		{"lowercase scheme", "bearer " + userToken, false, http.StatusOK},
		{"user on admin route", "Bearer " + userToken, true, http.StatusForbidden},
		{"admin on admin route", "Bearer " + adminToken, true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var h http.Handler
			if tt.admin {
				h = protected(tokens, accounts, RequireRole(model.RoleAdmin))
			} else {
				h = protected(tokens, accounts)
			}
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				assert.NotEmpty(t, rec.Header().Get("X-Account"))
			}
		})
	}
}

func TestRequireRole_WithoutAuth(t *testing.T) {
	h := RequireRole(model.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
