package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mnhsh/digital-capsule/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBearerToken(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	_, err := auth.GetBearerToken(h)
	require.ErrorIs(t, err, auth.ErrNoAuthHeader)

	h.Set("Authorization", "Basic abc")
	_, err = auth.GetBearerToken(h)
	require.Error(t, err)

	h.Set("Authorization", "Bearer abc ")
	token, err := auth.GetBearerToken(h)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
}

func TestWithAdminToken(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		configured string
		header     string
		want       int
	}{
		{"disabled", "", "Bearer x", http.StatusForbidden},
		{"missing", "secret", "", http.StatusUnauthorized},
		{"wrong", "secret", "Bearer nope", http.StatusUnauthorized},
		{"right", "secret", "Bearer secret", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/admin/force-open", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			auth.WithAdminToken(tt.configured, ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	t.Parallel()

	called := false
	h := auth.CORSMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/status", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, called)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.True(t, called)
}
