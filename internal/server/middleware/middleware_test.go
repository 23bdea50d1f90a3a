package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/boardsync/internal/auth"
	"github.com/gosuda/boardsync/internal/domain"
	"github.com/gosuda/boardsync/internal/server/middleware"
)

const testSecret = "middleware-test-secret"

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// contextHandler captures the identity set by middleware so tests can
// assert what was injected.
type contextHandler struct {
	identity domain.Identity
	called   bool
}

func (h *contextHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.identity, _ = middleware.IdentityFromContext(r.Context())
	w.WriteHeader(http.StatusOK)
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { //nolint:gochecknoglobals // test helper
	w.WriteHeader(http.StatusOK)
})

func issue(t *testing.T, id domain.Identity, ttl time.Duration) string {
	t.Helper()

	tok, err := auth.IssueToken(testSecret, id, ttl)
	require.NoError(t, err)
	return tok
}

func withUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.WithIdentity(r.Context(), domain.Identity{UserID: userID}))
}

// ===========================================================================
// 1. Context helpers
// ===========================================================================

func TestIdentityFromContext(t *testing.T) {
	t.Parallel()

	t.Run("present", func(t *testing.T) {
		t.Parallel()

		want := domain.Identity{UserID: "u1", Name: "Alice", Role: domain.RoleViewer}
		ctx := middleware.WithIdentity(context.Background(), want)

		got, ok := middleware.IdentityFromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, want, got)

		uid, ok := middleware.UserIDFromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, "u1", uid)

		role, ok := middleware.RoleFromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, domain.RoleViewer, role)
	})

	t.Run("absent", func(t *testing.T) {
		t.Parallel()

		_, ok := middleware.IdentityFromContext(context.Background())
		assert.False(t, ok)
	})

	t.Run("empty user id", func(t *testing.T) {
		t.Parallel()

		ctx := middleware.WithIdentity(context.Background(), domain.Identity{Name: "ghost"})
		_, ok := middleware.IdentityFromContext(ctx)
		assert.False(t, ok)
	})

	t.Run("wrong type", func(t *testing.T) {
		t.Parallel()

		ctx := context.WithValue(context.Background(), middleware.ContextKeyIdentity, "u1")
		_, ok := middleware.IdentityFromContext(ctx)
		assert.False(t, ok)
	})
}

// ===========================================================================
// 2. RateLimit middleware
// ===========================================================================

func TestRateLimit_NoUserInContext_PassesThrough(t *testing.T) {
	t.Parallel()

	handler := middleware.RateLimit(t.Context(), 0.001, 1)(okHandler)

	for range 3 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimit_BurstExceeded_Returns429(t *testing.T) {
	t.Parallel()

	handler := middleware.RateLimit(t.Context(), 0.001, 2)(okHandler)

	codes := make([]int, 0, 3)
	for range 3 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodGet, "/", nil), "u1"))
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimit_IndependentPerUser(t *testing.T) {
	t.Parallel()

	handler := middleware.RateLimit(t.Context(), 0.001, 1)(okHandler)

	for _, user := range []string{"u1", "u2"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodGet, "/", nil), user))
		assert.Equal(t, http.StatusOK, rec.Code, user)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodGet, "/", nil), "u1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitByIP(t *testing.T) {
	t.Parallel()

	handler := middleware.RateLimitByIP(t.Context(), 0.001, 1)(okHandler)

	req := func(addr string) int {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, req("10.0.0.1:4000"))
	assert.Equal(t, http.StatusTooManyRequests, req("10.0.0.1:4001"), "port is ignored")
	assert.Equal(t, http.StatusOK, req("10.0.0.2:4000"))
}

// ===========================================================================
// 3. Auth middleware
// ===========================================================================

func TestAuth_ValidToken_PopulatesContext(t *testing.T) {
	t.Parallel()

	want := domain.Identity{UserID: "u-alice", Name: "Alice", Role: domain.RoleEditor}
	tok := issue(t, want, 5*time.Minute)

	tests := []struct {
		name  string
		build func() *http.Request
	}{
		{
			name: "bearer header",
			build: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/", nil)
				r.Header.Set("Authorization", "Bearer "+tok)
				return r
			},
		},
		{
			name: "lowercase scheme",
			build: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/", nil)
				r.Header.Set("Authorization", "bearer "+tok)
				return r
			},
		},
		{
			name: "query parameter",
			build: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/ws/board?token="+tok, nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := &contextHandler{}
			rec := httptest.NewRecorder()
			middleware.Auth(testSecret)(h).ServeHTTP(rec, tt.build())

			require.Equal(t, http.StatusOK, rec.Code)
			require.True(t, h.called)
			assert.Equal(t, want, h.identity)
		})
	}
}

func TestAuth_Rejected_Returns401(t *testing.T) {
	t.Parallel()

	expired := issue(t, domain.Identity{UserID: "u1"}, -time.Second)
	foreign, err := auth.IssueToken("other-secret", domain.Identity{UserID: "u1"}, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "no credentials"},
		{name: "garbage", header: "Bearer not-a-jwt"},
		{name: "expired", header: "Bearer " + expired},
		{name: "wrong secret", header: "Bearer " + foreign},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			h := &contextHandler{}
			rec := httptest.NewRecorder()
			middleware.Auth(testSecret)(h).ServeHTTP(rec, r)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, h.called)
		})
	}
}
