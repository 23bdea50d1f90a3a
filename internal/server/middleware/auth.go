package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/boardsync/internal/auth"
)

// Auth accepts an HS256 bearer token from the Authorization header or, for
// websocket upgrades from browsers that cannot set headers, from the token
// query parameter.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := extractBearer(r)
			if tok == "" {
				tok = r.URL.Query().Get("token")
			}
			if tok == "" {
				http.Error(w, `{"title":"Unauthorized","status":401,"detail":"missing credentials"}`, http.StatusUnauthorized)
				return
			}

			claims, err := auth.ValidateToken(jwtSecret, tok)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("auth: rejected token")
				http.Error(w, `{"title":"Unauthorized","status":401,"detail":"invalid credentials"}`, http.StatusUnauthorized)
				return
			}

			ctx := WithIdentity(r.Context(), claims.Identity())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return auth[7:]
	}
	return ""
}
