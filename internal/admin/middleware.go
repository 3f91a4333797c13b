package admin

import (
	"net/http"
	"strings"

	"github.com/noah-isme/proride-store/internal/common"
)

// RequireAdmin rejects requests without a valid admin bearer token.
func RequireAdmin(tokens *Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens == nil {
				common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "admin tokens not configured", nil)
				return
			}
			if err := tokens.Verify(bearerToken(r)); err != nil {
				common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(common.WithAdminSubject(r.Context(), adminSubject)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
