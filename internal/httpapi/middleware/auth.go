package middleware

import (
	"context"
	"net/http"
	"strings"

	"endpointwatch/internal/auth"
	"endpointwatch/internal/domain"
)

type ctxKey int

const ownerKey ctxKey = iota

func readCredential(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if k := r.Header.Get("X-API-Key"); k != "" {
		return strings.TrimSpace(k)
	}
	return ""
}

// RequireOwner verifies the request credential and stashes the resulting
// owner identity in the request context. No credential or a bad one is 401;
// ownership of specific resources is checked further down, not here.
func RequireOwner(v auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, err := v.Verify(r.Context(), readCredential(r))
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}

func WithOwner(ctx context.Context, owner domain.OwnerID) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}

// OwnerFrom returns the verified owner stored by RequireOwner.
func OwnerFrom(ctx context.Context) (domain.OwnerID, bool) {
	owner, ok := ctx.Value(ownerKey).(domain.OwnerID)
	return owner, ok
}
