package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cwrk-planet/room-sync/internal/auth"
	"github.com/cwrk-planet/room-sync/pkg/httputil"
)

type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type ctxKey struct{}

// AuthMiddleware requires a Bearer token signed by the auth service.
// The check is disabled when verifier is nil.
func AuthMiddleware(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if v == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, err := auth.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				httputil.Error(w, http.StatusUnauthorized, "missing or invalid Authorization header", nil)
				return
			}
			claims, err := v.Verify(tok)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, auth.ErrTokenExpired) {
					msg = "token expired"
				}
				slog.Debug("httpmw.AuthMiddleware:", slog.Any("err", err))
				httputil.Error(w, http.StatusUnauthorized, msg, nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims)))
		})
	}
}

func ClaimsFromCtx(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*auth.Claims)
	return c, ok
}
