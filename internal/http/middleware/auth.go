package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/auth"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
)

// TokenParser validates bearer tokens.
type TokenParser interface {
	Parse(token string) (auth.Claims, error)
}

type callerSlotKey struct{}

func withCallerSlot(ctx context.Context, p *callerSlot) context.Context {
	return context.WithValue(ctx, callerSlotKey{}, p)
}

// Auth requires "Authorization: Bearer <token>" and stores the claims in the
// request context.
func Auth(logger logx.Logger, tokens TokenParser) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logx.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearer(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(logger, w, r, errors.New("missing bearer token"))
				return
			}
			cl, err := tokens.Parse(raw)
			if err != nil {
				unauthorized(logger, w, r, err)
				return
			}
			if p, ok := r.Context().Value(callerSlotKey{}).(*callerSlot); ok {
				p.claims = &cl
			}
			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), cl)))
		})
	}
}

func bearer(h string) (string, bool) {
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(prefix):])
	return token, token != ""
}

func unauthorized(logger logx.Logger, w http.ResponseWriter, r *http.Request, err error) {
	logger.Info("unauthorized request",
		logx.String("req_id", chimw.GetReqID(r.Context())),
		logx.String("path", r.URL.Path),
		logx.Err(err),
	)
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeMiddlewareError(w, http.StatusUnauthorized, apperr.CodeUnauthorized, "unauthorized")
}
