package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/auth"
	"github.com/israelreshef/delivery-app-sub000/internal/idempotency"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
	"github.com/israelreshef/delivery-app-sub000/internal/wire"
)

// IdempotencyHeader carries the client-generated request key.
const IdempotencyHeader = "Idempotency-Key"

const maxIdempotencyKey = 128

// inFlightLease bounds how long a crashed request keeps its key pending.
const inFlightLease = time.Minute

// Idempotency rejects a repeated mutating request carrying the same
// Idempotency-Key with 409 duplicate_request once the first one finished, and
// with 409 request_in_progress while it is still running. Keys are scoped per
// caller. A request that failed with a retryable status gives its key back.
func Idempotency(logger logx.Logger, store idempotency.Store, ttl time.Duration) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logx.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			if key == "" || r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKey {
				writeMiddlewareError(w, http.StatusBadRequest, apperr.CodeValidation, "idempotency key too long")
				return
			}
			scoped := scopeKey(r, key)

			lease := inFlightLease
			if ttl > 0 && ttl < lease {
				lease = ttl
			}
			claimed, err := store.Claim(r.Context(), scoped, lease)
			if err != nil {
				// хранилище недоступно: пропускаем без защиты от дублей
				logger.Warn("idempotency claim failed", logx.String("req_id", chimw.GetReqID(r.Context())), logx.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !claimed {
				rejectRepeat(w, r, logger, store, scoped, key)
				return
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// клиент мог отвалиться по таймауту, ключ всё равно надо закрыть
			ctx := context.WithoutCancel(r.Context())
			if retryableStatus(ww.Status()) {
				if err := store.Release(ctx, scoped); err != nil {
					logger.Warn("idempotency release failed", logx.String("key", key), logx.Err(err))
				}
				return
			}
			if err := store.Complete(ctx, scoped, ttl); err != nil {
				logger.Warn("idempotency complete failed", logx.String("key", key), logx.Err(err))
			}
		})
	}
}

// rejectRepeat answers a request whose key is already claimed. Only a finished
// first request is reported as a duplicate: the client drops its copy on that.
func rejectRepeat(w http.ResponseWriter, r *http.Request, logger logx.Logger, store idempotency.Store, scoped, key string) {
	done, err := store.Done(r.Context(), scoped)
	if err != nil {
		logger.Warn("idempotency lookup failed", logx.String("key", key), logx.Err(err))
	}
	if !done {
		logger.Info("request still in progress",
			logx.String("req_id", chimw.GetReqID(r.Context())),
			logx.String("key", key),
			logx.String("path", r.URL.Path),
		)
		writeMiddlewareError(w, http.StatusConflict, apperr.CodeRequestInProgress, "request still in progress")
		return
	}
	logger.Info("duplicate request",
		logx.String("req_id", chimw.GetReqID(r.Context())),
		logx.String("key", key),
		logx.String("path", r.URL.Path),
	)
	writeMiddlewareError(w, http.StatusConflict, apperr.CodeDuplicateRequest, "request already processed")
}

func scopeKey(r *http.Request, key string) string {
	if cl, ok := auth.FromContext(r.Context()); ok {
		return "http:" + string(cl.Role) + ":" + strconv.FormatInt(cl.SubjectID, 10) + ":" + key
	}
	return "http:anon:" + key
}

func retryableStatus(status int) bool {
	return status >= http.StatusInternalServerError ||
		status == http.StatusTooManyRequests ||
		status == http.StatusUnauthorized
}

func writeMiddlewareError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(wire.Error{Error: msg, Code: code})
}
