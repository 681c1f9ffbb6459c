package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/auth"
	"github.com/israelreshef/delivery-app-sub000/internal/idempotency"
	"github.com/israelreshef/delivery-app-sub000/internal/wire"
)

type failingStore struct{}

func (failingStore) Claim(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func (failingStore) Complete(context.Context, string, time.Duration) error { return nil }

func (failingStore) Done(context.Context, string) (bool, error) { return false, nil }

func (failingStore) Release(context.Context, string) error { return nil }

func idemRequest(key string, cl auth.Claims) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/couriers/orders/3/status", nil)
	req.Header.Set(IdempotencyHeader, key)
	return req.WithContext(auth.WithClaims(req.Context(), cl))
}

func TestIdempotency_DuplicateRejected(t *testing.T) {
	t.Parallel()

	calls := 0
	h := Idempotency(nil, idempotency.NewMemoryStore(), time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	cl := auth.Claims{Role: auth.RoleCourier, SubjectID: 7}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, idemRequest("dev-1", cl))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, idemRequest("dev-1", cl))
	require.Equal(t, http.StatusConflict, rr.Code)

	var body wire.Error
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Equal(t, apperr.CodeDuplicateRequest, body.Code)
	require.Equal(t, 1, calls)

	// другой курьер с тем же ключом не конфликтует
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, idemRequest("dev-1", auth.Claims{Role: auth.RoleCourier, SubjectID: 8}))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 2, calls)
}

func TestIdempotency_ServerErrorReleasesKey(t *testing.T) {
	t.Parallel()

	status := http.StatusBadGateway
	h := Idempotency(nil, idempotency.NewMemoryStore(), time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	cl := auth.Claims{Role: auth.RoleCourier, SubjectID: 7}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, idemRequest("dev-2", cl))
	require.Equal(t, http.StatusBadGateway, rr.Code)

	status = http.StatusOK
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, idemRequest("dev-2", cl))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestIdempotency_ReplayWhileFirstRunsIsNotDuplicate(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	finish := make(chan int)
	var calls atomic.Int32
	h := Idempotency(nil, idempotency.NewMemoryStore(), time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			close(entered)
			w.WriteHeader(<-finish)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	cl := auth.Claims{Role: auth.RoleCourier, SubjectID: 7}

	first := make(chan int, 1)
	go func() {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, idemRequest("dev-4", cl))
		first <- rr.Code
	}()
	<-entered

	// клиент не дождался ответа и повторил
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, idemRequest("dev-4", cl))
	require.Equal(t, http.StatusConflict, rr.Code)
	var body wire.Error
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Equal(t, apperr.CodeRequestInProgress, body.Code)
	require.False(t, apperr.IsTerminal(apperr.FromCode(body.Code)))

	finish <- http.StatusServiceUnavailable
	require.Equal(t, http.StatusServiceUnavailable, <-first)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, idemRequest("dev-4", cl))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, int32(2), calls.Load())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, idemRequest("dev-4", cl))
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Equal(t, apperr.CodeDuplicateRequest, body.Code)
}

func TestIdempotency_PassThrough(t *testing.T) {
	t.Parallel()

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})

	h := Idempotency(nil, failingStore{}, time.Hour)(next)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, idemRequest("dev-3", auth.Claims{Role: auth.RoleAdmin}))
	require.Equal(t, http.StatusOK, rr.Code)

	h = Idempotency(nil, idempotency.NewMemoryStore(), time.Hour)(next)
	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, 3, calls)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, idemRequest(strings.Repeat("k", maxIdempotencyKey+1), auth.Claims{Role: auth.RoleAdmin}))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
