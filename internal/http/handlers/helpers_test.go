package handlers_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/http/handlers"
)

func TestStatusFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", apperr.Validation("phone", "bad"), http.StatusBadRequest},
		{"unauthorized", apperr.ErrUnauthorized, http.StatusUnauthorized},
		{"not owner", &apperr.NotOwnerError{OrderID: 1, CourierID: 2}, http.StatusForbidden},
		{"not found wrapped", fmt.Errorf("get: %w", apperr.ErrNotFound), http.StatusNotFound},
		{"offer expired", apperr.ErrOfferExpired, http.StatusGone},
		{"transition", &apperr.TransitionError{From: "pending", To: "delivered"}, http.StatusConflict},
		{"already assigned", &apperr.AlreadyAssignedError{OrderID: 1}, http.StatusConflict},
		{"duplicate", apperr.ErrDuplicateRequest, http.StatusConflict},
		{"courier unavailable", apperr.ErrCourierUnavailable, http.StatusConflict},
		{"network", apperr.Network("quote", errors.New("dial")), http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, handlers.StatusFor(tc.err))
		})
	}
}
