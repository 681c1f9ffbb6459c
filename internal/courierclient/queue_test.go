package courierclient_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/courierclient"
)

type submitFunc func(ctx context.Context, a courierclient.Action, key string) error

type recordingSubmitter struct {
	fn   submitFunc
	keys []string
}

func (s *recordingSubmitter) SubmitAction(ctx context.Context, a courierclient.Action, key string) error {
	s.keys = append(s.keys, key)
	if s.fn == nil {
		return nil
	}
	return s.fn(ctx, a, key)
}

func newQueue(t *testing.T, statuses ...string) *courierclient.Queue {
	t.Helper()
	q := courierclient.NewQueue(openStore(t, filepath.Join(t.TempDir(), "q.db")), "dev", nil)
	for _, st := range statuses {
		_, err := q.Enqueue(courierclient.Action{Type: courierclient.ActionStatus, OrderID: 9, Status: st})
		require.NoError(t, err)
	}
	return q
}

func TestQueue_DrainStopsAtNetworkFailure(t *testing.T) {
	t.Parallel()
	q := newQueue(t, "picked_up", "in_transit", "delivered")

	failing := &recordingSubmitter{fn: func(_ context.Context, _ courierclient.Action, key string) error {
		if key == "dev-2" {
			return apperr.Network("courier.update_status", errors.New("connection reset"))
		}
		return nil
	}}
	rep, err := q.Drain(context.Background(), failing)
	require.ErrorIs(t, err, apperr.ErrNetwork)
	require.Equal(t, courierclient.DrainReport{Sent: 1, Remaining: 2}, rep)
	require.Equal(t, []string{"dev-1", "dev-2"}, failing.keys)

	ok := &recordingSubmitter{}
	rep, err = q.Drain(context.Background(), ok)
	require.NoError(t, err)
	require.Equal(t, courierclient.DrainReport{Sent: 2}, rep)
	require.Equal(t, []string{"dev-2", "dev-3"}, ok.keys)

	n, err := q.Len()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestQueue_DrainDropsTerminalRejections(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
	}{
		{"invalid transition", &apperr.TransitionError{From: "delivered", To: "picked_up"}},
		{"not owner", &apperr.NotOwnerError{OrderID: 9, CourierID: 3}},
		{"not found", apperr.ErrNotFound},
		{"validation", apperr.Validation("status", "unknown")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			q := newQueue(t, "picked_up", "delivered")

			s := &recordingSubmitter{fn: func(_ context.Context, a courierclient.Action, _ string) error {
				if a.Status == "picked_up" {
					return tc.err
				}
				return nil
			}}
			rep, err := q.Drain(context.Background(), s)
			require.NoError(t, err)
			require.Equal(t, courierclient.DrainReport{Sent: 1, Dropped: 1}, rep)
			require.Equal(t, []string{"dev-1", "dev-2"}, s.keys)
		})
	}
}

func TestQueue_DuplicateCountsAsDelivered(t *testing.T) {
	t.Parallel()
	q := newQueue(t, "picked_up")

	s := &recordingSubmitter{fn: func(context.Context, courierclient.Action, string) error {
		return apperr.ErrDuplicateRequest
	}}
	rep, err := q.Drain(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, 1, rep.Sent)
	require.Zero(t, rep.Dropped)
}

func TestQueue_DrainStopsOnUnknownError(t *testing.T) {
	t.Parallel()
	q := newQueue(t, "picked_up", "delivered")

	s := &recordingSubmitter{fn: func(context.Context, courierclient.Action, string) error {
		return apperr.ErrUnauthorized
	}}
	rep, err := q.Drain(context.Background(), s)
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
	require.Equal(t, 2, rep.Remaining)
	require.Len(t, s.keys, 1)
}

func TestQueue_DrainHonoursCancelledContext(t *testing.T) {
	t.Parallel()
	q := newQueue(t, "picked_up")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &recordingSubmitter{}
	rep, err := q.Drain(ctx, s)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, rep.Remaining)
	require.Empty(t, s.keys)
}

func TestQueue_Key(t *testing.T) {
	t.Parallel()
	q := newQueue(t)
	require.Equal(t, "dev-12", q.Key(12))
}
