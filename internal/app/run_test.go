package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/dig"

	"github.com/israelreshef/delivery-app-sub000/internal/logx"
	testlog "github.com/israelreshef/delivery-app-sub000/internal/testutil"
)

func recorderContainer(t *testing.T, rec *testlog.Recorder) *dig.Container {
	t.Helper()
	container := dig.New()
	require.NoError(t, container.Provide(func() logx.Logger {
		return rec.Logger()
	}))
	return container
}

func TestRunner_MustRun_ShutdownRequested(t *testing.T) {
	t.Parallel()

	rec := testlog.New()
	r := &Runner{
		runFn: func(_ *dig.Container) error {
			return context.Canceled
		},
		exit: func(int) { t.Fatal("exit must not be called") },
	}
	r.MustRun(recorderContainer(t, rec))
	require.Len(t, rec.Find("shutdown requested, exiting"), 1)
}

func TestRunner_MustRun_StartupTimeout(t *testing.T) {
	t.Parallel()

	rec := testlog.New()
	r := &Runner{
		runFn: func(_ *dig.Container) error {
			return context.DeadlineExceeded
		},
		exit: func(int) { t.Fatal("exit must not be called") },
	}
	r.MustRun(recorderContainer(t, rec))
	require.Len(t, rec.Find("startup aborted: startup timeout exceeded"), 1)
}

func TestRunner_MustRun_ExitsOnFailure(t *testing.T) {
	t.Parallel()

	rec := testlog.New()
	code := -1
	r := &Runner{
		runFn: func(_ *dig.Container) error { return errors.New("listen tcp: address in use") },
		exit:  func(c int) { code = c },
	}
	r.MustRun(recorderContainer(t, rec))
	require.Equal(t, 1, code)
	require.Len(t, rec.Find("run error"), 1)
}

func TestNewRunner_DefaultFields(t *testing.T) {
	t.Parallel()

	r := NewRunner()
	require.NotNil(t, r)
	require.NotNil(t, r.runFn)
	require.NotNil(t, r.exit)
	require.Equal(t, fmt.Sprintf("%p", run), fmt.Sprintf("%p", r.runFn))
}

func TestRun_ServesUntilContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	cfg.Port = 0
	container, err := NewContainerBuilder().
		WithConfig(cfg).
		WithDBConnect(failingConnect(t)).
		build(ctx)
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err = run(container)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_InvalidSweepSpec(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Port = 0
	cfg.Dispatch.SweepSpec = "every now and then"
	container, err := NewContainerBuilder().
		WithConfig(cfg).
		WithDBConnect(failingConnect(t)).
		build(context.Background())
	require.NoError(t, err)

	err = run(container)
	require.Error(t, err)
	require.Contains(t, err.Error(), "start sweep job")
}
