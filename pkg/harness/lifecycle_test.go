// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package harness_test

import (
	"context"
	"errors"
	"os"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dlog"

	"github.com/datawire/jab/pkg/harness"
)

// journal records lifecycle events in the order they happen.
type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(event string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, event)
}

func (j *journal) get() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

type (
	storage struct {
		j         *journal
		stopErr   error
		startHook func(context.Context)
	}
	worker struct {
		j      *journal
		s      *storage
		runErr error
	}
	ticker struct {
		j *journal
		w *worker
	}
)

func (s *storage) OnStart(ctx context.Context) error {
	s.j.add("storage.start")
	if s.startHook != nil {
		s.startHook(ctx)
	}
	return nil
}

func (s *storage) OnStop(context.Context) error {
	s.j.add("storage.stop")
	return s.stopErr
}

func (w *worker) Run(ctx context.Context) error {
	w.j.add("worker.run")
	if w.runErr != nil {
		return w.runErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func (w *worker) OnStop() error {
	w.j.add("worker.stop")
	return nil
}

func (t *ticker) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		t.j.add("ticker.canceled")
		return ctx.Err()
	case <-time.After(10 * time.Second):
		return errors.New("ticker was never canceled")
	}
}

func (t *ticker) OnStop() {
	t.j.add("ticker.stop")
}

// loggedContext returns a context whose log messages are kept in the returned hook.
func loggedContext() (context.Context, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return dlog.WithLogger(context.Background(), dlog.WrapLogrus(logger)), hook
}

func logged(hook *logtest.Hook, msg string) bool {
	for _, entry := range hook.AllEntries() {
		if entry.Message == msg {
			return true
		}
	}
	return false
}

func newHarness(t *testing.T, j *journal, s *storage, runErr error) *harness.Harness {
	t.Helper()
	h := harness.New(harness.WithName(t.Name()), harness.WithSignalHandling(false))
	require.NoError(t, h.Supply(j))
	require.NoError(t, h.Provide(
		func(j *journal) *storage { s.j = j; return s },
		func(j *journal, s *storage) *worker { return &worker{j: j, s: s, runErr: runErr} },
		func(j *journal, w *worker) *ticker { return &ticker{j: j, w: w} },
	))
	return h
}

func TestRunInterrupted(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(dlog.NewTestContext(t, true))
	j := &journal{}
	h := newHarness(t, j, &storage{}, nil)

	errCh := make(chan error)
	go func() {
		errCh <- h.Run(ctx)
	}()
	assert.Eventually(t, func() bool { return len(j.get()) >= 2 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, <-errCh)

	events := j.get()
	require.Len(t, events, 6)
	assert.Equal(t, "storage.start", events[0])
	assert.ElementsMatch(t, []string{"worker.run", "ticker.canceled"}, events[1:3])
	assert.Equal(t, []string{"ticker.stop", "worker.stop", "storage.stop"}, events[3:])
}

func TestRunInterruptedDuringStart(t *testing.T) {
	t.Parallel()
	logCtx, hook := loggedContext()
	ctx, cancel := context.WithCancel(logCtx)
	defer cancel()
	j := &journal{}
	// OnStart finishes normally even though it was interrupted.
	h := newHarness(t, j, &storage{startHook: func(context.Context) { cancel() }}, nil)

	assert.NoError(t, h.Run(ctx))
	assert.Equal(t, []string{"storage.start", "ticker.stop", "worker.stop", "storage.stop"}, j.get())
	assert.True(t, logged(hook, "interrupted during startup; stopping"))
}

//nolint:paralleltest // sends SIGINT to the whole test process
func TestRunSignalDuringStart(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("can't send SIGINT to ourselves on Windows")
	}
	ctx := dlog.NewTestContext(t, true)
	j := &journal{}
	s := &storage{startHook: func(ctx context.Context) {
		proc, err := os.FindProcess(os.Getpid())
		if !assert.NoError(t, err) {
			return
		}
		assert.NoError(t, proc.Signal(os.Interrupt))
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
			t.Error("the signal didn't cancel OnStart")
		}
	}}
	h := harness.New(harness.WithName(t.Name()), harness.WithSignalHandling(true))
	require.NoError(t, h.Supply(j))
	require.NoError(t, h.Provide(
		func(j *journal) *storage { s.j = j; return s },
		func(j *journal, s *storage) *worker { return &worker{j: j, s: s} },
		func(j *journal, w *worker) *ticker { return &ticker{j: j, w: w} },
	))

	assert.NoError(t, h.Run(ctx))
	assert.Equal(t, []string{"storage.start", "ticker.stop", "worker.stop", "storage.stop"}, j.get())
}

func TestRunError(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	errRun := errors.New("worker failed")
	errStop := errors.New("storage stuck")
	j := &journal{}
	h := newHarness(t, j, &storage{stopErr: errStop}, errRun)

	err := h.Run(ctx)
	require.Error(t, err)
	var errs derror.MultiError
	require.True(t, errors.As(err, &errs))
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], errRun)
	assert.ErrorIs(t, errs[1], errStop)

	var lcErr *harness.LifecycleError
	require.True(t, errors.As(errs[0], &lcErr))
	assert.Equal(t, "*harness_test.worker", lcErr.Provider)
	assert.Equal(t, "Run", lcErr.Method)
	require.True(t, errors.As(errs[1], &lcErr))
	assert.Equal(t, "OnStop", lcErr.Method)

	// The ticker was canceled because the worker failed, and everything was still stopped.
	assert.Contains(t, j.get(), "ticker.canceled")
	assert.Equal(t, []string{"ticker.stop", "worker.stop", "storage.stop"}, j.get()[len(j.get())-3:])
}

type failingStart struct{ j *journal }

func (f *failingStart) OnStart(context.Context) error { return errors.New("no config") }

func (f *failingStart) Run(context.Context) error {
	f.j.add("failing.run")
	return nil
}

func (f *failingStart) OnStop(context.Context) error {
	f.j.add("failing.stop")
	return nil
}

func TestRunStartError(t *testing.T) {
	t.Parallel()
	ctx, hook := loggedContext()
	j := &journal{}
	h := harness.New(harness.WithSignalHandling(false))
	require.NoError(t, h.Supply(&failingStart{j: j}, &storage{j: j}))

	err := h.Run(ctx)
	var errs derror.MultiError
	require.True(t, errors.As(err, &errs))
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "*harness_test.failingStart.OnStart: no config")
	assert.NotContains(t, j.get(), "failing.run")
	assert.Contains(t, j.get(), "failing.stop")
	// A failed start is not an interrupt, even though it cancels the other starters.
	assert.False(t, logged(hook, "interrupted during startup; stopping"))
}

type (
	badStart  struct{}
	badRun    struct{}
	badStop   struct{}
	plainStop struct{ stopped bool }
)

func (badStart) OnStart() error { return nil }

func (badRun) Run(context.Context) {}

func (badStop) OnStop(context.Context, bool) error { return nil }

func (p *plainStop) OnStop() { p.stopped = true }

func TestInvalidLifecycleMethod(t *testing.T) {
	t.Parallel()
	testcases := map[string]struct {
		In      interface{}
		Method  string
		OutText string
	}{
		"start": {badStart{}, "OnStart", "harness_test.badStart.OnStart has signature func() error; " +
			"it must be one of: [func(context.Context) error]"},
		"run": {badRun{}, "Run", "harness_test.badRun.Run has signature func(context.Context); " +
			"it must be one of: [func(context.Context) error]"},
		"stop": {badStop{}, "OnStop", "harness_test.badStop.OnStop has signature func(context.Context, bool) error; " +
			"it must be one of: [func(context.Context) error func() error func()]"},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			ctx := dlog.NewTestContext(t, true)
			h := harness.New(harness.WithSignalHandling(false))
			require.NoError(t, h.Supply(tc.In))
			err := h.Run(ctx)
			var lcErr *harness.InvalidLifecycleMethodError
			require.True(t, errors.As(err, &lcErr))
			assert.Equal(t, tc.Method, lcErr.Method)
			assert.EqualError(t, err, tc.OutText)
		})
	}
}

func TestPlainStop(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	p := &plainStop{}
	h := harness.New(harness.WithSignalHandling(false))
	require.NoError(t, h.Supply(p))
	assert.NoError(t, h.Run(ctx))
	assert.True(t, p.stopped)
}

type slowStop struct{ deadline bool }

func (s *slowStop) OnStop(ctx context.Context) error {
	_, s.deadline = ctx.Deadline()
	<-ctx.Done()
	return ctx.Err()
}

func TestStopTimeout(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(dlog.NewTestContext(t, false))
	cancel()
	s := &slowStop{}
	h := harness.New(harness.WithSignalHandling(false), harness.WithStopTimeout(50*time.Millisecond))
	require.NoError(t, h.Supply(s))

	// Even though ctx is already canceled, OnStop gets a live Context until the timeout.
	err := h.Run(ctx)
	var errs derror.MultiError
	require.True(t, errors.As(err, &errs))
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], context.DeadlineExceeded)
	assert.True(t, s.deadline)
}

func TestRunBuildError(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	h := harness.New(harness.WithSignalHandling(false))
	require.NoError(t, h.Provide(newCache))
	var missing *harness.MissingDependencyError
	assert.True(t, errors.As(h.Run(ctx), &missing))
}
