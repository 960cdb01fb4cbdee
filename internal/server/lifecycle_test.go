package server

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeService struct {
	started atomic.Bool
	stopped atomic.Bool
	block   chan struct{}
	err     error
}

func newFakeService() *fakeService {
	return &fakeService{block: make(chan struct{})}
}

func (f *fakeService) Start() error {
	f.started.Store(true)
	if f.err != nil {
		return f.err
	}
	<-f.block
	return nil
}

func (f *fakeService) Stop() {
	if f.stopped.CompareAndSwap(false, true) {
		close(f.block)
	}
}

func TestLifecycle_RunStopsOnContextCancel(t *testing.T) {
	lc := NewLifecycle(zap.NewNop())
	svc := newFakeService()
	lc.Add("fake", svc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	require.Eventually(t, svc.started.Load, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("lifecycle did not shut down")
	}
	assert.True(t, svc.stopped.Load())
}

func TestLifecycle_ServiceErrorTriggersShutdown(t *testing.T) {
	lc := NewLifecycle(zap.NewNop())
	ok := newFakeService()
	bad := newFakeService()
	bad.err = assert.AnError
	lc.Add("ok", ok)
	lc.Add("bad", bad)

	done := make(chan error, 1)
	go func() { done <- lc.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("lifecycle did not shut down after service error")
	}
	assert.True(t, ok.stopped.Load())
}

func TestFuncService(t *testing.T) {
	var started, stopped bool
	fs := &FuncService{
		StartFn: func() error { started = true; return nil },
		StopFn:  func() { stopped = true },
	}
	require.NoError(t, fs.Start())
	fs.Stop()
	assert.True(t, started)
	assert.True(t, stopped)
}
