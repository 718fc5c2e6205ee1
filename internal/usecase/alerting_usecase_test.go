package usecase

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type chanSource struct {
	ticks chan domain.RawTick
	err   error
}

func (s *chanSource) Subscribe(ctx context.Context) (<-chan domain.RawTick, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.ticks, nil
}

// recordingHandler records every tick it is given. When block is set it
// waits on it (or on ctx) before returning.
type recordingHandler struct {
	mu        sync.Mutex
	prices    []string
	cancelled int
	started   chan struct{}
	block     chan struct{}
}

func (h *recordingHandler) HandleTick(ctx context.Context, tick domain.Tick) (int, error) {
	if h.started != nil {
		h.started <- struct{}{}
	}
	if h.block != nil {
		select {
		case <-h.block:
		case <-ctx.Done():
			h.mu.Lock()
			h.cancelled++
			h.mu.Unlock()
			return 0, ctx.Err()
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prices = append(h.prices, tick.Price.String())
	return 0, nil
}

func (h *recordingHandler) seen() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.prices...)
}

func waitRunning(t *testing.T, manager *AlertingManager) {
	t.Helper()
	require.Eventually(t, func() bool {
		manager.mu.Lock()
		defer manager.mu.Unlock()
		return manager.running != nil
	}, time.Second, 5*time.Millisecond)
}

func raw(price string) domain.RawTick {
	return domain.RawTick{Instrument: "BTCUSDT", Price: price}
}

func TestAlertingManagerDiscardsMalformedTicks(t *testing.T) {
	source := &chanSource{ticks: make(chan domain.RawTick, 8)}
	handler := &recordingHandler{}
	manager := NewAlertingManager(source, handler, nil, AlertingConfig{Workers: 1}, zaptest.NewLogger(t))

	for _, p := range []string{"100", "NaN", "", "abc", "-5", "101.5"} {
		source.ticks <- raw(p)
	}
	close(source.ticks)

	require.NoError(t, manager.Run(context.Background()))
	assert.Equal(t, []string{"100", "101.5"}, handler.seen())
}

func TestAlertingManagerKeepsArrivalOrderWithOneWorker(t *testing.T) {
	source := &chanSource{ticks: make(chan domain.RawTick, 64)}
	handler := &recordingHandler{}
	manager := NewAlertingManager(source, handler, nil, AlertingConfig{}, zaptest.NewLogger(t))

	var want []string
	for i := 1; i <= 50; i++ {
		p := strconv.Itoa(i)
		want = append(want, p)
		source.ticks <- raw(p)
	}
	close(source.ticks)

	require.NoError(t, manager.Run(context.Background()))
	assert.Equal(t, want, handler.seen())
}

func TestAlertingManagerSubscribeError(t *testing.T) {
	boom := errors.New("dial refused")
	manager := NewAlertingManager(&chanSource{err: boom}, &recordingHandler{}, nil, AlertingConfig{}, zaptest.NewLogger(t))
	assert.ErrorIs(t, manager.Run(context.Background()), boom)
}

func TestAlertingManagerRejectsSecondRun(t *testing.T) {
	source := &chanSource{ticks: make(chan domain.RawTick)}
	manager := NewAlertingManager(source, &recordingHandler{}, nil, AlertingConfig{}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- manager.Run(ctx) }()

	waitRunning(t, manager)

	assert.ErrorIs(t, manager.Run(context.Background()), ErrAlreadyRunning)
	cancel()
	require.NoError(t, <-done)
}

func TestAlertingManagerDrainsInFlightTickOnShutdown(t *testing.T) {
	source := &chanSource{ticks: make(chan domain.RawTick, 1)}
	handler := &recordingHandler{started: make(chan struct{}, 1), block: make(chan struct{})}
	manager := NewAlertingManager(source, handler, nil, AlertingConfig{Workers: 1, ShutdownGrace: 5 * time.Second}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- manager.Run(ctx) }()

	source.ticks <- raw("100")
	<-handler.started
	cancel()

	// The in-flight tick must not observe the shutdown.
	select {
	case <-done:
		t.Fatal("run returned before in-flight tick settled")
	case <-time.After(50 * time.Millisecond):
	}
	close(handler.block)

	require.NoError(t, <-done)
	assert.Equal(t, []string{"100"}, handler.seen())
	assert.Zero(t, handler.cancelled)
}

func TestAlertingManagerCancelsWorkAfterGrace(t *testing.T) {
	source := &chanSource{ticks: make(chan domain.RawTick, 1)}
	handler := &recordingHandler{started: make(chan struct{}, 1), block: make(chan struct{})}
	manager := NewAlertingManager(source, handler, nil, AlertingConfig{Workers: 1, ShutdownGrace: 20 * time.Millisecond}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- manager.Run(ctx) }()

	source.ticks <- raw("100")
	<-handler.started
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("grace expiry did not stop the pipeline")
	}
	assert.Equal(t, 1, handler.cancelled)
	assert.Empty(t, handler.seen())
}

func TestAlertingManagerStop(t *testing.T) {
	source := &chanSource{ticks: make(chan domain.RawTick)}
	manager := NewAlertingManager(source, &recordingHandler{}, nil, AlertingConfig{}, zaptest.NewLogger(t))

	done := make(chan error, 1)
	go func() { done <- manager.Run(context.Background()) }()
	waitRunning(t, manager)

	manager.Stop()
	require.NoError(t, <-done)
	manager.Stop()
}
