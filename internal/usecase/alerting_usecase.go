package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
	"go.uber.org/zap"
)

type TickHandler interface {
	HandleTick(ctx context.Context, tick domain.Tick) (int, error)
}

type AlertingConfig struct {
	Workers       int
	ShutdownGrace time.Duration
}

// AlertingManager pulls ticks from the source and feeds them to the
// coordinator. With one worker ticks are handled strictly in arrival
// order; more workers are safe because settling relies only on the
// store's conditional transition.
type AlertingManager struct {
	source   domain.TickSource
	handler  TickHandler
	recorder Recorder
	logger   *zap.Logger
	cfg      AlertingConfig
	now      func() time.Time

	mu      sync.Mutex
	running *runner
}

type runner struct {
	cancel context.CancelFunc
	done   chan struct{}
}

var ErrAlreadyRunning = errors.New("alerting manager already running")

func NewAlertingManager(source domain.TickSource, handler TickHandler, recorder Recorder, cfg AlertingConfig, logger *zap.Logger) *AlertingManager {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &AlertingManager{
		source:   source,
		handler:  handler,
		recorder: recorder,
		logger:   logger.Named("alerting"),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run blocks until ctx is done or the tick source closes. On return every
// tick that was handed to a worker has either been fully settled or, if
// the shutdown grace ran out, had its outstanding work cancelled and
// reported.
func (m *AlertingManager) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	r := &runner{cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	if m.running != nil {
		m.mu.Unlock()
		cancel()
		return ErrAlreadyRunning
	}
	m.running = r
	m.mu.Unlock()

	defer func() {
		cancel()
		m.mu.Lock()
		m.running = nil
		m.mu.Unlock()
		close(r.done)
	}()

	ticks, err := m.source.Subscribe(runCtx)
	if err != nil {
		return err
	}
	m.logger.Info("alerting pipeline started", zap.Int("workers", m.cfg.Workers))

	// Workers keep going after runCtx is cancelled so in-flight
	// transitions get published; only the grace timeout stops them.
	workCtx, stopWork := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWork()

	jobs := make(chan domain.Tick)
	var wg sync.WaitGroup
	for i := 0; i < m.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			m.worker(workCtx, id, jobs)
		}(i)
	}

	m.dispatch(runCtx, ticks, jobs)
	close(jobs)

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()

	m.logger.Info("alerting pipeline draining in-flight ticks")
	if m.cfg.ShutdownGrace > 0 {
		timer := time.NewTimer(m.cfg.ShutdownGrace)
		defer timer.Stop()
		select {
		case <-drained:
		case <-timer.C:
			m.logger.Warn("shutdown grace elapsed, cancelling in-flight ticks", zap.Duration("grace", m.cfg.ShutdownGrace))
			stopWork()
			<-drained
		}
	} else {
		<-drained
	}

	m.logger.Info("alerting pipeline stopped")
	return nil
}

// Stop cancels a running pipeline and waits for it to drain.
func (m *AlertingManager) Stop() {
	m.mu.Lock()
	r := m.running
	m.mu.Unlock()
	if r == nil {
		return
	}
	r.cancel()
	<-r.done
}

func (m *AlertingManager) dispatch(ctx context.Context, ticks <-chan domain.RawTick, jobs chan<- domain.Tick) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ticks:
			if !ok {
				m.logger.Info("tick source closed")
				return
			}
			m.recorder.TickReceived()

			tick, err := domain.ParseTick(raw, m.now)
			if err != nil {
				m.recorder.TickDiscarded()
				m.logger.Warn("discarding malformed tick", zap.String("raw_price", raw.Price), zap.Error(err))
				continue
			}

			select {
			case jobs <- tick:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (m *AlertingManager) worker(ctx context.Context, id int, jobs <-chan domain.Tick) {
	for tick := range jobs {
		start := time.Now()
		triggered, err := m.handler.HandleTick(ctx, tick)
		m.recorder.TickProcessed(time.Since(start))
		if err != nil {
			m.logger.Warn("tick handling failed", zap.Int("worker", id), zap.String("price", tick.Price.String()), zap.Error(err))
			continue
		}
		if triggered > 0 {
			m.logger.Debug("tick settled", zap.Int("worker", id), zap.Int("triggered", triggered))
		}
	}
}
