package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "pricealert"

// Recorder exports pipeline counters. It satisfies usecase.Recorder.
type Recorder struct {
	registry *prometheus.Registry

	ticksReceived       prometheus.Counter
	ticksDiscarded      prometheus.Counter
	tickDuration        prometheus.Histogram
	alertsCrossed       prometheus.Counter
	alertsTriggered     prometheus.Counter
	transitionConflicts prometheus.Counter
	publishRetries      prometheus.Counter
	publishFailures     prometheus.Counter
	incidents           *prometheus.CounterVec
	notifications       *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		ticksReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_received_total",
			Help: "Price ticks read from the feed.",
		}),
		ticksDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_discarded_total",
			Help: "Ticks dropped because the price was malformed.",
		}),
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tick_processing_seconds",
			Help:    "Time to scan and settle one tick.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		alertsCrossed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_crossed_total",
			Help: "Active alerts whose threshold was crossed.",
		}),
		alertsTriggered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_triggered_total",
			Help: "Alerts retired as triggered by this process.",
		}),
		transitionConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "transition_conflicts_total",
			Help: "Crossings lost to a concurrent transition.",
		}),
		publishRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "publish_retries_total",
			Help: "Publish attempts that were retried.",
		}),
		publishFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "publish_failures_total",
			Help: "Events that exhausted their publish retries.",
		}),
		incidents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "incidents_total",
			Help: "Operational incidents by kind.",
		}, []string{"kind"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_total",
			Help: "Mailer outcomes by result.",
		}, []string{"result"}),
	}
}

func (r *Recorder) TickReceived()  { r.ticksReceived.Inc() }
func (r *Recorder) TickDiscarded() { r.ticksDiscarded.Inc() }

func (r *Recorder) TickProcessed(duration time.Duration) {
	r.tickDuration.Observe(duration.Seconds())
}

func (r *Recorder) AlertCrossed()       { r.alertsCrossed.Inc() }
func (r *Recorder) AlertTriggered()     { r.alertsTriggered.Inc() }
func (r *Recorder) TransitionConflict() { r.transitionConflicts.Inc() }
func (r *Recorder) PublishRetried()     { r.publishRetries.Inc() }
func (r *Recorder) PublishFailed()      { r.publishFailures.Inc() }

// Report counts the incident; it satisfies domain.IncidentReporter.
func (r *Recorder) Report(_ context.Context, incident domain.Incident) {
	r.incidents.WithLabelValues(string(incident.Kind)).Inc()
}

// NotificationHandled counts one mailer outcome.
func (r *Recorder) NotificationHandled(err error) {
	result := "delivered"
	if err != nil {
		result = "failed"
	}
	r.notifications.WithLabelValues(result).Inc()
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
