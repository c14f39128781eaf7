// Package metrics exposes the supervisor's own counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quasar_stat"

// Collector groups the supervisor metrics in a private registry.
type Collector struct {
	registry *prometheus.Registry

	taskRuns     *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	ticks        prometheus.Counter
	queueDepth   prometheus.Gauge
	consumers    prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		taskRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_runs_total",
			Help:      "Task invocations by task and result.",
		}, []string{"task", "result"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Time spent inside task callbacks.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"task"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Scheduler ticks executed.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Pending messages at the last snapshot.",
		}),
		consumers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consumers",
			Help:      "Running consumer processes at the last scan.",
		}),
	}

	c.registry.MustRegister(c.taskRuns, c.taskDuration, c.ticks, c.queueDepth, c.consumers)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveTask matches schedule.Hook.
func (c *Collector) ObserveTask(name string, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.taskRuns.WithLabelValues(name, result).Inc()
	c.taskDuration.WithLabelValues(name).Observe(took.Seconds())
}

// ObserveTick counts one scheduler tick.
func (c *Collector) ObserveTick() {
	c.ticks.Inc()
}

// SetQueueDepth records the last queue count.
func (c *Collector) SetQueueDepth(n int64) {
	c.queueDepth.Set(float64(n))
}

// SetConsumers records the last consumer count.
func (c *Collector) SetConsumers(n int) {
	c.consumers.Set(float64(n))
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("📈 Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
