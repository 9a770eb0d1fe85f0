// Package metrics exposes conversation engine activity as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/simonyos/roundtable/internal/orchestrator"
)

// Namespace prefixes every metric name.
const Namespace = "roundtable"

// Collector records turn activity. It satisfies orchestrator.Observer.
type Collector struct {
	turnsStarted *prometheus.CounterVec
	turnsTotal   *prometheus.CounterVec
	turnsActive  *prometheus.GaugeVec
	fragments    *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec
	validations  *prometheus.CounterVec
}

var _ orchestrator.Observer = (*Collector)(nil)

// NewCollector registers the collector's metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		turnsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "turns_started_total",
				Help:      "Total number of turns started",
			},
			[]string{"backend"},
		),
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "turns_total",
				Help:      "Total number of finished turns by outcome",
			},
			[]string{"backend", "outcome"},
		),
		turnsActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "turns_active",
				Help:      "Number of turns currently streaming",
			},
			[]string{"backend"},
		),
		fragments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "fragments_total",
				Help:      "Total number of text fragments received from backends",
			},
			[]string{"backend"},
		),
		turnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "turn_duration_seconds",
				Help:      "Turn duration in seconds",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"backend", "outcome"},
		),
		validations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "provider_validations_total",
				Help:      "Total number of provider credential checks by result",
			},
			[]string{"backend", "valid"},
		),
	}
}

func (c *Collector) TurnStarted(backend string) {
	c.turnsStarted.WithLabelValues(backend).Inc()
	c.turnsActive.WithLabelValues(backend).Inc()
}

func (c *Collector) FragmentReceived(backend string) {
	c.fragments.WithLabelValues(backend).Inc()
}

func (c *Collector) TurnFinished(backend, outcome string, elapsed time.Duration) {
	c.turnsActive.WithLabelValues(backend).Dec()
	c.turnsTotal.WithLabelValues(backend, outcome).Inc()
	c.turnDuration.WithLabelValues(backend, outcome).Observe(elapsed.Seconds())
}

// RecordValidation counts a provider credential check.
func (c *Collector) RecordValidation(backend string, valid bool) {
	c.validations.WithLabelValues(backend, strconv.FormatBool(valid)).Inc()
}

// Serve exposes gatherer on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics endpoint listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
