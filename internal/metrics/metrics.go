package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry holds every culturemap collector.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	MarkersAdded = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "culturemap",
		Subsystem: "markers",
		Name:      "added_total",
		Help:      "Markers added to the map engine",
	})

	MarkersRemoved = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "culturemap",
		Subsystem: "markers",
		Name:      "removed_total",
		Help:      "Markers removed from the map engine",
	})

	Reconciliations = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "culturemap",
		Subsystem: "markers",
		Name:      "reconciliations_total",
		Help:      "Reconciliation passes applied",
	})

	EngineInits = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "culturemap",
		Subsystem: "engine",
		Name:      "inits_total",
		Help:      "Engine initialisations by result",
	}, []string{"result"})

	TileFetches = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "culturemap",
		Subsystem: "tiles",
		Name:      "fetches_total",
		Help:      "Basemap tile fetches by result",
	}, []string{"result"})

	SearchRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "culturemap",
		Subsystem: "search",
		Name:      "requests_total",
		Help:      "Place searches by outcome",
	}, []string{"outcome"})

	SearchDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "culturemap",
		Subsystem: "search",
		Name:      "duration_seconds",
		Help:      "Place search latency",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
