// Package metrics exposes run counters for Prometheus.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/amirphl/momentum-validator/internal/utils"
)

var (
	SimulationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "simulations_total", Help: "Simulation loop runs"},
	)
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trades_total", Help: "Closed trade records by exit reason"},
		[]string{"reason"},
	)
	BootstrapSamplesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "bootstrap_samples_total", Help: "Stationary bootstrap samples generated"},
	)
	WalkForwardStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "walk_forward_steps_total", Help: "Completed walk-forward steps"},
		[]string{"valid"},
	)
	OptimizerTrialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimizer_trials_total", Help: "Optimizer trials by final state"},
		[]string{"state"},
	)
	OptimizerFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "optimizer_failures_total", Help: "Re-optimizations that fell back to the active parameters"},
	)
)

func init() {
	prometheus.MustRegister(
		SimulationsTotal,
		TradesTotal,
		BootstrapSamplesTotal,
		WalkForwardStepsTotal,
		OptimizerTrialsTotal,
		OptimizerFailuresTotal,
	)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go listen(srv, utils.Component("metrics"))
	return srv
}

// listen runs srv until it is closed and logs any other failure, such as
// the address being in use.
func listen(srv *http.Server, logger zerolog.Logger) {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Msgf("Serve | metrics endpoint on %s stopped: %v", srv.Addr, err)
	}
}
