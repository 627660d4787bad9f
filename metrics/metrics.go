// Package metrics exposes Prometheus counters for the vault and payment
// services, served on a dedicated metrics listener separate from the API.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EOACreated counts successful create operations.
	EOACreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eoa_created_total",
		Help: "Number of EOAs created",
	})

	// EOARetrieved counts successful fetch operations.
	EOARetrieved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eoa_retrieved_total",
		Help: "Number of EOAs retrieved",
	})

	// DecryptFailures counts fetches that failed authentication.
	DecryptFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eoa_decrypt_failures_total",
		Help: "Number of fetches that failed to decrypt",
	})

	// PaymentDecisions counts payment gate outcomes by result.
	PaymentDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_gate_decisions_total",
		Help: "Payment gate outcomes",
	}, []string{"result"})

	// BeaconErrors counts failed randomness beacon calls.
	BeaconErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_errors_total",
		Help: "Number of failed randomness beacon requests",
	})
)

// MetricsServer serves the Prometheus scrape endpoint.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on addr. The namespace is used to
// label process-level collectors.
func New(namespace, addr string) (*MetricsServer, error) {
	registry := prometheus.DefaultRegisterer.(*prometheus.Registry)
	// Process and Go runtime collectors are registered by promauto's default
	// registry already; re-registration is skipped if duplicated.
	_ = registry.Register(collectors.NewBuildInfoCollector())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}, nil
}

// ListenAndServe blocks serving the scrape endpoint.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
