// Package metrics exposes the gateway's Prometheus metrics on a dedicated
// listener, separate from the device API.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Authentication flow counters. Failure counts are labeled by protocol error
// kind so brute-force patterns show up per cause.
var (
	ChallengesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oneedge_auth_challenges_issued_total",
		Help: "Number of authentication challenges issued to devices.",
	})
	AuthSuccesses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oneedge_auth_success_total",
		Help: "Number of successful device authentications.",
	})
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oneedge_auth_failure_total",
		Help: "Number of failed device authentications by error kind.",
	}, []string{"kind"})
	SecretRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oneedge_secret_rotations_total",
		Help: "Number of session secret rotations, scheduled and forced.",
	})
	QuarantineEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oneedge_quarantine_events_total",
		Help: "Number of devices entering quarantine.",
	})
	DevicesProvisioned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oneedge_devices_provisioned_total",
		Help: "Number of device provisioning upserts.",
	})
)

// MetricsServer serves the Prometheus scrape endpoint.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on addr, serving the default
// registry (process and Go runtime collectors plus the counters above).
func New(service, addr string) (*MetricsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}, nil
}

// ListenAndServe blocks serving scrapes until Shutdown.
func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the listener.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
