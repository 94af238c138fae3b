// Package metrics holds the Prometheus collectors reported by the client and
// its transports. Nothing is exported until RegisterClientMetrics is called.
package metrics

import (
	"errors"

	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
)

// Verification outcome labels.
const (
	OutcomeVerified      = "verified"
	OutcomeInvalidBeacon = "invalid_beacon"
	OutcomeFailed        = "failed_verification"
	OutcomeUnavailable   = "unavailable"
)

var (
	// ClientRequests counts Get calls made on sources, by source and outcome.
	ClientRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drand_client_requests_total",
		Help: "Number of beacons requested from each source, by outcome.",
	}, []string{"source", "outcome"})

	// ClientVerifications counts beacon verifications by scheme and outcome.
	ClientVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drand_client_verifications_total",
		Help: "Number of beacons verified, by scheme and outcome.",
	}, []string{"scheme", "outcome"})

	// ClientLatencyVec measures the time taken to fetch a beacon from a source.
	ClientLatencyVec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "drand_client_request_latency_seconds",
		Help:    "Duration of beacon requests, by source.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"source"})

	// ClientHTTPLatency measures HTTP round trips by root URL and status code.
	ClientHTTPLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "drand_client_http_latency_seconds",
		Help:    "Duration of HTTP requests to drand endpoints, by root URL and status code.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"url", "code"})

	// ClientWatchLatency is the delay between a round's scheduled time and the
	// time its beacon was delivered on a watch channel.
	ClientWatchLatency = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "drand_client_watch_latency_seconds",
		Help: "Delay between the scheduled time of the last watched round and its arrival.",
	})

	// ClientInFlight is the number of requests currently outstanding.
	ClientInFlight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "drand_client_in_flight",
		Help: "Number of in-flight beacon requests, by source.",
	}, []string{"source"})

	// GossipValidations counts gossip validator decisions.
	GossipValidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drand_gossip_validations_total",
		Help: "Number of gossiped beacons by validation result.",
	}, []string{"result"})

	clientMetrics = []prometheus.Collector{
		ClientRequests,
		ClientVerifications,
		ClientLatencyVec,
		ClientHTTPLatency,
		ClientWatchLatency,
		ClientInFlight,
		GossipValidations,
		grpcprometheus.DefaultClientMetrics,
	}
)

// RegisterClientMetrics registers the client collectors with r. Collectors
// that are already registered there are skipped, so several clients may share
// one registry.
func RegisterClientMetrics(r prometheus.Registerer) error {
	for _, c := range clientMetrics {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
