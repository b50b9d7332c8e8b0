package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for the hub, gateway and order lifecycle.
// Served separately from the API via promhttp on the metrics port.
var (
	HubConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tableside_hub_connections",
		Help: "Currently registered connections per role.",
	}, []string{"role"})

	HubEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tableside_hub_events_total",
		Help: "Events broadcast per role and event type.",
	}, []string{"role", "type"})

	HubEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tableside_hub_evictions_total",
		Help: "Connections evicted for exceeding their outbound queue depth.",
	}, []string{"role"})

	TranscriptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tableside_transcriptions_total",
		Help: "Transcription attempts per provider and outcome.",
	}, []string{"provider", "outcome"})

	TranscriptionSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tableside_transcription_seconds",
		Help:    "Wall-clock duration of provider transcription calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tableside_order_transitions_total",
		Help: "Accepted order status transitions by target status.",
	}, []string{"to"})
)
