package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nswire_connections_active",
		Help: "Number of currently connected clients across all namespaces.",
	})

	messagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nswire_messages_total",
		Help: "Accepted inbound messages.",
	})

	broadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nswire_broadcasts_total",
		Help: "Broadcast fan-outs performed, local and remote-triggered.",
	})

	droppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nswire_dropped_frames_total",
		Help: "Inbound frames dropped before handler dispatch.",
	}, []string{"reason"})

	evictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nswire_evictions_total",
		Help: "Clients removed by the keepalive health sweep.",
	})
)
