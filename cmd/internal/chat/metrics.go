package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	onlineUsersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "parley",
		Subsystem: "presence",
		Name:      "online_users",
		Help:      "Number of distinct users with at least one live connection.",
	})

	connectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "parley",
		Subsystem: "presence",
		Name:      "connections",
		Help:      "Number of live websocket connections.",
	})

	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "chat",
		Name:      "messages_total",
		Help:      "Messages accepted and persisted, by delivery path.",
	}, []string{"path"})

	dispatchDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "chat",
		Name:      "dispatch_dropped_total",
		Help:      "Outbound envelopes dropped due to backpressure or closing clients.",
	})
)
