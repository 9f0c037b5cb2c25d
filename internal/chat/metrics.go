// internal/chat/metrics.go

package chat

import (
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

var (
    activeConnections = promauto.NewGauge(
        prometheus.GaugeOpts{
            Name: "chat_active_connections",
            Help: "Number of live websocket sessions",
        },
    )

    messagesTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "chat_messages_sent_total",
            Help: "Total number of messages persisted and fanned out",
        },
        []string{"scope"},
    )

    eventsTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "chat_events_received_total",
            Help: "Total number of client events received",
        },
        []string{"type"},
    )

    wsErrorsTotal = promauto.NewCounter(
        prometheus.CounterOpts{
            Name: "chat_ws_errors_total",
            Help: "Total number of error events sent to clients",
        },
    )

    fanoutDuration = promauto.NewHistogram(
        prometheus.HistogramOpts{
            Name:    "chat_fanout_duration_seconds",
            Help:    "Time spent emitting one event to a room",
            Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
        },
    )
)
