package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveChargingSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csms_active_charging_sessions",
		Help: "Number of transactions currently ongoing",
	})

	EnergyDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csms_energy_delivered_kwh_total",
		Help: "Total energy delivered across completed transactions, kWh",
	})

	OCPPMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_ocpp_messages_total",
		Help: "OCPP messages by action and direction",
	}, []string{"action", "direction"})

	ConnectedChargers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "csms_connected_chargers",
		Help: "Chargers currently attached, by transport",
	}, []string{"transport"})

	RemoteCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_remote_commands_total",
		Help: "Operator-initiated commands by action and outcome",
	}, []string{"action", "outcome"})

	DatabaseLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "csms_database_latency_seconds",
		Help:    "Latency of persistence operations",
		Buckets: prometheus.DefBuckets,
	})
)
