package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all Prometheus metrics for the Paymaster service
type Metrics struct {
	// Messaging metrics
	MessagesAppended *prometheus.CounterVec
	MessagePageSize  *prometheus.HistogramVec

	// Ledger metrics
	ChargesTotal  *prometheus.CounterVec
	ChargeAmount  *prometheus.HistogramVec
	GateDecisions *prometheus.CounterVec

	// WebSocket Hub metrics
	HubConnections  *prometheus.GaugeVec
	EventsPublished *prometheus.CounterVec

	// Kafka metrics
	KafkaMessages *prometheus.CounterVec
	KafkaDuration *prometheus.HistogramVec
	KafkaLag      *prometheus.GaugeVec
}
