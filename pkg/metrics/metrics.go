package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Routing metrics
	MessagesRouted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dashboard_messages_routed_total",
			Help: "Total number of inbound messages passed through the router",
		},
	)

	SubscriptionUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_subscription_updates_total",
			Help: "Total number of subscription state updates",
		},
		[]string{"kind"},
	)

	RouteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dashboard_route_duration_seconds",
			Help:    "Time taken to route one message to its subscriptions",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14), // 10us to ~80ms
		},
	)

	ParseErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_parse_errors_total",
			Help: "Total number of payloads that could not be read as a number",
		},
		[]string{"kind"},
	)

	TransformErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_transform_errors_total",
			Help: "Total number of payload transform failures",
		},
		[]string{"error_type"},
	)

	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_messages_dropped_total",
			Help: "Total number of inbound messages dropped before routing",
		},
		[]string{"reason"}, // rate_limit, queue_full
	)

	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboard_active_subscriptions",
			Help: "Current number of registered subscriptions",
		},
	)

	// Database metrics
	DatabaseQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_database_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "mode"}, // mode: read, write
	)

	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dashboard_database_query_duration_seconds",
			Help:    "Time taken for database queries",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 0.1ms to ~400ms
		},
		[]string{"operation", "mode"},
	)

	DatabaseErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_database_errors_total",
			Help: "Total number of database errors",
		},
		[]string{"operation"},
	)

	// MQTT metrics
	MQTTMessagesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dashboard_mqtt_messages_published_total",
			Help: "Total number of MQTT messages published",
		},
	)

	MQTTMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dashboard_mqtt_messages_received_total",
			Help: "Total number of MQTT messages received",
		},
	)

	MQTTPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dashboard_mqtt_publish_duration_seconds",
			Help:    "Time taken to publish MQTT messages",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
		},
	)

	MQTTPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dashboard_mqtt_publish_errors_total",
			Help: "Total number of MQTT publish errors",
		},
	)

	MQTTConnectionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dashboard_mqtt_connection_state",
			Help: "MQTT connection state (1=connected, 0=disconnected)",
		},
		[]string{"broker"},
	)

	// Web metrics
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboard_websocket_clients",
			Help: "Current number of connected websocket clients",
		},
	)
)

// RecordRoute records one routed message
func RecordRoute(duration float64) {
	MessagesRouted.Inc()
	RouteDuration.Observe(duration)
}

// RecordSubscriptionUpdate records a state update for a subscription of the given kind
func RecordSubscriptionUpdate(kind string) {
	SubscriptionUpdates.WithLabelValues(kind).Inc()
}

// RecordParseError records a payload that could not be parsed as a number
func RecordParseError(kind string) {
	ParseErrors.WithLabelValues(kind).Inc()
}

// RecordTransformError records a failed payload transform
func RecordTransformError(errorType string) {
	TransformErrors.WithLabelValues(errorType).Inc()
}

// RecordDropped records an inbound message dropped before routing
func RecordDropped(reason string) {
	MessagesDropped.WithLabelValues(reason).Inc()
}

// SetActiveSubscriptions sets the current number of subscriptions
func SetActiveSubscriptions(count int) {
	ActiveSubscriptions.Set(float64(count))
}

// RecordDatabaseQuery records a database query
func RecordDatabaseQuery(operation, mode string, duration float64) {
	DatabaseQueries.WithLabelValues(operation, mode).Inc()
	DatabaseQueryDuration.WithLabelValues(operation, mode).Observe(duration)
}

// RecordDatabaseError records a database error
func RecordDatabaseError(operation string) {
	DatabaseErrors.WithLabelValues(operation).Inc()
}

// RecordMQTTPublish records an MQTT publish event
func RecordMQTTPublish(duration float64) {
	MQTTMessagesPublished.Inc()
	MQTTPublishDuration.Observe(duration)
}

// RecordMQTTReceive records an MQTT receive event
func RecordMQTTReceive() {
	MQTTMessagesReceived.Inc()
}

// RecordMQTTPublishError records an MQTT publish error
func RecordMQTTPublishError() {
	MQTTPublishErrors.Inc()
}

// SetMQTTConnectionState sets the MQTT connection state
func SetMQTTConnectionState(broker string, connected bool) {
	state := 0.0
	if connected {
		state = 1.0
	}
	MQTTConnectionState.WithLabelValues(broker).Set(state)
}

// ClearMQTTConnectionState drops the series of a broker no longer in use
func ClearMQTTConnectionState(broker string) {
	MQTTConnectionState.DeleteLabelValues(broker)
}

// SetWebSocketClients sets the current number of websocket clients
func SetWebSocketClients(count int) {
	WebSocketClients.Set(float64(count))
}
