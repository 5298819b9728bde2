package rabbitmq

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsCollector implements MetricsCollector over
// prometheus.Counter/CounterVec, for applications that already expose a
// /metrics endpoint via client_golang's default registry.
type PrometheusMetricsCollector struct {
	connectionsCreated prometheus.Counter
	connectionsClosed  prometheus.Counter
	connectionErrors   prometheus.Counter

	channelsCreated prometheus.Counter
	channelsClosed  prometheus.Counter
	channelErrors   prometheus.Counter

	messagesPublished prometheus.Counter
	messagesConsumed  prometheus.Counter
	messagesAcked     prometheus.Counter
	messagesNacked    prometheus.Counter
	messagesRejected  prometheus.Counter
	messagesReturned  prometheus.Counter

	confirms *prometheus.CounterVec

	// RecoveryAttempts and RecoveryState are exported so the Recovery
	// Orchestrator can drive them directly without going through the
	// MetricsCollector interface (they have no teacher-shaped analog).
	RecoveryAttempts prometheus.Counter
	RecoveryState    *prometheus.GaugeVec
}

// NewPrometheusMetricsCollector registers its metrics on reg and returns
// the collector. Pass prometheus.DefaultRegisterer for the global registry.
func NewPrometheusMetricsCollector(reg prometheus.Registerer, namespace string) *PrometheusMetricsCollector {
	c := &PrometheusMetricsCollector{
		connectionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "connections_created_total",
			Help: "Total AMQP connections established.",
		}),
		connectionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "connections_closed_total",
			Help: "Total AMQP connections closed.",
		}),
		connectionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "connection_errors_total",
			Help: "Total connection-level errors observed.",
		}),
		channelsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "channels_created_total",
			Help: "Total channels opened.",
		}),
		channelsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "channels_closed_total",
			Help: "Total channels closed.",
		}),
		channelErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "channel_errors_total",
			Help: "Total channel-level errors observed.",
		}),
		messagesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_published_total",
			Help: "Total messages published.",
		}),
		messagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_consumed_total",
			Help: "Total messages delivered to consumers.",
		}),
		messagesAcked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_acked_total",
			Help: "Total deliveries acknowledged.",
		}),
		messagesNacked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_nacked_total",
			Help: "Total deliveries negatively acknowledged.",
		}),
		messagesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_rejected_total",
			Help: "Total deliveries rejected.",
		}),
		messagesReturned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_returned_total",
			Help: "Total unroutable messages returned by the broker.",
		}),
		confirms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "publisher_confirms_total",
			Help: "Total publisher confirms received, by outcome.",
		}, []string{"outcome"}),
		RecoveryAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "recovery_attempts_total",
			Help: "Total reconnect attempts made by the Recovery Orchestrator.",
		}),
		RecoveryState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "recovery_state",
			Help: "Recovery Orchestrator state: 1 for the currently active state, 0 otherwise.",
		}, []string{"state"}),
	}

	reg.MustRegister(
		c.connectionsCreated, c.connectionsClosed, c.connectionErrors,
		c.channelsCreated, c.channelsClosed, c.channelErrors,
		c.messagesPublished, c.messagesConsumed, c.messagesAcked,
		c.messagesNacked, c.messagesRejected, c.messagesReturned,
		c.confirms, c.RecoveryAttempts, c.RecoveryState,
	)
	return c
}

func (c *PrometheusMetricsCollector) ConnectionCreated()        { c.connectionsCreated.Inc() }
func (c *PrometheusMetricsCollector) ConnectionClosed()         { c.connectionsClosed.Inc() }
func (c *PrometheusMetricsCollector) ConnectionError(err error) { c.connectionErrors.Inc() }
func (c *PrometheusMetricsCollector) ChannelCreated()           { c.channelsCreated.Inc() }
func (c *PrometheusMetricsCollector) ChannelClosed()            { c.channelsClosed.Inc() }
func (c *PrometheusMetricsCollector) ChannelError(err error)    { c.channelErrors.Inc() }
func (c *PrometheusMetricsCollector) MessagePublished()         { c.messagesPublished.Inc() }
func (c *PrometheusMetricsCollector) MessageConsumed()          { c.messagesConsumed.Inc() }
func (c *PrometheusMetricsCollector) MessageAcked()             { c.messagesAcked.Inc() }
func (c *PrometheusMetricsCollector) MessageNacked()            { c.messagesNacked.Inc() }
func (c *PrometheusMetricsCollector) MessageRejected()          { c.messagesRejected.Inc() }
func (c *PrometheusMetricsCollector) MessageReturned()          { c.messagesReturned.Inc() }

func (c *PrometheusMetricsCollector) ConfirmReceived(ack bool) {
	if ack {
		c.confirms.WithLabelValues("ack").Inc()
	} else {
		c.confirms.WithLabelValues("nack").Inc()
	}
}

// SetRecoveryState zeroes every other known state's gauge and sets state's
// to 1, giving a single-active-state gauge set suitable for dashboards.
func (c *PrometheusMetricsCollector) SetRecoveryState(state string, known []string) {
	for _, s := range known {
		if s == state {
			c.RecoveryState.WithLabelValues(s).Set(1)
		} else {
			c.RecoveryState.WithLabelValues(s).Set(0)
		}
	}
}
