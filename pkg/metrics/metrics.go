package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "portfolio"

var (
	registry = newRegistry()
	factory  = promauto.With(registry)

	httpRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by route and status",
	}, []string{"service", "method", "path", "status"})

	httpRequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"service", "method", "path"})

	dbPoolConnections = factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "db_pool_connections_used",
		Help: "Acquired connections in the ledger pool",
	}, []string{"service"})

	dbPoolConnectionsMax = factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "db_pool_connections_max",
		Help: "Configured size of the ledger pool",
	}, []string{"service"})

	dbQueryDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Ledger store query latency by operation",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"service", "query_type"})

	kafkaMessagesProduced = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_messages_produced_total",
		Help: "Events written to Kafka",
	}, []string{"service", "topic"})

	kafkaMessagesConsumed = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_messages_consumed_total",
		Help: "Events read from Kafka",
	}, []string{"service", "topic", "consumer_group"})

	tradesExecuted = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trades_executed_total",
		Help:      "Trades applied to the ledger",
	}, []string{"side", "source", "strategy"})

	decisions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decisions_total",
		Help:      "Decision engine outcomes",
	}, []string{"strategy", "outcome"})

	ledgerRejections = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_rejections_total",
		Help:      "Mutations rejected by the ledger or executor",
	}, []string{"code"})

	quoteLookups = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quote_lookups_total",
		Help:      "Price lookups by source and result",
	}, []string{"source", "result"})

	accountLockWait = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "account_lock_wait_seconds",
		Help:      "Time spent waiting for the per-account critical section",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
	})
)

func newRegistry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func Registry() *prometheus.Registry {
	return registry
}

func RecordDBPoolStats(service string, used, max int) {
	dbPoolConnections.WithLabelValues(service).Set(float64(used))
	dbPoolConnectionsMax.WithLabelValues(service).Set(float64(max))
}

func RecordDBQuery(service, queryType string, d time.Duration) {
	dbQueryDuration.WithLabelValues(service, queryType).Observe(d.Seconds())
}

func RecordKafkaMessageProduced(service, topic string) {
	kafkaMessagesProduced.WithLabelValues(service, topic).Inc()
}

func RecordKafkaMessageConsumed(service, topic, group string) {
	kafkaMessagesConsumed.WithLabelValues(service, topic, group).Inc()
}

// RecordTrade counts a trade applied to the ledger. source is manual or auto.
func RecordTrade(side, source, strategy string) {
	tradesExecuted.WithLabelValues(side, source, strategy).Inc()
}

// RecordDecision counts one engine outcome: buy, sell or noop.
func RecordDecision(strategy, outcome string) {
	decisions.WithLabelValues(strategy, outcome).Inc()
}

func RecordLedgerRejection(code string) {
	ledgerRejections.WithLabelValues(code).Inc()
}

// RecordQuoteLookup counts a price lookup. result is one of hit, miss,
// unavailable or error.
func RecordQuoteLookup(source, result string) {
	quoteLookups.WithLabelValues(source, result).Inc()
}

func ObserveLockWait(d time.Duration) {
	accountLockWait.Observe(d.Seconds())
}
