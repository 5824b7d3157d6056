package metricsx

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	eventsAppended = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventlog_events_appended_total",
			Help: "Events appended to the event log by type.",
		},
		[]string{"event_type"},
	)
	commandLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "menu_command_duration_seconds",
			Help:    "Command handler latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command", "outcome"},
	)
	versionConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menu_version_conflicts_total",
			Help: "Optimistic concurrency conflicts seen by command handlers.",
		},
		[]string{"command", "attempt"},
	)
	decodeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventlog_decode_failures_total",
			Help: "Stored events that could not be decoded.",
		},
		[]string{"event_type"},
	)
	projectionCheckpoint = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "projection_checkpoint_position",
			Help: "Last global log position applied by a projection.",
		},
		[]string{"projection"},
	)
	projectionApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "projection_events_applied_total",
			Help: "Events applied to a projection.",
		},
		[]string{"projection"},
	)
	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Cache lookups by cache and result.",
		},
		[]string{"cache", "result"},
	)
	outboxDispatch = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_dispatch_total",
			Help: "Outbox dispatch attempts by outcome.",
		},
		[]string{"outcome"},
	)
	kafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag by topic.",
		},
		[]string{"topic", "group"},
	)
	influxWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "influx_write_failures_total",
			Help: "Total InfluxDB write failures.",
		},
	)
	asynqQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "asynq_queue_depth",
			Help: "Asynq queue depth by queue.",
		},
		[]string{"queue"},
	)
)

var registerOnce sync.Once

// Register is safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpLatency, eventsAppended, commandLatency, versionConflicts, decodeFailures,
			projectionCheckpoint, projectionApplied, cacheLookups, outboxDispatch, kafkaConsumerLag,
			influxWriteFailures, asynqQueueDepth,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		status := strconv.Itoa(lrw.statusCode)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(r.Method, route, status).Inc()
		httpLatency.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

func IncEventsAppended(eventType string, n int) {
	eventsAppended.WithLabelValues(eventType).Add(float64(n))
}

func ObserveCommand(command string, outcome string, d time.Duration) {
	commandLatency.WithLabelValues(command, outcome).Observe(d.Seconds())
}

func IncVersionConflict(command string, attempt int) {
	versionConflicts.WithLabelValues(command, strconv.Itoa(attempt)).Inc()
}

func IncDecodeFailure(eventType string) {
	decodeFailures.WithLabelValues(eventType).Inc()
}

func SetProjectionCheckpoint(projection string, position uint64) {
	projectionCheckpoint.WithLabelValues(projection).Set(float64(position))
}

func AddProjectionApplied(projection string, n int) {
	projectionApplied.WithLabelValues(projection).Add(float64(n))
}

func IncCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(cache, result).Inc()
}

func IncOutboxDispatch(outcome string) {
	outboxDispatch.WithLabelValues(outcome).Inc()
}

func SetKafkaLag(topic string, group string, lag int64) {
	kafkaConsumerLag.WithLabelValues(topic, group).Set(float64(lag))
}

func IncInfluxWriteFailure() {
	influxWriteFailures.Inc()
}

func SetAsynqQueueDepth(queue string, depth int) {
	asynqQueueDepth.WithLabelValues(queue).Set(float64(depth))
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
