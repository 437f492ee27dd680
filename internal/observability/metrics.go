package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "deskwire"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total status HTTP requests.",
		},
		[]string{"component", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Status HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"component", "method", "path", "status"},
	)
	instructionsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tunnel",
			Name:      "instructions_sent_total",
			Help:      "Instructions written to the transport.",
		},
		[]string{"type"},
	)
	messagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tunnel",
			Name:      "messages_received_total",
			Help:      "Inbound messages by header type.",
		},
		[]string{"type"},
	)
	bytesTransferred = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tunnel",
			Name:      "bytes_total",
			Help:      "Bytes moved through the tunnel.",
		},
		[]string{"direction"},
	)
	droppedBuffers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tunnel",
			Name:      "dropped_buffers_total",
			Help:      "Inbound buffers dropped before decode.",
		},
		[]string{"reason"},
	)
	decodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tunnel",
			Name:      "decode_errors_total",
			Help:      "Messages that failed full decode.",
		},
		[]string{"type"},
	)
	fastPath = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tunnel",
			Name:      "fast_path_replies_total",
			Help:      "Replies sent from the header fast path.",
		},
		[]string{"kind"},
	)
	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tunnel",
			Name:      "requests_total",
			Help:      "Correlated requests by outcome.",
		},
		[]string{"outcome"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tunnel",
			Name:      "request_duration_seconds",
			Help:      "Time from request send to settlement.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	pendingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tunnel",
			Name:      "pending_requests",
			Help:      "Requests awaiting a reply.",
		},
	)
	peerBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tunnel",
			Name:      "peer_backlog",
			Help:      "Last backlog length reported by the peer.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			instructionsSent, messagesReceived, bytesTransferred,
			droppedBuffers, decodeErrors, fastPath,
			requests, requestDuration, pendingRequests, peerBacklog,
		)
	})
}

func RecordHTTPRequest(component, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(component, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(component, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordInstructionSent(kind string, size int) {
	RegisterMetrics()
	instructionsSent.WithLabelValues(kind).Inc()
	bytesTransferred.WithLabelValues("out").Add(float64(size))
}

func RecordMessageReceived(kind string, size int, backlog int) {
	RegisterMetrics()
	messagesReceived.WithLabelValues(kind).Inc()
	bytesTransferred.WithLabelValues("in").Add(float64(size))
	peerBacklog.Set(float64(backlog))
}

func RecordDroppedBuffer(reason string) {
	RegisterMetrics()
	droppedBuffers.WithLabelValues(reason).Inc()
}

func RecordDecodeError(kind string) {
	RegisterMetrics()
	decodeErrors.WithLabelValues(kind).Inc()
}

func RecordFastPath(kind string) {
	RegisterMetrics()
	fastPath.WithLabelValues(kind).Inc()
}

func RecordRequest(outcome string, duration time.Duration) {
	RegisterMetrics()
	requests.WithLabelValues(outcome).Inc()
	requestDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// AddPendingRequests moves the pending gauge by delta. Callers own their
// share of the gauge and must balance every increment.
func AddPendingRequests(delta int) {
	RegisterMetrics()
	pendingRequests.Add(float64(delta))
}
