package go_realmd

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Session names used as the session label of every metric.
const (
	AUTH_SESSION_NAME  = "auth"
	WORLD_SESSION_NAME = "world"
)

// MetricsCollector receives session metrics. Logon commands and world
// opcodes share the command argument; the session name tells them apart.
//
// All methods are safe for concurrent use and should be non-blocking.
type MetricsCollector interface {
	// IncrementPacketSent counts one outbound packet.
	IncrementPacketSent(session string, command uint16)

	// IncrementPacketReceived counts one inbound packet.
	IncrementPacketReceived(session string, command uint16)

	// IncrementError counts a failure by category ("network", "protocol", "crypto", "auth").
	IncrementError(errorType string)

	// RecordRoundTrip records the time between a request and its response.
	RecordRoundTrip(session string, command uint16, duration time.Duration)

	// SetConnectionState records the current state name of a session.
	SetConnectionState(session, state string)

	AddBytesSent(bytes uint64)
	AddBytesReceived(bytes uint64)
}

type packetKey struct {
	session string
	command uint16
}

// InMemoryMetrics is a MetricsCollector kept in process memory, for tests
// and applications without a metrics backend.
type InMemoryMetrics struct {
	mu              sync.RWMutex
	packetsSent     map[packetKey]uint64
	packetsReceived map[packetKey]uint64
	errorsByType    map[string]uint64
	roundTrips      map[packetKey]*latencyStats
	states          map[string]string

	bytesSent     uint64
	bytesReceived uint64
}

// latencyStats tracks round trip statistics for a command
type latencyStats struct {
	count      uint64
	totalNanos uint64
	minNanos   uint64
	maxNanos   uint64
}

// NewInMemoryMetrics creates a new in-memory metrics collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	m := &InMemoryMetrics{}
	m.Reset()
	return m
}

func (m *InMemoryMetrics) IncrementPacketSent(session string, command uint16) {
	m.mu.Lock()
	m.packetsSent[packetKey{session, command}]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) IncrementPacketReceived(session string, command uint16) {
	m.mu.Lock()
	m.packetsReceived[packetKey{session, command}]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) IncrementError(errorType string) {
	m.mu.Lock()
	m.errorsByType[errorType]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordRoundTrip(session string, command uint16, duration time.Duration) {
	nanos := uint64(duration.Nanoseconds())

	m.mu.Lock()
	defer m.mu.Unlock()

	key := packetKey{session, command}
	stats := m.roundTrips[key]
	if stats == nil {
		stats = &latencyStats{
			minNanos: nanos,
			maxNanos: nanos,
		}
		m.roundTrips[key] = stats
	}

	stats.count++
	stats.totalNanos += nanos

	if nanos < stats.minNanos {
		stats.minNanos = nanos
	}
	if nanos > stats.maxNanos {
		stats.maxNanos = nanos
	}
}

func (m *InMemoryMetrics) SetConnectionState(session, state string) {
	m.mu.Lock()
	m.states[session] = state
	m.mu.Unlock()
}

func (m *InMemoryMetrics) AddBytesSent(bytes uint64) {
	atomic.AddUint64(&m.bytesSent, bytes)
}

func (m *InMemoryMetrics) AddBytesReceived(bytes uint64) {
	atomic.AddUint64(&m.bytesReceived, bytes)
}

// PacketsSent returns the number of packets sent with the given command.
func (m *InMemoryMetrics) PacketsSent(session string, command uint16) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.packetsSent[packetKey{session, command}]
}

// PacketsReceived returns the number of packets received with the given command.
func (m *InMemoryMetrics) PacketsReceived(session string, command uint16) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.packetsReceived[packetKey{session, command}]
}

// Errors returns the count of errors of one category.
func (m *InMemoryMetrics) Errors(errorType string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errorsByType[errorType]
}

// AllErrors returns a copy of all error counts by category.
func (m *InMemoryMetrics) AllErrors() map[string]uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]uint64, len(m.errorsByType))
	for k, v := range m.errorsByType {
		result[k] = v
	}
	return result
}

// AvgRoundTrip returns the mean round trip of a command, or 0 without samples.
func (m *InMemoryMetrics) AvgRoundTrip(session string, command uint16) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := m.roundTrips[packetKey{session, command}]
	if stats == nil || stats.count == 0 {
		return 0
	}
	return time.Duration(stats.totalNanos / stats.count)
}

// MinRoundTrip returns the fastest recorded round trip of a command.
func (m *InMemoryMetrics) MinRoundTrip(session string, command uint16) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if stats := m.roundTrips[packetKey{session, command}]; stats != nil {
		return time.Duration(stats.minNanos)
	}
	return 0
}

// MaxRoundTrip returns the slowest recorded round trip of a command.
func (m *InMemoryMetrics) MaxRoundTrip(session string, command uint16) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if stats := m.roundTrips[packetKey{session, command}]; stats != nil {
		return time.Duration(stats.maxNanos)
	}
	return 0
}

// ConnectionState returns the last state recorded for a session, "disconnected" if none.
func (m *InMemoryMetrics) ConnectionState(session string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if state, ok := m.states[session]; ok {
		return state
	}
	return "disconnected"
}

func (m *InMemoryMetrics) BytesSent() uint64 {
	return atomic.LoadUint64(&m.bytesSent)
}

func (m *InMemoryMetrics) BytesReceived() uint64 {
	return atomic.LoadUint64(&m.bytesReceived)
}

// Reset clears all metrics.
func (m *InMemoryMetrics) Reset() {
	m.mu.Lock()
	m.packetsSent = make(map[packetKey]uint64)
	m.packetsReceived = make(map[packetKey]uint64)
	m.errorsByType = make(map[string]uint64)
	m.roundTrips = make(map[packetKey]*latencyStats)
	m.states = make(map[string]string)
	m.mu.Unlock()

	atomic.StoreUint64(&m.bytesSent, 0)
	atomic.StoreUint64(&m.bytesReceived, 0)
}

// PrometheusMetrics exports session metrics through client_golang collectors.
type PrometheusMetrics struct {
	packetsSent     *prometheus.CounterVec
	packetsReceived *prometheus.CounterVec
	errors          *prometheus.CounterVec
	roundTrip       *prometheus.HistogramVec
	state           *prometheus.GaugeVec
	bytes           *prometheus.CounterVec
}

// NewPrometheusMetrics creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PrometheusMetrics{
		packetsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "realmd",
				Subsystem: "session",
				Name:      "packets_sent_total",
				Help:      "Packets sent by session and command.",
			},
			[]string{"session", "command"},
		),
		packetsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "realmd",
				Subsystem: "session",
				Name:      "packets_received_total",
				Help:      "Packets received by session and command.",
			},
			[]string{"session", "command"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "realmd",
				Subsystem: "session",
				Name:      "errors_total",
				Help:      "Session errors by category.",
			},
			[]string{"type"},
		),
		roundTrip: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "realmd",
				Subsystem: "session",
				Name:      "round_trip_seconds",
				Help:      "Request to response time by session and command.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"session", "command"},
		),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "realmd",
				Subsystem: "session",
				Name:      "state",
				Help:      "1 for the current state of each session.",
			},
			[]string{"session", "state"},
		),
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "realmd",
				Subsystem: "session",
				Name:      "bytes_total",
				Help:      "Bytes transferred by direction.",
			},
			[]string{"direction"},
		),
	}
	collectors := []prometheus.Collector{m.packetsSent, m.packetsReceived, m.errors, m.roundTrip, m.state, m.bytes}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("realmd: register metrics: %w", err)
		}
	}
	return m, nil
}

func commandLabel(command uint16) string {
	return fmt.Sprintf("0x%03X", command)
}

func (m *PrometheusMetrics) IncrementPacketSent(session string, command uint16) {
	m.packetsSent.WithLabelValues(session, commandLabel(command)).Inc()
}

func (m *PrometheusMetrics) IncrementPacketReceived(session string, command uint16) {
	m.packetsReceived.WithLabelValues(session, commandLabel(command)).Inc()
}

func (m *PrometheusMetrics) IncrementError(errorType string) {
	m.errors.WithLabelValues(errorType).Inc()
}

func (m *PrometheusMetrics) RecordRoundTrip(session string, command uint16, duration time.Duration) {
	m.roundTrip.WithLabelValues(session, commandLabel(command)).Observe(duration.Seconds())
}

// SetConnectionState sets the gauge of the new state to 1 and clears the others of the session.
func (m *PrometheusMetrics) SetConnectionState(session, state string) {
	m.state.DeletePartialMatch(prometheus.Labels{"session": session})
	m.state.WithLabelValues(session, state).Set(1)
}

func (m *PrometheusMetrics) AddBytesSent(bytes uint64) {
	m.bytes.WithLabelValues("sent").Add(float64(bytes))
}

func (m *PrometheusMetrics) AddBytesReceived(bytes uint64) {
	m.bytes.WithLabelValues("received").Add(float64(bytes))
}

// nopMetrics discards everything; sessions use it until SetMetrics is called.
type nopMetrics struct{}

func (nopMetrics) IncrementPacketSent(string, uint16) {}

func (nopMetrics) IncrementPacketReceived(string, uint16) {}

func (nopMetrics) IncrementError(string) {}

func (nopMetrics) RecordRoundTrip(string, uint16, time.Duration) {}

func (nopMetrics) SetConnectionState(string, string) {}

func (nopMetrics) AddBytesSent(uint64) {}

func (nopMetrics) AddBytesReceived(uint64) {}
