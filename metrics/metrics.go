package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the session counters. All methods are safe on a nil
// receiver so components can run without a registry.
type Metrics struct {
	registry *prometheus.Registry

	// Lifecycle
	Connects       *prometheus.CounterVec
	State          *prometheus.GaugeVec
	ConnectLatency prometheus.Histogram
	SessionLength  prometheus.Histogram

	// Outbound audio
	ChunksSent   prometheus.Counter
	BytesSent    prometheus.Counter
	PausedFrames prometheus.Counter

	// Inbound
	MessagesReceived *prometheus.CounterVec
	DecodeErrors     prometheus.Counter
	TransportErrors  *prometheus.CounterVec

	// Volume
	Volume prometheus.Gauge
}

var states = []string{"DISCONNECTED", "CONNECTING", "CONNECTED", "ERROR"}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Connects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_connect_attempts_total",
			Help: "Connect attempts by outcome",
		}, []string{"result"}),
		State: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pulse_session_state",
			Help: "1 for the current session state, 0 otherwise",
		}, []string{"state"}),
		ConnectLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pulse_connect_duration_seconds",
			Help:    "Time from connect request to CONNECTED",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		SessionLength: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pulse_session_duration_seconds",
			Help:    "Connected time per session",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
		}),
		ChunksSent: f.NewCounter(prometheus.CounterOpts{
			Name: "pulse_audio_chunks_sent_total",
			Help: "PCM chunks sent to the live session",
		}),
		BytesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "pulse_audio_bytes_sent_total",
			Help: "Base64 payload bytes sent to the live session",
		}),
		PausedFrames: f.NewCounter(prometheus.CounterOpts{
			Name: "pulse_audio_paused_frames_total",
			Help: "Frames replaced with silence while paused",
		}),
		MessagesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_messages_received_total",
			Help: "Inbound message parts by kind",
		}, []string{"kind"}),
		DecodeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "pulse_decode_errors_total",
			Help: "Inbound audio payloads that failed to decode",
		}),
		TransportErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_transport_errors_total",
			Help: "Transport failures by operation",
		}, []string{"op"}),
		Volume: f.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_volume_level",
			Help: "Last reported volume level in [0, 1]",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordConnect(result string, latency time.Duration) {
	if m == nil {
		return
	}
	m.Connects.WithLabelValues(result).Inc()
	if result == "ok" {
		m.ConnectLatency.Observe(latency.Seconds())
	}
}

func (m *Metrics) SetState(state string) {
	if m == nil {
		return
	}
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		m.State.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) RecordSessionEnd(connected time.Duration) {
	if m == nil {
		return
	}
	m.SessionLength.Observe(connected.Seconds())
}

func (m *Metrics) RecordChunkSent(bytes int, paused bool) {
	if m == nil {
		return
	}
	m.ChunksSent.Inc()
	m.BytesSent.Add(float64(bytes))
	if paused {
		m.PausedFrames.Inc()
	}
}

func (m *Metrics) RecordMessage(kind string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordDecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

func (m *Metrics) RecordTransportError(op string) {
	if m == nil {
		return
	}
	m.TransportErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) SetVolume(v float64) {
	if m == nil {
		return
	}
	m.Volume.Set(v)
}
