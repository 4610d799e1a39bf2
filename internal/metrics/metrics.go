package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SpeakersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamcast_speakers_active",
		Help: "Currently registered speaker sessions",
	})

	ListenersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamcast_listeners_active",
		Help: "Currently registered listener sessions",
	})

	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamcast_sessions_total",
		Help: "Total sessions accepted by role",
	}, []string{"role"})

	ASRCallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "streamcast_asr_call_duration_seconds",
		Help:    "Latency of a single serialized ASR transcribe call",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	})

	ASRStallCommits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamcast_asr_stall_commits_total",
		Help: "Provisional segments force-committed after repeating unchanged",
	})

	AudioBufferTruncations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamcast_audio_buffer_truncations_total",
		Help: "Head-truncations of a speaker's audio buffer past the 60s ceiling",
	})

	TranslatorCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamcast_translator_call_duration_seconds",
		Help:    "Latency of a translator provider call",
		Buckets: []float64{0.1, 0.2, 0.5, 0.8, 1.0, 1.5, 2.0, 3.0, 5.0},
	}, []string{"provider"})

	TranslationRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamcast_translation_retries_total",
		Help: "Retries issued against a translator provider",
	}, []string{"provider"})

	TranslationDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamcast_translation_drops_total",
		Help: "Finalized units dropped after exhausting all translation retries",
	})

	BroadcastFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamcast_listener_broadcast_failures_total",
		Help: "Per-listener send failures during a translation broadcast",
	})

	HeartbeatFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamcast_heartbeat_failures_total",
		Help: "Listeners removed after a failed heartbeat send",
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamcast_errors_total",
		Help: "Error counts by component",
	}, []string{"component", "error_type"})
)
