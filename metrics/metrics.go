package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the capture service
type Metrics struct {
	SessionsStarted  prometheus.Counter
	FramesCaptured   prometheus.Counter
	ChunksSent       prometheus.Counter
	ChunkBytes       prometheus.Counter
	Reconnects       prometheus.Counter
	AnalysisFailures prometheus.Counter
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idv_capture_sessions_started_total",
			Help: "Total number of capture sessions started",
		}),
		FramesCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idv_capture_frames_captured_total",
			Help: "Total number of still frames captured for analysis",
		}),
		ChunksSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idv_capture_chunks_sent_total",
			Help: "Total number of media chunks forwarded over the channel",
		}),
		ChunkBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idv_capture_chunk_bytes_total",
			Help: "Total bytes of media forwarded over the channel",
		}),
		Reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idv_capture_channel_reconnects_total",
			Help: "Total number of media channel reconnects",
		}),
		AnalysisFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idv_capture_analysis_failures_total",
			Help: "Total number of document or face analyses that did not pass",
		}),
	}
}
