package server

import (
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime chat connections accepted
	ActiveConnections atomic.Int64 // sessions currently in the Active state
	FailedAuths       atomic.Int64 // failed authentication attempts
	SuccessfulAuths   atomic.Int64 // successful authentication attempts
	TotalDisconnects  atomic.Int64 // total client disconnects (clean + unclean)

	// Relay counters
	MessagesRelayed atomic.Int64 // text/file/image frames relayed
	FramesDropped   atomic.Int64 // frames dropped for stalled recipients

	// Admin counters
	KickCount atomic.Int64 // sessions force-disconnected via the admin API
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	SuccessfulAuths   int64 `json:"successful_auths"`
	FailedAuths       int64 `json:"failed_auths"`
	TotalDisconnects  int64 `json:"total_disconnects"`

	MessagesRelayed int64 `json:"messages_relayed"`
	FramesDropped   int64 `json:"frames_dropped"`

	KickCount int64 `json:"kick_count"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:            uptime.Truncate(time.Second).String(),
		UptimeSeconds:     int64(uptime.Seconds()),
		ActiveConnections: m.ActiveConnections.Load(),
		TotalConnections:  m.TotalConnections.Load(),
		SuccessfulAuths:   m.SuccessfulAuths.Load(),
		FailedAuths:       m.FailedAuths.Load(),
		TotalDisconnects:  m.TotalDisconnects.Load(),
		MessagesRelayed:   m.MessagesRelayed.Load(),
		FramesDropped:     m.FramesDropped.Load(),
		KickCount:         m.KickCount.Load(),
	}
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"messages", s.MessagesRelayed,
		"dropped", s.FramesDropped,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}

// WritePrometheus writes all metrics in Prometheus text exposition
// format. The messages_counter and active_connections_gauge names are
// the scrape contract; the relayd_* names are operational extras.
func (m *Metrics) WritePrometheus(w io.Writer) {
	// Write errors to an HTTP response are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}

	write("messages_counter", "A counter for tracking the number of messages sent through the server.", "counter",
		m.MessagesRelayed.Load())
	write("active_connections_gauge", "A gauge for tracking the number of active connections to the server.", "gauge",
		m.ActiveConnections.Load())

	write("relayd_uptime_seconds", "Server uptime in seconds.", "gauge",
		int64(time.Since(m.startTime).Seconds()))
	write("relayd_connections_total", "Lifetime chat connections accepted.", "counter",
		m.TotalConnections.Load())
	write("relayd_disconnects_total", "Total client disconnects.", "counter",
		m.TotalDisconnects.Load())
	write("relayd_auth_success_total", "Successful authentication attempts.", "counter",
		m.SuccessfulAuths.Load())
	write("relayd_auth_failed_total", "Failed authentication attempts.", "counter",
		m.FailedAuths.Load())
	write("relayd_frames_dropped_total", "Frames dropped for stalled recipients.", "counter",
		m.FramesDropped.Load())
	write("relayd_kicks_total", "Sessions force-disconnected via the admin API.", "counter",
		m.KickCount.Load())
}
