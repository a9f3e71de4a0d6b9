package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/boop-box/boopbox-go/pkg/connection"
)

// Connect attempt outcomes.
const (
	OutcomeConnected = "connected"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Command names used as label values.
const (
	CommandSetConnection = "set_connection"
	CommandCheckUID      = "check_uid"
	CommandGetAudio      = "get_audio"
	CommandKeepalive     = "keepalive"
)

// Recorder receives networker events.
type Recorder interface {
	ConnectAttempt(outcome string)
	StatusChanged(status connection.Status)
	CommandResult(command, result string, took time.Duration)
	AudioBytes(n int)
}

// Noop discards all events.
type Noop struct{}

func (Noop) ConnectAttempt(string)                       {}
func (Noop) StatusChanged(connection.Status)             {}
func (Noop) CommandResult(string, string, time.Duration) {}
func (Noop) AudioBytes(int)                              {}

var _ Recorder = Noop{}

// Prometheus implements Recorder with Prometheus collectors.
type Prometheus struct {
	connectAttempts *prometheus.CounterVec
	status          *prometheus.GaugeVec
	transitions     *prometheus.CounterVec
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	audioBytes      prometheus.Counter
}

// NewPrometheus registers the networker collectors on reg.
// A nil reg means prometheus.DefaultRegisterer.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	p := &Prometheus{
		connectAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "boopbox_connect_attempts_total",
			Help: "Total number of session establishment attempts",
		}, []string{"outcome"}), // outcome: connected, rejected, failed

		status: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "boopbox_connection_status",
			Help: "1 for the current connection status, 0 otherwise",
		}, []string{"status"}),

		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "boopbox_status_announcements_total",
			Help: "Total number of status announcements",
		}, []string{"status"}),

		commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "boopbox_commands_total",
			Help: "Total number of commands handled by the networker",
		}, []string{"command", "result"}),

		commandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "boopbox_command_duration_seconds",
			Help:    "Time spent serving a command",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),

		audioBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "boopbox_audio_bytes_total",
			Help: "Total number of audio payload bytes received",
		}),
	}

	for s := connection.StatusNoConfig; s <= connection.StatusInvalidCredentials; s++ {
		p.status.WithLabelValues(s.String()).Set(0)
	}
	return p
}

// ConnectAttempt records one connection attempt.
func (p *Prometheus) ConnectAttempt(outcome string) {
	p.connectAttempts.WithLabelValues(outcome).Inc()
}

// StatusChanged records an announced status.
func (p *Prometheus) StatusChanged(status connection.Status) {
	for s := connection.StatusNoConfig; s <= connection.StatusInvalidCredentials; s++ {
		v := 0.0
		if s == status {
			v = 1
		}
		p.status.WithLabelValues(s.String()).Set(v)
	}
	p.transitions.WithLabelValues(status.String()).Inc()
}

// CommandResult records a served command.
func (p *Prometheus) CommandResult(command, result string, took time.Duration) {
	p.commands.WithLabelValues(command, result).Inc()
	p.commandDuration.WithLabelValues(command).Observe(took.Seconds())
}

// AudioBytes records a received audio payload.
func (p *Prometheus) AudioBytes(n int) {
	p.audioBytes.Add(float64(n))
}

var _ Recorder = (*Prometheus)(nil)
