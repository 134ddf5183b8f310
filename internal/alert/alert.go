// Package alert delivers operator-facing notices raised by the supervisor.
// Delivery is fire-and-forget: a Sink never reports failure to its caller.
package alert

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loykin/svcmon/internal/metrics"
)

// Severity tags an alert.
type Severity string

const (
	Info  Severity = "INFO"
	Alert Severity = "ALERT"
	Crit  Severity = "CRIT"
	Notif Severity = "NOTIF"
)

// Level maps the severity onto a slog level.
func (s Severity) Level() slog.Level {
	switch s {
	case Crit:
		return slog.LevelError
	case Alert:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// Event is one raised alert. Process may be empty.
type Event struct {
	Time     time.Time `json:"time"`
	Severity Severity  `json:"severity"`
	Process  string    `json:"process,omitempty"`
	Message  string    `json:"message"`
}

// Line renders the event as "[SEV] [process] message", dropping the process
// part when it is empty.
func (e Event) Line() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Severity))
	b.WriteString("] ")
	if e.Process != "" {
		b.WriteString("[")
		b.WriteString(e.Process)
		b.WriteString("] ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// Sink receives alerts.
type Sink interface {
	Raise(e Event)
}

// Raise stamps and sends an alert to s. A nil sink drops it.
func Raise(s Sink, sev Severity, process, msg string) {
	metrics.IncAlert(string(sev))
	if s == nil {
		return
	}
	s.Raise(Event{Time: time.Now(), Severity: sev, Process: process, Message: msg})
}

// LogSink writes alerts through a slog.Logger, typically backed by a
// rotating alert file.
type LogSink struct {
	Logger *slog.Logger
}

func (l LogSink) Raise(e Event) {
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Log(context.Background(), e.Severity.Level(), e.Line())
}

// Multi fans an alert out to several sinks.
type Multi []Sink

func (m Multi) Raise(e Event) {
	for _, s := range m {
		if s != nil {
			s.Raise(e)
		}
	}
}

// Ring keeps the most recent alerts in memory for the status API.
// The zero value keeps DefaultRingSize events.
type Ring struct {
	mu     sync.Mutex
	size   int
	events []Event
}

// DefaultRingSize is the capacity of a zero-value Ring.
const DefaultRingSize = 200

// NewRing creates a ring holding up to size events.
func NewRing(size int) *Ring {
	return &Ring{size: size}
}

func (r *Ring) Raise(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	size := r.size
	if size <= 0 {
		size = DefaultRingSize
	}
	r.events = append(r.events, e)
	if over := len(r.events) - size; over > 0 {
		r.events = append(r.events[:0:0], r.events[over:]...)
	}
}

// Events returns a copy of the buffered alerts, oldest first.
func (r *Ring) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
