package history

import (
	"context"
	"log/slog"
	"time"
)

// EventType defines the kind of sweep event.
type EventType string

const (
	// EventSupervised is sent after a service went through the restart controller.
	EventSupervised EventType = "supervised"
	// EventSuppressed is sent when a service was skipped by its cooldown window.
	EventSuppressed EventType = "suppressed"
)

// Event represents one service's evaluation within a sweep, exported to
// external analytics systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Process    string    `json:"process"`
	Service    string    `json:"service"`
	Outcome    string    `json:"outcome"`
	PIDs       []string  `json:"pids"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// SendTimeout bounds each Send made by SendAll.
var SendTimeout = 5 * time.Second

// SendAll delivers e to every sink. Failures are logged and otherwise
// ignored; history never affects supervision.
func SendAll(ctx context.Context, log *slog.Logger, sinks []Sink, e Event) {
	for _, s := range sinks {
		if s == nil {
			continue
		}
		if err := send(ctx, s, e); err != nil && log != nil {
			log.Warn("history sink send failed", "process", e.Process, "type", string(e.Type), "error", err)
		}
	}
}

func send(ctx context.Context, s Sink, e Event) error {
	ctx, cancel := context.WithTimeout(ctx, SendTimeout)
	defer cancel()
	return s.Send(ctx, e)
}
