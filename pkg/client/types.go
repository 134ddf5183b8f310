package client

import "time"

// ServiceReport is one service in a sweep report.
type ServiceReport struct {
	Section    string   `json:"section"`
	Process    string   `json:"process"`
	Service    string   `json:"service"`
	Outcome    string   `json:"outcome"`
	Suppressed bool     `json:"suppressed"`
	PIDs       []string `json:"pids,omitempty"`
}

// SweepReport is the last completed sweep as served by the daemon.
type SweepReport struct {
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration"`
	Services  []ServiceReport  `json:"services"`
	Cooldown  map[string]int64 `json:"cooldown"`
}

// Status is the response of GET /status.
type Status struct {
	Busy      bool         `json:"busy"`
	Window    string       `json:"window"`
	LastSweep *SweepReport `json:"last_sweep,omitempty"`
	Down      []string     `json:"down,omitempty"`
	Services  int          `json:"services"`
}

// CooldownEntry is one suppressed process.
type CooldownEntry struct {
	Process   string    `json:"process"`
	LastDown  time.Time `json:"last_down"`
	Remaining string    `json:"remaining"`
	Evaluate  bool      `json:"evaluate"`
}

// Cooldown is the response of GET /cooldown.
type Cooldown struct {
	Entries []CooldownEntry `json:"entries"`
	Corrupt bool            `json:"corrupt,omitempty"`
}

// Alert is one recently raised alert.
type Alert struct {
	Time     time.Time `json:"time"`
	Severity string    `json:"severity"`
	Process  string    `json:"process,omitempty"`
	Message  string    `json:"message"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
