package detector

import (
	"context"
	"strings"
)

// Result is the outcome of one liveness check. PIDs holds every PID observed
// for the process name, whether or not one of them matched the PID file.
type Result struct {
	Running bool     `json:"running"`
	PIDs    []string `json:"pids"`
}

// String renders the result for logs, e.g. "running pids=[12 13]".
func (r Result) String() string {
	state := "stopped"
	if r.Running {
		state = "running"
	}
	return state + " pids=[" + strings.Join(r.PIDs, " ") + "]"
}

// Checker determines whether a named process is running and owns the PID
// recorded in its PID file.
// Implementations must be safe for concurrent use.
type Checker interface {
	Check(ctx context.Context, processName, pidFile string) Result
}
