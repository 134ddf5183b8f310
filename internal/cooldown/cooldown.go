// Package cooldown persists, per process, when it was last found down so
// that a persistently failing service is not re-probed every sweep.
//
// The record is read once at the start of a sweep and rewritten as a whole
// at the end. It exists only while at least one process is suppressed.
package cooldown

import (
	"errors"
	"sort"
	"time"
)

// DefaultWindow is how long a down process stays suppressed.
const DefaultWindow = 30 * time.Minute

// ErrCorrupt reports a record that could not be decoded. Callers treat the
// record as empty.
var ErrCorrupt = errors.New("cooldown record corrupt")

// Entries maps a process name to the epoch second it was last found down.
type Entries map[string]int64

// Names returns the process names in sorted order.
func (e Entries) Names() []string {
	out := make([]string, 0, len(e))
	for k := range e {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ShouldEvaluate reports whether a process last seen down at lastDown is due
// for a full check again. It is false while less than window has elapsed.
func ShouldEvaluate(now time.Time, lastDown int64, window time.Duration) bool {
	return now.Sub(time.Unix(lastDown, 0)) >= window
}

// Remaining returns how much of the window is left, or zero once elapsed.
func Remaining(now time.Time, lastDown int64, window time.Duration) time.Duration {
	left := window - now.Sub(time.Unix(lastDown, 0))
	if left < 0 {
		return 0
	}
	return left
}
