package manager

// Outcome is the terminal classification of one supervision attempt.
type Outcome int

const (
	// Running means the process was healthy on the first check.
	Running Outcome = iota
	// Recovered means the process came back during the retry loop, either on
	// its own or after a service restart.
	Recovered
	// Stopped means every recovery attempt failed.
	Stopped
	// InvalidInput means the service had no process name.
	InvalidInput
)

func (o Outcome) String() string {
	switch o {
	case Running:
		return "running"
	case Recovered:
		return "recovered"
	case Stopped:
		return "stopped"
	case InvalidInput:
		return "invalid_input"
	default:
		return "unknown"
	}
}

// Up reports whether the service ended the attempt running.
func (o Outcome) Up() bool { return o == Running || o == Recovered }

// MarshalText lets outcomes appear by name in JSON reports.
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }
