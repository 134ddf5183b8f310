package process

import "context"

// Lister resolves the PIDs of every running process with the given name.
// An empty slice with a nil error means no such process is running.
type Lister interface {
	PIDs(ctx context.Context, name string) ([]string, error)
}

// Killer forcibly terminates a process by PID.
type Killer interface {
	Kill(pid string) error
}

// ServiceRestarter restarts a named OS service and reports whether the
// service manager exited successfully.
type ServiceRestarter interface {
	Restart(ctx context.Context, service string) (ExitStatus, error)
}

// ExitStatus is the outcome of a service manager invocation.
type ExitStatus struct {
	Code   int
	Output string
}

// Success reports whether the service manager exited with status 0.
func (s ExitStatus) Success() bool { return s.Code == 0 }

// Controller bundles the OS-level primitives used by the supervisor.
// Any field left nil is replaced with the default implementation by
// NewController.
type Controller struct {
	Lister    Lister
	Killer    Killer
	Restarter ServiceRestarter
}

// NewController fills unset primitives with their defaults: pidof-based
// listing, SIGKILL, and `service <name> restart`.
func NewController(c Controller) Controller {
	if c.Lister == nil {
		c.Lister = PidofLister{}
	}
	if c.Killer == nil {
		c.Killer = SignalKiller{}
	}
	if c.Restarter == nil {
		c.Restarter = ServiceCommand{}
	}
	return c
}
