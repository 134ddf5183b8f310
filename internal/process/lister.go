package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Lister kinds accepted by NewLister.
const (
	ListerPidof = "pidof"
	ListerProc  = "proc"
)

// NewLister returns the Lister registered under kind. An empty kind selects
// the pidof lister.
func NewLister(kind string) (Lister, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", ListerPidof:
		return PidofLister{}, nil
	case ListerProc:
		return ProcLister{}, nil
	default:
		return nil, fmt.Errorf("unknown process lister %q (supported: %s, %s)", kind, ListerPidof, ListerProc)
	}
}

// PidofLister shells out to pidof(8). A non-zero exit status is reported as
// "no process" rather than an error, matching pidof semantics.
type PidofLister struct {
	// Binary overrides the pidof executable; defaults to "pidof".
	Binary string
}

func (l PidofLister) PIDs(ctx context.Context, name string) ([]string, error) {
	bin := l.Binary
	if bin == "" {
		bin = "pidof"
	}
	// #nosec G204
	cmd := exec.CommandContext(ctx, bin, name)
	out, err := cmd.Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("run %s %s: %w", bin, name, err)
	}
	return strings.Fields(string(out)), nil
}

// ProcLister scans the process table through gopsutil and matches the
// process name, falling back to the executable base name.
type ProcLister struct{}

func (ProcLister) PIDs(ctx context.Context, name string) ([]string, error) {
	procs, err := gopsproc.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	pids := make([]string, 0)
	for _, p := range procs {
		if matchesName(ctx, p, name) {
			pids = append(pids, strconv.Itoa(int(p.Pid)))
		}
	}
	return pids, nil
}

func matchesName(ctx context.Context, p *gopsproc.Process, name string) bool {
	if n, err := p.NameWithContext(ctx); err == nil && n == name {
		return true
	}
	if exe, err := p.ExeWithContext(ctx); err == nil && exe != "" && filepath.Base(exe) == name {
		return true
	}
	return false
}
