//go:build !windows

package process

import (
	"fmt"
	"strconv"
	"strings"
	"syscall"
)

// SignalKiller delivers SIGKILL to a PID.
type SignalKiller struct{}

func (SignalKiller) Kill(pid string) error {
	n, err := parsePID(pid)
	if err != nil {
		return err
	}
	return syscall.Kill(n, syscall.SIGKILL)
}

func parsePID(pid string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(pid))
	if err != nil {
		return 0, fmt.Errorf("invalid pid %q: %w", pid, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid pid %q", pid)
	}
	return n, nil
}
