//go:build windows

package process

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// SignalKiller terminates a process through TerminateProcess.
type SignalKiller struct{}

func (SignalKiller) Kill(pid string) error {
	n, err := strconv.Atoi(strings.TrimSpace(pid))
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid pid %q", pid)
	}
	p, err := os.FindProcess(n)
	if err != nil {
		return err
	}
	return p.Kill()
}
