package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultRestartCommand is the service manager invocation used when no
// template is configured. {service} is replaced with the service name.
const DefaultRestartCommand = "service {service} restart"

// DefaultRestartTimeout bounds a single service manager invocation.
const DefaultRestartTimeout = 60 * time.Second

// ServiceCommand restarts a service by running a command template such as
// "service {service} restart" or "systemctl restart {service}".
type ServiceCommand struct {
	Template string
	Timeout  time.Duration
	// Env replaces the inherited environment when non-empty.
	Env []string
}

// Restart runs the restart command. A non-zero exit is reported through
// ExitStatus with a nil error; the error is reserved for failures to run the
// command at all, including hitting the timeout.
func (s ServiceCommand) Restart(ctx context.Context, service string) (ExitStatus, error) {
	if strings.TrimSpace(service) == "" {
		return ExitStatus{Code: -1}, errors.New("empty service name")
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultRestartTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tmpl := s.Template
	if strings.TrimSpace(tmpl) == "" {
		tmpl = DefaultRestartCommand
	}
	cmd := buildShellAwareCommand(cctx, strings.ReplaceAll(tmpl, "{service}", service))
	if len(s.Env) > 0 {
		cmd.Env = s.Env
	}
	out, err := cmd.CombinedOutput()
	st := ExitStatus{Output: strings.TrimSpace(string(out))}
	if err == nil {
		return st, nil
	}
	if cctx.Err() != nil {
		st.Code = -1
		return st, fmt.Errorf("restart %s: %w", service, cctx.Err())
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		st.Code = ee.ExitCode()
		return st, nil
	}
	st.Code = -1
	return st, fmt.Errorf("restart %s: %w", service, err)
}

// buildShellAwareCommand avoids a shell unless the command line contains
// shell metacharacters.
func buildShellAwareCommand(ctx context.Context, cmdStr string) *exec.Cmd {
	cmdStr = strings.TrimSpace(cmdStr)
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		return getShellCommand(ctx, cmdStr)
	}
	parts := strings.Fields(cmdStr)
	// #nosec G204
	return exec.CommandContext(ctx, parts[0], parts[1:]...)
}
