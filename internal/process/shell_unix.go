//go:build !windows

package process

import (
	"context"
	"os/exec"
)

// getShellCommand wraps script in /bin/sh -c.
func getShellCommand(ctx context.Context, script string) *exec.Cmd {
	// #nosec G204
	return exec.CommandContext(ctx, "/bin/sh", "-c", script)
}
