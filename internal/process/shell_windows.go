//go:build windows

package process

import (
	"context"
	"os/exec"
)

// getShellCommand wraps script in cmd /c.
func getShellCommand(ctx context.Context, script string) *exec.Cmd {
	// #nosec G204
	return exec.CommandContext(ctx, "cmd", "/c", script)
}
