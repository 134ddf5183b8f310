package detector

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/loykin/svcmon/internal/process"
)

// PIDFileDetector resolves the PIDs of a process by name and accepts the
// process as running only when its PID file names one of them.
type PIDFileDetector struct {
	Lister process.Lister
	Logger *slog.Logger
}

func (d PIDFileDetector) Check(ctx context.Context, processName, pidFile string) Result {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	pids, err := d.Lister.PIDs(ctx, processName)
	if err != nil {
		log.Warn("failed to list process pids", "process", processName, "error", err)
		return Result{PIDs: []string{}}
	}
	if len(pids) == 0 {
		return Result{PIDs: []string{}}
	}
	return Result{Running: MatchPIDFile(pidFile, pids), PIDs: pids}
}

// MatchPIDFile reports whether the trimmed content of pidFile equals one of
// the trimmed pids. Comparison is by string: "0123" does not match "123".
// A missing, unreadable or empty file never matches.
func MatchPIDFile(pidFile string, pids []string) bool {
	if len(pids) == 0 || pidFile == "" {
		return false
	}
	want, ok := readPIDFile(pidFile)
	if !ok {
		return false
	}
	for _, p := range pids {
		if strings.TrimSpace(p) == want {
			return true
		}
	}
	return false
}

// readPIDFile returns the whitespace-trimmed PID file content.
func readPIDFile(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	b, err := os.ReadFile(path)
	if err != nil || len(b) == 0 {
		return "", false
	}
	return strings.TrimSpace(string(b)), true
}
