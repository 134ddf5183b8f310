package process

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

// fakeBinary writes an executable shell script into a temp dir.
func fakeBinary(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "fake")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	return p
}

func TestNewLister(t *testing.T) {
	for _, kind := range []string{"", "pidof", "PIDOF", " proc "} {
		if _, err := NewLister(kind); err != nil {
			t.Fatalf("NewLister(%q): %v", kind, err)
		}
	}
	if _, err := NewLister("ps"); err == nil {
		t.Fatalf("expected error for unknown lister")
	}
}

func TestPidofLister_ParsesOutput(t *testing.T) {
	requireUnix(t)
	l := PidofLister{Binary: fakeBinary(t, `echo "123 456"`)}
	pids, err := l.PIDs(context.Background(), "foo")
	if err != nil {
		t.Fatalf("PIDs: %v", err)
	}
	if len(pids) != 2 || pids[0] != "123" || pids[1] != "456" {
		t.Fatalf("unexpected pids: %#v", pids)
	}
}

func TestPidofLister_NonZeroExitMeansNone(t *testing.T) {
	requireUnix(t)
	l := PidofLister{Binary: fakeBinary(t, "exit 1")}
	pids, err := l.PIDs(context.Background(), "foo")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(pids) != 0 {
		t.Fatalf("expected no pids, got %#v", pids)
	}
}

func TestPidofLister_MissingBinary(t *testing.T) {
	l := PidofLister{Binary: "__definitely_not_exists__"}
	if _, err := l.PIDs(context.Background(), "foo"); err == nil {
		t.Fatalf("expected error for missing binary")
	}
}

func TestProcLister_FindsSelf(t *testing.T) {
	requireUnix(t)
	exe, err := os.Executable()
	if err != nil {
		t.Skip("executable path unavailable")
	}
	pids, err := ProcLister{}.PIDs(context.Background(), filepath.Base(exe))
	if err != nil {
		t.Fatalf("PIDs: %v", err)
	}
	self := strconv.Itoa(os.Getpid())
	for _, p := range pids {
		if p == self {
			return
		}
	}
	t.Fatalf("expected own pid %s among %v", self, pids)
}
