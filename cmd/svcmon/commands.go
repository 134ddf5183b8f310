package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/loykin/svcmon"
	"github.com/loykin/svcmon/internal/config"
	"github.com/loykin/svcmon/internal/cooldown"
	"github.com/loykin/svcmon/internal/detector"
	"github.com/loykin/svcmon/internal/logger"
	"github.com/loykin/svcmon/internal/process"
	"github.com/loykin/svcmon/pkg/client"
)

const (
	defaultConfigHint   = config.DefaultPath
	defaultCronSchedule = "* * * * *"
)

func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func newAPIClient(f APIFlags) (*client.Client, error) {
	return client.New(client.Config{
		BaseURL:  f.APIUrl,
		Timeout:  f.APITimeout,
		Insecure: f.APIInsecure,
	})
}

func runSweep(ctx context.Context, out io.Writer, f SweepFlags) error {
	ctx = ctxOrBackground(ctx)
	if f.APIUrl != "" {
		c, err := newAPIClient(f.APIFlags)
		if err != nil {
			return err
		}
		if err := c.TriggerSweep(ctx); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, "sweep queued")
		return nil
	}
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	m, err := svcmon.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer m.Close()
	slog.SetDefault(m.Logger())

	rep, err := m.Sweep(ctx)
	if err != nil {
		return err
	}
	if f.JSON {
		return printJSON(out, rep)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SECTION\tPROCESS\tSERVICE\tOUTCOME")
	for _, s := range rep.Services {
		outcome := s.Outcome.String()
		if s.Suppressed {
			outcome = "suppressed"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Section, s.Process, s.Service, outcome)
	}
	return tw.Flush()
}

type statusEntry struct {
	Process   string    `json:"process"`
	LastDown  time.Time `json:"last_down"`
	Remaining string    `json:"remaining"`
}

func runStatus(ctx context.Context, out io.Writer, f StatusFlags) error {
	ctx = ctxOrBackground(ctx)
	if f.APIUrl != "" {
		return runRemoteStatus(ctx, out, f)
	}
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	store, closer, err := cooldown.Open(ctx, cooldown.Options{
		Path:   cfg.Cooldown.Path,
		DSN:    cfg.Cooldown.DSN,
		Format: cfg.Cooldown.Format,
	})
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	entries, err := store.Load(ctx)
	corrupt := errors.Is(err, cooldown.ErrCorrupt)
	if err != nil && !corrupt {
		return err
	}
	window := cfg.Cooldown.Window
	if window <= 0 {
		window = cooldown.DefaultWindow
	}
	now := time.Now()
	list := make([]statusEntry, 0, len(entries))
	for _, name := range entries.Names() {
		list = append(list, statusEntry{
			Process:   name,
			LastDown:  time.Unix(entries[name], 0),
			Remaining: cooldown.Remaining(now, entries[name], window).Round(time.Second).String(),
		})
	}

	return printStatus(out, list, corrupt, f.JSON)
}

func printStatus(out io.Writer, list []statusEntry, corrupt, asJSON bool) error {
	if asJSON {
		return printJSON(out, map[string]any{"corrupt": corrupt, "entries": list})
	}
	if corrupt {
		_, _ = fmt.Fprintln(out, "cooldown record is corrupt and will be treated as empty")
	}
	if len(list) == 0 {
		_, _ = fmt.Fprintln(out, "no suppressed processes")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PROCESS\tLAST DOWN\tREMAINING")
	for _, e := range list {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Process, e.LastDown.Format(time.RFC3339), e.Remaining)
	}
	return tw.Flush()
}

func runRemoteStatus(ctx context.Context, out io.Writer, f StatusFlags) error {
	c, err := newAPIClient(f.APIFlags)
	if err != nil {
		return err
	}
	cd, err := c.Cooldown(ctx, "")
	if err != nil {
		return err
	}
	list := make([]statusEntry, 0, len(cd.Entries))
	for _, e := range cd.Entries {
		list = append(list, statusEntry{Process: e.Process, LastDown: e.LastDown, Remaining: e.Remaining})
	}
	return printStatus(out, list, cd.Corrupt, f.JSON)
}

func runCheck(ctx context.Context, out io.Writer, f CheckFlags) error {
	ctx = ctxOrBackground(ctx)
	if strings.TrimSpace(f.Process) == "" {
		return errors.New("--process is required")
	}
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	lister, err := process.NewLister(cfg.Supervise.Lister)
	if err != nil {
		return err
	}
	log, closer, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	res := detector.PIDFileDetector{Lister: lister, Logger: log}.Check(ctx, f.Process, f.PIDFile)
	if f.JSON {
		return printJSON(out, res)
	}
	_, _ = fmt.Fprintf(out, "%s: %s\n", f.Process, res)
	return nil
}

func runCron(out io.Writer, f CronFlags) error {
	if len(strings.Fields(f.Schedule)) != 5 {
		return fmt.Errorf("schedule %q must have 5 fields", f.Schedule)
	}
	bin := f.Binary
	if bin == "" {
		exe, err := os.Executable()
		if err != nil {
			return err
		}
		bin = exe
	}
	line := strings.Join(strings.Fields(f.Schedule), " ") + " " + bin + " sweep"
	if f.ConfigPath != "" {
		p, err := filepath.Abs(f.ConfigPath)
		if err != nil {
			return err
		}
		line += " --config=" + p
	}
	_, err := fmt.Fprintln(out, line+" >/dev/null 2>&1")
	return err
}

func printJSON(out io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}
