package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/loykin/svcmon"
	"github.com/loykin/svcmon/internal/config"
	"github.com/loykin/svcmon/internal/server"
	svctls "github.com/loykin/svcmon/internal/tls"
)

func runServe(ctx context.Context, f ServeFlags) error {
	ctx = ctxOrBackground(ctx)
	path := config.ResolvePath(f.ConfigPath)
	v := config.NewViper(path)
	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if f.Daemonize {
		return daemonize(f.PidFile, f.LogFile)
	}
	if f.PidFile != "" {
		if err := writePidFile(f.PidFile, os.Getpid()); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = removePidFile(f.PidFile) }()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := svcmon.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer m.Close()
	log := m.Logger()
	slog.SetDefault(log)

	var servers []interface{ Shutdown(context.Context) error }
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, s := range servers {
			_ = s.Shutdown(sctx)
		}
	}()

	if cfg.Metrics.Enabled {
		if err := svcmon.RegisterMetricsDefault(); err != nil {
			log.Warn("failed to register metrics", "error", err)
		}
		if cfg.Metrics.Listen != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", svcmon.MetricsHandler())
			ms, err := server.NewServer(cfg.Metrics.Listen, mux, nil, log)
			if err != nil {
				return fmt.Errorf("metrics listener: %w", err)
			}
			servers = append(servers, ms)
			log.Info("metrics endpoint started", "addr", ms.Addr())
		}
	}

	if cfg.Server.Listen != "" {
		tlsCfg, err := svctls.Setup(svctls.Options{
			CertFile:   cfg.Server.TLSCert,
			KeyFile:    cfg.Server.TLSKey,
			MinVersion: cfg.Server.TLSMinVersion,
			SelfSigned: cfg.Server.TLSSelfSigned,
		})
		if err != nil {
			return fmt.Errorf("tls: %w", err)
		}
		srv, err := server.NewServer(cfg.Server.Listen, m.Handler(cfg.Server.BasePath), tlsCfg, log)
		if err != nil {
			return fmt.Errorf("status api listener: %w", err)
		}
		servers = append(servers, srv)
		log.Info("status api started", "addr", srv.Addr(), "base_path", cfg.Server.BasePath, "tls", tlsCfg != nil)
	}

	reload := func(reason string) {
		next, err := config.FromViper(v)
		if err != nil {
			log.Error("config reload rejected", "reason", reason, "error", err)
			return
		}
		services, err := next.LoadServices()
		if err != nil {
			log.Error("services reload rejected", "reason", reason, "error", err)
			return
		}
		m.SetServices(services)
		log.Info("services reloaded", "reason", reason, "count", len(services))
	}
	if path != "" {
		v.OnConfigChange(func(e fsnotify.Event) { reload("config " + e.Op.String()) })
		v.WatchConfig()
	}
	if stopWatch, err := watchFile(ctx, cfg.ServicesFile, log, func() { reload("services file changed") }); err != nil {
		log.Warn("services file not watched", "path", cfg.ServicesFile, "error", err)
	} else {
		defer stopWatch()
	}

	log.Info("svcmon started", "services", len(m.Services()), "interval", cfg.Schedule.Interval, "config", path)
	err = m.Run(ctx)
	log.Info("shutting down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watchFile calls onChange after path is written, created or replaced.
// The parent directory is watched so editors that rename over the file
// are seen too.
func watchFile(ctx context.Context, path string, log *slog.Logger, onChange func()) (func(), error) {
	if path == "" {
		return nil, errors.New("empty path")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	target := cleanAbs(path)
	if err := w.Add(dirOf(target)); err != nil {
		_ = w.Close()
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if cleanAbs(ev.Name) != target {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
					onChange()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("file watch error", "path", path, "error", err)
			}
		}
	}()
	return func() {
		_ = w.Close()
		<-done
	}, nil
}
