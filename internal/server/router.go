package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/svcmon/internal/alert"
	"github.com/loykin/svcmon/internal/cooldown"
	"github.com/loykin/svcmon/internal/detector"
	"github.com/loykin/svcmon/internal/manager"
)

// Router exposes the supervision loop over HTTP.
// Endpoints, relative to basePath:
//
//	GET  /healthz
//	GET  /status            busy flag and the last sweep report
//	GET  /services          configured services
//	GET  /cooldown          query: process=... (optional)
//	GET  /alerts            recent alerts, oldest first
//	GET  /check             query: process=...&pidfile=... (pidfile optional)
//	POST /sweep             queue a sweep; 409 when one is running
type Router struct {
	loop     *manager.Loop
	alerts   *alert.Ring
	checker  detector.Checker
	basePath string
	now      func() time.Time
}

// Options wires the router's collaborators. Loop is required.
type Options struct {
	Loop     *manager.Loop
	Alerts   *alert.Ring
	Checker  detector.Checker
	BasePath string
}

func NewRouter(o Options) *Router {
	return &Router{
		loop:     o.Loop,
		alerts:   o.Alerts,
		checker:  o.Checker,
		basePath: sanitizeBase(o.BasePath),
		now:      time.Now,
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/healthz", r.handleHealth)
	group.GET("/status", r.handleStatus)
	group.GET("/services", r.handleServices)
	group.GET("/cooldown", r.handleCooldown)
	group.GET("/alerts", r.handleAlerts)
	group.GET("/check", r.handleCheck)
	group.POST("/sweep", r.handleSweep)
	return g
}

// Server is a started status API server.
type Server struct {
	http *http.Server
	ln   net.Listener
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() string { return s.ln.Addr().String() }

func (s *Server) Shutdown(ctx context.Context) error { return s.http.Shutdown(ctx) }

// NewServer binds addr and serves h in the background. A non-nil tlsCfg
// switches the listener to HTTPS.
func NewServer(addr string, h http.Handler, tlsCfg *tls.Config, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	go func() {
		var err error
		if tlsCfg != nil {
			err = srv.ServeTLS(ln, "", "")
		} else {
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("status server stopped", "addr", addr, "error", err)
		}
	}()
	return &Server{http: srv, ln: ln}, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type statusResp struct {
	Busy       bool                 `json:"busy"`
	Window     string               `json:"window"`
	LastSweep  *manager.SweepReport `json:"last_sweep,omitempty"`
	Down       []string             `json:"down,omitempty"`
	ServiceCnt int                  `json:"services"`
}

type cooldownEntry struct {
	Process   string    `json:"process"`
	LastDown  time.Time `json:"last_down"`
	Remaining string    `json:"remaining"`
	Evaluate  bool      `json:"evaluate"`
}

type cooldownResp struct {
	Entries []cooldownEntry `json:"entries"`
	Corrupt bool            `json:"corrupt,omitempty"`
}

func (r *Router) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *Router) handleStatus(c *gin.Context) {
	sw := r.loop.Sweeper()
	resp := statusResp{
		Busy:       sw.Busy(),
		Window:     sw.Window().String(),
		ServiceCnt: len(r.loop.Services()),
	}
	if rep, ok := sw.LastReport(); ok {
		resp.LastSweep = &rep
		resp.Down = rep.Down()
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleServices(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.loop.Services().Sorted())
}

func (r *Router) handleCooldown(c *gin.Context) {
	process := strings.TrimSpace(c.Query("process"))
	if process != "" && !isSafeName(process) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid process name"})
		return
	}
	sw := r.loop.Sweeper()
	entries, err := sw.Store().Load(c.Request.Context())
	resp := cooldownResp{Entries: []cooldownEntry{}}
	switch {
	case err == nil:
	case errors.Is(err, cooldown.ErrCorrupt):
		resp.Corrupt = true
	default:
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	now := r.now()
	for _, name := range entries.Names() {
		if process != "" && name != process {
			continue
		}
		last := entries[name]
		resp.Entries = append(resp.Entries, cooldownEntry{
			Process:   name,
			LastDown:  time.Unix(last, 0).UTC(),
			Remaining: cooldown.Remaining(now, last, sw.Window()).String(),
			Evaluate:  cooldown.ShouldEvaluate(now, last, sw.Window()),
		})
	}
	if process != "" && len(resp.Entries) == 0 {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "process not in cooldown"})
		return
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleAlerts(c *gin.Context) {
	if r.alerts == nil {
		writeJSON(c, http.StatusOK, []alert.Event{})
		return
	}
	writeJSON(c, http.StatusOK, r.alerts.Events())
}

func (r *Router) handleCheck(c *gin.Context) {
	if r.checker == nil {
		writeJSON(c, http.StatusNotImplemented, errorResp{Error: "checker not configured"})
		return
	}
	process := strings.TrimSpace(c.Query("process"))
	if !isSafeName(process) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid process name"})
		return
	}
	pidFile := c.Query("pidfile")
	if !isSafeAbsPath(pidFile) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "pidfile must be an absolute clean path"})
		return
	}
	res := r.checker.Check(c.Request.Context(), process, pidFile)
	writeJSON(c, http.StatusOK, res)
}

func (r *Router) handleSweep(c *gin.Context) {
	if err := r.loop.Trigger(); err != nil {
		if errors.Is(err, manager.ErrSweepInProgress) {
			writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusAccepted, map[string]bool{"queued": true})
}
