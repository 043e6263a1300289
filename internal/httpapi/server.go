// Package httpapi implements the Health & Control Surfaces (component M):
// a small local-only HTTP server exposing status, the agent registry, and
// an on-demand backup export, plus the Status Event Bus's live WebSocket
// stream (component Q).
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/agentboard/agentboard/internal/archiver"
	"github.com/agentboard/agentboard/internal/bootstrap"
	"github.com/agentboard/agentboard/internal/events"
	"github.com/agentboard/agentboard/internal/registry"
	"github.com/agentboard/agentboard/internal/store"
	"github.com/agentboard/agentboard/internal/taskrunner"
)

// StatusProvider is the slice of taskrunner.Runner this server depends on.
type StatusProvider interface {
	Status() (active map[string]taskrunner.ActiveAgent, completed int, lastPollErr error, columnIDs bootstrap.ColumnIDs)
}

// eventHistory is implemented by publishers (events.Bus, events.CLIPublisher
// wrapping one) that keep a bounded history and per-type tally. The status
// endpoint surfaces both when the configured Publisher supports it.
type eventHistory interface {
	Recent() []events.Event
	Counts() map[events.EventType]int
}

// Server is the Health & Control Surfaces HTTP server.
type Server struct {
	addr      string
	mux       *http.ServeMux
	logger    *slog.Logger
	runner    StatusProvider
	registry  *registry.Registry
	backend   store.Backend
	publisher events.Publisher
	history   eventHistory
	wsHandler *wsHandler

	concurrencyCap int
	freeMemoryMB   taskrunner.FreeMemoryMB
	exportsDir     string
	resultsDir     string
	startedAt      time.Time
}

// Config configures a Server.
type Config struct {
	Addr           string
	Logger         *slog.Logger
	Runner         StatusProvider
	Registry       *registry.Registry
	Backend        store.Backend
	Publisher      events.Publisher
	ConcurrencyCap int
	FreeMemoryMB   taskrunner.FreeMemoryMB
	ExportsDir     string
	ResultsDir     string
}

// New constructs a Server from cfg, applying defaults for zero fields.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NewNopPublisher()
	}
	if cfg.ConcurrencyCap == 0 {
		cfg.ConcurrencyCap = 1
	}
	if cfg.ExportsDir == "" {
		cfg.ExportsDir = "exports"
	}
	if cfg.ResultsDir == "" {
		cfg.ResultsDir = "results"
	}

	s := &Server{
		addr:           cfg.Addr,
		mux:            http.NewServeMux(),
		logger:         cfg.Logger,
		runner:         cfg.Runner,
		registry:       cfg.Registry,
		backend:        cfg.Backend,
		publisher:      cfg.Publisher,
		concurrencyCap: cfg.ConcurrencyCap,
		freeMemoryMB:   cfg.FreeMemoryMB,
		exportsDir:     cfg.ExportsDir,
		resultsDir:     cfg.ResultsDir,
		startedAt:      time.Now(),
	}
	if h, ok := cfg.Publisher.(eventHistory); ok {
		s.history = h
	}
	s.wsHandler = newWSHandler(cfg.Publisher, cfg.Logger)
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /", s.handleStatus)
	s.mux.HandleFunc("GET /api/agents", s.handleAgents)
	s.mux.HandleFunc("GET /export", s.handleExport)
	s.mux.Handle("GET /api/events", s.wsHandler)
}

// Start runs the server until ctx is cancelled, shutting down gracefully
// within a 5s grace period.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("health & control surfaces listening", "addr", s.addr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// statusResponse is the GET / document.
type statusResponse struct {
	Service        string                     `json:"service"`
	ConcurrencyCap int                        `json:"concurrencyCap"`
	Active         map[string]activeAgentView `json:"active"`
	Completed      int                        `json:"completed"`
	FreeMemoryMB   int                        `json:"freeMemoryMB"`
	ColumnIDs      bootstrap.ColumnIDs        `json:"columnIds"`
	LastPollError  string                     `json:"lastPollError,omitempty"`
	UptimeSeconds  float64                    `json:"uptimeSeconds"`
	EventCounts    map[events.EventType]int   `json:"eventCounts,omitempty"`
	RecentEvents   []events.Event             `json:"recentEvents,omitempty"`
}

type activeAgentView struct {
	Agent     string `json:"agent"`
	PID       int    `json:"pid"`
	RuntimeMs int64  `json:"runtimeMs"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Service:        "agentboard",
		ConcurrencyCap: s.concurrencyCap,
		Active:         map[string]activeAgentView{},
		ColumnIDs:      bootstrap.ColumnIDs{},
		UptimeSeconds:  time.Since(s.startedAt).Seconds(),
	}

	if s.runner != nil {
		active, completed, lastPollErr, columnIDs := s.runner.Status()
		now := time.Now()
		for taskID, a := range active {
			resp.Active[taskID] = activeAgentView{
				Agent:     a.Agent,
				PID:       a.PID,
				RuntimeMs: now.Sub(a.StartedAt).Milliseconds(),
			}
		}
		resp.Completed = completed
		resp.ColumnIDs = columnIDs
		if lastPollErr != nil {
			resp.LastPollError = lastPollErr.Error()
		}
	}

	if s.freeMemoryMB != nil {
		resp.FreeMemoryMB = s.freeMemoryMB()
	}

	if s.history != nil {
		resp.EventCounts = s.history.Counts()
		resp.RecentEvents = s.history.Recent()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, s.registry.Agents())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	result, err := archiver.Export(r.Context(), archiver.ExportConfig{
		Backend:    s.backend,
		ResultsDir: s.resultsDir,
		ExportsDir: s.exportsDir,
	}, time.Now())
	if err != nil {
		s.logger.Error("export failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
