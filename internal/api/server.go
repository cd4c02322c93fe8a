// Package api provides the HTTP status server: health, session and stream
// state, recent log lines, live filter tuning and prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"gyrodesk/internal/config"
	"gyrodesk/internal/metrics"
	"gyrodesk/internal/motion"
	"gyrodesk/internal/network"
	"gyrodesk/internal/status"
	"gyrodesk/internal/stream"
	"gyrodesk/internal/util"
)

// SessionSource reports the connected control client
type SessionSource interface {
	Current() (network.SessionInfo, bool)
}

// StreamSource reports one streaming engine's state
type StreamSource interface {
	Name() string
	Snapshot() stream.Snapshot
}

// Server provides the HTTP status API
type Server struct {
	tracker   *status.Tracker
	sessions  SessionSource
	streams   []StreamSource
	motion    *motion.Processor
	configMgr *config.Manager
	logger    *slog.Logger
}

// NewServer creates a status server. configMgr may be nil, in which case
// filter changes are applied but not persisted.
func NewServer(tracker *status.Tracker, sessions SessionSource, processor *motion.Processor, configMgr *config.Manager, streams ...StreamSource) *Server {
	return &Server{
		tracker:   tracker,
		sessions:  sessions,
		streams:   streams,
		motion:    processor,
		configMgr: configMgr,
		logger:    util.GetLogger().With("component", "api"),
	}
}

// Handler returns the routed handler with logging and panic recovery
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/logs", s.handleLogs)
	mux.HandleFunc("/api/motion", s.handleMotion)
	mux.Handle("/metrics", metrics.Handler())
	return s.logMiddleware(s.recoverMiddleware(mux))
}

// ListenAndServe serves on addr until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "status server listen on %s", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	})
	defer stop()

	s.logger.Info("Status server listening", "addr", ln.Addr().String())
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "status server")
	}
	return nil
}

// recoverMiddleware prevents panics from crashing the whole server
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("Handler panic", "path", r.URL.Path, "panic", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("Request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// handleHealth handles GET /health (for monitoring)
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	Status      string                     `json:"status"`
	Client      string                     `json:"client,omitempty"`
	Session     string                     `json:"session,omitempty"`
	ConnectedAt *time.Time                 `json:"connectedAt,omitempty"`
	Streams     map[string]stream.Snapshot `json:"streams"`
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := StatusResponse{
		Status:  s.tracker.Current(),
		Streams: make(map[string]stream.Snapshot, len(s.streams)),
	}
	if s.sessions != nil {
		if info, ok := s.sessions.Current(); ok {
			resp.Client = info.Addr
			resp.Session = info.ID
			resp.ConnectedAt = &info.ConnectedAt
		}
	}
	for _, st := range s.streams {
		resp.Streams[st.Name()] = st.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLogs handles GET /api/logs
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"statuses": s.tracker.Statuses(),
		"logs":     s.tracker.Logs(),
	})
}

// MotionSettings is the body of GET and POST /api/motion
type MotionSettings struct {
	Sensitivity float64 `json:"sensitivity"`
	Smoothing   float64 `json:"smoothing"`
	DeadZone    float64 `json:"deadZone"`
	CalibX      float64 `json:"calibX"`
	CalibY      float64 `json:"calibY"`
	InvertY     bool    `json:"invertY"`
}

func settingsOf(c motion.Config) MotionSettings {
	return MotionSettings{
		Sensitivity: c.Sensitivity,
		Smoothing:   c.Smoothing,
		DeadZone:    c.DeadZone,
		CalibX:      c.CalibX,
		CalibY:      c.CalibY,
		InvertY:     c.InvertY,
	}
}

// handleMotion handles GET (read) and POST (update) of the filter settings.
// POST keeps the smoothing state unless ?reset=true.
func (s *Server) handleMotion(w http.ResponseWriter, r *http.Request) {
	if s.motion == nil {
		http.Error(w, "Motion filter not available", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, settingsOf(s.motion.Config()))

	case http.MethodPost:
		// start from the current values so partial bodies only change what they name
		in := settingsOf(s.motion.Config())
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "Invalid motion settings", http.StatusBadRequest)
			return
		}
		cfg, err := motion.NewConfig(in.Sensitivity, in.Smoothing, in.DeadZone, in.CalibX, in.CalibY, in.InvertY)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.motion.SetConfig(cfg, r.URL.Query().Get("reset") == "true"); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Info("Motion settings updated", "remote", r.RemoteAddr, "sensitivity", cfg.Sensitivity, "smoothing", cfg.Smoothing, "dead_zone", cfg.DeadZone)
		s.persistMotion(cfg)
		writeJSON(w, http.StatusOK, settingsOf(cfg))

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) persistMotion(c motion.Config) {
	if s.configMgr == nil {
		return
	}
	cfg := s.configMgr.Get()
	if cfg == nil {
		return
	}
	cfg.Motion = config.MotionConfig{
		Sensitivity: c.Sensitivity,
		Smoothing:   c.Smoothing,
		DeadZone:    c.DeadZone,
		CalibX:      c.CalibX,
		CalibY:      c.CalibY,
		InvertY:     c.InvertY,
	}
	if err := s.configMgr.Set(cfg); err != nil {
		s.logger.Warn("Failed to apply motion settings to config", "error", err)
		return
	}
	if err := s.configMgr.Save(); err != nil {
		s.logger.Warn("Failed to save configuration", "error", err)
	}
}
