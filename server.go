package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/oszuidwest/zwfm-voicecapture/internal/audio"
	"github.com/oszuidwest/zwfm-voicecapture/internal/config"
	"github.com/oszuidwest/zwfm-voicecapture/internal/search"
	"github.com/oszuidwest/zwfm-voicecapture/internal/server"
	"github.com/oszuidwest/zwfm-voicecapture/internal/types"
)

// Controller is the capture controller as used by the web server.
type Controller interface {
	server.Capture
	Snapshot() types.FrequencySnapshot
}

// VersionSource reports the running and latest release.
type VersionSource interface {
	Info() types.VersionInfo
}

// ServerOptions holds the collaborators of a Server.
type ServerOptions struct {
	Config          *config.Config
	Controller      Controller
	Queries         search.Dispatcher
	Hub             *server.Hub
	Input           server.InputSelector // optional
	Version         VersionSource        // optional
	EventLogPath    string
	FFmpegAvailable bool
}

// Server is an HTTP server that exposes the capture controller to the web interface.
type Server struct {
	config          *config.Config
	controller      Controller
	queries         search.Dispatcher
	hub             *server.Hub
	commands        *server.CommandHandler
	version         VersionSource
	eventLogPath    string
	ffmpegAvailable bool
}

// NewServer returns a new Server wired to the given collaborators.
func NewServer(opts ServerOptions) *Server {
	commands := server.NewCommandHandler(server.Deps{
		Capture:      opts.Controller,
		Queries:      opts.Queries,
		Settings:     opts.Config,
		Input:        opts.Input,
		EventLogPath: opts.EventLogPath,
	})

	return &Server{
		config:          opts.Config,
		controller:      opts.Controller,
		queries:         opts.Queries,
		hub:             opts.Hub,
		commands:        commands,
		version:         opts.Version,
		eventLogPath:    opts.EventLogPath,
		ffmpegAvailable: opts.FFmpegAvailable,
	}
}

// buildWSStatus returns the current WebSocket status response.
func (s *Server) buildWSStatus() types.WSStatusResponse {
	status := types.WSStatusResponse{
		Type:            "status",
		FFmpegAvailable: s.ffmpegAvailable,
		Capture:         s.controller.Status(),
		Devices:         audio.AudioDevices(),
		AudioInput:      s.config.AudioInput(),
		Platform:        runtime.GOOS,
		Version:         types.VersionInfo{Current: Version, Commit: Commit, BuildTime: BuildTime},
	}
	if s.version != nil {
		status.Version = s.version.Info()
	}
	return status
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	cfg := s.config.Snapshot()
	mux := http.NewServeMux()

	mux.Handle("/ws", server.NewSocketHandler(server.SocketOptions{
		Commands:         s.commands,
		Hub:              s.hub,
		Status:           s.buildWSStatus,
		Spectrum:         s.controller.Snapshot,
		SpectrumInterval: time.Duration(cfg.SpectrumIntervalMs) * time.Millisecond,
		StatusInterval:   time.Duration(cfg.StatusIntervalMs) * time.Millisecond,
	}))
	mux.HandleFunc("/healthz", s.handleHealth)

	mux.HandleFunc("/api/status", s.handleAPIStatus)
	mux.HandleFunc("/api/devices", s.handleAPIDevices)
	mux.HandleFunc("/api/capture/start", s.handleAPIStart)
	mux.HandleFunc("/api/capture/stop", s.handleAPIStop)
	mux.HandleFunc("/api/query", s.handleAPIQuery)
	mux.HandleFunc("/api/events", s.handleAPIEvents)

	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"state":  string(s.controller.Status().State),
	})
}

// Start begins the HTTP server.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().WebPort)
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
