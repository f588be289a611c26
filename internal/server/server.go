package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"iot-relay/internal/bus"
	"iot-relay/internal/config"
	"iot-relay/internal/relay"
)

// BusController is the control surface the server exposes over the upstream
// connection. Satisfied by *bus.Manager.
type BusController interface {
	Connect(ctx context.Context, req bus.ConnectRequest) error
	Disconnect()
}

// Server maps the query and control surfaces onto HTTP and upgrades viewer
// connections to WebSocket sessions.
type Server struct {
	cfg        config.ServerConfig
	service    *relay.Service
	busCtl     BusController
	router     *mux.Router
	httpServer *http.Server
	logger     zerolog.Logger
}

func New(cfg config.ServerConfig, service *relay.Service, busCtl BusController, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		service: service,
		busCtl:  busCtl,
		router:  mux.NewRouter(),
		logger:  logger,
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: s.router,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/devices", s.handleDevices).Methods(http.MethodGet)
	s.router.HandleFunc("/api/scans", s.handleScans).Methods(http.MethodGet)
	s.router.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	s.router.HandleFunc("/api/bus/connect", s.handleBusConnect).Methods(http.MethodPost)
	s.router.HandleFunc("/api/bus/disconnect", s.handleBusDisconnect).Methods(http.MethodPost)
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.service.Devices()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(devices),
		"devices": devices,
	})
}

func (s *Server) handleScans(w http.ResponseWriter, r *http.Request) {
	scans := s.service.Scans()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(scans),
		"scans": scans,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.Stats())
}

func (s *Server) handleBusConnect(w http.ResponseWriter, r *http.Request) {
	var req bus.ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if err := s.busCtl.Connect(r.Context(), req); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, bus.ErrInvalidBroker) || errors.Is(err, bus.ErrMissingTopics) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBusDisconnect(w http.ResponseWriter, r *http.Request) {
	s.busCtl.Disconnect()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
