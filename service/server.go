package service

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/stepcraft/rampd/config"
)

// streamServer exposes axis state over HTTP and live motion events over a
// WebSocket. It binds its listener at construction so a bad listen address
// fails service startup instead of surfacing later.
type streamServer struct {
	logger          zerolog.Logger
	service         *Service
	server          *http.Server
	ln              net.Listener
	shutdownTimeout time.Duration
	upgrader        websocket.Upgrader
}

func newStreamServer(cfg config.ServerConfig, svc *Service, logger zerolog.Logger, metrics bool) (*streamServer, error) {
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, err
	}

	shutdownTimeout := cfg.ShutdownTimeout.Duration
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	srv := &streamServer{
		logger:          logger.With().Str("component", "server").Logger(),
		service:         svc,
		ln:              ln,
		shutdownTimeout: shutdownTimeout,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/state", srv.handleState)
	mux.HandleFunc("/move", srv.handleMove)
	mux.HandleFunc("/stream", srv.handleStream)
	if metrics {
		mux.Handle("/metrics", promhttp.Handler())
	}
	srv.server = &http.Server{Handler: mux}

	srv.logger.Info().Str("listen", ln.Addr().String()).Msg("stream server listening")
	return srv, nil
}

func (s *streamServer) addr() string { return s.ln.Addr().String() }

func (s *streamServer) run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(s.ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *streamServer) close() error {
	return s.server.Close()
}

func (s *streamServer) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(struct {
		Axes []AxisState `json:"axes"`
	}{Axes: s.service.States()}); err != nil {
		s.logger.Warn().Err(err).Msg("encode state response")
	}
}

type moveRequest struct {
	Axis        string  `json:"axis"`
	Steps       uint32  `json:"steps"`
	MaxVelocity float64 `json:"max_velocity"`
}

func (s *streamServer) handleMove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid move request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.service.Enqueue(req.Axis, Move{Steps: req.Steps, MaxVelocity: req.MaxVelocity}); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *streamServer) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, cancel := s.service.Subscribe()
	defer cancel()

	if err := conn.WriteJSON(Event{Type: EventSubscribed, Timestamp: time.Now()}); err != nil {
		return
	}

	// Drain client frames so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}
