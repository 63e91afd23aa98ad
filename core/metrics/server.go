package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/roombot/core/logger"
)

// Server exposes /metrics and /healthz on a dedicated listener.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// NewServer builds the HTTP server for m on listen (host:port).
func NewServer(listen string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return &Server{srv: &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	if logger.TWire != nil {
		logger.TWire.Info("metrics listening",
			slog.String("event", "metrics.listen"),
			slog.String("listen", ln.Addr().String()),
		)
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && logger.TWire != nil {
			logger.TWire.Error("metrics server stopped",
				slog.String("event", "metrics.serve"),
				slog.String("err", err.Error()),
			)
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.srv.Addr
	}
	return s.ln.Addr().String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
