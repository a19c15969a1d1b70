package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rjboer/gosoapy/internal/logging"
)

// WebServer exposes the hub over HTTP.
type WebServer struct {
	srv *http.Server
	hub *Hub
	log logging.Logger
}

// Handler returns the API routes of hub.
func Handler(hub *Hub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", hub.handleStatus)
	mux.HandleFunc("/api/live", hub.handleLive)
	mux.HandleFunc("/api/params", hub.handleParams)
	mux.HandleFunc("/api/spectrum", hub.handleSpectrum)
	return mux
}

// NewWebServer builds a server for hub listening on addr.
func NewWebServer(addr string, hub *Hub, log logging.Logger) *WebServer {
	return &WebServer{
		hub: hub,
		srv: &http.Server{Addr: addr, Handler: Handler(hub), ReadHeaderTimeout: 5 * time.Second},
		log: logging.Or(log).With(logging.F("component", "web")),
	}
}

// Start listens until ctx is cancelled.
func (w *WebServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := w.srv.Shutdown(shutdownCtx); err != nil {
			w.log.Warn("web shutdown", logging.Err(err))
		}
	}()

	w.log.Info("serving status", logging.F("addr", w.srv.Addr))
	if err := w.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
