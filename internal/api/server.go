// Package api serves the local control API and the websocket event stream.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ledlink/internal/color"
	"github.com/dokzlo13/ledlink/internal/device"
	"github.com/dokzlo13/ledlink/internal/effect"
	"github.com/dokzlo13/ledlink/internal/ledger"
	"github.com/dokzlo13/ledlink/internal/notify"
	"github.com/dokzlo13/ledlink/internal/session"
)

// Controller is the session surface the API drives.
type Controller interface {
	Snapshot(ctx context.Context) (session.Snapshot, error)
	Connect(ctx context.Context, address string) (*device.Status, error)
	ConnectAuto(ctx context.Context) (*device.Status, error)
	Retry(ctx context.Context) (*device.Status, error)
	Discover(ctx context.Context) (string, error)
	Disconnect(ctx context.Context) error
	SetColor(ctx context.Context, p color.Partial) (color.State, error)
	SetHex(ctx context.Context, hex string) (color.State, error)
	SetPower(ctx context.Context, on bool) (color.State, error)
	TogglePower(ctx context.Context) (color.State, error)
	StartEffect(ctx context.Context, name string) (effect.Session, error)
	SetDeviceEffect(ctx context.Context, name string, speed int) error
	SetAutoEffect(ctx context.Context, enabled bool) error
	SetAccessPoint(ctx context.Context, enable bool) (*device.APStatus, error)
	AccessPoint(ctx context.Context) (*device.APStatus, error)
	AutoEffect(ctx context.Context) (bool, error)
	LEDStatus(ctx context.Context) (*device.LEDStatus, error)
	ApplyPreset(ctx context.Context, name string) (color.State, error)
	Effects() []string
}

// Ledger is the persisted event history.
type Ledger interface {
	Recent(limit int) ([]*ledger.Entry, error)
}

// Server is the control API.
type Server struct {
	addr       string
	ctrl       Controller
	history    *notify.History
	ledger     Ledger
	hub        *Hub
	corsOrigin string
	httpServer *http.Server
}

// Options configure a Server. History and Ledger may be nil.
type Options struct {
	Addr       string
	CORSOrigin string
	History    *notify.History
	Ledger     Ledger
}

// NewServer creates a control API server.
func NewServer(ctrl Controller, opts Options) *Server {
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	return &Server{
		addr:       opts.Addr,
		ctrl:       ctrl,
		history:    opts.History,
		ledger:     opts.Ledger,
		hub:        NewHub(opts.CORSOrigin),
		corsOrigin: opts.CORSOrigin,
	}
}

// Hub returns the event stream hub. Subscribe its Broadcast to the event bus.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("POST /api/connect", s.handleConnect)
	mux.HandleFunc("POST /api/discover", s.handleDiscover)
	mux.HandleFunc("POST /api/disconnect", s.handleDisconnect)
	mux.HandleFunc("POST /api/color", s.handleColor)
	mux.HandleFunc("POST /api/power", s.handlePower)
	mux.HandleFunc("GET /api/effects", s.handleEffects)
	mux.HandleFunc("POST /api/effect", s.handleEffect)
	mux.HandleFunc("POST /api/device-effect", s.handleDeviceEffect)
	mux.HandleFunc("GET /api/auto-effect", s.handleAutoEffectStatus)
	mux.HandleFunc("POST /api/auto-effect", s.handleAutoEffect)
	mux.HandleFunc("GET /api/ap-status", s.handleAccessPointStatus)
	mux.HandleFunc("POST /api/ap-mode", s.handleAccessPoint)
	mux.HandleFunc("GET /api/led-status", s.handleLEDStatus)
	mux.HandleFunc("POST /api/preset/{name}", s.handlePreset)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/ledger", s.handleLedger)

	mux.Handle("GET /ws", s.hub)

	return s.cors(mux)
}

// Run starts the server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting control API server")

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Control API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.corsOrigin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
