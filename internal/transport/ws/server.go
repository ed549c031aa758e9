package ws

import (
	"context"
	"net/http"
	"time"

	"voicetask-server-go/internal/platform/logging"
)

const (
	defaultVoicePath     = "/voice"
	defaultStaleTimeout  = 5 * time.Minute
	defaultSweepInterval = time.Minute
)

// ServerConfig holds the listen settings for the voice ingest endpoint.
// Zero values fall back to defaults; StaleTimeout < 0 disables the sweep.
type ServerConfig struct {
	Addr             string
	Path             string
	HandshakeTimeout time.Duration
	StaleTimeout     time.Duration
	SweepInterval    time.Duration
}

// Server exposes the websocket upgrade endpoint and owns the transport
// lifecycle: listening, the stale-connection sweep, and draining sessions
// on shutdown.
type Server struct {
	cfg     ServerConfig
	hub     *Hub
	router  *Router
	logger  *logging.Logger
	httpSrv *http.Server
}

func NewServer(cfg ServerConfig, router *Router, hub *Hub, logger *logging.Logger) *Server {
	if cfg.Path == "" {
		cfg.Path = defaultVoicePath
	}
	if cfg.StaleTimeout == 0 {
		cfg.StaleTimeout = defaultStaleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	return &Server{
		cfg:    cfg,
		router: router,
		hub:    hub,
		logger: logger,
	}
}

// SetHandlerBuilder wires the factory invoked for each upgraded connection.
func (s *Server) SetHandlerBuilder(builder HandlerBuilder) {
	s.router.SetHandlerBuilder(builder)
}

// Start listens for websocket upgrades until ctx is cancelled or the
// listener fails. Blocks for the lifetime of the server.
func (s *Server) Start(ctx context.Context) error {
	if s.httpSrv != nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.router.Handle)
	s.httpSrv = &http.Server{Addr: s.cfg.Addr, Handler: mux}

	if ctx == nil {
		ctx = context.Background()
	}

	go s.runSweeper(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeoutCause(context.Background(), defaultCloseTimeout, context.Cause(ctx))
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
	}()

	if s.logger != nil {
		s.logger.InfoTag("WS", "voice ingest listening on %s%s", s.cfg.Addr, s.cfg.Path)
	}

	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// runSweeper periodically reaps sessions whose clients went silent.
func (s *Server) runSweeper(ctx context.Context) {
	if s.cfg.StaleTimeout < 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if reaped := s.hub.SweepStale(s.cfg.StaleTimeout); reaped > 0 && s.logger != nil {
				s.logger.InfoTag("WS", "stale sweep closed %d session(s), %d remaining", reaped, s.hub.Count())
			}
		}
	}
}

// Stop drains the listener and closes every live session.
func (s *Server) Stop() error {
	if s.httpSrv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeoutCause(context.Background(), defaultCloseTimeout, ErrServerShutdown)
	defer cancel()

	err := s.httpSrv.Shutdown(shutdownCtx)
	s.hub.CloseAll(ErrServerShutdown)
	s.httpSrv = nil

	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// ActiveSessions reports how many voice sessions are currently live.
func (s *Server) ActiveSessions() int {
	return s.hub.Count()
}
