// Package api exposes the operator control surface over HTTP. It is a
// thin layer: every route delegates to the automation service, which
// owns all workspace state.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"dmflow/internal/automation"
	"dmflow/internal/eventbus"
	"dmflow/pkg/logx"
)

type Config struct {
	Enabled     bool
	Addr        string // default: "127.0.0.1:8090"
	CORSOrigins []string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

const recentEventsCap = 100

type Server struct {
	cfg Config
	log logx.Logger
	srv *http.Server

	// recent bus events, newest first, for GET /events.
	evMu   sync.Mutex
	events []eventbus.Event
	unsub  func()

	stopOnce sync.Once
}

func NewServer(cfg Config, svc *automation.Service, bus eventbus.Bus, log logx.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8090"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{cfg: cfg, log: log.With(logx.String("svc", "api"))}
	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router(svc),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	if bus != nil {
		ch, unsub := bus.Subscribe(recentEventsCap)
		s.unsub = unsub
		go s.collectEvents(ch)
	}
	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start begins listening. The returned error channel yields at most one
// error if the listener dies; callers may ignore it.
func (s *Server) Start(ctx context.Context) (<-chan error, error) {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return nil, err
	}
	s.log.Info("api listening", logx.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("api server stopped", logx.Err(err))
			errCh <- err
		}
		close(errCh)
	}()
	return errCh, nil
}

func (s *Server) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		if s.unsub != nil {
			s.unsub()
		}
		if err := s.srv.Shutdown(ctx); err != nil {
			s.log.Warn("api shutdown", logx.Err(err))
		}
	})
}

func (s *Server) collectEvents(ch <-chan eventbus.Event) {
	for ev := range ch {
		s.evMu.Lock()
		s.events = append([]eventbus.Event{ev}, s.events...)
		if len(s.events) > recentEventsCap {
			s.events = s.events[:recentEventsCap]
		}
		s.evMu.Unlock()
	}
}

func (s *Server) recentEvents() []eventbus.Event {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	return append([]eventbus.Event(nil), s.events...)
}
