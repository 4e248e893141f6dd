package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Options configures the HTTP server
type Options struct {
	Name            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

func (o *Options) setDefaults() {
	if o.Name == "" {
		o.Name = "broadcast-service"
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 5 * time.Second
	}
	// Broadcast start waits for the group sync and the tag check
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 30 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 2 * time.Minute
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 30 * time.Second
	}
}

// Server serves the account and broadcast HTTP API
type Server struct {
	Router *router.Router

	server   *fasthttp.Server
	opts     Options
	listener net.Listener
	done     chan struct{}
	logger   zerolog.Logger
}

// NewServer creates a fasthttp server with a router that recovers from handler panics
func NewServer(opts Options, logger zerolog.Logger) *Server {
	opts.setDefaults()
	log := logger.With().Str("component", "http_server").Logger()

	r := router.New()
	r.PanicHandler = func(ctx *fasthttp.RequestCtx, v interface{}) {
		log.Error().
			Interface("panic", v).
			Str("method", string(ctx.Method())).
			Str("path", string(ctx.Path())).
			Msg("handler panicked")
		ctx.Error(`{"success":false,"error":"internal server error"}`, fasthttp.StatusInternalServerError)
		ctx.SetContentType("application/json")
	}

	return &Server{
		Router: r,
		server: &fasthttp.Server{
			Handler:      r.Handler,
			Name:         opts.Name,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  opts.IdleTimeout,
		},
		opts:   opts,
		logger: log,
	}
}

// RegisterMetrics exposes the prometheus registry on /metrics
func (s *Server) RegisterMetrics() {
	s.Router.GET("/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))
}

// Start binds the port and serves in the background, a bind error fails startup
func (s *Server) Start() error {
	ln, err := net.Listen("tcp4", ":"+s.opts.Port)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", s.opts.Port, err)
	}
	s.listener = ln
	s.done = make(chan struct{})

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")

	go func() {
		defer close(s.done)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Error().Err(err).Msg("HTTP server stopped unexpectedly")
		}
	}()
	return nil
}

// Addr returns the bound address, empty before Start
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown waits for open requests within the shutdown timeout
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
	defer cancel()

	if err := s.server.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	<-s.done

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}
