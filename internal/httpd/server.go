// Package httpd exposes the configurator's HTTP surface: the data source
// registry routes, a health check, and Prometheus metrics.
package httpd

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/matchforge/configurator/pkg/errors"
	"github.com/matchforge/configurator/pkg/logger"
	"github.com/matchforge/configurator/pkg/observability"
)

// serviceName tags tracing spans emitted by the HTTP middleware.
const serviceName = "matchforge-configurator"

// Options configures a Server.
type Options struct {
	// Addr is the host:port to listen on.
	Addr string

	// Service answers the datasource and health routes.
	Service ConfigService

	// MaxConnections caps concurrently accepted connections when > 0.
	MaxConnections int
}

// Server is the HTTP facade. Construct with NewServer, run with Start,
// stop with Stop.
type Server struct {
	httpServer *http.Server
	addr       string
	maxConns   int
	logger     *zap.Logger
}

// newRouter wires the middleware chain and routes.
func newRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(recovery)
	r.Use(requestLogger)
	r.Use(observability.Middleware(serviceName))
	r.Use(jsonContentType)

	r.Get("/datasources", handler.GetDataSources)
	r.Post("/datasources", handler.AddDataSources)
	r.Get("/health", handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// NewServer builds the router, middleware chain, and http.Server.
func NewServer(opts Options) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      newRouter(NewHandler(opts.Service)),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		addr:     opts.Addr,
		maxConns: opts.MaxConnections,
		logger:   logger.Get().With(zap.String("component", "httpd")),
	}
}

// Start opens the listener and serves until Stop is called. It returns
// nil on a clean shutdown.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "cannot open http listener").
			WithDetail("addr", s.addr)
	}
	if s.maxConns > 0 {
		listener = netutil.LimitListener(listener, s.maxConns)
	}

	s.logger.Info("http server listening",
		zap.String("addr", s.addr),
		zap.Int("max_connections", s.maxConns))

	if err := s.httpServer.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, errors.ErrorTypeConnection, "http server failed")
	}
	return nil
}

// Stop drains in-flight requests and closes the listener. The context
// bounds the drain.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
