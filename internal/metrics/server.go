package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Handler serves g on GET /metrics and a liveness check on GET /health.
func Handler(g *Generation) http.Handler {
	if g == nil {
		g = NewGeneration()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(g.Registry(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	return r
}

// Server exposes a Generation over HTTP for the length of a run.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Serve starts listening on addr in the background. Use ":0" for any free
// port and Addr to find it.
func Serve(addr string, g *Generation, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.L()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, eris.Wrapf(err, "metrics: listen on %s", addr)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           Handler(g),
			ReadHeaderTimeout: 10 * time.Second,
		},
		ln: ln,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()

	log.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return s, nil
}

// Addr is the address the server listens on.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Shutdown stops the server, waiting for in-flight scrapes until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return eris.Wrap(s.srv.Shutdown(ctx), "metrics: shutdown")
}
