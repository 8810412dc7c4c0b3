package httpserver

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Server wraps the HTTP server setup.
type Server struct {
	httpServer *http.Server
	logger     *log.Logger
}

// Probe is a dependency checked by /readyz. A failing optional probe is
// reported but leaves the service ready, as the cart cache degrades to the
// store.
type Probe struct {
	Name     string
	Optional bool
	Ping     func(ctx context.Context) error
}

// New builds a Server with all routes.
func New(addr string, logger *log.Logger, deps Deps) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	router, err := buildRouter(logger, deps)
	if err != nil {
		return nil, err
	}

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	return &Server{
		httpServer: httpSrv,
		logger:     logger,
	}, nil
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Handler exposes the router, mainly for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func readyHandler(storage string, probes []Probe) gin.HandlerFunc {
	if storage == "" {
		storage = "memory"
	}
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		status, code := "ready", http.StatusOK
		checks := make(gin.H, len(probes))
		for _, p := range probes {
			if err := p.Ping(ctx); err != nil {
				checks[p.Name] = "unreachable"
				if !p.Optional {
					status, code = "unavailable", http.StatusServiceUnavailable
				}
				continue
			}
			checks[p.Name] = "ok"
		}
		c.JSON(code, gin.H{"status": status, "storage": storage, "checks": checks})
	}
}
