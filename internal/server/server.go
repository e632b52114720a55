package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"browsermcp/internal/browser"
	"browsermcp/internal/logging"
)

// SessionProvider hands out the shared browser session and accepts
// invalidation reports when a handler observes a dead one.
type SessionProvider interface {
	Acquire(ctx context.Context) (browser.Session, error)
	Invalidate(session browser.Session)
}

// Options carries the façade-level knobs. LocateBrowser is only consulted by
// /health to report which binary would serve the next bootstrap.
type Options struct {
	Host          string
	Port          string
	DryRun        bool
	ActionTimeout time.Duration
	LocateBrowser func() (string, error)
}

// Server is the HTTP façade over the session provider. All discovery
// endpoints answer from static data; only /mcp/invoke touches the browser.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	provider   SessionProvider
	opts       Options
	logger     *logging.Logger
	startTime  time.Time
}

// New builds the engine, routes, and the underlying http.Server.
func New(opts Options, provider SessionProvider, logger *logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
	engine.Use(cors.New(corsConfig))

	s := &Server{
		engine:    engine,
		provider:  provider,
		opts:      opts,
		logger:    logging.OrNop(logger),
		startTime: time.Now(),
	}
	s.registerRoutes()

	actionTimeout := opts.ActionTimeout
	if actionTimeout <= 0 {
		actionTimeout = 60 * time.Second
	}
	s.httpServer = &http.Server{
		Addr:        net.JoinHostPort(opts.Host, opts.Port),
		Handler:     engine,
		ReadTimeout: 15 * time.Second,
		// Invocations can legitimately run for a full action timeout; leave
		// headroom for serialization of large screenshots.
		WriteTimeout: actionTimeout + 15*time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/mcp/schema", s.handleSchema)
	s.engine.POST("/mcp/invoke", s.handleInvoke)
	s.engine.GET("/", s.handleManifest)
	s.engine.POST("/", s.handleManifest)
	s.engine.GET("/live", s.handleLive)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Handler exposes the engine for httptest-driven tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start blocks serving requests until Shutdown is called or the listener
// fails.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
