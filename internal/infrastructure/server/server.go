package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/DeskShell/backend/internal/api/http"
	"github.com/GriffinCanCode/DeskShell/backend/internal/api/middleware"
	"github.com/GriffinCanCode/DeskShell/backend/internal/api/ws"
	"github.com/GriffinCanCode/DeskShell/backend/internal/domain/broadcast"
	"github.com/GriffinCanCode/DeskShell/backend/internal/domain/command"
	"github.com/GriffinCanCode/DeskShell/backend/internal/domain/lifecycle"
	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/monitoring"
)

// Lifecycle is what the transport needs from the lifecycle controller.
type Lifecycle interface {
	Query() lifecycle.Snapshot
	Subscribe() (lifecycle.Snapshot, *broadcast.Subscription[lifecycle.Event])
	Logs() *broadcast.Hub[string]
}

// Options wires the server to the daemon's components.
type Options struct {
	Config     *config.Config
	Controller Lifecycle
	Commands   apihttp.Dispatcher
	Metrics    *monitoring.Metrics
	Logger     *logging.Logger
}

// Server wraps the HTTP server and its router
type Server struct {
	router *gin.Engine
	http   *http.Server
	logger *logging.Logger
	config *config.Config
}

// NewServer builds the router and the HTTP server around it.
func NewServer(opts Options) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID(logger.Component("http")))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	handlers := apihttp.NewHandlers(opts.Commands, opts.Controller, logger.Component("api"), cfg.Shell.AppName, cfg.Shell.AppVersion)
	origins := command.OriginPolicy{AllowOpaque: cfg.Server.AllowNullOrigin}
	wsHandler := ws.NewHandler(opts.Controller, opts.Controller.Logs(), logger.Component("ws")).WithOrigins(origins)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	api.GET("/commands", handlers.ListCommands)
	api.POST("/command", handlers.Command)

	router.GET("/ws/events", wsHandler.HandleEvents)
	router.GET("/ws/logs", middleware.TrustedOriginOnly(origins), wsHandler.HandleLogs)

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
		config: cfg,
	}
}

// Router returns the gin engine.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// Run listens on the configured address and serves until Shutdown.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
// WebSocket streams are hijacked and end when the hubs close.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.http.Shutdown(ctx)
}
