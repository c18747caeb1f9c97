package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/treenet/internal/observability"
	"github.com/danmuck/treenet/internal/peer"
	"github.com/danmuck/treenet/internal/topology"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const version = "0.1.0"

// Controller is the slice of a peer the admin surface reads and drives.
type Controller interface {
	Status() peer.Status
	Topology() ([]topology.NodeInfo, error)
	Submit(cmd peer.Command) error
	IsRoot() bool
}

type Config struct {
	Addr        string
	Node        string
	CorsOrigins []string
	// Token, when set, is required as a bearer token on POST /commands.
	Token string
	// ShutdownTimeout bounds graceful shutdown once the serve context ends.
	ShutdownTimeout time.Duration
}

type Server struct {
	cfg      Config
	ctl      Controller
	log      zerolog.Logger
	router   *gin.Engine
	appeared time.Time
}

func New(cfg Config, ctl Controller, logger zerolog.Logger) *Server {
	observability.RegisterMetrics()
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetricsMiddleware(cfg.Node))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:      cfg,
		ctl:      ctl,
		log:      logger,
		router:   r,
		appeared: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on cfg.Addr until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("admin listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Msg("admin shutdown")
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
