package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/lifesaver/internal/profile"
	"github.com/hrygo/lifesaver/plugin/ai/metrics"
	"github.com/hrygo/lifesaver/plugin/ai/orchestrator"
	"github.com/hrygo/lifesaver/plugin/ai/session"
	apiv1 "github.com/hrygo/lifesaver/server/router/api/v1"
	"github.com/hrygo/lifesaver/store"
)

const (
	shutdownTimeout = 10 * time.Second
	sweepInterval   = time.Minute
)

// Server owns the HTTP listener and the background housekeeping jobs.
type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	service    *apiv1.APIV1Service
	cleanup    *session.CleanupJob
}

// NewServer wires the API onto a new echo instance.
func NewServer(profile *profile.Profile, s *store.Store, orch *orchestrator.Orchestrator, agg *metrics.Aggregator) *Server {
	e := echo.New()
	e.Debug = true
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64K"))

	service := apiv1.NewAPIV1Service(profile, orch, agg)
	service.RegisterRoutes(e)

	return &Server{
		Profile:    profile,
		Store:      s,
		echoServer: e,
		service:    service,
		cleanup: session.NewCleanupJob(s, session.CleanupConfig{
			Retention:       profile.SessionRetention,
			CleanupInterval: profile.CleanupInterval,
		}),
	}
}

// Handler exposes the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	address := net.JoinHostPort(s.Profile.Addr, fmt.Sprint(s.Profile.Port))
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.echoServer.Listener = listener

	s.cleanup.Start(ctx)
	defer s.cleanup.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("lifesaver server started", "address", address, "mode", s.Profile.Mode, "driver", s.Profile.Driver)
		if err := s.echoServer.Start(address); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := s.service.Limiter().Sweep(); n > 0 {
					slog.Debug("idle rate limiters dropped", "count", n)
				}
			}
		}
	})
	g.Go(func() error {
		<-ctx.Done()
		return s.Shutdown(context.WithoutCancel(ctx))
	})
	return g.Wait()
}

// Shutdown stops accepting requests and waits for in-flight turns.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	slog.Info("server shutting down")
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
		return err
	}
	return nil
}
