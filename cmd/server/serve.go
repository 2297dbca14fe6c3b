package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/iliyamo/meal-reservation/internal/config"
	"github.com/iliyamo/meal-reservation/internal/handler"
	"github.com/iliyamo/meal-reservation/internal/queue"
	"github.com/iliyamo/meal-reservation/internal/repository"
	"github.com/iliyamo/meal-reservation/internal/router"
)

var (
	serveNoSweeper bool
	serveAudit     bool
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the background sweeper",
		Long: `Start the HTTP API.

The payment-timeout and no-show sweeper runs every SWEEP_INTERVAL unless
--no-sweeper is set.  With --audit and AMQP_URL set, lifecycle events are
also consumed and appended to the audit log.

Examples:
  meal-server serve
  meal-server serve --audit`,
		RunE: runServe,
	}
	cmd.Flags().BoolVar(&serveNoSweeper, "no-sweeper", false, "do not run the background sweeper")
	cmd.Flags().BoolVar(&serveAudit, "audit", false, "consume lifecycle events into the audit log")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := config.NewRedisClient()
	if rdb == nil {
		a.logger.Warn("redis unavailable: rate limiting and menu cache disabled")
	} else {
		defer rdb.Close()
	}
	cacheCfg := config.LoadCacheConfig()

	e := echo.New()
	e.HideBanner = true
	e.Logger = a.logger
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	router.Register(e, router.Handlers{
		Health:       handler.Health(a.db),
		Menu:         handler.NewMenuHandler(a.svc.Allocator),
		Reservations: handler.NewReservationHandler(a.svc.Reservations, a.svc.Delivery),
		Payments:     handler.NewPaymentHandler(a.svc.Payments),
		Kitchen:      handler.NewKitchenHandler(a.svc.Reservations, a.svc.Delivery),
		Admin:        handler.NewAdminHandler(a.svc.Trust, repository.NewCatalogRepo(a.db), rdb, cacheCfg.Prefix),
	}, router.Options{
		JWTSecret: a.cfg.JWTSecret,
		Redis:     rdb,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     cacheCfg,
	})

	if !serveNoSweeper {
		go a.svc.Sweeper.Run(ctx, a.cfg.Policy.SweepInterval)
	}
	if serveAudit && a.cfg.AMQPURL != "" {
		go func() {
			if err := queue.StartAuditConsumer(ctx, a.cfg.AMQPURL, a.logger); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Errorf("audit consumer: %v", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + a.cfg.Port
		a.logger.Infof("listening on %s (env=%s)", addr, a.cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
