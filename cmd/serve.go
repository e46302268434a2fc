package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/skyroll/internal/server"
	"github.com/desertthunder/skyroll/internal/shared"
	"github.com/desertthunder/skyroll/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"
)

const defaultRequestTimeout = 60 * time.Second

// Serve runs the HTTP API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := r.Manager(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize providers: %w", err)
	}

	sc := r.config.Server
	if host := cmd.String("host"); host != "" {
		sc.Host = host
	}
	if port := cmd.Int("port"); port > 0 {
		sc.Port = port
	}

	opts := server.HandlerOptions{
		Logger:         shared.WithLogger(r.logger, "component", "http"),
		RequestTimeout: cmd.Duration("request-timeout"),
	}
	if limits := r.config.Limits; limits.RequestsPerSecond > 0 {
		opts.Limiter = server.NewRateLimiter(rate.Limit(limits.RequestsPerSecond), max(limits.Burst, 1))
	}

	api := server.NewAPI(m, tasks.NewRefresher(m, r.logger), r.logger, r.config.Gallery.PageSize)
	return server.Serve(ctx, sc.Addr(), server.NewHandler(api, opts), r.logger)
}
