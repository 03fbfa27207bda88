package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/headwalluk/vulnz-agent/internal/api"
	"github.com/headwalluk/vulnz-agent/internal/application"
	sharedErrors "github.com/headwalluk/vulnz-agent/internal/shared/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin API and the hourly sync",
	Long: `Serve the authenticated admin API (summary, settings, sync now, run
history) and report the site's plugins to the Vulnz API on a fixed interval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		cfg := appCtx.Config
		flags := cmd.Flags()

		setStringFlagIfUnset(flags, "addr", cfg.Serve.Addr)
		setStringFlagIfUnset(flags, "auth-token", cfg.Serve.AuthToken)
		addr, _ := flags.GetString("addr")
		authToken, _ := flags.GetString("auth-token")

		rateLimit, _ := flags.GetInt("rate-limit")
		rateBurst, _ := flags.GetInt("rate-burst")
		shutdownTimeout, _ := flags.GetDuration("shutdown-timeout")
		interval, _ := flags.GetDuration("interval")
		runOnStart, _ := flags.GetBool("run-on-start")
		corsOrigins, _ := flags.GetStringSlice("cors-origins")

		applyIntDefault(flags, "rate-limit", cfg.Serve.RateLimit, func(v int) { rateLimit = v })
		applyIntDefault(flags, "rate-burst", cfg.Serve.RateBurst, func(v int) { rateBurst = v })
		applyDurationDefault(flags, "shutdown-timeout", cfg.Serve.ShutdownTimeout, func(v time.Duration) { shutdownTimeout = v })
		applyDurationDefault(flags, "interval", cfg.Schedule.Interval, func(v time.Duration) { interval = v })
		applyBoolDefault(flags, "run-on-start", cfg.Schedule.RunOnStart, func(v bool) { runOnStart = v })
		if !flags.Changed("cors-origins") {
			corsOrigins = cfg.Serve.CORSOrigins
		}

		if interval <= 0 {
			return fmt.Errorf("--interval must be positive")
		}

		services, err := appCtx.Services()
		if err != nil {
			return err
		}
		logger := appCtx.Logger.Desugar()

		nonces, err := api.NewNonceManager(cfg.Serve.NonceSecret, 0)
		if err != nil {
			return fmt.Errorf("failed to create nonce manager: %w", err)
		}

		server := api.NewServer(api.Config{
			Website:     services,
			Sync:        services,
			Settings:    services.Settings,
			Runs:        services.Runs,
			Health:      services,
			Nonces:      nonces,
			AuthToken:   authToken,
			Logger:      logger,
			CORSOrigins: corsOrigins,
			RateLimit:   rateLimit,
			RateBurst:   rateBurst,
		})

		httpServer := &http.Server{
			Addr:         addr,
			Handler:      server,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		schedulerDone := make(chan struct{})
		go func() {
			defer close(schedulerDone)
			runScheduler(ctx, services, interval, runOnStart, logger)
		}()

		serverErrors := make(chan error, 1)
		go func() {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Admin API listening on %s (site: %s)\n", colorInfo("→"), addr, displayOrDash(services.Site.URL))
			fmt.Fprintf(out, "%s Syncing every %s. Press Ctrl+C to shut down\n", colorInfo("→"), interval)
			serverErrors <- httpServer.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		var runErr error
		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				runErr = fmt.Errorf("server error: %w", err)
			}
		case sig := <-shutdown:
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s Received signal %v, initiating graceful shutdown...\n", colorInfo("→"), sig)

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				if closeErr := httpServer.Close(); closeErr != nil {
					runErr = fmt.Errorf("failed to gracefully shutdown server: %w (close error: %v)", err, closeErr)
				} else {
					runErr = fmt.Errorf("failed to gracefully shutdown server: %w", err)
				}
			}
		}

		cancel()
		<-schedulerDone
		if runErr == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s Server shutdown complete\n", colorSuccess("✓"))
		}
		return runErr
	},
}

// scheduledRunner is the periodic task the scheduler triggers.
type scheduledRunner interface {
	RunScheduled(ctx context.Context) error
}

var _ scheduledRunner = (*application.Container)(nil)

// runScheduler fires the scheduled sync on a fixed interval until ctx is
// cancelled. Ticks never overlap.
func runScheduler(ctx context.Context, runner scheduledRunner, interval time.Duration, runOnStart bool, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tick := func() {
		err := runner.RunScheduled(ctx)
		switch {
		case err == nil:
			logger.Info("scheduled sync finished")
		case errors.Is(err, sharedErrors.ErrSyncDisabled):
			logger.Debug("scheduled sync skipped", zap.Error(err))
		case ctx.Err() != nil:
		default:
			logger.Warn("scheduled sync failed", zap.Error(err))
		}
	}

	if runOnStart {
		tick()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

func displayOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	serveCmd.Flags().String("addr", defaultServeAddr, "Address for the admin API")
	serveCmd.Flags().String("auth-token", "", "Shared secret required in the X-Auth-Token header")
	serveCmd.Flags().Duration("shutdown-timeout", defaultShutdownTimeout, "Graceful shutdown timeout")
	serveCmd.Flags().Duration("interval", 0, "Sync interval (default from schedule.interval, 1h)")
	serveCmd.Flags().Bool("run-on-start", true, "Run a scheduled sync immediately on start")
	serveCmd.Flags().StringSlice("cors-origins", []string{}, "Allowed CORS origins (empty = allow all)")
	serveCmd.Flags().Int("rate-limit", defaultRateLimit, "Rate limit per IP (requests/second, 0 = disabled)")
	serveCmd.Flags().Int("rate-burst", defaultRateBurst, "Rate limit burst size")
	rootCmd.AddCommand(serveCmd)
}
