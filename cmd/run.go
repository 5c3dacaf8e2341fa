package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"revbridge/internal/bootstrap/logging"
	"revbridge/internal/errs"
	"revbridge/internal/ports"
	"revbridge/internal/usecase/rooms"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge until interrupted",
	Long:  "Starts the enabled review sources, the admin API and the periodic maintenance loop, then blocks until SIGINT/SIGTERM.",
	RunE: withApp(func(cmd *cobra.Command, svc *services) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		if err := svc.App.InitSchema(ctx); err != nil {
			return errs.Wrap(err, "initialize schema")
		}

		if path := svc.App.Config.Bridge.SeedFile; path != "" {
			seed, err := rooms.LoadSeedFile(path)
			if err != nil {
				return errs.Wrap(err, "load seed file")
			}
			applied, err := svc.Rooms.ApplySeed(ctx, seed)
			if err != nil {
				return errs.Wrap(err, "apply seed file")
			}
			logging.Info(ctx, "seed file applied", slog.String("path", path), slog.Int("bindings", applied))
		}

		runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		for _, src := range svc.Sources {
			go func(src ports.ReviewSource) {
				if err := src.Start(runCtx, svc.Relay); err != nil && !errors.Is(err, context.Canceled) {
					logging.Error(runCtx, "review source stopped", slog.Any("err", errs.Loggable(err)))
				}
			}(src)
		}
		logging.Info(runCtx, "review sources started", slog.Int("count", len(svc.Sources)))

		if svc.App.Config.Admin.Enabled {
			go func() {
				if err := svc.Admin.Start(); err != nil {
					logging.Error(runCtx, "admin server stopped", slog.Any("err", errs.Loggable(err)))
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = svc.Admin.Shutdown(shutdownCtx)
			}()
			logging.Info(runCtx, "admin server started", slog.String("addr", svc.App.Config.Admin.Addr))
		}

		go maintenanceLoop(runCtx, svc)

		logging.Info(runCtx, "bridge running")
		<-runCtx.Done()
		logging.Info(ctx, "shutdown requested")
		return nil
	}),
}

// maintenanceLoop periodically reaps inactive identities and removes
// expired non-active threads. Both jobs are bounded by config and disabled
// when their max age is zero.
func maintenanceLoop(ctx context.Context, svc *services) {
	tick := svc.App.Config.Bridge.MaintenanceTick
	if tick <= 0 {
		return
	}
	identityMaxAge := svc.App.Config.Bridge.IdentityMaxAge
	threadMaxAge := svc.App.Config.Bridge.ThreadMaxAge
	if identityMaxAge <= 0 && threadMaxAge <= 0 {
		return
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if identityMaxAge > 0 {
				reaped, err := svc.Identities.ReapInactive(ctx, identityMaxAge)
				if err != nil {
					logging.Error(ctx, "identity reap failed", slog.Any("err", errs.Loggable(err)))
				} else if reaped > 0 {
					logging.Info(ctx, "inactive identities reaped", slog.Int64("count", reaped))
				}
			}
			if threadMaxAge > 0 {
				removed, err := svc.Threads.CleanupExpired(ctx, threadMaxAge)
				if err != nil {
					logging.Error(ctx, "thread cleanup failed", slog.Any("err", errs.Loggable(err)))
				} else if removed > 0 {
					logging.Info(ctx, "expired threads removed", slog.Int("count", removed))
				}
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
}
