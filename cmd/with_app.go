package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"revbridge/internal/bootstrap"
	"revbridge/internal/bootstrap/logging"
	"revbridge/internal/errs"
	"revbridge/internal/ports"
	"revbridge/internal/server"
	"revbridge/internal/usecase/conversation"
	"revbridge/internal/usecase/identity"
	"revbridge/internal/usecase/relay"
	"revbridge/internal/usecase/rooms"
	"revbridge/internal/usecase/threads"
)

// services bundles everything a command can reach after bootstrap.
type services struct {
	App           *bootstrap.App
	Identities    *identity.Service
	Rooms         *rooms.Service
	Conversations *conversation.Service
	Threads       *threads.Service
	Relay         *relay.Service
	Sources       []ports.ReviewSource
	Admin         *server.Server
}

func withApp(run func(cmd *cobra.Command, svc *services) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := logging.WithAttrs(
			cmd.Context(),
			slog.String("command", cmd.CommandPath()),
			slog.String("config_file", cfgFile),
		)

		svc := &services{}
		fxApp := fx.New(
			bootstrap.Module,
			fx.Provide(func() context.Context { return ctx }),
			fx.Provide(
				fx.Annotate(
					func() string { return cfgFile },
					fx.ResultTags(`name:"configFile"`),
				),
			),
			fx.Populate(
				&svc.App,
				&svc.Identities,
				&svc.Rooms,
				&svc.Conversations,
				&svc.Threads,
				&svc.Relay,
				&svc.Sources,
				&svc.Admin,
			),
		)

		startCtx, cancelStart := context.WithTimeout(ctx, 10*time.Second)
		defer cancelStart()
		if err := fxApp.Start(startCtx); err != nil {
			logging.Error(ctx, "bootstrap application failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "start fx application")
		}

		defer func() {
			stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelStop()
			if err := fxApp.Stop(stopCtx); err != nil {
				logging.Error(ctx, "fx application stop failed", slog.Any("err", errs.Loggable(err)))
			}
		}()

		if err := run(cmd, svc); err != nil {
			return errs.Wrap(err, "run command")
		}
		return nil
	}
}
