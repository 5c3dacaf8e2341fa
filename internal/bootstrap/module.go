package bootstrap

import (
	"context"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"revbridge/internal/bootstrap/config"
	"revbridge/internal/bootstrap/database"
	"revbridge/internal/bootstrap/logging"
	cacheinfra "revbridge/internal/infrastructure/cache"
	"revbridge/internal/infrastructure/chat"
	sqliterepo "revbridge/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "revbridge/internal/infrastructure/persistence/sqlite/uow"
	"revbridge/internal/infrastructure/source"
	"revbridge/internal/keymutex"
	"revbridge/internal/ports"
	"revbridge/internal/server"
	"revbridge/internal/usecase/conversation"
	"revbridge/internal/usecase/identity"
	"revbridge/internal/usecase/relay"
	"revbridge/internal/usecase/rooms"
	"revbridge/internal/usecase/threads"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideApp),
	fx.Provide(keymutex.New),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewIdentityRepository,
			fx.As(new(ports.IdentityRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewRoomRepository,
			fx.As(new(ports.RoomRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewConversationRepository,
			fx.As(new(ports.ConversationRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewThreadRepository,
			fx.As(new(ports.ThreadRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewReviewRepository,
			fx.As(new(ports.ReviewRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliteuow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(provideCache),
	fx.Provide(provideRoomIntent),
	fx.Provide(provideIdentityService),
	fx.Provide(provideRoomsService),
	fx.Provide(conversation.NewService),
	fx.Provide(provideThreadsService),
	fx.Provide(providePoller),
	fx.Provide(func(p *source.Poller) ports.ReplySubmitter { return p }),
	fx.Provide(server.NewBroker),
	fx.Provide(provideRelayService),
	fx.Provide(provideSources),
	fx.Provide(provideAdminServer),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideApp(cfg config.Config, db *gorm.DB) *App {
	return &App{
		Config: cfg,
		DB:     db,
	}
}

func provideCache(lc fx.Lifecycle, cfg config.Config, db *gorm.DB) ports.Cache {
	if strings.ToLower(cfg.Cache.Backend) != "redis" {
		return cacheinfra.NewSQLiteCache(db)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.Addr,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
	})
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return client.Close()
		},
	})
	return cacheinfra.NewRedisCache(client)
}

func provideRoomIntent(cfg config.Config) ports.RoomIntent {
	if strings.ToLower(cfg.Homeserver.Transport) == "http" {
		return chat.NewClient(chat.Config{
			BaseURL:     cfg.Homeserver.BaseURL,
			AccessToken: cfg.Homeserver.AccessToken,
			BotUserID:   cfg.Homeserver.BotUserID,
		})
	}
	return chat.NewLoopback(cfg.Homeserver.Domain)
}

func provideIdentityService(repo ports.IdentityRepository, locks *keymutex.Sharded, cfg config.Config) *identity.Service {
	return identity.NewService(repo, locks, cfg.Homeserver.Domain, cfg.Source.Name)
}

func provideRoomsService(repo ports.RoomRepository, cache ports.Cache, locks *keymutex.Sharded) *rooms.Service {
	return rooms.NewService(repo, cache, locks)
}

func provideThreadsService(
	lc fx.Lifecycle,
	repo ports.ThreadRepository,
	unit ports.UnitOfWork,
	locks *keymutex.Sharded,
	intent ports.RoomIntent,
	cfg config.Config,
) *threads.Service {
	svc := threads.NewService(repo, unit, locks, intent, threads.Config{
		ArchiveResolved:  cfg.Bridge.ArchiveResolved,
		AutoArchiveAfter: cfg.Bridge.AutoArchiveAfter,
	})
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			svc.Close()
			return nil
		},
	})
	return svc
}

func providePoller(cfg config.Config, cache ports.Cache) *source.Poller {
	return source.NewPoller(source.PollerConfig{
		BaseURL:      cfg.Source.Poller.BaseURL,
		TokenURL:     cfg.Source.Poller.TokenURL,
		ClientID:     cfg.Source.Poller.ClientID,
		ClientSecret: cfg.Source.Poller.ClientSecret,
		AppIDs:       cfg.Source.Poller.AppIDs,
		Interval:     cfg.Source.Poller.Interval,
	}, cache)
}

func provideRelayService(
	identities *identity.Service,
	roomSvc *rooms.Service,
	conversations *conversation.Service,
	threadSvc *threads.Service,
	reviews ports.ReviewRepository,
	intent ports.RoomIntent,
	submitter ports.ReplySubmitter,
	locks *keymutex.Sharded,
	cfg config.Config,
	broker *server.Broker,
) *relay.Service {
	svc := relay.NewService(identities, roomSvc, conversations, threadSvc, reviews, intent, submitter, locks, relay.Config{
		AdminRoomID: cfg.Bridge.AdminRoomID,
		AppNames:    cfg.Bridge.AppNames,
	})
	svc.OnEvent(broker.Publish)
	return svc
}

// provideSources assembles the enabled delivery channels. The run command
// starts one goroutine per source.
func provideSources(cfg config.Config, poller *source.Poller) []ports.ReviewSource {
	sources := make([]ports.ReviewSource, 0, 3)
	if cfg.Source.Poller.Enabled {
		sources = append(sources, poller)
	}
	if cfg.Source.Watcher.Enabled {
		sources = append(sources, source.NewDirWatcher(cfg.Source.Watcher.Dir))
	}
	if cfg.Source.NATS.Enabled {
		sources = append(sources, source.NewNATSSource(source.NATSConfig{
			URL:     cfg.Source.NATS.URL,
			Subject: cfg.Source.NATS.Subject,
			Queue:   cfg.Source.NATS.Queue,
		}))
	}
	return sources
}

func provideAdminServer(
	cfg config.Config,
	identities *identity.Service,
	roomSvc *rooms.Service,
	conversations *conversation.Service,
	threadSvc *threads.Service,
	broker *server.Broker,
) *server.Server {
	return server.New(cfg.Admin.Addr, identities, roomSvc, conversations, threadSvc, broker)
}
