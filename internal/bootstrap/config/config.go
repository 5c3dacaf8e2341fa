package config

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"revbridge/internal/bootstrap/logging"
	"revbridge/internal/errs"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Homeserver HomeserverConfig `mapstructure:"homeserver"`
	Source     SourceConfig     `mapstructure:"source"`
	Bridge     BridgeConfig     `mapstructure:"bridge"`
	Admin      AdminConfig      `mapstructure:"admin"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// CacheConfig selects the shortcut-cache backend. sqlite reuses the main
// database file; redis needs an address.
type CacheConfig struct {
	Backend  string `mapstructure:"backend"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type HomeserverConfig struct {
	// Transport is "http" for a real homeserver or "loopback" for dry
	// runs without one.
	Transport   string `mapstructure:"transport"`
	BaseURL     string `mapstructure:"base_url"`
	AccessToken string `mapstructure:"access_token"`
	Domain      string `mapstructure:"domain"`
	BotUserID   string `mapstructure:"bot_user_id"`
}

type SourceConfig struct {
	// Name labels where reviews come from; it shows up in placeholder
	// display names.
	Name    string           `mapstructure:"name"`
	Poller  PollerConfig     `mapstructure:"poller"`
	Watcher WatcherConfig    `mapstructure:"watcher"`
	NATS    NATSSourceConfig `mapstructure:"nats"`
}

type PollerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	BaseURL      string        `mapstructure:"base_url"`
	TokenURL     string        `mapstructure:"token_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	AppIDs       []string      `mapstructure:"app_ids"`
	Interval     time.Duration `mapstructure:"interval"`
}

type WatcherConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

type NATSSourceConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
	Queue   string `mapstructure:"queue"`
}

type BridgeConfig struct {
	AdminRoomID      string            `mapstructure:"admin_room_id"`
	AppNames         map[string]string `mapstructure:"app_names"`
	ArchiveResolved  bool              `mapstructure:"archive_resolved"`
	AutoArchiveAfter time.Duration     `mapstructure:"auto_archive_after"`
	// SeedFile, when set, is an apps.toml applied on every `run` start.
	SeedFile string `mapstructure:"seed_file"`
	// IdentityMaxAge bounds how long an inactive virtual identity is kept
	// before the reaper removes it. Zero disables reaping.
	IdentityMaxAge time.Duration `mapstructure:"identity_max_age"`
	// ThreadMaxAge bounds how long a non-active thread survives before
	// cleanup. Zero disables cleanup.
	ThreadMaxAge    time.Duration `mapstructure:"thread_max_age"`
	MaintenanceTick time.Duration `mapstructure:"maintenance_tick"`
}

type AdminConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	v := viper.New()
	setDefaults(logCtx, v)

	v.SetEnvPrefix("RB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			// Keep default and env-backed config when no file is provided.
			logging.Warn(logCtx, "config file not found, fallback to defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}

	if cfg.Database.DSN == "" {
		return Config{}, errors.New("database.dsn is required")
	}
	if cfg.Homeserver.Domain == "" {
		return Config{}, errors.New("homeserver.domain is required")
	}
	if strings.ToLower(cfg.Homeserver.Transport) == "http" && cfg.Homeserver.BaseURL == "" {
		return Config{}, errors.New("homeserver.base_url is required for the http transport")
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("homeserver_transport", cfg.Homeserver.Transport),
	)

	return cfg, nil
}

func setDefaults(ctx context.Context, v *viper.Viper) {
	if ctx == nil {
		return
	}

	v.SetDefault("app.name", "revbridge")
	v.SetDefault("app.env", "local")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "data/revbridge.sqlite")
	v.SetDefault("cache.backend", "sqlite")
	v.SetDefault("homeserver.transport", "loopback")
	v.SetDefault("homeserver.domain", "example.org")
	v.SetDefault("source.name", "appstore")
	v.SetDefault("source.poller.interval", 5*time.Minute)
	v.SetDefault("source.nats.subject", "reviews.incoming")
	v.SetDefault("bridge.archive_resolved", true)
	v.SetDefault("bridge.auto_archive_after", time.Hour)
	v.SetDefault("bridge.maintenance_tick", time.Hour)
	v.SetDefault("admin.addr", "127.0.0.1:8480")
}
