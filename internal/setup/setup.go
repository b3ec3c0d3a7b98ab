package setup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mnhsh/digital-capsule/internal/config"
	"github.com/mnhsh/digital-capsule/internal/database"
	"github.com/mnhsh/digital-capsule/internal/logging"
	"github.com/mnhsh/digital-capsule/internal/render"
	"github.com/mnhsh/digital-capsule/internal/source"
	"github.com/mnhsh/digital-capsule/internal/storage"
	"go.uber.org/zap"
)

var ErrUnknownDriver = errors.New("unknown store driver")

// App bundles the collaborators every command needs.
type App struct {
	Config     *config.Config // Loaded configuration
	ConfigPath string         // File the configuration came from, if any
	Logger     *zap.Logger    // Main application logger
	Source     source.Source  // Entry store
	Resolver   render.URLResolver
	TimeFormat render.TimeFormat
	Target     time.Time // Reveal instant
	closers    []func() error
}

// InitializeApp loads the configuration and builds the logger, entry source
// and attachment resolver. A store that is not configured does not fail
// startup; the source then reports ErrConfigurationMissing when subscribed.
func InitializeApp(ctx context.Context, configPath string) (*App, error) {
	cfg, usedPath, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.Setup(cfg.Debug.LogDir, cfg.Debug.LogLevel, cfg.Debug.MaxLogsToKeep)
	if err != nil {
		return nil, err
	}
	if usedPath == "" {
		logger.Warn("No config file found, running on defaults and environment")
	} else {
		logger.Info("Loaded config", zap.String("path", usedPath))
	}

	target, err := cfg.Reveal.Time()
	if err != nil {
		return nil, err
	}

	tf, err := render.NewTimeFormat(cfg.Reveal.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid reveal timezone %q: %w", cfg.Reveal.Timezone, err)
	}

	src, closer, err := NewSource(cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:     cfg,
		ConfigPath: usedPath,
		Logger:     logger,
		Source:     src,
		TimeFormat: tf,
		Target:     target,
	}
	if closer != nil {
		app.closers = append(app.closers, closer)
	}

	if cfg.Storage.S3.Enabled {
		resolver, err := NewResolver(ctx, cfg.Storage.S3)
		if err != nil {
			app.Cleanup()
			return nil, fmt.Errorf("failed to set up s3: %w", err)
		}
		app.Resolver = resolver
	}

	return app, nil
}

// NewSource picks the entry store named by cfg.Driver. Missing connection
// settings yield an Unavailable source rather than an error. The returned
// closer, when non-nil, releases the underlying connection.
func NewSource(cfg config.Store, logger *zap.Logger) (source.Source, func() error, error) {
	src, closer, err := newSource(cfg, logger)
	if errors.Is(err, source.ErrConfigurationMissing) {
		logger.Error("Entry store is not configured", zap.String("driver", cfg.Driver), zap.Error(err))
		return source.Unavailable{Err: err}, nil, nil
	}
	return src, closer, err
}

func newSource(cfg config.Store, logger *zap.Logger) (source.Source, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "firebase":
		src, err := source.NewFirebase(source.FirebaseConfig{
			DatabaseURL: cfg.Firebase.DatabaseURL,
			AuthToken:   cfg.Firebase.AuthToken,
		}, cfg.Path, nil, logger)
		if err != nil {
			return nil, nil, err
		}
		return src, nil, nil

	case "redis":
		client, err := source.NewRedisClient(source.RedisConfig{
			Addr:     cfg.Redis.Addr(),
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		return source.NewRedis(client, cfg.Path, logger), client.Close, nil

	case "postgres":
		db, err := database.Open("postgres", cfg.SQL.DSN)
		if err != nil {
			return nil, nil, err
		}
		return database.NewStore(db, cfg.SQL.DSN, logger), db.Close, nil

	case "sqlite":
		db, err := database.Open("sqlite3", cfg.SQL.DSN)
		if err != nil {
			return nil, nil, err
		}
		return database.NewStore(db, "", logger), db.Close, nil

	case "static":
		src, err := source.LoadStatic(cfg.File)
		if err != nil {
			return nil, nil, err
		}
		return src, nil, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// NewResolver builds the S3 presigner for s3:// attachment URLs.
func NewResolver(ctx context.Context, cfg config.S3) (*storage.S3Storage, error) {
	return storage.NewS3Storage(ctx, storage.Options{
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		PresignExpiry:   time.Duration(cfg.PresignExpiry) * time.Second,
	})
}

// RendererOptions returns the renderer settings the configuration asks for.
func (a *App) RendererOptions() []render.Option {
	opts := []render.Option{render.WithTimeFormat(a.TimeFormat)}
	if a.Resolver != nil {
		opts = append(opts, render.WithResolver(a.Resolver))
	}
	return opts
}

// Cleanup releases connections and flushes the logger.
func (a *App) Cleanup() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Error("Failed to close connection", zap.Error(err))
		}
	}
	if err := a.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}
}
