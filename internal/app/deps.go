package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/lingopals/backend/internal/auth"
	"github.com/lingopals/backend/internal/avatars"
	"github.com/lingopals/backend/internal/config"
	"github.com/lingopals/backend/internal/db"
	"github.com/lingopals/backend/internal/handlers"
	"github.com/lingopals/backend/internal/middleware"
	"github.com/lingopals/backend/internal/relationships"
	"github.com/lingopals/backend/internal/repositories"
	"github.com/lingopals/backend/internal/storage"
)

// buildDependencies wires together concrete implementations used by the
// HTTP handlers. The returned cleanup drains background workers.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, func(context.Context) error, error) {
	users := repositories.NewPostgresUserRepository(pool)
	friends := repositories.NewPostgresFriendRepository(pool)
	sessionStore := repositories.NewPostgresSessionStore(pool)

	sessions := auth.NewManager(15*time.Minute, 24*time.Hour, sessionStore)
	engine := relationships.NewEngine(users, friends)

	cleanup := func(context.Context) error { return nil }

	var mirror handlers.AvatarMirror
	if cfg.ObjectStore.Bucket != "" {
		s3Storage, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return handlers.Dependencies{}, nil, err
		}

		ingestor := avatars.NewIngestor(s3Storage, users, avatars.IngestorConfig{
			Workers:      cfg.AvatarWorkers,
			FetchTimeout: cfg.AvatarFetchTimeout,
		}, logger)

		mirror = ingestor
		cleanup = ingestor.Shutdown
	} else {
		logger.Info("avatar bucket not configured, avatar mirroring disabled")
	}

	limiter := middleware.NewIPRateLimiter(10, time.Minute, 5, 10*time.Minute)

	return handlers.Dependencies{
		Users:         users,
		Sessions:      sessions,
		Authenticator: sessions,
		Relationships: engine,
		Avatars:       mirror,
		AuthLimiter:   limiter,
	}, cleanup, nil
}
