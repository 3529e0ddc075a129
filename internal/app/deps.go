package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clipvault/backend/internal/access"
	"github.com/clipvault/backend/internal/archive"
	"github.com/clipvault/backend/internal/auth"
	"github.com/clipvault/backend/internal/config"
	"github.com/clipvault/backend/internal/db"
	"github.com/clipvault/backend/internal/handlers"
	"github.com/clipvault/backend/internal/middleware"
	"github.com/clipvault/backend/internal/pipeline"
	"github.com/clipvault/backend/internal/repositories"
	"github.com/clipvault/backend/internal/storage"
)

// buildDependencies wires together concrete implementations used by the HTTP
// handlers. The returned cleanup drains background workers and must be called
// during shutdown.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, func(context.Context) error, error) {
	users := repositories.NewPostgresUserRepository(pool)
	videos := repositories.NewPostgresVideoRepository(pool)
	grants := repositories.NewPostgresAccessGrantRepository(pool)

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTTTL)
	accessCtrl := access.NewService(videos, grants, cfg.AccessTokenTTL)
	transcoder := pipeline.NewFFmpeg(cfg.FFmpegPath, cfg.FFmpegTimeout)

	cleanup := func(context.Context) error { return nil }

	var archiver *archive.Archiver
	if cfg.Archive.Bucket != "" {
		store, err := storage.NewS3Archive(ctx, cfg.Archive)
		if err != nil {
			return handlers.Dependencies{}, nil, fmt.Errorf("configure archive storage: %w", err)
		}
		archiver = archive.New(store, archive.Config{}, logger)
		cleanup = archiver.Shutdown
	}

	// The orchestrator takes the interface; a typed nil pointer would not
	// compare equal to nil inside it.
	var pipelineArchiver pipeline.Archiver
	var handlerArchiver handlers.Archiver
	if archiver != nil {
		pipelineArchiver = archiver
		handlerArchiver = archiver
	}

	orchestrator := pipeline.NewOrchestrator(videos, transcoder, pipelineArchiver, pipeline.Config{
		UploadDir:     cfg.UploadDir,
		ManifestDir:   cfg.ManifestDir,
		MaxMergeBytes: cfg.MaxMergeBytes,
	}, logger)

	limiter := middleware.NewIPRateLimiter(
		cfg.AuthRateLimit.Requests,
		cfg.AuthRateLimit.Window,
		cfg.AuthRateLimit.Burst,
		cfg.AuthRateLimit.TTL,
	)

	return handlers.Dependencies{
		Users:          users,
		Videos:         videos,
		Uploads:        storage.NewLocalStore(cfg.UploadDir),
		Tokens:         tokens,
		Access:         accessCtrl,
		Pipeline:       orchestrator,
		Archiver:       handlerArchiver,
		Limiter:        limiter,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, cleanup, nil
}
