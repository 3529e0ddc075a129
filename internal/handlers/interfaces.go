package handlers

import (
	"context"
	"io"
	"time"

	"github.com/clipvault/backend/internal/access"
	"github.com/clipvault/backend/internal/auth"
	"github.com/clipvault/backend/internal/models"
)

// UserStore captures the persistence operations required by the auth
// handlers and the bearer middleware.
type UserStore interface {
	Create(ctx context.Context, user models.User) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id int64) (models.User, error)
}

// VideoStore captures persistence for uploaded and derived videos.
type VideoStore interface {
	Create(ctx context.Context, video models.Video) (models.Video, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]models.Video, error)
}

// TokenService issues and verifies the bearer tokens returned on signup and
// signin.
type TokenService interface {
	Issue(userID int64, email string) (string, time.Time, error)
	Verify(tokenString string) (auth.Claims, error)
}

// AccessController manages share tokens for videos.
type AccessController interface {
	EnableAccess(ctx context.Context, rawVideoID string, ownerID int64) (access.Grant, error)
	ResolveAccess(ctx context.Context, token string) (string, error)
}

// VideoPipeline coordinates trim and merge operations.
type VideoPipeline interface {
	Trim(ctx context.Context, rawVideoID, rawStart, rawEnd string, ownerID int64) (models.Video, error)
	Merge(ctx context.Context, ids []int64, ownerID int64) (models.Video, error)
}

// UploadStore persists incoming video files.
type UploadStore interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// Archiver schedules background replication of stored videos.
type Archiver interface {
	Enqueue(ctx context.Context, video models.Video) error
}

// RateLimiter is the minimal interface required to guard sensitive endpoints.
type RateLimiter interface {
	Allow(key string) bool
}
