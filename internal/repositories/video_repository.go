package repositories

import (
	"context"

	"github.com/clipvault/backend/internal/models"
)

// VideoRepository exposes data access for stored videos.
type VideoRepository interface {
	Create(ctx context.Context, video models.Video) (models.Video, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]models.Video, error)
	FindOwned(ctx context.Context, videoID, ownerID int64) (models.Video, error)
	FindOwnedSet(ctx context.Context, videoIDs []int64, ownerID int64) ([]models.Video, error)
}
