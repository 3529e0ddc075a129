package repositories

import (
	"context"

	"github.com/clipvault/backend/internal/models"
)

// AccessGrantRepository exposes data access for video share grants.
type AccessGrantRepository interface {
	// Rotate writes the grant for its video, replacing any existing token and
	// expiry in place. It reports whether a new grant row was created.
	Rotate(ctx context.Context, grant models.AccessGrant) (bool, error)
	// ResolveToken returns the grant matching the exact token together with
	// the video it protects. Expiry is not evaluated here.
	ResolveToken(ctx context.Context, token string) (models.AccessGrant, models.Video, error)
}
