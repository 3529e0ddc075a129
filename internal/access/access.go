// Package access manages the lifecycle of shareable video tokens: owners
// enable (and implicitly rotate) a grant for a video, and anyone holding the
// resulting token can resolve it to the video's location until it expires.
package access

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/clipvault/backend/internal/models"
	"github.com/clipvault/backend/internal/repositories"
)

var (
	// ErrInvalidInput indicates the video id did not parse as a positive integer.
	ErrInvalidInput = errors.New("invalid video id")
	// ErrDenied conflates "video does not exist" with "caller is not the
	// owner" so responses never reveal whether a video exists. The wrapped
	// detail is for logs only and must not reach response bodies.
	ErrDenied = errors.New("video not found or access unauthorized")
	// ErrInvalidOrExpired covers both unknown and expired share tokens.
	ErrInvalidOrExpired = errors.New("token invalid or expired")
)

// VideoFinder authorizes grant creation by resolving owned videos.
type VideoFinder interface {
	FindOwned(ctx context.Context, videoID, ownerID int64) (models.Video, error)
}

// GrantStore persists access grants.
type GrantStore interface {
	Rotate(ctx context.Context, grant models.AccessGrant) (bool, error)
	ResolveToken(ctx context.Context, token string) (models.AccessGrant, models.Video, error)
}

// Grant is the caller-visible result of enabling access to a video.
type Grant struct {
	Token   string
	Expiry  time.Time
	Rotated bool
}

// Service implements the share-token lifecycle over a video store and a
// grant store.
type Service struct {
	videos VideoFinder
	grants GrantStore
	ttl    time.Duration

	newToken func() (string, error)
	now      func() time.Time
}

// NewService constructs the access service. Tokens are valid for the
// provided ttl from the moment of each rotation.
func NewService(videos VideoFinder, grants GrantStore, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Service{
		videos:   videos,
		grants:   grants,
		ttl:      ttl,
		newToken: randomToken,
		now:      time.Now,
	}
}

// EnableAccess creates or rotates the share grant for the video identified
// by rawVideoID. Rotation is unconditional: a fresh token and expiry are
// written on every call, invalidating any previously issued token.
func (s *Service) EnableAccess(ctx context.Context, rawVideoID string, ownerID int64) (Grant, error) {
	videoID, err := strconv.ParseInt(strings.TrimSpace(rawVideoID), 10, 64)
	if err != nil || videoID <= 0 {
		return Grant{}, fmt.Errorf("%w: %q", ErrInvalidInput, rawVideoID)
	}

	if _, err := s.videos.FindOwned(ctx, videoID, ownerID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return Grant{}, fmt.Errorf("%w: video %d, user %d", ErrDenied, videoID, ownerID)
		}
		return Grant{}, fmt.Errorf("authorize video %d: %w", videoID, err)
	}

	token, err := s.newToken()
	if err != nil {
		return Grant{}, fmt.Errorf("generate access token: %w", err)
	}

	expiry := s.now().Add(s.ttl)
	created, err := s.grants.Rotate(ctx, models.AccessGrant{
		VideoID: videoID,
		Token:   token,
		Expiry:  expiry,
	})
	if err != nil {
		return Grant{}, fmt.Errorf("rotate grant for video %d: %w", videoID, err)
	}

	return Grant{Token: token, Expiry: expiry, Rotated: !created}, nil
}

// ResolveAccess exchanges a share token for the protected video's location.
// Possession of the token is the sole credential; no user identity is
// involved. A grant is valid strictly before its expiry instant.
func (s *Service) ResolveAccess(ctx context.Context, token string) (string, error) {
	grant, video, err := s.grants.ResolveToken(ctx, token)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", ErrInvalidOrExpired
		}
		return "", fmt.Errorf("resolve access token: %w", err)
	}

	if !s.now().Before(grant.Expiry) {
		return "", ErrInvalidOrExpired
	}

	return video.FilePath, nil
}

// randomToken returns 128 bits of entropy as a 32-character hex string.
func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
