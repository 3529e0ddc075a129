package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clipvault/backend/internal/db"
	"github.com/clipvault/backend/internal/models"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record and returns it with its assigned id.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        INSERT INTO users (email, password_hash)
        VALUES ($1, $2)
        RETURNING id, created_at
    `, user.Email, user.PasswordHash)

	if err := row.Scan(&user.ID, &user.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.User{}, ErrConflict
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, email, password_hash, created_at
        FROM users
        WHERE email = $1
    `, email)

	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by email: %w", err)
	}

	return user, nil
}

// FindByID fetches a user by their identifier.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id int64) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, email, password_hash, created_at
        FROM users
        WHERE id = $1
    `, id)

	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by id: %w", err)
	}

	return user, nil
}

// PostgresVideoRepository provides PostgreSQL-backed persistence for videos.
type PostgresVideoRepository struct {
	pool db.Pool
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool) *PostgresVideoRepository {
	return &PostgresVideoRepository{pool: pool}
}

// Create stores a new video record and returns it with its assigned id.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        INSERT INTO videos (owner_id, filepath)
        VALUES ($1, $2)
        RETURNING id, created_at
    `, video.OwnerID, video.FilePath)

	if err := row.Scan(&video.ID, &video.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("insert video: %w", err)
	}

	return video, nil
}

// ListByOwner returns all videos belonging to the provided user.
func (r *PostgresVideoRepository) ListByOwner(ctx context.Context, ownerID int64) ([]models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, owner_id, filepath, created_at
        FROM videos
        WHERE owner_id = $1
        ORDER BY created_at DESC, id DESC
    `, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query videos by owner: %w", err)
	}
	defer rows.Close()

	var videos []models.Video
	for rows.Next() {
		var video models.Video
		if err := rows.Scan(&video.ID, &video.OwnerID, &video.FilePath, &video.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}

	return videos, nil
}

// FindOwned fetches a video only when it belongs to the provided owner.
// Missing and foreign videos are both reported as ErrNotFound so callers
// cannot distinguish them.
func (r *PostgresVideoRepository) FindOwned(ctx context.Context, videoID, ownerID int64) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, owner_id, filepath, created_at
        FROM videos
        WHERE id = $1 AND owner_id = $2
    `, videoID, ownerID)

	var video models.Video
	if err := row.Scan(&video.ID, &video.OwnerID, &video.FilePath, &video.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("select owned video: %w", err)
	}

	return video, nil
}

// FindOwnedSet returns the videos from the requested id set that belong to
// the provided owner. Callers compare the result count against the distinct
// request count to detect missing or foreign ids.
func (r *PostgresVideoRepository) FindOwnedSet(ctx context.Context, videoIDs []int64, ownerID int64) ([]models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, owner_id, filepath, created_at
        FROM videos
        WHERE id = ANY($1) AND owner_id = $2
    `, videoIDs, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query owned video set: %w", err)
	}
	defer rows.Close()

	var videos []models.Video
	for rows.Next() {
		var video models.Video
		if err := rows.Scan(&video.ID, &video.OwnerID, &video.FilePath, &video.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owned video set: %w", err)
	}

	return videos, nil
}

// PostgresAccessGrantRepository provides PostgreSQL-backed persistence for share grants.
type PostgresAccessGrantRepository struct {
	pool db.Pool
}

// NewPostgresAccessGrantRepository constructs an access grant repository backed by PostgreSQL.
func NewPostgresAccessGrantRepository(pool db.Pool) *PostgresAccessGrantRepository {
	return &PostgresAccessGrantRepository{pool: pool}
}

// Rotate replaces the grant for the video, creating the row when none exists.
// The update-then-upsert sequence keeps the one-grant-per-video invariant
// even when two rotations for the same video race: the insert resolves the
// conflict on video_id by updating in place.
func (r *PostgresAccessGrantRepository) Rotate(ctx context.Context, grant models.AccessGrant) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE access_grants
        SET token = $2, expiry = $3
        WHERE video_id = $1
    `, grant.VideoID, grant.Token, grant.Expiry)
	if err != nil {
		return false, fmt.Errorf("rotate access grant: %w", err)
	}

	if tag.RowsAffected() > 0 {
		return false, nil
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO access_grants (video_id, token, expiry)
        VALUES ($1, $2, $3)
        ON CONFLICT (video_id) DO UPDATE
        SET token = EXCLUDED.token, expiry = EXCLUDED.expiry
    `, grant.VideoID, grant.Token, grant.Expiry)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23503":
				return false, ErrNotFound
			case "23505":
				// token collision across grants
				return false, ErrConflict
			}
		}
		return false, fmt.Errorf("insert access grant: %w", err)
	}

	return true, nil
}

// ResolveToken fetches the grant and its video by exact token match.
func (r *PostgresAccessGrantRepository) ResolveToken(ctx context.Context, token string) (models.AccessGrant, models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.AccessGrant{}, models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT g.video_id, g.token, g.expiry, v.id, v.owner_id, v.filepath, v.created_at
        FROM access_grants g
        JOIN videos v ON v.id = g.video_id
        WHERE g.token = $1
    `, token)

	var (
		grant models.AccessGrant
		video models.Video
	)
	if err := row.Scan(&grant.VideoID, &grant.Token, &grant.Expiry, &video.ID, &video.OwnerID, &video.FilePath, &video.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.AccessGrant{}, models.Video{}, ErrNotFound
		}
		return models.AccessGrant{}, models.Video{}, fmt.Errorf("select access grant by token: %w", err)
	}

	return grant, video, nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ VideoRepository = (*PostgresVideoRepository)(nil)
var _ AccessGrantRepository = (*PostgresAccessGrantRepository)(nil)
