// Package pipeline coordinates the trim and merge workflows: it validates
// input, authorizes ownership, invokes the external transcoder, and persists
// the derived video records.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clipvault/backend/internal/models"
	"github.com/clipvault/backend/internal/repositories"
)

// VideoStore captures the persistence operations required by the orchestrator.
type VideoStore interface {
	Create(ctx context.Context, video models.Video) (models.Video, error)
	FindOwned(ctx context.Context, videoID, ownerID int64) (models.Video, error)
	FindOwnedSet(ctx context.Context, videoIDs []int64, ownerID int64) ([]models.Video, error)
}

// Archiver schedules background replication of finished artifacts.
type Archiver interface {
	Enqueue(ctx context.Context, video models.Video) error
}

// Config tunes the orchestrator's directories and limits.
type Config struct {
	UploadDir     string
	ManifestDir   string
	MaxMergeBytes int64
}

// Orchestrator drives the trim and merge pipelines over a video store and a
// transcoder.
type Orchestrator struct {
	videos     VideoStore
	transcoder Transcoder
	archiver   Archiver
	logger     *slog.Logger

	uploadDir     string
	manifestDir   string
	maxMergeBytes int64

	stat      func(string) (os.FileInfo, error)
	writeFile func(string, []byte, os.FileMode) error
	mkdirAll  func(string, os.FileMode) error
	remove    func(string) error
	now       func() time.Time
	suffix    func() string
}

// NewOrchestrator constructs the pipeline orchestrator. The archiver may be
// nil, in which case finished artifacts are not replicated.
func NewOrchestrator(videos VideoStore, transcoder Transcoder, archiver Archiver, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.MaxMergeBytes <= 0 {
		cfg.MaxMergeBytes = 25 * 1024 * 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		videos:        videos,
		transcoder:    transcoder,
		archiver:      archiver,
		logger:        logger,
		uploadDir:     cfg.UploadDir,
		manifestDir:   cfg.ManifestDir,
		maxMergeBytes: cfg.MaxMergeBytes,
		stat:          os.Stat,
		writeFile:     os.WriteFile,
		mkdirAll:      os.MkdirAll,
		remove:        os.Remove,
		now:           time.Now,
		suffix:        shortSuffix,
	}
}

// Trim cuts the owned video between the start and end offsets (seconds) and
// persists the result as a new video. The raw inputs are parsed before any
// store access; parse failures return ErrInvalidInput.
func (o *Orchestrator) Trim(ctx context.Context, rawVideoID, rawStart, rawEnd string, ownerID int64) (models.Video, error) {
	videoID, idErr := strconv.ParseInt(strings.TrimSpace(rawVideoID), 10, 64)
	start, startErr := strconv.ParseFloat(strings.TrimSpace(rawStart), 64)
	end, endErr := strconv.ParseFloat(strings.TrimSpace(rawEnd), 64)
	if idErr != nil || startErr != nil || endErr != nil || videoID <= 0 {
		return models.Video{}, fmt.Errorf("%w: videoId=%q startTime=%q endTime=%q", ErrInvalidInput, rawVideoID, rawStart, rawEnd)
	}
	if end < start {
		return models.Video{}, fmt.Errorf("%w: endTime %v before startTime %v", ErrInvalidInput, end, start)
	}

	video, err := o.videos.FindOwned(ctx, videoID, ownerID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Video{}, fmt.Errorf("%w: video %d, user %d", ErrDenied, videoID, ownerID)
		}
		return models.Video{}, fmt.Errorf("authorize video %d: %w", videoID, err)
	}

	output := filepath.Join(o.uploadDir, fmt.Sprintf("trimmed-%d-%s-%s", o.now().UnixMilli(), o.suffix(), filepath.Base(video.FilePath)))

	cell := newCompletion()
	go o.transcoder.Trim(ctx, TrimJob{
		Source:   video.FilePath,
		Output:   output,
		Start:    start,
		Duration: end - start,
	}, func(err error) {
		cell.settle(err)
	})

	result, waitErr := cell.wait(ctx)
	if waitErr != nil {
		return models.Video{}, fmt.Errorf("wait for trim of video %d: %w", videoID, waitErr)
	}
	if result != nil {
		return models.Video{}, fmt.Errorf("%w: %s", ErrTranscodeFailed, result)
	}

	created, err := o.videos.Create(ctx, models.Video{OwnerID: ownerID, FilePath: output})
	if err != nil {
		// the trimmed file stays on disk as an orphan; accepted, not rolled back
		return models.Video{}, fmt.Errorf("%w: %s", ErrPersistence, err)
	}

	o.archive(ctx, created)
	return created, nil
}

// Merge concatenates the owned videos identified by ids, in request order,
// into a new video. Every distinct id must resolve to a video owned by the
// caller, and the combined source size must not exceed the configured limit.
func (o *Orchestrator) Merge(ctx context.Context, ids []int64, ownerID int64) (models.Video, error) {
	if len(ids) == 0 {
		return models.Video{}, fmt.Errorf("%w: empty video list", ErrInvalidInput)
	}

	distinct := dedupIDs(ids)
	videos, err := o.videos.FindOwnedSet(ctx, distinct, ownerID)
	if err != nil {
		return models.Video{}, fmt.Errorf("fetch videos for merge: %w", err)
	}
	if len(videos) != len(distinct) {
		return models.Video{}, fmt.Errorf("%w: requested %d videos, authorized %d", ErrDenied, len(distinct), len(videos))
	}

	byID := make(map[int64]models.Video, len(videos))
	for _, video := range videos {
		byID[video.ID] = video
	}
	ordered := make([]models.Video, 0, len(distinct))
	for _, id := range distinct {
		ordered = append(ordered, byID[id])
	}

	var total int64
	for _, video := range ordered {
		info, err := o.stat(video.FilePath)
		if err != nil {
			return models.Video{}, fmt.Errorf("%w: %s", ErrStorageAccess, err)
		}
		total += info.Size()
	}
	if total > o.maxMergeBytes {
		return models.Video{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, total)
	}

	if err := o.mkdirAll(o.manifestDir, 0o755); err != nil {
		return models.Video{}, fmt.Errorf("%w: %s", ErrStorageAccess, err)
	}

	manifest := filepath.Join(o.manifestDir, fmt.Sprintf("list-%d-%s.txt", o.now().UnixMilli(), o.suffix()))
	var lines strings.Builder
	for _, video := range ordered {
		fmt.Fprintf(&lines, "file '%s'\n", video.FilePath)
	}
	if err := o.writeFile(manifest, []byte(lines.String()), 0o644); err != nil {
		return models.Video{}, fmt.Errorf("%w: %s", ErrStorageAccess, err)
	}

	output := filepath.Join(o.uploadDir, fmt.Sprintf("merged-%d-%s.mp4", o.now().UnixMilli(), o.suffix()))

	cell := newCompletion()
	go o.transcoder.Concat(ctx, ConcatJob{Manifest: manifest, Output: output}, func(err error) {
		cell.settle(err)
	})

	result, waitErr := cell.wait(ctx)

	// the manifest is deleted after the process completes, success or not;
	// deletion errors are logged and never surfaced to the caller
	if err := o.remove(manifest); err != nil {
		o.logger.Error("delete concat manifest", "path", manifest, "error", err)
	}

	if waitErr != nil {
		return models.Video{}, fmt.Errorf("wait for merge: %w", waitErr)
	}
	if result != nil {
		return models.Video{}, fmt.Errorf("%w: %s", ErrMergeFailed, result)
	}

	created, err := o.videos.Create(ctx, models.Video{OwnerID: ownerID, FilePath: output})
	if err != nil {
		return models.Video{}, fmt.Errorf("%w: %s", ErrPersistence, err)
	}

	o.archive(ctx, created)
	return created, nil
}

func (o *Orchestrator) archive(ctx context.Context, video models.Video) {
	if o.archiver == nil {
		return
	}
	if err := o.archiver.Enqueue(ctx, video); err != nil {
		o.logger.Warn("enqueue artifact for archive", "videoId", video.ID, "error", err)
	}
}

func dedupIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	distinct := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		distinct = append(distinct, id)
	}
	return distinct
}

// shortSuffix returns a random fragment used to keep derived filenames
// unique even when two requests share a timestamp.
func shortSuffix() string {
	return uuid.NewString()[:8]
}
