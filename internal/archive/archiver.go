// Package archive replicates finished video artifacts to an object store in
// the background. Replication is best effort: failures are logged and never
// affect the request that produced the artifact.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/clipvault/backend/internal/models"
)

// ObjectStorage persists archived artifacts.
type ObjectStorage interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// Config controls the concurrency characteristics of the archiver.
type Config struct {
	QueueSize int
	Workers   int
}

// Archiver uploads persisted videos to the object store from a worker pool.
type Archiver struct {
	storage ObjectStorage
	logger  *slog.Logger

	open func(string) (io.ReadCloser, error)

	jobs   chan models.Video
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

var errArchiverClosed = errors.New("archiver closed")

// New constructs a background archiver uploading to the provided storage.
func New(storage ObjectStorage, cfg Config, logger *slog.Logger) *Archiver {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &Archiver{
		storage: storage,
		logger:  logger,
		open:    func(path string) (io.ReadCloser, error) { return os.Open(path) },
		jobs:    make(chan models.Video, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	a.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go a.worker()
	}

	return a
}

// Enqueue schedules replication of the provided video's file.
func (a *Archiver) Enqueue(ctx context.Context, video models.Video) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.ctx.Done():
		return errArchiverClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.ctx.Done():
		return errArchiverClosed
	case a.jobs <- video:
		return nil
	}
}

// Shutdown waits for the worker pool to drain outstanding jobs.
func (a *Archiver) Shutdown(ctx context.Context) error {
	a.once.Do(func() {
		a.cancel()
		close(a.jobs)
	})

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (a *Archiver) worker() {
	defer a.wg.Done()

	for video := range a.jobs {
		a.handle(video)
	}
}

func (a *Archiver) handle(video models.Video) {
	if a.storage == nil {
		a.logger.Error("archiver missing object storage")
		return
	}

	f, err := a.open(video.FilePath)
	if err != nil {
		a.logger.Error("open artifact for archive", "videoId", video.ID, "path", video.FilePath, "error", err)
		return
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	key := fmt.Sprintf("%d/%s", video.ID, filepath.Base(video.FilePath))
	location, err := a.storage.Save(ctx, key, f)
	if err != nil {
		a.logger.Error("archive artifact", "videoId", video.ID, "key", key, "error", err)
		return
	}

	a.logger.Info("artifact archived", "videoId", video.ID, "location", location)
}
