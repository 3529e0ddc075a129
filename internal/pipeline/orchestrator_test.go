package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clipvault/backend/internal/models"
	"github.com/clipvault/backend/internal/repositories"
)

type videoStoreStub struct {
	mu      sync.Mutex
	videos  map[int64]models.Video
	nextID  int64
	created []models.Video

	createErr error
	findCalls int
}

func newVideoStoreStub(videos ...models.Video) *videoStoreStub {
	s := &videoStoreStub{videos: make(map[int64]models.Video), nextID: 100}
	for _, v := range videos {
		s.videos[v.ID] = v
	}
	return s
}

func (s *videoStoreStub) Create(_ context.Context, video models.Video) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return models.Video{}, s.createErr
	}
	s.nextID++
	video.ID = s.nextID
	video.CreatedAt = time.Now()
	s.videos[video.ID] = video
	s.created = append(s.created, video)
	return video, nil
}

func (s *videoStoreStub) FindOwned(_ context.Context, videoID, ownerID int64) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	video, ok := s.videos[videoID]
	if !ok || video.OwnerID != ownerID {
		return models.Video{}, repositories.ErrNotFound
	}
	return video, nil
}

func (s *videoStoreStub) FindOwnedSet(_ context.Context, videoIDs []int64, ownerID int64) ([]models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	var out []models.Video
	for _, id := range videoIDs {
		if video, ok := s.videos[id]; ok && video.OwnerID == ownerID {
			out = append(out, video)
		}
	}
	return out, nil
}

type transcoderStub struct {
	mu         sync.Mutex
	trimJobs   []TrimJob
	concatJobs []ConcatJob
	trimErr    error
	concatErr  error
	onTrim     func(job TrimJob, done func(error))
	onConcat   func(job ConcatJob, done func(error))
}

func (t *transcoderStub) Trim(_ context.Context, job TrimJob, done func(error)) {
	t.mu.Lock()
	t.trimJobs = append(t.trimJobs, job)
	custom := t.onTrim
	err := t.trimErr
	t.mu.Unlock()
	if custom != nil {
		custom(job, done)
		return
	}
	done(err)
}

func (t *transcoderStub) Concat(_ context.Context, job ConcatJob, done func(error)) {
	t.mu.Lock()
	t.concatJobs = append(t.concatJobs, job)
	custom := t.onConcat
	err := t.concatErr
	t.mu.Unlock()
	if custom != nil {
		custom(job, done)
		return
	}
	done(err)
}

type fakeFileInfo struct {
	os.FileInfo
	size int64
}

func (f fakeFileInfo) Size() int64 { return f.size }

func newTestOrchestrator(videos VideoStore, transcoder Transcoder) *Orchestrator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := NewOrchestrator(videos, transcoder, nil, Config{
		UploadDir:     "uploads",
		ManifestDir:   "location",
		MaxMergeBytes: 25 * 1024 * 1024,
	}, logger)
	o.stat = func(string) (os.FileInfo, error) { return fakeFileInfo{size: 1024}, nil }
	o.writeFile = func(string, []byte, os.FileMode) error { return nil }
	o.mkdirAll = func(string, os.FileMode) error { return nil }
	o.remove = func(string) error { return nil }
	return o
}

func TestTrimInvalidInputSkipsStore(t *testing.T) {
	store := newVideoStoreStub()
	orch := newTestOrchestrator(store, &transcoderStub{})

	cases := [][3]string{
		{"abc", "0", "5"},
		{"1", "zero", "5"},
		{"1", "0", "end"},
		{"-1", "0", "5"},
		{"", "", ""},
	}
	for _, tc := range cases {
		if _, err := orch.Trim(context.Background(), tc[0], tc[1], tc[2], 1); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("Trim(%q,%q,%q) error = %v, want ErrInvalidInput", tc[0], tc[1], tc[2], err)
		}
	}

	if store.findCalls != 0 {
		t.Fatalf("expected no store calls for invalid input, got %d", store.findCalls)
	}
}

func TestTrimDeniedForForeignVideo(t *testing.T) {
	store := newVideoStoreStub(models.Video{ID: 10, OwnerID: 1, FilePath: "uploads/a.mp4"})
	orch := newTestOrchestrator(store, &transcoderStub{})

	if _, err := orch.Trim(context.Background(), "10", "0", "5", 2); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	if _, err := orch.Trim(context.Background(), "99", "0", "5", 1); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied for missing video, got %v", err)
	}
}

func TestTrimSuccessPersistsDerivedVideo(t *testing.T) {
	store := newVideoStoreStub(models.Video{ID: 10, OwnerID: 1, FilePath: "uploads/source.mp4"})
	transcoder := &transcoderStub{}
	orch := newTestOrchestrator(store, transcoder)

	video, err := orch.Trim(context.Background(), "10", "2", "7.5", 1)
	if err != nil {
		t.Fatalf("Trim() error = %v", err)
	}

	if len(transcoder.trimJobs) != 1 {
		t.Fatalf("expected one trim invocation, got %d", len(transcoder.trimJobs))
	}
	job := transcoder.trimJobs[0]
	if job.Source != "uploads/source.mp4" {
		t.Fatalf("unexpected trim source %q", job.Source)
	}
	if job.Start != 2 || job.Duration != 5.5 {
		t.Fatalf("unexpected trim window: start=%v duration=%v", job.Start, job.Duration)
	}
	if !strings.Contains(job.Output, "trimmed-") || !strings.HasSuffix(job.Output, "-source.mp4") {
		t.Fatalf("unexpected output path %q", job.Output)
	}

	if video.OwnerID != 1 || video.FilePath != job.Output {
		t.Fatalf("unexpected persisted video: %+v", video)
	}
}

func TestTrimTranscodeFailure(t *testing.T) {
	store := newVideoStoreStub(models.Video{ID: 10, OwnerID: 1, FilePath: "uploads/source.mp4"})
	transcoder := &transcoderStub{trimErr: errors.New("ffmpeg: exit status 1")}
	orch := newTestOrchestrator(store, transcoder)

	_, err := orch.Trim(context.Background(), "10", "0", "5", 1)
	if !errors.Is(err, ErrTranscodeFailed) {
		t.Fatalf("expected ErrTranscodeFailed, got %v", err)
	}
	if len(store.created) != 0 {
		t.Fatalf("expected no video persisted after transcode failure")
	}
}

func TestTrimPersistenceFailure(t *testing.T) {
	store := newVideoStoreStub(models.Video{ID: 10, OwnerID: 1, FilePath: "uploads/source.mp4"})
	store.createErr = errors.New("connection reset")
	orch := newTestOrchestrator(store, &transcoderStub{})

	_, err := orch.Trim(context.Background(), "10", "0", "5", 1)
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}

func TestTrimRacingTerminalEventsSettleOnce(t *testing.T) {
	store := newVideoStoreStub(models.Video{ID: 10, OwnerID: 1, FilePath: "uploads/source.mp4"})
	transcoder := &transcoderStub{}
	transcoder.onTrim = func(job TrimJob, done func(error)) {
		// success and failure racing for the same invocation
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); done(nil) }()
		go func() { defer wg.Done(); done(errors.New("late failure")) }()
		wg.Wait()
	}
	orch := newTestOrchestrator(store, transcoder)

	video, err := orch.Trim(context.Background(), "10", "0", "5", 1)

	// exactly one outcome is observed and at most one row is persisted
	if err == nil {
		if len(store.created) != 1 {
			t.Fatalf("expected exactly one persisted video, got %d", len(store.created))
		}
		if video.ID == 0 {
			t.Fatalf("expected persisted video id")
		}
	} else if !errors.Is(err, ErrTranscodeFailed) {
		t.Fatalf("unexpected error variant: %v", err)
	} else if len(store.created) != 0 {
		t.Fatalf("expected no persisted video on failure outcome")
	}
}

func TestMergeCountMismatch(t *testing.T) {
	store := newVideoStoreStub(
		models.Video{ID: 1, OwnerID: 1, FilePath: "uploads/a.mp4"},
		models.Video{ID: 2, OwnerID: 1, FilePath: "uploads/b.mp4"},
		models.Video{ID: 3, OwnerID: 2, FilePath: "uploads/c.mp4"},
	)
	transcoder := &transcoderStub{}
	orch := newTestOrchestrator(store, transcoder)

	if _, err := orch.Merge(context.Background(), []int64{1, 2, 3}, 1); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied for partially owned set, got %v", err)
	}
	if len(transcoder.concatJobs) != 0 {
		t.Fatalf("expected no concat invocation after denial")
	}
}

func TestMergeDuplicateIDsAreMergedOnce(t *testing.T) {
	store := newVideoStoreStub(
		models.Video{ID: 1, OwnerID: 1, FilePath: "uploads/a.mp4"},
		models.Video{ID: 2, OwnerID: 1, FilePath: "uploads/b.mp4"},
	)
	transcoder := &transcoderStub{}
	orch := newTestOrchestrator(store, transcoder)

	var manifest string
	orch.writeFile = func(_ string, data []byte, _ os.FileMode) error {
		manifest = string(data)
		return nil
	}

	if _, err := orch.Merge(context.Background(), []int64{2, 1, 2}, 1); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	want := "file 'uploads/b.mp4'\nfile 'uploads/a.mp4'\n"
	if manifest != want {
		t.Fatalf("unexpected manifest:\n got %q\nwant %q", manifest, want)
	}
}

func TestMergeSizeGuardBoundary(t *testing.T) {
	store := newVideoStoreStub(
		models.Video{ID: 1, OwnerID: 1, FilePath: "uploads/a.mp4"},
		models.Video{ID: 2, OwnerID: 1, FilePath: "uploads/b.mp4"},
	)
	transcoder := &transcoderStub{}
	orch := newTestOrchestrator(store, transcoder)

	limit := int64(25 * 1024 * 1024)
	half := limit / 2

	// exactly at the limit the merge proceeds
	orch.stat = func(string) (os.FileInfo, error) { return fakeFileInfo{size: half}, nil }
	if _, err := orch.Merge(context.Background(), []int64{1, 2}, 1); err != nil {
		t.Fatalf("Merge() at limit error = %v", err)
	}

	// one byte over the limit is rejected before the transcoder runs
	jobsBefore := len(transcoder.concatJobs)
	orch.stat = func(path string) (os.FileInfo, error) {
		if strings.HasSuffix(path, "a.mp4") {
			return fakeFileInfo{size: half + 1}, nil
		}
		return fakeFileInfo{size: half}, nil
	}
	if _, err := orch.Merge(context.Background(), []int64{1, 2}, 1); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if len(transcoder.concatJobs) != jobsBefore {
		t.Fatalf("expected no concat invocation past the size guard")
	}
}

func TestMergeStatFailure(t *testing.T) {
	store := newVideoStoreStub(models.Video{ID: 1, OwnerID: 1, FilePath: "uploads/a.mp4"})
	orch := newTestOrchestrator(store, &transcoderStub{})
	orch.stat = func(string) (os.FileInfo, error) { return nil, fmt.Errorf("stat: permission denied") }

	if _, err := orch.Merge(context.Background(), []int64{1}, 1); !errors.Is(err, ErrStorageAccess) {
		t.Fatalf("expected ErrStorageAccess, got %v", err)
	}
}

func TestMergeManifestOrderFollowsRequest(t *testing.T) {
	store := newVideoStoreStub(
		models.Video{ID: 1, OwnerID: 1, FilePath: "uploads/a.mp4"},
		models.Video{ID: 2, OwnerID: 1, FilePath: "uploads/b.mp4"},
		models.Video{ID: 3, OwnerID: 1, FilePath: "uploads/c.mp4"},
	)
	orch := newTestOrchestrator(store, &transcoderStub{})

	var manifest string
	orch.writeFile = func(_ string, data []byte, _ os.FileMode) error {
		manifest = string(data)
		return nil
	}

	if _, err := orch.Merge(context.Background(), []int64{3, 1, 2}, 1); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	want := "file 'uploads/c.mp4'\nfile 'uploads/a.mp4'\nfile 'uploads/b.mp4'\n"
	if manifest != want {
		t.Fatalf("unexpected manifest order:\n got %q\nwant %q", manifest, want)
	}
}

func TestMergeManifestDeletedRegardlessOfOutcome(t *testing.T) {
	store := newVideoStoreStub(models.Video{ID: 1, OwnerID: 1, FilePath: "uploads/a.mp4"})

	for _, concatErr := range []error{nil, errors.New("concat blew up")} {
		transcoder := &transcoderStub{concatErr: concatErr}
		orch := newTestOrchestrator(store, transcoder)

		var removed []string
		orch.remove = func(path string) error {
			removed = append(removed, path)
			return nil
		}

		_, err := orch.Merge(context.Background(), []int64{1}, 1)
		if concatErr == nil && err != nil {
			t.Fatalf("Merge() error = %v", err)
		}
		if concatErr != nil && !errors.Is(err, ErrMergeFailed) {
			t.Fatalf("expected ErrMergeFailed, got %v", err)
		}
		if len(removed) != 1 || !strings.Contains(removed[0], "list-") {
			t.Fatalf("expected manifest deletion, removed = %v", removed)
		}
	}
}

func TestMergePersistenceFailure(t *testing.T) {
	store := newVideoStoreStub(models.Video{ID: 1, OwnerID: 1, FilePath: "uploads/a.mp4"})
	store.createErr = errors.New("insert failed")
	orch := newTestOrchestrator(store, &transcoderStub{})

	if _, err := orch.Merge(context.Background(), []int64{1}, 1); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}

func TestMergeEmptyListIsInvalid(t *testing.T) {
	orch := newTestOrchestrator(newVideoStoreStub(), &transcoderStub{})
	if _, err := orch.Merge(context.Background(), nil, 1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty list, got %v", err)
	}
}
