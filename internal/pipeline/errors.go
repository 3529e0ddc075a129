package pipeline

import "errors"

var (
	// ErrInvalidInput indicates the trim or merge request failed parsing
	// before any store access.
	ErrInvalidInput = errors.New("invalid trim or merge input")
	// ErrDenied conflates missing and foreign videos; the wrapped detail is
	// for logs only.
	ErrDenied = errors.New("video not found or access unauthorized")
	// ErrPayloadTooLarge indicates the merge sources exceed the size limit.
	ErrPayloadTooLarge = errors.New("total video size exceeds the permitted limit")
	// ErrStorageAccess indicates a filesystem operation on a source or
	// manifest file failed before the transcoder was invoked.
	ErrStorageAccess = errors.New("failed to access video file")
	// ErrTranscodeFailed indicates the trim invocation reported failure.
	ErrTranscodeFailed = errors.New("failed to trim video")
	// ErrMergeFailed indicates the concat invocation reported failure.
	ErrMergeFailed = errors.New("failed to merge videos")
	// ErrPersistence indicates the derived video row could not be saved. The
	// transcoded file may remain on disk as an orphan; no cleanup is attempted.
	ErrPersistence = errors.New("failed to save video record")
)
