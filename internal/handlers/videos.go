package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/clipvault/backend/internal/access"
	"github.com/clipvault/backend/internal/logging"
	"github.com/clipvault/backend/internal/middleware"
	"github.com/clipvault/backend/internal/models"
	"github.com/clipvault/backend/internal/pipeline"
)

// VideoHandler implements the authenticated video endpoints plus the public
// token-gated access endpoint.
type VideoHandler struct {
	Videos         VideoStore
	Uploads        UploadStore
	Access         AccessController
	Pipeline       VideoPipeline
	Archiver       Archiver
	MaxUploadBytes int64

	now    func() time.Time
	suffix func() string
}

// NewVideoHandler wires the handler with real clock and name entropy sources.
func NewVideoHandler(videos VideoStore, uploads UploadStore, accessCtrl AccessController, pl VideoPipeline, archiver Archiver, maxUploadBytes int64) *VideoHandler {
	return &VideoHandler{
		Videos:         videos,
		Uploads:        uploads,
		Access:         accessCtrl,
		Pipeline:       pl,
		Archiver:       archiver,
		MaxUploadBytes: maxUploadBytes,
		now:            time.Now,
		suffix:         func() string { return uuid.NewString()[:8] },
	}
}

// Upload handles POST /videos/upload multipart requests.
func (h *VideoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"msg": "No token provided, authorization denied."})
		return
	}

	if h.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("upload exceeds size limit", "limit", tooLarge.Limit, "userId", user.ID)
			respondJSON(ctx, w, http.StatusRequestEntityTooLarge, map[string]string{"message": "Uploaded file exceeds the permitted size limit."})
			return
		}
		logger.Warn("upload missing video file", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"message": "No video file provided."})
		return
	}
	defer file.Close()

	name := fmt.Sprintf("%d-%s-%s", h.timestamp(), h.nameSuffix(), filepath.Base(header.Filename))
	storedPath, err := h.Uploads.Save(ctx, name, file)
	if err != nil {
		logger.Error("upload failed to store file", "error", err, "userId", user.ID, "filename", header.Filename)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{
			"message": "Failed to store video file.",
			"error":   "Error occured",
		})
		return
	}

	video, err := h.Videos.Create(ctx, models.Video{OwnerID: user.ID, FilePath: storedPath})
	if err != nil {
		logger.Error("upload failed to persist video", "error", err, "userId", user.ID, "path", storedPath)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{
			"message": "Database operation failed",
			"error":   "Error occured",
		})
		return
	}

	if h.Archiver != nil {
		if err := h.Archiver.Enqueue(ctx, video); err != nil {
			logger.Warn("upload archive enqueue failed", "error", err, "videoId", video.ID)
		}
	}

	logger.Info("video uploaded", "videoId", video.ID, "userId", user.ID)
	respondJSON(ctx, w, http.StatusCreated, map[string]any{
		"message": "Video uploaded successfully",
		"videoId": video.ID,
	})
}

// MyVideos handles GET /videos/myvideos requests.
func (h *VideoHandler) MyVideos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"msg": "No token provided, authorization denied."})
		return
	}

	videos, err := h.Videos.ListByOwner(ctx, user.ID)
	if err != nil {
		logger.Error("failed to list videos", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{
			"message": "Failed to retrieve videos.",
			"error":   "Something Happenned",
		})
		return
	}

	if len(videos) == 0 {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{
			"message": "No Such Videos",
			"error":   "Something is not right",
		})
		return
	}

	summaries := make([]videoSummary, 0, len(videos))
	for _, v := range videos {
		summaries = append(summaries, videoSummary{ID: v.ID, FilePath: v.FilePath})
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"videos": summaries})
}

// EnableAccess handles POST /videos/enable-access/{videoId} requests.
func (h *VideoHandler) EnableAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"msg": "No token provided, authorization denied."})
		return
	}

	grant, err := h.Access.EnableAccess(ctx, r.PathValue("videoId"), user.ID)
	if err != nil {
		switch {
		case errors.Is(err, access.ErrInvalidInput):
			logger.Warn("enable access invalid video id", "videoId", r.PathValue("videoId"), "userId", user.ID)
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"message": "Invalid video ID provided."})
		case errors.Is(err, access.ErrDenied):
			logger.Warn("enable access denied", "error", err, "videoId", r.PathValue("videoId"), "userId", user.ID)
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"message": "Video not found or access unauthorized."})
		default:
			logger.Error("enable access failed", "error", err, "videoId", r.PathValue("videoId"), "userId", user.ID)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"message": "Failed to enable access."})
		}
		return
	}

	message := "Access enabled"
	if grant.Rotated {
		message = "Access updated"
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"message": message,
		"token":   grant.Token,
		"expiry":  grant.Expiry,
	})
}

// AccessVideo handles GET /videos/access-video/{token} requests. It is the
// only video endpoint served without a bearer token.
func (h *VideoHandler) AccessVideo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	path, err := h.Access.ResolveAccess(ctx, r.PathValue("token"))
	if err != nil {
		if errors.Is(err, access.ErrInvalidOrExpired) {
			logger.Warn("access token rejected", "error", err)
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"message": "Token invalid or expired."})
			return
		}
		logger.Error("access token resolution failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"message": "Failed to resolve access token."})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{
		"message":   "Video access granted.",
		"videoPath": path,
	})
}

// Trim handles POST /videos/trim-video requests.
func (h *VideoHandler) Trim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"msg": "No token provided, authorization denied."})
		return
	}

	var req trimRequest
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&req); err != nil {
		logger.Warn("invalid trim payload", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"message": "Invalid video ID provided."})
		return
	}

	video, err := h.Pipeline.Trim(ctx, coerceString(req.VideoID), coerceString(req.StartTime), coerceString(req.EndTime), user.ID)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrInvalidInput):
			logger.Warn("trim rejected input", "error", err, "userId", user.ID)
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"message": "Invalid video ID provided."})
		case errors.Is(err, pipeline.ErrDenied):
			logger.Warn("trim denied", "error", err, "userId", user.ID)
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"message": "Video not found or access unauthorized."})
		case errors.Is(err, pipeline.ErrTranscodeFailed):
			logger.Error("trim transcode failed", "error", err, "userId", user.ID)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{
				"message": "Failed to trim video",
				"error":   err.Error(),
			})
		case errors.Is(err, pipeline.ErrPersistence):
			logger.Error("trim persistence failed", "error", err, "userId", user.ID)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{
				"message": "Failed to save the video info to the database",
				"error":   "Failed to deliver",
			})
		default:
			logger.Error("trim failed", "error", err, "userId", user.ID)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"message": "Failed to trim video"})
		}
		return
	}

	logger.Info("video trimmed", "videoId", video.ID, "userId", user.ID)
	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"message":    "Video trimmed successfully",
		"videoId":    video.ID,
		"outputPath": video.FilePath,
	})
}

// Merge handles POST /videos/merge-videos requests.
func (h *VideoHandler) Merge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"msg": "No token provided, authorization denied."})
		return
	}

	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid merge payload", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"message": "Invalid data provided."})
		return
	}

	ids := make([]int64, 0, len(req.Vids))
	for _, v := range req.Vids {
		ids = append(ids, v.ID)
	}

	video, err := h.Pipeline.Merge(ctx, ids, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrInvalidInput):
			logger.Warn("merge rejected input", "error", err, "userId", user.ID)
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"message": "Invalid data provided."})
		case errors.Is(err, pipeline.ErrDenied):
			logger.Warn("merge denied", "error", err, "userId", user.ID)
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"message": "One or more videos not found or access unauthorized."})
		case errors.Is(err, pipeline.ErrPayloadTooLarge):
			logger.Warn("merge payload too large", "error", err, "userId", user.ID)
			respondJSON(ctx, w, http.StatusRequestEntityTooLarge, map[string]string{"message": "Total video size exceeds the permitted limit of 25 MB."})
		case errors.Is(err, pipeline.ErrStorageAccess):
			logger.Error("merge storage access failed", "error", err, "userId", user.ID)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"message": "Failed to access video file."})
		case errors.Is(err, pipeline.ErrMergeFailed):
			logger.Error("merge transcode failed", "error", err, "userId", user.ID)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{
				"message": "Failed to merge videos",
				"error":   err.Error(),
			})
		case errors.Is(err, pipeline.ErrPersistence):
			logger.Error("merge persistence failed", "error", err, "userId", user.ID)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{
				"message": "Database operation failed",
				"error":   "Error occured",
			})
		default:
			logger.Error("merge failed", "error", err, "userId", user.ID)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"message": "Failed to merge videos"})
		}
		return
	}

	logger.Info("videos merged", "videoId", video.ID, "userId", user.ID, "sources", len(ids))
	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"message":    "Videos merged successfully",
		"videoId":    video.ID,
		"outputPath": video.FilePath,
	})
}

func (h *VideoHandler) timestamp() int64 {
	if h.now != nil {
		return h.now().UnixMilli()
	}
	return time.Now().UnixMilli()
}

func (h *VideoHandler) nameSuffix() string {
	if h.suffix != nil {
		return h.suffix()
	}
	return uuid.NewString()[:8]
}

type trimRequest struct {
	VideoID   any `json:"videoId"`
	StartTime any `json:"startTime"`
	EndTime   any `json:"endTime"`
}

type mergeRequest struct {
	Vids []mergeSource `json:"vids"`
}

type mergeSource struct {
	ID int64 `json:"id"`
}

type videoSummary struct {
	ID       int64  `json:"id"`
	FilePath string `json:"filepath"`
}

// coerceString renders JSON scalars the pipeline parses itself; clients send
// ids and timestamps as either strings or numbers.
func coerceString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
