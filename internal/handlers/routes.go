package handlers

import (
	"net/http"

	"github.com/clipvault/backend/internal/middleware"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users          UserStore
	Videos         VideoStore
	Uploads        UploadStore
	Tokens         TokenService
	Access         AccessController
	Pipeline       VideoPipeline
	Archiver       Archiver
	Limiter        RateLimiter
	MaxUploadBytes int64
}

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	auth := AuthHandler{Users: deps.Users, Tokens: deps.Tokens, Limiter: deps.Limiter}
	videos := NewVideoHandler(deps.Videos, deps.Uploads, deps.Access, deps.Pipeline, deps.Archiver, deps.MaxUploadBytes)

	requireAuth := middleware.RequireAuth(deps.Tokens, deps.Users)
	protected := func(handler http.HandlerFunc) http.Handler {
		return requireAuth(handler)
	}

	mux.HandleFunc("GET /healthz", health.Handle)
	mux.HandleFunc("POST /auth/signup", auth.SignUp)
	mux.HandleFunc("POST /auth/signin", auth.SignIn)
	mux.Handle("POST /videos/upload", protected(videos.Upload))
	mux.Handle("GET /videos/myvideos", protected(videos.MyVideos))
	mux.Handle("POST /videos/trim-video", protected(videos.Trim))
	mux.Handle("POST /videos/merge-videos", protected(videos.Merge))
	mux.Handle("POST /videos/enable-access/{videoId}", protected(videos.EnableAccess))
	mux.HandleFunc("GET /videos/access-video/{token}", videos.AccessVideo)
}
