package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/clipvault/backend/internal/logging"
	"github.com/clipvault/backend/internal/models"
	"github.com/clipvault/backend/internal/repositories"
)

// AuthHandler implements user authentication endpoints.
type AuthHandler struct {
	Users   UserStore
	Tokens  TokenService
	Limiter RateLimiter
}

// SignUp handles POST /auth/signup requests.
func (h AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "signup") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"message": "Too many requests, slow down."})
		return
	}

	if h.Users == nil || h.Tokens == nil {
		logger.Error("authentication dependencies unavailable", "hasUsers", h.Users != nil, "hasTokens", h.Tokens != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"message": "authentication services unavailable"})
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid signup payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"message": "invalid request body"})
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		logger.Warn("signup missing credentials", "email", req.Email)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"message": "email and password are required"})
		return
	}

	if _, err := mail.ParseAddress(req.Email); err != nil {
		logger.Warn("signup invalid email", "email", req.Email, "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"message": "invalid email address"})
		return
	}

	if len(req.Password) < 8 {
		logger.Warn("signup password too short", "email", req.Email)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"message": "password must be at least 8 characters"})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("signup failed to hash password", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"message": "failed to secure password"})
		return
	}

	user, err := h.Users.Create(ctx, models.User{Email: req.Email, PasswordHash: string(hashed)})
	if err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			logger.Warn("signup conflict", "email", req.Email)
			respondJSON(ctx, w, http.StatusBadRequest, errorResponse{
				Success: false,
				Message: "Error creating user",
				Error:   &errorDetails{Details: "Error signing up"},
			})
			return
		}
		logger.Error("signup failed to create user", "error", err, "email", req.Email)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"message": "failed to create account"})
		return
	}

	token, _, err := h.Tokens.Issue(user.ID, user.Email)
	if err != nil {
		logger.Error("signup failed to issue token", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"message": "failed to create session"})
		return
	}

	respondJSON(ctx, w, http.StatusCreated, authResponse{
		Success: true,
		Message: "User created successfully",
		Data:    tokenData{Token: bearerToken(token)},
	})
}

// SignIn handles POST /auth/signin requests.
func (h AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "signin") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"message": "Too many requests, slow down."})
		return
	}

	if h.Users == nil || h.Tokens == nil {
		logger.Error("authentication dependencies unavailable", "hasUsers", h.Users != nil, "hasTokens", h.Tokens != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"message": "authentication services unavailable"})
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid signin payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"message": "invalid request body"})
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		logger.Warn("signin missing credentials", "email", req.Email)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"message": "email and password are required"})
		return
	}

	user, err := h.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			logger.Warn("signin unknown user", "email", req.Email)
			respondJSON(ctx, w, http.StatusNotFound, errorResponse{Success: false, Message: "User not found"})
			return
		}
		logger.Error("signin user lookup failed", "email", req.Email, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, errorResponse{
			Success: false,
			Message: "Error signing in",
			Error:   &errorDetails{Details: "Error signing in"},
		})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		logger.Warn("signin password mismatch", "userId", user.ID)
		respondJSON(ctx, w, http.StatusUnauthorized, errorResponse{Success: false, Message: "Invalid credentials"})
		return
	}

	token, _, err := h.Tokens.Issue(user.ID, user.Email)
	if err != nil {
		logger.Error("signin failed to issue token", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"message": "failed to create session"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, authResponse{
		Success: true,
		Message: "Login successful",
		Data:    tokenData{Token: bearerToken(token)},
	})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Data    tokenData `json:"data"`
}

type tokenData struct {
	Token string `json:"token"`
}

type errorResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Error   *errorDetails `json:"error,omitempty"`
}

type errorDetails struct {
	Details string `json:"details,omitempty"`
}

func bearerToken(token string) string {
	return fmt.Sprintf("Bearer %s", token)
}
