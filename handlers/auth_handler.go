package handlers

import (
	"context"
	"errors"
	"net/http"

	"habitTrackerAPI/internal/logger"
	"habitTrackerAPI/internal/user"
)

type AuthService interface {
	Register(ctx context.Context, req user.RegisterRequest) (user.AuthResponse, error)
	Login(ctx context.Context, req user.LoginRequest) (user.AuthResponse, error)
	Me(ctx context.Context, userID string) (user.User, error)
}

type AuthHandler struct {
	authService AuthService
}

func NewAuthHandler(authService AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req user.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := h.authService.Register(ctx, req)
	if err != nil {
		h.respondWithAuthError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, resp)
}

// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req user.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	resp, err := h.authService.Login(ctx, req)
	if err != nil {
		h.respondWithAuthError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// GET /api/user
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, userID, ok := authedContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	u, err := h.authService.Me(ctx, userID)
	if err != nil {
		h.respondWithAuthError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, u)
}

func (h *AuthHandler) respondWithAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, user.ErrInvalid):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, user.ErrAlreadyExists):
		respondWithError(w, http.StatusBadRequest, "User already exists")
	case errors.Is(err, user.ErrInvalidCredentials):
		respondWithError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, user.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "User not found")
	default:
		logger.Error("Auth request failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
