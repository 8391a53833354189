package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"habitTrackerAPI/internal/friend"
	"habitTrackerAPI/internal/logger"
)

type FriendService interface {
	List(ctx context.Context, userID string) ([]friend.Connection, error)
	Requests(ctx context.Context, userID string) ([]friend.Connection, error)
	Add(ctx context.Context, userID string, req friend.AddFriendRequest) (friend.Connection, error)
	Respond(ctx context.Context, userID, connectionID string, req friend.RespondRequest) error
	Remove(ctx context.Context, userID, connectionID string) error
}

type FriendHandler struct {
	friendService FriendService
}

func NewFriendHandler(friendService FriendService) *FriendHandler {
	return &FriendHandler{friendService: friendService}
}

// GET /api/friends
func (h *FriendHandler) GetFriends(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, userID, ok := authedContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	friends, err := h.friendService.List(ctx, userID)
	if err != nil {
		respondWithFriendError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, nonNil(friends))
}

// GET /api/friends/requests
func (h *FriendHandler) GetRequests(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, userID, ok := authedContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	requests, err := h.friendService.Requests(ctx, userID)
	if err != nil {
		respondWithFriendError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, nonNil(requests))
}

// POST /api/friends
func (h *FriendHandler) AddFriend(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, userID, ok := authedContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	var req friend.AddFriendRequest
	if !decodeBody(w, r, &req) {
		return
	}

	conn, err := h.friendService.Add(ctx, userID, req)
	if err != nil {
		respondWithFriendError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, conn)
}

// PUT /api/friends/{id}
func (h *FriendHandler) RespondToRequest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, userID, ok := authedContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	var req friend.RespondRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.friendService.Respond(ctx, userID, mux.Vars(r)["id"], req); err != nil {
		respondWithFriendError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Friend request " + string(req.Action) + "ed"})
}

// DELETE /api/friends/{id}
func (h *FriendHandler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, userID, ok := authedContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	if err := h.friendService.Remove(ctx, userID, mux.Vars(r)["id"]); err != nil {
		respondWithFriendError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Friend removed successfully"})
}

func respondWithFriendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, friend.ErrShareCodeRequired),
		errors.Is(err, friend.ErrSelfFriend),
		errors.Is(err, friend.ErrAlreadyFriends),
		errors.Is(err, friend.ErrInvalidAction):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, friend.ErrInvalidShareCode),
		errors.Is(err, friend.ErrRequestNotFound),
		errors.Is(err, friend.ErrNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	default:
		logger.Error("Friend request failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
