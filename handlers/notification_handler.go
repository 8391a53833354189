package handlers

import (
	"context"
	"errors"
	"net/http"

	"habitTrackerAPI/internal/logger"
	"habitTrackerAPI/internal/notification"
)

type DeviceRegistrar interface {
	RegisterDevice(ctx context.Context, userID string, req notification.RegisterDeviceRequest) error
}

type NotificationHandler struct {
	notificationService DeviceRegistrar
}

func NewNotificationHandler(notificationService DeviceRegistrar) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// POST /api/notifications/devices
func (h *NotificationHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, userID, ok := authedContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	var req notification.RegisterDeviceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.notificationService.RegisterDevice(ctx, userID, req); err != nil {
		if errors.Is(err, notification.ErrInvalidDevice) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("Failed to register device", "user_id", userID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to register device")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Device registered successfully"})
}
