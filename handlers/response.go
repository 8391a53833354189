package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"habitTrackerAPI/internal/logger"
	"habitTrackerAPI/middleware"
)

const requestTimeout = 5 * time.Second

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Failed to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithETag writes payload with a strong ETag over its JSON encoding
// and answers 304 when the client already holds that version.
func respondWithETag(w http.ResponseWriter, r *http.Request, payload interface{}) {
	respondWithETagOf(w, r, payload, payload)
}

// respondWithETagOf derives the ETag from key instead of the payload, for
// responses that carry volatile fields.
func respondWithETagOf(w http.ResponseWriter, r *http.Request, key, payload interface{}) {
	etag, err := computeETag(key)
	if err != nil {
		logger.Error("Failed to marshal response", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, no-cache")
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	respondWithJSON(w, http.StatusOK, payload)
}

func computeETag(v interface{}) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`, nil
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

// authedContext bounds the request and pulls the caller id. It writes a 401
// and reports false when the request carries no user.
func authedContext(w http.ResponseWriter, r *http.Request) (context.Context, context.CancelFunc, string, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return nil, nil, "", false
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	return ctx, cancel, userID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
