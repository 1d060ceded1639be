package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"ledwatcher/internal/storage"
)

// The wire contract is inherited from the original deployment: success is
// {"data": [...]} and every failure is {"error": "..."}.

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondData(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotConfigured) {
		respondError(w, http.StatusServiceUnavailable, "storage not configured")
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}
