package utils

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"CapIot.relaysync/internal/models"
)

// RespondWithError sends a JSON error response using the APIError model.
func RespondWithError(writer http.ResponseWriter, apiErr models.APIError) {
	RespondWithJSON(writer, apiErr.StatusCode, apiErr)
}

// RespondWithJSON sends a JSON success response. A nil payload sends only
// the status.
func RespondWithJSON(writer http.ResponseWriter, statusCode int, payload any) {
	if payload == nil {
		writer.WriteHeader(statusCode)
		return
	}
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(statusCode)
	if err := json.NewEncoder(writer).Encode(payload); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// RespondWithMessage sends {"message": msg}.
func RespondWithMessage(writer http.ResponseWriter, statusCode int, msg string) {
	RespondWithJSON(writer, statusCode, map[string]string{"message": msg})
}
