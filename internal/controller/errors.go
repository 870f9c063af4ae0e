package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"CapIot.relaysync/internal/models"
	"CapIot.relaysync/internal/repository"
	"CapIot.relaysync/internal/service"
	"CapIot.relaysync/internal/utils"
)

// respondServiceError maps service and store errors onto the API error
// envelope. notFound is the message used for repository.ErrNotFound.
func respondServiceError(w http.ResponseWriter, lg *slog.Logger, err error, notFound string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeValidationFailed, verr.Message, map[string]string{"field": verr.Field}, http.StatusBadRequest))
	case errors.Is(err, repository.ErrNotFound):
		utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeResourceNotFound, notFound, nil, http.StatusNotFound))
	case errors.Is(err, service.ErrConflict), errors.Is(err, repository.ErrDuplicate):
		utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeDuplicateResource, err.Error(), nil, http.StatusConflict))
	case errors.Is(err, service.ErrInvalidCredentials):
		utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeUnauthorized, "Invalid username or password.", nil, http.StatusUnauthorized))
	default:
		lg.Error("request failed", "error", err)
		utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeInternalServerError, "Internal server error.", err.Error(), http.StatusInternalServerError))
	}
}

func badRequest(w http.ResponseWriter, code models.ErrorCode, format string, args ...any) {
	utils.RespondWithError(w, models.NewAPIError(code, fmt.Sprintf(format, args...), nil, http.StatusBadRequest))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		badRequest(w, models.ErrorCodeInvalidFormat, "error decoding request body: %v", err)
		return false
	}
	return true
}

func pathUint(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	raw := mux.Vars(r)[name]
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || v == 0 {
		badRequest(w, models.ErrorCodeInvalidFormat, "%s must be a positive integer", name)
		return 0, false
	}
	return uint(v), true
}

func pathChannel(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := mux.Vars(r)["relayChannel"]
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		badRequest(w, models.ErrorCodeInvalidFormat, "relayChannel must be a non-negative integer")
		return 0, false
	}
	return v, true
}

func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		badRequest(w, models.ErrorCodeInvalidFormat, "limit must be a positive integer")
		return 0, false
	}
	return v, true
}
