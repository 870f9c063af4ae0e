package controller

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"CapIot.relaysync/internal/models"
	"CapIot.relaysync/internal/service"
	"CapIot.relaysync/internal/utils"
)

// RelayController handles the relay endpoints.
type RelayController struct {
	service *service.RelayService
	lg      *slog.Logger
}

// NewRelayController creates a new RelayController.
func NewRelayController(service *service.RelayService, lg *slog.Logger) *RelayController {
	return &RelayController{service: service, lg: lg}
}

// HandleList returns every relay.
func (c *RelayController) HandleList(w http.ResponseWriter, r *http.Request) {
	relays, err := c.service.List(r.Context())
	if err != nil {
		respondServiceError(w, c.lg, err, "")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, relays)
}

// HandleGet returns one relay.
func (c *RelayController) HandleGet(w http.ResponseWriter, r *http.Request) {
	channel, ok := pathChannel(w, r)
	if !ok {
		return
	}
	relay, err := c.service.Get(r.Context(), mux.Vars(r)["deviceId"], channel)
	if err != nil {
		respondServiceError(w, c.lg, err, "Relay not found.")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, relay)
}

type controlRequest struct {
	State *bool `json:"state"`
}

// HandleControl sends a manual relay command.
func (c *RelayController) HandleControl(w http.ResponseWriter, r *http.Request) {
	channel, ok := pathChannel(w, r)
	if !ok {
		return
	}
	var req controlRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.State == nil {
		badRequest(w, models.ErrorCodeValidationFailed, "Invalid state value. Must be true or false.")
		return
	}

	created, err := c.service.Control(r.Context(), mux.Vars(r)["deviceId"], channel, *req.State)
	if err != nil {
		respondServiceError(w, c.lg, err, "Relay not found.")
		return
	}
	if created {
		utils.RespondWithMessage(w, http.StatusCreated, "Relay created and command sent.")
		return
	}
	utils.RespondWithMessage(w, http.StatusOK, "Relay command sent and desired state updated.")
}
