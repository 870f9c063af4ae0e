package controller

import (
	"net/http"

	"CapIot.relaysync/internal/transport"
	"CapIot.relaysync/internal/utils"
)

// StateReporter exposes the broker connection state.
type StateReporter interface {
	State() transport.State
}

// HealthController serves liveness of the process itself.
type HealthController struct {
	transport StateReporter
}

// NewHealthController creates a new HealthController.
func NewHealthController(transport StateReporter) *HealthController {
	return &HealthController{transport: transport}
}

// HandleHealth reports liveness and the broker connection state.
func (c *HealthController) HandleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"transport": c.transport.State().String(),
	})
}

// HandleWelcome greets API clients.
func (c *HealthController) HandleWelcome(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithMessage(w, http.StatusOK, "Relay sync API")
}
