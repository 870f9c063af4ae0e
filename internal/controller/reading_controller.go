package controller

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"CapIot.relaysync/internal/service"
	"CapIot.relaysync/internal/utils"
)

// ReadingController handles the reading endpoints.
type ReadingController struct {
	service *service.ReadingService
	lg      *slog.Logger
}

// NewReadingController creates a new ReadingController.
func NewReadingController(service *service.ReadingService, lg *slog.Logger) *ReadingController {
	return &ReadingController{service: service, lg: lg}
}

// HandleList returns recent readings.
func (c *ReadingController) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	readings, err := c.service.List(r.Context(), limit)
	if err != nil {
		respondServiceError(w, c.lg, err, "")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, readings)
}

// HandleLatest returns the latest reading of each device.
func (c *ReadingController) HandleLatest(w http.ResponseWriter, r *http.Request) {
	readings, err := c.service.Latest(r.Context())
	if err != nil {
		respondServiceError(w, c.lg, err, "")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, readings)
}

// HandleByDevice returns recent readings of one device.
func (c *ReadingController) HandleByDevice(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	readings, err := c.service.ByDevice(r.Context(), mux.Vars(r)["deviceId"], limit)
	if err != nil {
		respondServiceError(w, c.lg, err, "")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, readings)
}
