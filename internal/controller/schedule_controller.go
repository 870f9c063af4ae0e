package controller

import (
	"log/slog"
	"net/http"
	"strconv"

	"CapIot.relaysync/internal/models"
	"CapIot.relaysync/internal/repository"
	"CapIot.relaysync/internal/service"
	"CapIot.relaysync/internal/utils"
)

// ScheduleController handles the schedule endpoints.
type ScheduleController struct {
	service *service.ScheduleService
	lg      *slog.Logger
}

// NewScheduleController creates a new ScheduleController.
func NewScheduleController(service *service.ScheduleService, lg *slog.Logger) *ScheduleController {
	return &ScheduleController{service: service, lg: lg}
}

// HandleList accepts optional relayId and deviceId filters.
func (c *ScheduleController) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.ScheduleFilter{DeviceID: q.Get("deviceId")}
	if raw := q.Get("relayId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			badRequest(w, models.ErrorCodeInvalidFormat, "relayId must be a positive integer")
			return
		}
		filter.RelayID = uint(id)
	}

	schedules, err := c.service.List(r.Context(), filter)
	if err != nil {
		respondServiceError(w, c.lg, err, "")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, schedules)
}

// HandleCreate adds a schedule.
func (c *ScheduleController) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.ScheduleInput
	if !decodeBody(w, r, &in) {
		return
	}
	schedule, err := c.service.Create(r.Context(), in)
	if err != nil {
		respondServiceError(w, c.lg, err, "Relay not found.")
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, schedule)
}

// HandleUpdate changes a schedule.
func (c *ScheduleController) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	var in service.ScheduleInput
	if !decodeBody(w, r, &in) {
		return
	}
	schedule, err := c.service.Update(r.Context(), id, in)
	if err != nil {
		respondServiceError(w, c.lg, err, "Schedule or relay not found.")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, schedule)
}

// HandleDelete removes a schedule.
func (c *ScheduleController) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	if err := c.service.Delete(r.Context(), id); err != nil {
		respondServiceError(w, c.lg, err, "Schedule not found.")
		return
	}
	utils.RespondWithJSON(w, http.StatusNoContent, nil)
}
