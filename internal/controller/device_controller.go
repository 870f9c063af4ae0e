package controller

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"CapIot.relaysync/internal/service"
	"CapIot.relaysync/internal/utils"
)

// DeviceController handles the device endpoints.
type DeviceController struct {
	service *service.DeviceService
	lg      *slog.Logger
}

// NewDeviceController creates a new DeviceController.
func NewDeviceController(service *service.DeviceService, lg *slog.Logger) *DeviceController {
	return &DeviceController{service: service, lg: lg}
}

// HandleList returns every known device.
func (c *DeviceController) HandleList(w http.ResponseWriter, r *http.Request) {
	devices, err := c.service.List(r.Context())
	if err != nil {
		respondServiceError(w, c.lg, err, "")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, devices)
}

// HandleGet returns one device.
func (c *DeviceController) HandleGet(w http.ResponseWriter, r *http.Request) {
	device, err := c.service.Get(r.Context(), mux.Vars(r)["deviceId"])
	if err != nil {
		respondServiceError(w, c.lg, err, "Device not found.")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, device)
}

// HandleStatus reports whether the device is online.
func (c *DeviceController) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := c.service.Status(r.Context(), mux.Vars(r)["deviceId"])
	if err != nil {
		respondServiceError(w, c.lg, err, "Device not found.")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, status)
}
