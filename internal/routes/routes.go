package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"CapIot.relaysync/internal/controller"
	"CapIot.relaysync/internal/models"
	"CapIot.relaysync/internal/utils"
)

// Controllers groups the handlers mounted by SetupRouter.
type Controllers struct {
	Health    *controller.HealthController
	Users     *controller.UserController
	Devices   *controller.DeviceController
	Readings  *controller.ReadingController
	Relays    *controller.RelayController
	Schedules *controller.ScheduleController
}

// SetupRouter defines all API routes. Everything under /api except the
// welcome, login and register routes passes through auth.
func SetupRouter(c Controllers, auth func(http.Handler) http.Handler) *mux.Router {
	router := mux.NewRouter()
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeMethodNotAllowed, "Method not allowed", nil, http.StatusMethodNotAllowed))
	})
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeNotFound, "Route not found", nil, http.StatusNotFound))
	})

	router.HandleFunc("/health", c.Health.HandleHealth).Methods(http.MethodGet)
	router.HandleFunc("/api", c.Health.HandleWelcome).Methods(http.MethodGet)
	router.HandleFunc("/api/login", c.Users.HandleLogin).Methods(http.MethodPost)
	router.HandleFunc("/api/register", c.Users.HandleRegister).Methods(http.MethodPost)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth)
	api.HandleFunc("/me", c.Users.HandleMe).Methods(http.MethodGet)
	SetupDeviceRoutes(api, c.Devices)
	SetupReadingRoutes(api, c.Readings)
	SetupRelayRoutes(api, c.Relays)
	SetupScheduleRoutes(api, c.Schedules)

	return router
}

// SetupDeviceRoutes registers the device endpoints.
func SetupDeviceRoutes(router *mux.Router, c *controller.DeviceController) {
	router.HandleFunc("/devices", c.HandleList).Methods(http.MethodGet)
	router.HandleFunc("/devices/{deviceId}", c.HandleGet).Methods(http.MethodGet)
	router.HandleFunc("/devices/{deviceId}/status", c.HandleStatus).Methods(http.MethodGet)
}

// SetupReadingRoutes registers the reading endpoints.
func SetupReadingRoutes(router *mux.Router, c *controller.ReadingController) {
	router.HandleFunc("/readings", c.HandleList).Methods(http.MethodGet)
	router.HandleFunc("/readings/latest", c.HandleLatest).Methods(http.MethodGet)
	router.HandleFunc("/readings/{deviceId}", c.HandleByDevice).Methods(http.MethodGet)
}

// SetupRelayRoutes registers the relay endpoints.
func SetupRelayRoutes(router *mux.Router, c *controller.RelayController) {
	router.HandleFunc("/relays", c.HandleList).Methods(http.MethodGet)
	router.HandleFunc("/relays/{deviceId}/{relayChannel}", c.HandleGet).Methods(http.MethodGet)
	router.HandleFunc("/relays/{deviceId}/{relayChannel}/control", c.HandleControl).Methods(http.MethodPost)
}

// SetupScheduleRoutes registers the schedule endpoints.
func SetupScheduleRoutes(router *mux.Router, c *controller.ScheduleController) {
	router.HandleFunc("/schedules", c.HandleList).Methods(http.MethodGet)
	router.HandleFunc("/schedules", c.HandleCreate).Methods(http.MethodPost)
	router.HandleFunc("/schedules/{id}", c.HandleUpdate).Methods(http.MethodPut)
	router.HandleFunc("/schedules/{id}", c.HandleDelete).Methods(http.MethodDelete)
}
