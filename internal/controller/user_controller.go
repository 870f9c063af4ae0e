package controller

import (
	"log/slog"
	"net/http"

	"CapIot.relaysync/internal/middleware"
	"CapIot.relaysync/internal/models"
	"CapIot.relaysync/internal/service"
	"CapIot.relaysync/internal/utils"
)

// UserController handles registration and login.
type UserController struct {
	service *service.UserService
	lg      *slog.Logger
}

// NewUserController creates a new UserController.
func NewUserController(service *service.UserService, lg *slog.Logger) *UserController {
	return &UserController{service: service, lg: lg}
}

// HandleRegister creates an operator account.
func (c *UserController) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req service.Registration
	if !decodeBody(w, r, &req) {
		return
	}
	profile, err := c.service.Register(r.Context(), req)
	if err != nil {
		respondServiceError(w, c.lg, err, "")
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully.",
		"user":    profile,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin exchanges credentials for a token.
func (c *UserController) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		badRequest(w, models.ErrorCodeMissingParameter, "Username and password required.")
		return
	}
	res, err := c.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respondServiceError(w, c.lg, err, "")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, res)
}

// HandleMe returns the caller's identity from the validated token.
func (c *UserController) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeUnauthorized, "Not authenticated.", nil, http.StatusUnauthorized))
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"id":       claims.RegisteredClaims.Subject,
		"username": middleware.Username(r.Context()),
	})
}
