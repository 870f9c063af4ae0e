package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"

	"CapIot.relaysync/internal/models"
	"CapIot.relaysync/internal/utils"
)

// CustomClaims carries the application claims of an access token.
type CustomClaims struct {
	Username string `json:"username"`
}

// Validate is required by validator.CustomClaims.
func (c *CustomClaims) Validate(context.Context) error { return nil }

// AuthConfig must match the values tokens are issued with.
type AuthConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
}

// EnsureValidToken returns a middleware that rejects requests without a
// valid HS256 bearer token.
func EnsureValidToken(cfg AuthConfig, lg *slog.Logger) (func(next http.Handler) http.Handler, error) {
	keyFunc := func(context.Context) (interface{}, error) {
		return cfg.Secret, nil
	}
	jwtValidator, err := validator.New(
		keyFunc,
		validator.HS256,
		cfg.Issuer,
		[]string{cfg.Audience},
		validator.WithCustomClaims(func() validator.CustomClaims { return &CustomClaims{} }),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, err
	}

	errorHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		lg.Debug("token rejected", "path", r.URL.Path, "error", err)
		utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeInvalidToken, "Failed to validate JWT.", nil, http.StatusUnauthorized))
	}

	mw := jwtmiddleware.New(jwtValidator.ValidateToken, jwtmiddleware.WithErrorHandler(errorHandler))
	return func(next http.Handler) http.Handler {
		return mw.CheckJWT(next)
	}, nil
}

// ClaimsFrom returns the validated claims stored by EnsureValidToken.
func ClaimsFrom(ctx context.Context) (*validator.ValidatedClaims, bool) {
	claims, ok := ctx.Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
	return claims, ok
}

// Username returns the username of the authenticated caller, if any.
func Username(ctx context.Context) string {
	claims, ok := ClaimsFrom(ctx)
	if !ok {
		return ""
	}
	if custom, ok := claims.CustomClaims.(*CustomClaims); ok {
		return custom.Username
	}
	return ""
}
