package http

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/overchat/relay-server/internal/registry"
)

const (
	headerServiceID    = "X-Service-Id"
	headerAPIKey       = "X-Api-Key"
	headerRecipientKey = "X-Recipient-Key"

	// ContextKeyRecipient carries the authenticated recipient key.
	ContextKeyRecipient = "recipient_key"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AdminAuthMiddleware gates administrative endpoints behind a static bearer
// credential compared in constant time. An empty configured key disables the
// surface entirely.
func AdminAuthMiddleware(adminKey string, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			c.Abort()
			return
		}

		presented := c.GetHeader("Authorization")
		expected := "Bearer " + adminKey
		if subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
			logger.Warn().Str("path", c.Request.URL.Path).Msg("admin auth failed")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RegistryAuthMiddleware authenticates a polling game server through its
// registered credential and attaches the recipient key to the context.
func RegistryAuthMiddleware(auth *registry.Authenticator, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		serviceID := c.GetHeader(headerServiceID)
		apiKey := c.GetHeader(headerAPIKey)
		recipientKey := c.GetHeader(headerRecipientKey)

		if serviceID == "" || apiKey == "" || recipientKey == "" {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing identity headers"})
			c.Abort()
			return
		}

		ok, err := auth.Authenticate(c.Request.Context(), serviceID, apiKey)
		if err != nil {
			logger.Error().Err(err).Msg("registry authentication error")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			c.Abort()
			return
		}
		if !ok {
			logger.Warn().Str("service_id", serviceID).Msg("unauthorized registry access attempt")
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "invalid credentials"})
			c.Abort()
			return
		}

		c.Set(ContextKeyRecipient, recipientKey)
		c.Next()
	}
}

// LoggerMiddleware logs HTTP requests after completion.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}
