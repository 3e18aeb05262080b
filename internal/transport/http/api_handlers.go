package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/overchat/relay-server/internal/identity"
	"github.com/overchat/relay-server/internal/mailbox"
	"github.com/overchat/relay-server/internal/moderation"
	"github.com/overchat/relay-server/internal/proto"
	"github.com/overchat/relay-server/internal/registry"
	"github.com/overchat/relay-server/internal/verify"
)

// APIHandlers provides HTTP handlers for the request/response surface.
type APIHandlers struct {
	queue     *moderation.Queue
	mailboxes *mailbox.Store
	auth      *registry.Authenticator
	verifier  *verify.Service
	hasher    *identity.Hasher
	limiter   *rateLimiter
	maxBytes  int64
	log       *zerolog.Logger
}

// NewAPIHandlers creates the API handlers instance.
func NewAPIHandlers(queue *moderation.Queue, mailboxes *mailbox.Store, auth *registry.Authenticator,
	verifier *verify.Service, hasher *identity.Hasher, limiter *rateLimiter, maxBytes int64,
	logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		queue:     queue,
		mailboxes: mailboxes,
		auth:      auth,
		verifier:  verifier,
		hasher:    hasher,
		limiter:   limiter,
		maxBytes:  maxBytes,
		log:       logger,
	}
}

// Echo moderates a one-shot plain text message and returns it verbatim.
// POST /echo
func (h *APIHandlers) Echo(c *gin.Context) {
	clientKey := c.ClientIP()
	if !h.limiter.allow(clientKey) {
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxBytes+1))
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid message")
		return
	}
	text := string(body)
	if int64(len(body)) > h.maxBytes || strings.TrimSpace(text) == "" {
		c.String(http.StatusBadRequest, "Invalid message")
		return
	}

	senderKey := h.hasher.AnonymousKey(clientKey)

	var verdict moderation.Verdict
	select {
	case verdict = <-h.queue.Submit(text):
	case <-c.Request.Context().Done():
		return
	}

	if verdict.Allowed {
		h.log.Info().Str("sender_key", senderKey).Msg("echo message accepted")
		c.String(http.StatusOK, text)
		return
	}

	// The rejected text is deliberately not logged.
	h.log.Info().
		Str("sender_key", senderKey).
		Str("reason", string(verdict.Reason)).
		Msg("echo message rejected")

	if verdict.Reason == moderation.ReasonAPIError {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "error",
			"message": "Message could not be processed.",
		})
		return
	}
	c.JSON(http.StatusForbidden, proto.NewRejection(string(verdict.Reason)))
}

// DrainMailbox destructively reads the authenticated recipient's mailbox.
// GET /api/v1/commands
func (h *APIHandlers) DrainMailbox(c *gin.Context) {
	recipientKey := c.GetString(ContextKeyRecipient)
	payloads := h.mailboxes.Drain(recipientKey)
	c.JSON(http.StatusOK, payloads)
}

// PushCommandsRequest represents the command push request body.
type PushCommandsRequest struct {
	RecipientKey string            `json:"recipientKey" binding:"required"`
	Payloads     []json.RawMessage `json:"payloads" binding:"required,min=1"`
}

// PushCommands appends command payloads to a recipient's mailbox.
// POST /api/v1/commands (admin)
func (h *APIHandlers) PushCommands(c *gin.Context) {
	var req PushCommandsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	h.mailboxes.Push(req.RecipientKey, req.Payloads...)
	c.JSON(http.StatusOK, gin.H{"status": "queued", "count": len(req.Payloads)})
}

// ==== Admin registry endpoints ====

// ServiceResponse represents a registered service in API responses. The
// credential hash is never exposed.
type ServiceResponse struct {
	ServiceID string `json:"serviceId"`
	CreatedAt string `json:"createdAt"`
}

// ListServices lists registered services.
// GET /api/admin/registry (admin)
func (h *APIHandlers) ListServices(c *gin.Context) {
	entries, err := h.auth.List(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list services")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	out := make([]ServiceResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ServiceResponse{
			ServiceID: e.ServiceID,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, out)
}

// UpsertServiceRequest represents the service registration request body.
type UpsertServiceRequest struct {
	ServiceID  string `json:"serviceId" binding:"required"`
	Credential string `json:"credential" binding:"required,min=8"`
}

// UpsertService registers or replaces a service credential.
// POST /api/admin/registry (admin)
func (h *APIHandlers) UpsertService(c *gin.Context) {
	var req UpsertServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.auth.Upsert(c.Request.Context(), req.ServiceID, req.Credential); err != nil {
		h.log.Error().Err(err).Str("service_id", req.ServiceID).Msg("failed to upsert service")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// RemoveService deletes a service registration.
// DELETE /api/admin/registry/:id (admin)
func (h *APIHandlers) RemoveService(c *gin.Context) {
	if err := h.auth.Remove(c.Request.Context(), c.Param("id")); err != nil {
		h.log.Error().Err(err).Msg("failed to remove service")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// ==== Verification endpoints ====

// GenerateCodeRequest represents the code generation request body.
type GenerateCodeRequest struct {
	Username string `json:"username" binding:"required"`
}

// GenerateCode mints a one-time verification code for a claimed username.
// POST /api/verify/generate
func (h *APIHandlers) GenerateCode(c *gin.Context) {
	var req GenerateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "username required"})
		return
	}

	code, userID, err := h.verifier.GenerateCode(c.Request.Context(), req.Username)
	if errors.Is(err, verify.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("failed to generate verification code")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": code, "userId": userID})
}

// ConfirmRequest represents the verification confirmation request body.
type ConfirmRequest struct {
	UserID int64  `json:"userId" binding:"required"`
	HWID   string `json:"hwid" binding:"required"`
}

// Confirm checks the profile for the pending code and links the hardware id.
// POST /api/verify/confirm
func (h *APIHandlers) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	err := h.verifier.Confirm(c.Request.Context(), req.UserID, req.HWID)
	switch {
	case errors.Is(err, verify.ErrNoPendingCode):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no pending verification"})
	case errors.Is(err, verify.ErrCodeNotInProfile):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "code not found in profile description"})
	case err != nil:
		h.log.Error().Err(err).Msg("verification failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "verification failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// UnverifyRequest represents the unlink request body.
type UnverifyRequest struct {
	HWID string `json:"hwid" binding:"required"`
}

// Unverify removes a hardware id link.
// POST /api/verify/unverify
func (h *APIHandlers) Unverify(c *gin.Context) {
	var req UnverifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "hardware id required"})
		return
	}

	if err := h.verifier.Unverify(c.Request.Context(), req.HWID); err != nil {
		h.log.Error().Err(err).Msg("failed to unlink identity")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "account unlinked"})
}
