package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/upb/integration-gateway/internal/policy"
	"github.com/upb/integration-gateway/middleware"
	"github.com/upb/integration-gateway/models"
	"github.com/upb/integration-gateway/services"
	"github.com/upb/integration-gateway/services/policystore"
	"github.com/upb/integration-gateway/utils"
	"go.uber.org/zap"
)

// maxPolicyBodyBytes bounds dashboard request bodies
const maxPolicyBodyBytes = 256 << 10

// AttachRequest represents a request to attach a provider to a terminal
type AttachRequest struct {
	Provider          string              `json:"provider" validate:"required,provider"`
	UserIntegrationID *string             `json:"user_integration_id,omitempty"`
	Policy            json.RawMessage     `json:"policy,omitempty"`
	Confirmations     []policy.Capability `json:"confirmations,omitempty" validate:"omitempty,dive,required"`
}

// ReviseRequest represents a request to write a new policy revision
type ReviseRequest struct {
	Policy        json.RawMessage     `json:"policy" validate:"required"`
	Confirmations []policy.Capability `json:"confirmations,omitempty" validate:"omitempty,dive,required"`
}

// IntegrationStore defines the dashboard operations on terminal integrations
type IntegrationStore interface {
	Authorize(ctx context.Context, terminalID, userID string, min models.DashboardRole) (*models.Terminal, error)
	ListIntegrations(ctx context.Context, terminalID string) ([]*policystore.Attachment, error)
	Attach(ctx context.Context, in policystore.AttachInput) (*policystore.Attachment, error)
	Revise(ctx context.Context, in policystore.ReviseInput) (*models.IntegrationPolicy, error)
	Detach(ctx context.Context, terminalID string, provider policy.Provider, actor string) error
	History(ctx context.Context, terminalID string, provider policy.Provider) ([]*models.IntegrationPolicy, error)
	AuditLog(ctx context.Context, terminalID string, provider policy.Provider, limit, offset int) ([]*models.AuditLog, error)
}

// IntegrationHandler handles dashboard integration management
type IntegrationHandler struct {
	store  IntegrationStore
	logger *zap.Logger
}

// NewIntegrationHandler creates a new IntegrationHandler
func NewIntegrationHandler(store IntegrationStore, logger *zap.Logger) *IntegrationHandler {
	return &IntegrationHandler{
		store:  store,
		logger: logger,
	}
}

// HandleList handles GET /terminals/{terminalId}/integrations
func (h *IntegrationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	terminalID, userID, ok := h.authorize(w, r, models.RoleViewer)
	if !ok {
		return
	}

	attachments, err := h.store.ListIntegrations(r.Context(), terminalID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Debug("listed integrations",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("terminal_id", terminalID),
		zap.String("user_id", userID),
		zap.Int("count", len(attachments)))

	_ = utils.WriteOK(w, attachments)
}

// HandleAttach handles POST /terminals/{terminalId}/integrations
func (h *IntegrationHandler) HandleAttach(w http.ResponseWriter, r *http.Request) {
	terminalID, userID, ok := h.authorize(w, r, models.RoleEditor)
	if !ok {
		return
	}

	var req AttachRequest
	if err := utils.DecodeJSON(r, maxPolicyBodyBytes, &req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	provider, err := policy.ParseProvider(req.Provider)
	if err != nil {
		HandleServiceError(w, services.ErrInvalidProvider.Wrap(err), h.logger)
		return
	}

	var content policy.Content
	if len(req.Policy) > 0 && string(req.Policy) != "null" {
		if content, err = policy.Decode(provider, req.Policy); err != nil {
			HandleServiceError(w, services.ErrInvalidPolicy.Wrap(err), h.logger)
			return
		}
	}

	attachment, err := h.store.Attach(r.Context(), policystore.AttachInput{
		TerminalID:        terminalID,
		Provider:          provider,
		UserIntegrationID: req.UserIntegrationID,
		Policy:            content,
		Confirmations:     req.Confirmations,
		Actor:             userID,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteCreated(w, attachment)
}

// HandleRevise handles PUT /terminals/{terminalId}/integrations/{provider}
func (h *IntegrationHandler) HandleRevise(w http.ResponseWriter, r *http.Request) {
	terminalID, userID, ok := h.authorize(w, r, models.RoleEditor)
	if !ok {
		return
	}
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}

	var req ReviseRequest
	if err := utils.DecodeJSON(r, maxPolicyBodyBytes, &req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	content, err := policy.Decode(provider, req.Policy)
	if err != nil {
		HandleServiceError(w, services.ErrInvalidPolicy.Wrap(err), h.logger)
		return
	}

	rev, err := h.store.Revise(r.Context(), policystore.ReviseInput{
		TerminalID:    terminalID,
		Provider:      provider,
		Policy:        content,
		Confirmations: req.Confirmations,
		Actor:         userID,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, rev)
}

// HandleDetach handles DELETE /terminals/{terminalId}/integrations/{provider}
func (h *IntegrationHandler) HandleDetach(w http.ResponseWriter, r *http.Request) {
	terminalID, userID, ok := h.authorize(w, r, models.RoleEditor)
	if !ok {
		return
	}
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}

	if err := h.store.Detach(r.Context(), terminalID, provider, userID); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	utils.WriteNoContent(w)
}

// HandleHistory handles GET /terminals/{terminalId}/integrations/{provider}/history
func (h *IntegrationHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	terminalID, _, ok := h.authorize(w, r, models.RoleViewer)
	if !ok {
		return
	}
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}

	revisions, err := h.store.History(r.Context(), terminalID, provider)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, revisions)
}

// HandleAudit handles GET /terminals/{terminalId}/integrations/{provider}/audit
func (h *IntegrationHandler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	terminalID, _, ok := h.authorize(w, r, models.RoleViewer)
	if !ok {
		return
	}
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid limit", nil)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid offset", nil)
		return
	}

	logs, err := h.store.AuditLog(r.Context(), terminalID, provider, limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, logs)
}

// authorize resolves the terminal from the path and checks the caller's
// dashboard role.
func (h *IntegrationHandler) authorize(w http.ResponseWriter, r *http.Request, min models.DashboardRole) (string, string, bool) {
	ctx := r.Context()

	userID := middleware.GetUserIDFromContext(ctx)
	if userID == "" {
		h.logger.Error("missing user in context",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)))
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return "", "", false
	}

	terminalID := chi.URLParam(r, "terminalId")
	if terminalID == "" {
		_ = utils.WriteBadRequest(w, "Terminal ID is required", nil)
		return "", "", false
	}

	if _, err := h.store.Authorize(ctx, terminalID, userID, min); err != nil {
		HandleServiceError(w, err, h.logger)
		return "", "", false
	}
	return terminalID, userID, true
}

func (h *IntegrationHandler) provider(w http.ResponseWriter, r *http.Request) (policy.Provider, bool) {
	provider, err := policy.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		HandleServiceError(w, services.ErrInvalidProvider.Wrap(err), h.logger)
		return "", false
	}
	return provider, true
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
