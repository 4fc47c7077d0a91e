package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/integration-gateway/middleware"
	"github.com/upb/integration-gateway/services/gateway"
	"github.com/upb/integration-gateway/utils"
	"go.uber.org/zap"
)

// Executor runs gateway calls
type Executor interface {
	Execute(ctx context.Context, req gateway.Request) (*gateway.Response, error)
}

// GatewayHandler serves terminal calls to external providers
type GatewayHandler struct {
	executor     Executor
	maxBodyBytes int64
	logger       *zap.Logger
}

// NewGatewayHandler creates a new GatewayHandler
func NewGatewayHandler(executor Executor, maxBodyBytes int64, logger *zap.Logger) *GatewayHandler {
	return &GatewayHandler{
		executor:     executor,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// HandleExecute handles POST /gateway/{provider}/execute
func (h *GatewayHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	body, err := utils.ReadBody(r, h.maxBodyBytes)
	if err != nil {
		reason := "Failed to read request body"
		if errors.Is(err, utils.ErrBodyTooLarge) {
			reason = "Request body too large"
		}
		_ = utils.WriteBadRequest(w, reason, nil)
		return
	}

	// Capability tokens only travel in the Authorization header
	resp, err := h.executor.Execute(ctx, gateway.Request{
		Token:     middleware.BearerToken(r),
		Provider:  chi.URLParam(r, "provider"),
		Body:      body,
		RequestID: requestID,
	})
	if err != nil {
		h.writeGatewayError(w, requestID, err)
		return
	}

	if err := utils.WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("failed to write gateway response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

func (h *GatewayHandler) writeGatewayError(w http.ResponseWriter, requestID string, err error) {
	var gerr *gateway.Error
	if !errors.As(err, &gerr) {
		h.logger.Error("unexpected gateway error",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "An internal error occurred")
		return
	}

	if gerr.Code == gateway.CodeRateLimited {
		utils.SetRetryAfter(w, gerr.RetryAfter)
	}
	if err := utils.WriteError(w, gerr.HTTPStatus(), string(gerr.Code), gerr.Reason, nil); err != nil {
		h.logger.Error("failed to write gateway error",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}
