package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/integration-gateway/services"
	"github.com/upb/integration-gateway/utils"
	"go.uber.org/zap"
)

// codeAPIError is the wire code for upstream provider failures
const codeAPIError = "API_ERROR"

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	msg := services.PublicMessage(err)

	var writeErr error
	switch services.GetErrorType(err) {
	case services.ErrorTypeNotFound:
		writeErr = utils.WriteNotFound(w, msg)
	case services.ErrorTypeValidation:
		writeErr = utils.WriteBadRequest(w, msg, details)
	case services.ErrorTypeUnauthorized:
		writeErr = utils.WriteUnauthorized(w, msg)
	case services.ErrorTypeForbidden, services.ErrorTypePolicyViolation:
		writeErr = utils.WriteForbidden(w, msg)
	case services.ErrorTypeRateLimit:
		writeErr = utils.WriteTooManyRequests(w, msg, 0)
	case services.ErrorTypeConflict:
		writeErr = utils.WriteConflict(w, msg, details)
	case services.ErrorTypeExternal:
		writeErr = utils.WriteError(w, http.StatusBadGateway, codeAPIError, msg, details)
	case services.ErrorTypeInternal:
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}
	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}

	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		logger.Debug("handled service error",
			zap.String("type", string(domainErr.Type)),
			zap.String("message", domainErr.Message),
			zap.Any("details", domainErr.Details))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
