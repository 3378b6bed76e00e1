package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/card-control/services"
	"github.com/upb/card-control/services/gateway"
	"github.com/upb/card-control/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses. Only the domain
// message reaches the client; causes are logged.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	status := StatusForError(err)
	message := publicMessage(err)
	details := services.GetErrorDetails(err)
	if len(details) == 0 {
		details = nil
	}

	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed",
			zap.Int("status", status),
			zap.String("error_type", string(services.GetErrorType(err))),
			zap.Error(err))
	default:
		logger.Info("request refused",
			zap.Int("status", status),
			zap.String("error_type", string(services.GetErrorType(err))),
			zap.Error(err))
	}

	if status == http.StatusInternalServerError && !services.IsConfigurationError(err) {
		message = "An internal error occurred"
	}

	if werr := utils.WriteError(w, status, message, details); werr != nil {
		logger.Error("failed to write error response", zap.Error(werr))
	}
}

// StatusForError returns the HTTP status a domain error is reported with
func StatusForError(err error) int {
	switch {
	case services.IsNotFoundError(err):
		return http.StatusNotFound
	case services.IsValidationError(err):
		return http.StatusBadRequest
	case services.IsUnauthorizedError(err):
		return http.StatusUnauthorized
	case services.IsForbiddenError(err):
		return http.StatusForbidden
	case services.IsConflictError(err):
		return http.StatusConflict
	case services.IsInsufficientFundsError(err):
		return http.StatusPaymentRequired
	case services.IsExternalError(err):
		// the gateway answered but refused or sent garbage
		var gwErr *gateway.GatewayError
		if errors.As(err, &gwErr) {
			return http.StatusBadGateway
		}
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(err error) string {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return "An unexpected error occurred"
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
