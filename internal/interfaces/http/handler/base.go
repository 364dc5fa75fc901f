package handler

import (
	"errors"
	"net/http"

	"github.com/erp/vendorsync/internal/domain/shared"
	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/erp/vendorsync/internal/infrastructure/logger"
	"github.com/erp/vendorsync/internal/infrastructure/queue"
	"github.com/erp/vendorsync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID set by logger.RequestID
func getRequestID(c *gin.Context) string {
	if id := logger.GetRequestID(c.Request.Context()); id != "" {
		return id
	}
	return c.GetHeader(logger.HeaderRequestID)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 accepted response
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// HandleError converts sync engine errors to HTTP responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)

	code := errorCode(err)
	message := err.Error()
	if code == dto.ErrCodeInternal {
		logger.GetGinLogger(c).Error("Request failed", zap.Error(err))
		message = "An unexpected error occurred"
	}
	h.ErrorWithCode(c, code, message)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, vendorsync.ErrSignatureInvalid):
		return dto.ErrCodeSignatureInvalid
	case errors.Is(err, vendorsync.ErrValidation):
		return dto.ErrCodeValidation
	case errors.Is(err, vendorsync.ErrVendorNotFound), errors.Is(err, shared.ErrNotFound):
		return dto.ErrCodeVendorNotFound
	case errors.Is(err, vendorsync.ErrVendorInactive):
		return dto.ErrCodeVendorInactive
	case errors.Is(err, vendorsync.ErrCapabilityUnsupported):
		return dto.ErrCodeCapabilityUnsupported
	case errors.Is(err, queue.ErrQueueFull):
		return dto.ErrCodeUnavailable
	}
	return dto.ErrCodeInternal
}
