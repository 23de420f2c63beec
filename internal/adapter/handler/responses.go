package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/stockkeeper/internal/core/domain"
	"github.com/rl1809/stockkeeper/internal/core/service"
)

type APIResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

const (
	CodeBadRequest        = "BAD_REQUEST"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeDuplicateRequest  = "DUPLICATE_REQUEST"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeUnavailable       = "SERVICE_UNAVAILABLE"
	CodeInternal          = "INTERNAL_SERVER_ERROR"
)

func successResponse(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	})
}

func errorResponse(c *fiber.Ctx, status int, code, message string, details map[string]any) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Message: message,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	})
}

func getRequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok && id != "" {
		return id
	}
	requestID := c.Get(fiber.HeaderXRequestID)
	if requestID == "" {
		requestID = uuid.New().String()
		c.Set(fiber.HeaderXRequestID, requestID)
	}
	return requestID
}

// errorStatus maps a service error to an HTTP status, error code and optional details.
func errorStatus(err error) (int, string, map[string]any) {
	var stockErr *domain.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		return fiber.StatusUnprocessableEntity, CodeInsufficientStock, map[string]any{
			"itemId":    stockErr.ItemID,
			"needed":    stockErr.Needed,
			"available": stockErr.Available,
		}
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, CodeNotFound, nil
	case errors.Is(err, service.ErrDuplicateRequest):
		return fiber.StatusConflict, CodeDuplicateRequest, nil
	case errors.Is(err, domain.ErrDuplicateKey), errors.Is(err, domain.ErrInvalidState):
		return fiber.StatusConflict, CodeConflict, nil
	case errors.Is(err, domain.ErrInvalidInput):
		return fiber.StatusBadRequest, CodeBadRequest, nil
	case errors.Is(err, service.ErrQueueFull), errors.Is(err, service.ErrDispatcherClosed):
		return fiber.StatusServiceUnavailable, CodeUnavailable, nil
	default:
		return fiber.StatusInternalServerError, CodeInternal, nil
	}
}

func (h *HTTPHandler) writeError(c *fiber.Ctx, err error) error {
	status, code, details := errorStatus(err)
	message := err.Error()
	if status == fiber.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("request_id", getRequestID(c)),
			zap.Error(err),
		)
		message = "internal error"
	}
	return errorResponse(c, status, code, message, details)
}

// ErrorHandler renders errors that escape route handlers, including fiber's own.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return errorResponse(c, fe.Code, codeForStatus(fe.Code), fe.Message, nil)
		}
		logger.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, CodeInternal, "internal error", nil)
	}
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return CodeNotFound
	case fiber.StatusBadRequest:
		return CodeBadRequest
	case fiber.StatusConflict:
		return CodeConflict
	case fiber.StatusServiceUnavailable:
		return CodeUnavailable
	default:
		if status >= 500 {
			return CodeInternal
		}
		return CodeBadRequest
	}
}
