// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/amirphl/momo-reconciler/app/dto"
	"github.com/amirphl/momo-reconciler/app/middleware"
	businessflow "github.com/amirphl/momo-reconciler/business_flow"
	"github.com/amirphl/momo-reconciler/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
)

const defaultRequestTimeout = 30 * time.Second

// base carries the response helpers shared by every handler
type base struct {
	validator *validator.Validate
}

func newBase() base {
	return base{validator: validator.New()}
}

func (h base) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h base) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// bindJSON decodes and validates the body into req; a non-nil error means the response was already written
func (h base) bindJSON(c fiber.Ctx, req any) (bool, error) {
	if err := c.Bind().JSON(req); err != nil {
		return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	return h.validate(c, req)
}

func (h base) validate(c fiber.Ctx, req any) (bool, error) {
	if err := h.validator.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			details := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				details = append(details, getValidationErrorMessage(fe))
			}
			return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", details)
		}
		return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", err.Error())
	}
	return true, nil
}

// flowError maps a business error onto its HTTP status. Unknown failures are logged and reported as 500.
func (h base) flowError(c fiber.Ctx, err error, op string) error {
	code := businessflow.ErrorCode(err)
	switch {
	case businessflow.IsUnauthorized(err):
		return h.ErrorResponse(c, fiber.StatusUnauthorized, err.Error(), code, nil)
	case businessflow.IsNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, err.Error(), code, nil)
	case businessflow.IsAlreadyMatched(err):
		return h.ErrorResponse(c, fiber.StatusConflict, err.Error(), code, nil)
	case businessflow.IsValidationFailed(err):
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), code, nil)
	}
	log.Printf("handlers: %s failed: %v", op, err)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to "+op, code, nil)
}

// requestContext detaches the flow from the fasthttp request and bounds it with a timeout
func requestContext(c fiber.Ctx, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	if id := requestID(c); id != "" {
		ctx = context.WithValue(ctx, utils.RequestIDKey, id)
	}
	return ctx, cancel
}

func requestID(c fiber.Ctx) string {
	if id := requestid.FromContext(c); id != "" {
		return id
	}
	return c.Get("X-Request-ID")
}

// clientMetadata captures the caller for audit entries, including the authenticated admin when present
func clientMetadata(c fiber.Ctx) *businessflow.ClientMetadata {
	meta := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	meta.SetRequestID(requestID(c))
	if adminID, ok := middleware.GetAdminIDFromContext(c); ok {
		meta.SetActor(adminID)
	}
	return meta
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "min":
		return err.Field() + " must be at least " + err.Param()
	case "max":
		return err.Field() + " must be at most " + err.Param()
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}
