package httpx

import (
	"context"
	"errors"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/apperr"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/tracking"
	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/trace"
)

// HeaderRequestID carries the correlation id between services.
const HeaderRequestID = "X-Request-Id"

// Respond writes payload as JSON with status.
func Respond(c *fiber.Ctx, status int, payload any) error {
	return c.Status(status).JSON(payload)
}

// RespondError writes a bare error body.
func RespondError(c *fiber.Ctx, status int, code, title, message string) error {
	return c.Status(status).JSON(apperr.Response{Code: code, Title: title, Message: message})
}

// WriteDomainError renders err using the corebank error catalogue. Server-side
// failures are logged with the request logger; client errors are not.
func WriteDomainError(c *fiber.Ctx, err error) error {
	status, body := apperr.ToResponse(err)

	if status >= fiber.StatusInternalServerError {
		ctx := c.UserContext()
		logger := tracking.LoggerFromContext(ctx)
		logger.Log(ctx, log.LevelError, "request failed",
			log.String("method", c.Method()),
			log.String("path", c.Path()),
			log.Int("status", status),
			log.String("code", body.Code),
			log.Err(err),
		)
	}

	return c.Status(status).JSON(body)
}

// ErrorHandler is the fiber ErrorHandler for corebank apps. Errors that escape
// handlers end the active span before rendering.
func ErrorHandler(c *fiber.Ctx, err error) error {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	span := trace.SpanFromContext(ctx)
	tracking.HandleSpanError(span, "handler error", err)

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return RespondError(c, fe.Code, "0400", "Request Error", fe.Message)
	}

	return WriteDomainError(c, err)
}
