// Package middleware holds the fiber middleware stack of the API surface.
package middleware

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"scanner_server/pkg/apperr"
	"scanner_server/pkg/metrics"
	"scanner_server/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDKey = "request_id"

// ErrorHandler renders errors that escaped a handler in the response envelope.
func ErrorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		requestID, _ := c.Locals(requestIDKey).(string)

		var appErr *apperr.AppError
		var fiberErr *fiber.Error
		switch {
		case errors.As(err, &appErr):
			ev := log.Warn()
			if appErr.Status >= 500 {
				ev = log.Error()
			}
			ev.Str("request_id", requestID).Str("error_code", appErr.Code).Err(appErr.Err).Msg(appErr.Message)
			return response.FromError(c, appErr)

		case errors.As(err, &fiberErr):
			return response.Error(c, fiberErr.Code, mapHTTPStatusToCode(fiberErr.Code), fiberErr.Message)

		default:
			log.Error().
				Str("request_id", requestID).
				Err(err).
				Str("stack", string(debug.Stack())).
				Msg("unexpected error")
			return response.FromError(c, err)
		}
	}
}

// RequestID adds a unique request ID to each request.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Locals(requestIDKey, requestID)
		c.Set(fiber.HeaderXRequestID, requestID)
		return c.Next()
	}
}

// RequestLogger logs each request and records it in m (which may be nil).
func RequestLogger(log zerolog.Logger, m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// Let the error handler set the final status before it is logged.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		duration := time.Since(start)

		status := c.Response().StatusCode()
		route := c.Route().Path
		m.RecordHTTP(c.Method(), route, strconv.Itoa(status), duration)

		requestID, _ := c.Locals(requestIDKey).(string)
		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		default:
			ev = log.Info()
		}
		ev.Str("request_id", requestID).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Float64("duration_ms", float64(duration.Microseconds())/1000.0).
			Str("ip", c.IP()).
			Msg("request")
		return nil
	}
}

// Recover turns a handler panic into a 500 response.
func Recover(log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				requestID, _ := c.Locals(requestIDKey).(string)
				log.Error().
					Str("request_id", requestID).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("method", c.Method()).
					Str("path", c.Path()).
					Str("stack", string(debug.Stack())).
					Msg("panic recovered")
				err = response.Error(c, fiber.StatusInternalServerError, apperr.CodeInternalError, "internal server error")
			}
		}()
		return c.Next()
	}
}

// SecurityHeaders adds security headers to all responses. The OAuth callback
// URL carries an authorization code, so no referrer is ever sent.
func SecurityHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "no-referrer")
		c.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Set("Cache-Control", "no-store")
		return c.Next()
	}
}

func mapHTTPStatusToCode(status int) string {
	switch status {
	case 400:
		return apperr.CodeBadRequest
	case 401:
		return apperr.CodeNotAuthenticated
	case 404:
		return "NOT_FOUND"
	case 405:
		return "METHOD_NOT_ALLOWED"
	case 408, 504:
		return apperr.CodeTimeout
	case 409:
		return apperr.CodeScanInProgress
	case 500:
		return apperr.CodeInternalError
	case 502, 503:
		return "SERVICE_UNAVAILABLE"
	default:
		return "HTTP_ERROR"
	}
}
