// Package response provides the JSON envelope used by every HTTP route.
package response

import (
	"errors"
	"reflect"
	"strings"

	"scanner_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// Response is the standard API response structure.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// OK returns a successful response. A "fields" query parameter trims the payload.
func OK(c *fiber.Ctx, data any) error {
	return c.JSON(Response{
		Success: true,
		Data:    SelectFields(c, data),
	})
}

// Error returns an error response.
func Error(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(Response{
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	})
}

// FromError renders err, using its AppError code and status when it has one.
func FromError(c *fiber.Ctx, err error) error {
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.HTTPStatus()).JSON(Response{
			Error: &ErrorInfo{
				Code:    appErr.Code,
				Message: appErr.Message,
				Details: appErr.Details,
			},
		})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return Error(c, fiberErr.Code, "HTTP_ERROR", fiberErr.Message)
	}
	return Error(c, fiber.StatusInternalServerError, apperr.CodeInternalError, "internal server error")
}

// BadRequest returns a 400 bad request response.
func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, apperr.CodeBadRequest, message)
}

// =============================================================================
// Field Selection (Sparse Fieldsets)
// =============================================================================

// SelectFields filters struct fields based on the "fields" query parameter.
// Usage: POST /scan?fields=public_urls,messages_total
func SelectFields(c *fiber.Ctx, data any) any {
	fieldsParam := c.Query("fields")
	if fieldsParam == "" || data == nil {
		return data
	}

	fieldSet := make(map[string]bool)
	for _, f := range strings.Split(fieldsParam, ",") {
		if f = strings.TrimSpace(strings.ToLower(f)); f != "" {
			fieldSet[f] = true
		}
	}
	if len(fieldSet) == 0 {
		return data
	}

	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return data
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return data
	}
	return filterStructFields(v, fieldSet)
}

func filterStructFields(v reflect.Value, fields map[string]bool) map[string]any {
	t := v.Type()
	result := make(map[string]any)

	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		jsonTag := field.Tag.Get("json")
		if jsonTag == "" || jsonTag == "-" {
			continue
		}
		jsonName := strings.Split(jsonTag, ",")[0]
		if fields[strings.ToLower(jsonName)] {
			result[jsonName] = v.Field(i).Interface()
		}
	}
	return result
}
