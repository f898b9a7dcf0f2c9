package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/canonify/internal/api/shared"
	"github.com/phrazzld/canonify/internal/conversion"
	"github.com/phrazzld/canonify/internal/domain"
	"github.com/phrazzld/canonify/internal/service"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrNoFiles):
		return http.StatusUnprocessableEntity

	case errors.Is(err, service.ErrFileNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrDisallowedType),
		errors.Is(err, service.ErrContentMismatch),
		errors.Is(err, conversion.ErrCorruptInput),
		errors.Is(err, conversion.ErrUnsupportedFormat),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a user-facing message for err.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return shared.MessageInternalError
	}

	switch {
	case errors.Is(err, service.ErrNoFiles):
		return shared.MessageNoFiles

	case errors.Is(err, service.ErrFileNotFound):
		return shared.MessageFileNotFound

	case errors.Is(err, service.ErrDisallowedType):
		return "File type not allowed"

	case errors.Is(err, service.ErrContentMismatch):
		return "File content does not match its type"

	case errors.Is(err, conversion.ErrCorruptInput):
		return "File could not be read"

	case errors.Is(err, conversion.ErrUnsupportedFormat):
		return "Unsupported file format"

	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid file ID"

	case errors.Is(err, domain.ErrValidation):
		return "Validation error"

	default:
		return shared.MessageInternalError
	}
}

// HandleAPIError writes the envelope for err. A non-empty message overrides
// the mapped one for client errors; 5xx responses always use the generic
// message.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := MapErrorToStatusCode(err)
	if message == "" || status >= http.StatusInternalServerError {
		message = GetSafeErrorMessage(err)
	}

	var opts []shared.ResponseOption
	if errors.Is(err, service.ErrContentMismatch) {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Example format: "Key: 'uploadPart.Filename' Error:Field validation for 'Filename' failed on the 'required' tag"
	if strings.Contains(errMsg, "Field validation") {
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}

				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
