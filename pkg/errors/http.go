package errors

import (
	"errors"
	"net/http"
)

var statusByType = map[string]int{
	ErrorTypeInvalidRequest: http.StatusBadRequest,
	ErrorTypeForbidden:      http.StatusForbidden,
	ErrorTypeConflict:       http.StatusConflict,
}

// HTTPStatusCode maps err to a status; anything outside the taxonomy is a 500.
func HTTPStatusCode(err error) int {
	if status, ok := statusByType[GetErrorType(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// GetHumanReadableMessage never returns the wrapped cause, which may hold driver or
// network details.
func GetHumanReadableMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return http.StatusText(http.StatusInternalServerError)
}
