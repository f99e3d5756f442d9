package router

import (
	"net/http"

	"github.com/akeren/course-waitlist-api/internal/log"
	apperrors "github.com/akeren/course-waitlist-api/pkg/errors"
)

// GetLogger returns the correlated logger the injection middleware stored on the request.
func GetLogger(ctx *RequestContext) *log.Logger {
	if l, ok := ctx.Request.Context().Value(log.LoggerKeyForContext).(*log.Logger); ok && l != nil {
		return l
	}

	return log.NewLoggerWithJSONOutput().WithCorrelationID(ctx.Request.Context())
}

func OKResult(data any, message string) *ServiceResult {
	return &ServiceResult{
		StatusCode: http.StatusOK,
		Data:       data,
		Message:    message,
	}
}

// CreatedWithMessageResult answers 201 with user-facing confirmation copy.
func CreatedWithMessageResult(data any, message string) *ServiceResult {
	return &ServiceResult{
		StatusCode: http.StatusCreated,
		Data:       data,
		Message:    message,
	}
}

func TooManyRequestsResult(data RateLimitResponse) *ServiceResult {
	return &ServiceResult{
		StatusCode: http.StatusTooManyRequests,
		Data:       data,
		Message:    "Too Many Requests",
	}
}

func BadRequestResult(message string, payload any) *ServiceResult {
	return &ServiceResult{
		StatusCode: http.StatusBadRequest,
		Data:       payload,
		Message:    message,
	}
}

func NotFoundResult(message string) *ServiceResult {
	return ErrorResult(http.StatusNotFound, message, nil)
}

func InternalServerErrorResult(message string) *ServiceResult {
	return ErrorResult(http.StatusInternalServerError, message, nil)
}

func ErrorResult(statusCode int, message string, data any) *ServiceResult {
	return &ServiceResult{
		StatusCode: statusCode,
		Data:       data,
		Message:    message,
	}
}

// AppErrorResult renders err through the AppError taxonomy. Wrapped causes never reach the body;
// field violations, when present, are returned as data.
func AppErrorResult(err error) *ServiceResult {
	var data any
	if violations := apperrors.GetViolations(err); len(violations) > 0 {
		data = violations
	}

	return ErrorResult(apperrors.HTTPStatusCode(err), apperrors.GetHumanReadableMessage(err), data)
}
