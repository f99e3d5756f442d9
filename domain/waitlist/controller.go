package waitlist

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/akeren/course-waitlist-api/config/router"
	"github.com/akeren/course-waitlist-api/internal/log"
	"github.com/akeren/course-waitlist-api/pkg/constants"
	apperrors "github.com/akeren/course-waitlist-api/pkg/errors"
	"github.com/akeren/course-waitlist-api/pkg/ratelimit"
	"gorm.io/gorm"
)

func NewWaitlistController(
	db *gorm.DB,
	logger *log.Logger,
	verifier HumanVerifier,
	notifier Notifier,
) *router.RESTController {

	return router.NewRESTController(
		"WaitlistController",
		"/api/waitlist",
		func(rs *router.RouterService, c *router.RESTController) {
			repository := NewWaitlistRepository(db)
			service := NewWaitlistService(logger, repository, NewValidator(), verifier, notifier)

			rs.AddPostHandler(c, createSubmissionRateLimiter(rs, logger), "", submitWaitlistHandler(service))
		},
	)
}

// createSubmissionRateLimiter shares limits across instances when Redis is available.
func createSubmissionRateLimiter(routerService *router.RouterService, logger *log.Logger) ratelimit.RateLimiter {
	return ratelimit.NewRateLimiter(&ratelimit.RateLimitConfig{
		Requests:  constants.WaitlistSubmissionsPerMinute,
		Window:    time.Minute,
		Redis:     routerService.RedisClient(),
		KeyPrefix: "ratelimit:waitlist:",
		Logger:    logger,
	})
}

func submitWaitlistHandler(service WaitlistService) router.HandlerFunction {
	return func(ctx *router.RequestContext) *router.ServiceResult {
		logger := router.GetLogger(ctx)

		var req SubmitWaitlistRequest

		if err := decodeSubmission(ctx.Request.Body, &req); err != nil {
			if violations := apperrors.FormatValidationErrors(err, nil); len(violations) > 0 {
				logger.Warn("Waitlist submission rejected", "state", string(StateRejectedInvalid), "violations", violations)
				validationErr := apperrors.NewValidationError(violations)
				return router.BadRequestResult(validationErr.Message, violations)
			}

			logger.Error("Failed to decode waitlist submission", "error", err)
			return router.BadRequestResult(MessageInvalidJSON, nil)
		}

		client := ClientInfo{IP: ctx.ClientIP(), UserAgent: ctx.Request.UserAgent()}

		response, err := service.Submit(ctx.Request.Context(), &req, client)
		if err != nil {
			return router.AppErrorResult(err)
		}

		return router.CreatedWithMessageResult(response, MessageSubmitted)
	}
}

var errTrailingData = errors.New("unexpected data after JSON body")

// decodeSubmission accepts exactly one JSON value. Anything after it, even another
// object, makes the whole body invalid; a field type error is only reported for a
// body that otherwise parses.
func decodeSubmission(body io.Reader, req *SubmitWaitlistRequest) error {
	if body == nil {
		return io.EOF
	}

	decoder := json.NewDecoder(body)
	err := decoder.Decode(req)

	var typeErr *json.UnmarshalTypeError
	if err != nil && !errors.As(err, &typeErr) {
		return err
	}

	if trailing := decoder.Decode(&json.RawMessage{}); !errors.Is(trailing, io.EOF) {
		return errTrailingData
	}
	return err
}
