package waitlist

//go:generate mockgen -source=service.go -destination=mock_service_test.go -package=waitlist

import (
	"context"

	"github.com/akeren/course-waitlist-api/internal/log"
	apperrors "github.com/akeren/course-waitlist-api/pkg/errors"
	"github.com/akeren/course-waitlist-api/pkg/notify"
)

const (
	MessageSubmitted          = "Successfully joined the waitlist!"
	MessageInvalidJSON        = "Invalid JSON in request body"
	MessageVerificationFailed = "Human verification failed. Please try again."
	MessageDuplicateEmail     = "This email address has already been submitted."
	MessagePersistFailed      = "Failed to save your submission. Please try again."
	MessageInternalError      = "Internal Server Error"
)

// HumanVerifier decides whether a CAPTCHA token came from a person. It must fail closed.
type HumanVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) bool
}

// Notifier forwards a stored submission downstream without blocking the caller.
type Notifier interface {
	Notify(ctx context.Context, submission notify.Submission)
}

type WaitlistService interface {
	// Submit runs one submission through validation, verification, dedupe, storage and notification.
	Submit(ctx context.Context, req *SubmitWaitlistRequest, client ClientInfo) (*SubmissionResponse, error)
}

type waitlistService struct {
	logger     *log.Logger
	repository WaitlistRepository
	validator  *Validator
	verifier   HumanVerifier
	notifier   Notifier
}

func NewWaitlistService(
	logger *log.Logger,
	repository WaitlistRepository,
	validator *Validator,
	verifier HumanVerifier,
	notifier Notifier,
) WaitlistService {
	if validator == nil {
		validator = NewValidator()
	}

	return &waitlistService{
		logger:     logger,
		repository: repository,
		validator:  validator,
		verifier:   verifier,
		notifier:   notifier,
	}
}

func (s *waitlistService) Submit(ctx context.Context, req *SubmitWaitlistRequest, client ClientInfo) (*SubmissionResponse, error) {
	logger := log.GetLoggerInstanceFromContext(ctx, s.logger).With(
		"client_ip", client.IP,
		"user_agent", client.UserAgent,
	)

	if req == nil {
		logger.Error("Submit received empty request", "state", StateRejectedInvalid)
		return nil, apperrors.NewInvalidRequestError(MessageInvalidJSON, nil)
	}

	input := s.validator.Normalize(*req)
	logger = logger.With("email", input.Email)
	transition(logger, StateReceived)

	if violations := s.validator.Validate(&input); len(violations) > 0 {
		transition(logger, StateRejectedInvalid, "violations", violations)
		return nil, apperrors.NewValidationError(violations)
	}
	transition(logger, StateValidated)

	if !s.verifier.Verify(ctx, input.Token, client.IP) {
		transition(logger, StateRejectedUnverified)
		return nil, apperrors.NewForbiddenError(MessageVerificationFailed, nil)
	}
	transition(logger, StateVerified)

	existing, err := s.repository.FindByEmail(ctx, input.Email)
	if err != nil {
		transition(logger, StateFailedLookup, "error", err)
		return nil, apperrors.NewInternalServerError(MessageInternalError, err)
	}
	if existing != nil {
		transition(logger, StateRejectedDuplicate, "existing_id", existing.ID)
		return nil, apperrors.NewConflictError(MessageDuplicateEmail, nil)
	}

	stored, err := s.repository.Insert(ctx, ToWaitlistSubmissionModel(&input))
	if err != nil {
		// Two identical submissions can both pass the lookup; the unique index decides.
		if apperrors.GetErrorType(err) == apperrors.ErrorTypeConflict {
			transition(logger, StateRejectedDuplicate, "error", err)
			return nil, apperrors.NewConflictError(MessageDuplicateEmail, err)
		}
		transition(logger, StateFailedPersist, "error", err)
		return nil, apperrors.NewDatabaseError(MessagePersistFailed, err)
	}
	transition(logger, StateStored, "submission_id", stored.ID)

	s.notifier.Notify(ctx, ToNotification(stored))
	transition(logger, StateNotified)

	response := ToSubmissionResponse(stored)
	transition(logger, StateResponded)
	return &response, nil
}

func transition(logger *log.Logger, state State, args ...any) {
	args = append([]any{"state", string(state), "terminal", state.Terminal()}, args...)

	switch state {
	case StateFailedLookup, StateFailedPersist:
		logger.Error("Waitlist submission failed", args...)
	case StateRejectedInvalid, StateRejectedUnverified, StateRejectedDuplicate:
		logger.Warn("Waitlist submission rejected", args...)
	default:
		logger.Info("Waitlist submission state changed", args...)
	}
}
