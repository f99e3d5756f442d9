package waitlist

import (
	"time"

	"github.com/akeren/course-waitlist-api/internal/models"
	"github.com/akeren/course-waitlist-api/pkg/notify"
)

// SubmitWaitlistRequest is the landing-page form body. Validation runs in Validator, not gin binding.
type SubmitWaitlistRequest struct {
	FirstName  string `json:"firstName" validate:"notblank"`
	LastName   string `json:"lastName" validate:"notblank"`
	Email      string `json:"email" validate:"notblank,waitlist_email"`
	Phone      string `json:"phone" validate:"omitempty,intl_phone"`
	PageSource string `json:"pageSource"`
	Referrer   string `json:"referrer"`
	Token      string `json:"token" validate:"required"`
}

// ClientInfo carries request metadata used for verification and logging.
type ClientInfo struct {
	IP        string
	UserAgent string
}

type SubmissionResponse struct {
	Email       string `json:"email"`
	SubmittedAt string `json:"submittedAt"`
}

// ========================================
// Mappers
// ========================================

func ToWaitlistSubmissionModel(req *SubmitWaitlistRequest) *models.WaitlistSubmission {
	if req == nil {
		return nil
	}
	return &models.WaitlistSubmission{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      req.Email,
		Phone:      req.Phone,
		PageSource: req.PageSource,
		Referrer:   req.Referrer,
	}
}

func ToNotification(submission *models.WaitlistSubmission) notify.Submission {
	if submission == nil {
		return notify.Submission{}
	}
	return notify.Submission{
		FirstName:  submission.FirstName,
		LastName:   submission.LastName,
		Email:      submission.Email,
		Phone:      submission.Phone,
		PageSource: submission.PageSource,
		Referrer:   submission.Referrer,
	}
}

func ToSubmissionResponse(submission *models.WaitlistSubmission) SubmissionResponse {
	if submission == nil {
		return SubmissionResponse{}
	}
	return SubmissionResponse{
		Email:       submission.Email,
		SubmittedAt: submission.CreatedAt.Format(time.RFC3339),
	}
}
