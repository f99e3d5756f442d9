package waitlist

import (
	"regexp"
	"strings"

	"github.com/akeren/course-waitlist-api/pkg/constants"
	apperrors "github.com/akeren/course-waitlist-api/pkg/errors"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

var (
	// Unicode spaces, vertical tab and BOM all count as whitespace.
	emailPattern = regexp.MustCompile(`^[^\s\v\p{Z}\x{FEFF}@]+@[^\s\v\p{Z}\x{FEFF}@]+\.[^\s\v\p{Z}\x{FEFF}@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[1-9]\d{6,14}$`)
)

var submissionMessages = apperrors.MessageTable{
	"FirstName":            "First name is required.",
	"LastName":             "Last name is required.",
	"Email.notblank":       "Email is required.",
	"Email.waitlist_email": "Please enter a valid email address.",
	"Phone":                "Please enter a valid phone number.",
	"Token":                "Human verification token is required.",
}

// Validator checks a normalized submission and reports every violation in field order.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	mustRegister(v, "notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	mustRegister(v, "waitlist_email", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "intl_phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})

	return &Validator{validate: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic("waitlist: register validation " + tag + ": " + err.Error())
	}
}

// Normalize trims every text field, NFC-normalizes names, lower-cases the email
// and applies the referrer default. The token is passed through untouched.
func (v *Validator) Normalize(req SubmitWaitlistRequest) SubmitWaitlistRequest {
	referrer := strings.TrimSpace(req.Referrer)
	if referrer == "" {
		referrer = constants.DefaultReferrer
	}

	return SubmitWaitlistRequest{
		FirstName:  norm.NFC.String(strings.TrimSpace(req.FirstName)),
		LastName:   norm.NFC.String(strings.TrimSpace(req.LastName)),
		Email:      strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:      strings.TrimSpace(req.Phone),
		PageSource: strings.TrimSpace(req.PageSource),
		Referrer:   referrer,
		Token:      req.Token,
	}
}

// Validate returns nil for a valid submission.
func (v *Validator) Validate(req *SubmitWaitlistRequest) []string {
	if req == nil {
		return []string{"Request body is required."}
	}

	return apperrors.FormatValidationErrors(v.validate.Struct(req), submissionMessages)
}
