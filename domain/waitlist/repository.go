package waitlist

//go:generate mockgen -source=repository.go -destination=mock_repository_test.go -package=waitlist

import (
	"context"
	"errors"
	"strings"

	"github.com/akeren/course-waitlist-api/internal/models"
	apperrors "github.com/akeren/course-waitlist-api/pkg/errors"
	"gorm.io/gorm"
)

type WaitlistRepository interface {
	// FindByEmail returns (nil, nil) when no submission exists for the email.
	FindByEmail(ctx context.Context, email string) (*models.WaitlistSubmission, error)
	// Insert persists a new submission. A unique-index violation surfaces as a ConflictError.
	Insert(ctx context.Context, submission *models.WaitlistSubmission) (*models.WaitlistSubmission, error)
}

type waitlistRepository struct {
	db *gorm.DB
}

func NewWaitlistRepository(db *gorm.DB) WaitlistRepository {
	return &waitlistRepository{db: db}
}

func (wr *waitlistRepository) FindByEmail(ctx context.Context, email string) (*models.WaitlistSubmission, error) {
	var submission models.WaitlistSubmission

	err := wr.db.WithContext(ctx).
		Where("lower(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&submission).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.NewDatabaseError("failed to look up waitlist submission", err)
	}

	return &submission, nil
}

func (wr *waitlistRepository) Insert(ctx context.Context, submission *models.WaitlistSubmission) (*models.WaitlistSubmission, error) {
	if submission == nil {
		return nil, apperrors.NewInvalidRequestError("submission cannot be nil", nil)
	}

	if err := wr.db.WithContext(ctx).Create(submission).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, apperrors.NewConflictError("waitlist submission with this email already exists", err)
		}
		return nil, apperrors.NewDatabaseError("unable to save waitlist submission", err)
	}

	return submission, nil
}

func isDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || apperrors.IsDuplicateKeyError(err)
}
