package models

import "time"

// WaitlistSubmission is written once per accepted form post and never updated.
type WaitlistSubmission struct {
	ID         uint      `gorm:"primaryKey"`
	FirstName  string    `gorm:"not null"`
	LastName   string    `gorm:"not null"`
	Email      string    `gorm:"not null;uniqueIndex:idx_waitlist_submissions_email"`
	Phone      string    `gorm:"not null;default:''"`
	PageSource string    `gorm:"not null;default:'';index:idx_waitlist_submissions_page_source,priority:1"`
	Referrer   string    `gorm:"not null;default:'Direct'"`
	CreatedAt  time.Time `gorm:"not null;index:idx_waitlist_submissions_page_source,priority:2"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (WaitlistSubmission) TableName() string {
	return "waitlist_submissions"
}
