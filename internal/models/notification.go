package models

import "time"

// NotificationType classifies in-app notifications.
type NotificationType string

const (
	NotificationGradePublished      NotificationType = "GRADE_PUBLISHED"
	NotificationGradeUpdated        NotificationType = "GRADE_UPDATED"
	NotificationEnrollmentConfirmed NotificationType = "ENROLLMENT_CONFIRMED"
)

// Notification is an in-app message for one user.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Type      NotificationType `db:"type" json:"type"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	Link      string           `db:"link" json:"link,omitempty"`
	IsRead    bool             `db:"is_read" json:"is_read"`
	ReadAt    *time.Time       `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}
