package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lplate/lplate-backend/pkg/enums"
)

// Booking is a single lesson slot between a learner and an instructor.
type Booking struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LearnerID       uuid.UUID           `gorm:"column:learner_id;type:uuid;not null"`
	InstructorID    uuid.UUID           `gorm:"column:instructor_id;type:uuid;not null"`
	StartAt         time.Time           `gorm:"column:start_at;not null"`
	EndAt           time.Time           `gorm:"column:end_at;not null"`
	DurationMinutes int                 `gorm:"column:duration_minutes;not null"`
	PricePence      int64               `gorm:"column:price_pence;not null"`
	Status          enums.BookingStatus `gorm:"column:status;type:booking_status;not null;default:'pending'"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
