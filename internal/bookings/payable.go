package bookings

import (
	"github.com/google/uuid"

	"github.com/lplate/lplate-backend/pkg/db/models"
	"github.com/lplate/lplate-backend/pkg/enums"
	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
)

// RequirePayable checks that learnerID may pay instructorID for booking.
// Whether the booking already carries a live payment is checked by the caller.
func RequirePayable(booking *models.Booking, learnerID, instructorID uuid.UUID) error {
	if booking.LearnerID != learnerID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "booking belongs to another learner")
	}
	if booking.InstructorID != instructorID {
		return pkgerrors.New(pkgerrors.CodeValidation, "booking is with a different instructor")
	}
	if booking.Status == enums.BookingStatusCancelled {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "booking is cancelled")
	}
	return nil
}
