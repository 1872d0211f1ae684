package bookings

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lplate/lplate-backend/pkg/db/dbtest"
	"github.com/lplate/lplate-backend/pkg/db/models"
	"github.com/lplate/lplate-backend/pkg/enums"
	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
)

func TestUpdateStatusTransitions(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	booking := models.Booking{
		LearnerID:       uuid.New(),
		InstructorID:    uuid.New(),
		StartAt:         time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
		EndAt:           time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC),
		DurationMinutes: 60,
		PricePence:      4000,
		Status:          enums.BookingStatusPending,
	}
	require.NoError(t, db.Create(&booking).Error)

	instructor := UpdateStatusInput{BookingID: booking.ID, ActorID: booking.InstructorID, ActorRole: enums.RoleInstructor}
	learner := UpdateStatusInput{BookingID: booking.ID, ActorID: booking.LearnerID, ActorRole: enums.RoleLearner}

	learner.Status = enums.BookingStatusCompleted
	_, err = svc.UpdateStatus(ctx, learner)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	instructor.Status = enums.BookingStatusCompleted
	_, err = svc.UpdateStatus(ctx, instructor)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))

	instructor.Status = enums.BookingStatusConfirmed
	updated, err := svc.UpdateStatus(ctx, instructor)
	require.NoError(t, err)
	require.Equal(t, enums.BookingStatusConfirmed, updated.Status)

	updated, err = svc.UpdateStatus(ctx, instructor)
	require.NoError(t, err)
	require.Equal(t, enums.BookingStatusConfirmed, updated.Status)

	instructor.Status = enums.BookingStatusCompleted
	updated, err = svc.UpdateStatus(ctx, instructor)
	require.NoError(t, err)
	require.Equal(t, enums.BookingStatusCompleted, updated.Status)

	learner.Status = enums.BookingStatusCancelled
	_, err = svc.UpdateStatus(ctx, learner)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))

	stranger := UpdateStatusInput{BookingID: booking.ID, ActorID: uuid.New(), ActorRole: enums.RoleLearner, Status: enums.BookingStatusCancelled}
	_, err = svc.UpdateStatus(ctx, stranger)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	_, err = svc.UpdateStatus(ctx, UpdateStatusInput{BookingID: uuid.New(), Status: enums.BookingStatusCancelled, ActorRole: enums.RoleAdmin})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	_, err = svc.UpdateStatus(ctx, UpdateStatusInput{BookingID: booking.ID, Status: "teleported", ActorRole: enums.RoleAdmin})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}
