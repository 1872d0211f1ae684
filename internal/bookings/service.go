package bookings

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lplate/lplate-backend/pkg/db/models"
	"github.com/lplate/lplate-backend/pkg/enums"
	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
)

// UpdateStatusInput carries the acting user so parties can only move their own bookings.
type UpdateStatusInput struct {
	BookingID uuid.UUID
	Status    enums.BookingStatus
	ActorID   uuid.UUID
	ActorRole enums.Role
}

type Service interface {
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Booking, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("bookings repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Booking, error) {
	if input.BookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id is required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid booking status %q", input.Status))
	}

	booking, err := s.load(ctx, input.BookingID)
	if err != nil {
		return nil, err
	}
	if err := authorize(booking, input); err != nil {
		return nil, err
	}
	if booking.Status == input.Status {
		return booking, nil
	}
	if !booking.Status.CanTransitionTo(input.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("booking cannot move from %s to %s", booking.Status, input.Status))
	}

	updated, err := s.repo.UpdateStatus(ctx, booking.ID, booking.Status, input.Status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update booking status")
	}
	if !updated {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "booking status changed concurrently")
	}
	return s.load(ctx, booking.ID)
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
	}
	return booking, nil
}

// Only the instructor (or an admin) completes a lesson; either party may cancel.
func authorize(booking *models.Booking, input UpdateStatusInput) error {
	if input.ActorRole == enums.RoleAdmin {
		return nil
	}
	isInstructor := input.ActorID == booking.InstructorID
	isLearner := input.ActorID == booking.LearnerID
	switch {
	case isInstructor:
		return nil
	case isLearner && input.Status == enums.BookingStatusCancelled:
		return nil
	case isLearner:
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the instructor can change this booking status")
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "booking belongs to another user")
	}
}
