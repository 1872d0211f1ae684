package bookings

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lplate/lplate-backend/api/middleware"
	"github.com/lplate/lplate-backend/api/responses"
	"github.com/lplate/lplate-backend/api/validators"
	internalbookings "github.com/lplate/lplate-backend/internal/bookings"
	"github.com/lplate/lplate-backend/pkg/db/models"
	"github.com/lplate/lplate-backend/pkg/enums"
	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
	"github.com/lplate/lplate-backend/pkg/logger"
)

type statusRequest struct {
	Status enums.BookingStatus `json:"status" validate:"required"`
}

type bookingView struct {
	ID              uuid.UUID           `json:"id"`
	LearnerID       uuid.UUID           `json:"learner_id"`
	InstructorID    uuid.UUID           `json:"instructor_id"`
	StartAt         time.Time           `json:"start_at"`
	EndAt           time.Time           `json:"end_at"`
	DurationMinutes int                 `json:"duration_minutes"`
	PricePence      int64               `json:"price_pence"`
	Status          enums.BookingStatus `json:"status"`
}

func toView(b *models.Booking) bookingView {
	return bookingView{
		ID:              b.ID,
		LearnerID:       b.LearnerID,
		InstructorID:    b.InstructorID,
		StartAt:         b.StartAt,
		EndAt:           b.EndAt,
		DurationMinutes: b.DurationMinutes,
		PricePence:      b.PricePence,
		Status:          b.Status,
	}
}

// UpdateStatus moves a booking along its lifecycle on behalf of one of its parties.
func UpdateStatus(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}
		actorID, role, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bookingID, err := validators.ParseURLUUID(r, "bookingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req statusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !req.Status.IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown booking status"))
			return
		}

		booking, err := svc.UpdateStatus(r.Context(), internalbookings.UpdateStatusInput{
			BookingID: bookingID,
			Status:    req.Status,
			ActorID:   actorID,
			ActorRole: role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toView(booking))
	}
}
