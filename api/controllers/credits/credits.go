package credits

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lplate/lplate-backend/api/middleware"
	"github.com/lplate/lplate-backend/api/responses"
	"github.com/lplate/lplate-backend/api/validators"
	internalcredits "github.com/lplate/lplate-backend/internal/credits"
	internalpayments "github.com/lplate/lplate-backend/internal/payments"
	"github.com/lplate/lplate-backend/pkg/enums"
	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
	"github.com/lplate/lplate-backend/pkg/logger"
	"github.com/lplate/lplate-backend/pkg/pagination"
)

type purchaseRequest struct {
	InstructorID uuid.UUID       `json:"instructorId" validate:"required"`
	Hours        decimal.Decimal `json:"hours" validate:"gt=0"`
}

type useRequest struct {
	InstructorID uuid.UUID       `json:"instructorId" validate:"required"`
	BookingID    uuid.UUID       `json:"bookingId" validate:"required"`
	Hours        decimal.Decimal `json:"hours" validate:"gt=0"`
}

// Balances lists credit balances. Learners see their own; instructors must
// name the learner and only see balances held with them.
func Balances(svc internalcredits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credits service unavailable"))
			return
		}
		learnerID, instructorID, err := resolvePair(r, false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		balances, err := svc.List(r.Context(), learnerID, instructorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balances)
	}
}

// Ledger pages through the ledger rows behind one balance.
func Ledger(svc internalcredits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credits service unavailable"))
			return
		}
		learnerID, instructorID, err := resolvePair(r, true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.Entries(r.Context(), internalcredits.EntriesInput{
			LearnerID:    learnerID,
			InstructorID: *instructorID,
			Cursor:       strings.TrimSpace(r.URL.Query().Get("cursor")),
			Limit:        limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// Purchase opens a payment intent for prepaid hours. The balance is credited
// when the payment succeeds.
func Purchase(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		learnerID, _, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req purchaseRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.PurchaseCredits(r.Context(), internalpayments.CreditPurchaseInput{
			LearnerID:      learnerID,
			InstructorID:   req.InstructorID,
			Hours:          req.Hours,
			IdempotencyKey: r.Header.Get("Idempotency-Key"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// Use pays for a booked lesson from the learner's prepaid credit.
func Use(svc internalcredits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credits service unavailable"))
			return
		}
		learnerID, _, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req useRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		usage, err := svc.ConsumeForBooking(r.Context(), internalcredits.BookingUsageInput{
			LearnerID:    learnerID,
			InstructorID: req.InstructorID,
			BookingID:    req.BookingID,
			Hours:        req.Hours,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, usage)
	}
}

// resolvePair scopes the learner/instructor query to the caller's role.
func resolvePair(r *http.Request, instructorRequired bool) (uuid.UUID, *uuid.UUID, error) {
	actorID, role, err := middleware.RequireActor(r.Context())
	if err != nil {
		return uuid.Nil, nil, err
	}
	learnerID, err := validators.ParseQueryUUID(r, "learnerId", role != enums.RoleLearner)
	if err != nil {
		return uuid.Nil, nil, err
	}
	instructorID, err := validators.ParseQueryUUID(r, "instructorId", instructorRequired && role != enums.RoleInstructor)
	if err != nil {
		return uuid.Nil, nil, err
	}

	switch role {
	case enums.RoleLearner:
		if learnerID != nil && *learnerID != actorID {
			return uuid.Nil, nil, pkgerrors.New(pkgerrors.CodeForbidden, "learners can only view their own credit")
		}
		return actorID, instructorID, nil
	case enums.RoleInstructor:
		if instructorID != nil && *instructorID != actorID {
			return uuid.Nil, nil, pkgerrors.New(pkgerrors.CodeForbidden, "instructors can only view credit held with them")
		}
		return *learnerID, &actorID, nil
	case enums.RoleAdmin:
		return *learnerID, instructorID, nil
	}
	return uuid.Nil, nil, pkgerrors.New(pkgerrors.CodeForbidden, "role not permitted")
}
