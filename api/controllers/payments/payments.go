package payments

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lplate/lplate-backend/api/middleware"
	"github.com/lplate/lplate-backend/api/responses"
	"github.com/lplate/lplate-backend/api/validators"
	internalpayments "github.com/lplate/lplate-backend/internal/payments"
	"github.com/lplate/lplate-backend/pkg/enums"
	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
	"github.com/lplate/lplate-backend/pkg/logger"
)

type checkoutRequest struct {
	InstructorID uuid.UUID       `json:"instructorId" validate:"required"`
	BookingID    *uuid.UUID      `json:"bookingId"`
	AmountPence  int64           `json:"amountPence" validate:"gte=0"`
	Hours        decimal.Decimal `json:"hours"`
	DiscountCode string          `json:"discountCode" validate:"max=64"`
}

type quoteRequest struct {
	AmountPence  int64  `json:"amountPence" validate:"gt=0"`
	DiscountCode string `json:"discountCode" validate:"max=64"`
}

// Checkout prices a lesson for the calling learner and opens a payment intent.
func Checkout(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
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

		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.AmountPence == 0 && !req.Hours.IsPositive() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "amountPence or hours is required"))
			return
		}

		result, err := svc.Checkout(r.Context(), internalpayments.CheckoutInput{
			LearnerID:      learnerID,
			InstructorID:   req.InstructorID,
			BookingID:      req.BookingID,
			AmountPence:    req.AmountPence,
			Hours:          req.Hours,
			DiscountCode:   validators.SanitizeString(req.DiscountCode, 64),
			IdempotencyKey: r.Header.Get("Idempotency-Key"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// Get returns a payment to one of its parties or an admin.
func Get(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		actorID, role, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentID, err := validators.ParseURLUUID(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Get(r.Context(), paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if role != enums.RoleAdmin && view.LearnerID != actorID && view.InstructorID != actorID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found"))
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Quote previews the fee and discount split without creating anything.
func Quote(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		var req quoteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		breakdown, err := svc.Quote(r.Context(), internalpayments.QuoteInput{
			AmountPence:  req.AmountPence,
			DiscountCode: validators.SanitizeString(req.DiscountCode, 64),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, breakdown)
	}
}
