package payouts

import (
	"net/http"
	"strings"
	"time"

	"github.com/lplate/lplate-backend/api/middleware"
	"github.com/lplate/lplate-backend/api/responses"
	"github.com/lplate/lplate-backend/api/validators"
	internalpayouts "github.com/lplate/lplate-backend/internal/payouts"
	"github.com/lplate/lplate-backend/pkg/enums"
	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
	"github.com/lplate/lplate-backend/pkg/logger"
	"github.com/lplate/lplate-backend/pkg/pagination"
)

type runRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// Run triggers the batch for a payout date, today in the payout timezone
// when none is given. Dates other than Fridays are rejected by the batcher.
func Run(svc internalpayouts.Service, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	if loc == nil {
		loc = time.UTC
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		var req runRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		if req.Date == "" {
			req.Date = r.URL.Query().Get("date")
		}

		var date time.Time
		if req.Date == "" {
			local := time.Now().In(loc)
			date = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
		} else {
			parsed, err := internalpayouts.ParseDate(req.Date)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			date = parsed
		}

		result, err := svc.Run(r.Context(), date)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// History pages an instructor's payouts, newest first.
func History(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		actorID, role, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		instructorID, err := validators.ParseQueryUUID(r, "instructorId", role == enums.RoleAdmin)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if role == enums.RoleInstructor {
			if instructorID != nil && *instructorID != actorID {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "instructors can only view their own payouts"))
				return
			}
			instructorID = &actorID
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.History(r.Context(), internalpayouts.HistoryInput{
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

// Retry re-attempts the transfer of one failed payout.
func Retry(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		payoutID, err := validators.ParseURLUUID(r, "payoutId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.RetryFailed(r.Context(), payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
