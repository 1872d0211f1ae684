package connect

import (
	"net/http"

	"github.com/lplate/lplate-backend/api/middleware"
	"github.com/lplate/lplate-backend/api/responses"
	"github.com/lplate/lplate-backend/api/validators"
	internalconnect "github.com/lplate/lplate-backend/internal/connect"
	"github.com/lplate/lplate-backend/pkg/enums"
	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
	"github.com/lplate/lplate-backend/pkg/logger"
)

// CreateAccount returns an onboarding link for the calling instructor,
// creating the Express account on first use.
func CreateAccount(svc internalconnect.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "connect service unavailable"))
			return
		}
		instructorID, _, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		onboarding, err := svc.CreateAccount(r.Context(), instructorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if onboarding.Created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, onboarding)
	}
}

func Status(svc internalconnect.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "connect service unavailable"))
			return
		}
		actorID, role, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		instructorID, err := validators.ParseURLUUID(r, "instructorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if role != enums.RoleAdmin && instructorID != actorID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "cannot view another instructor's account"))
			return
		}
		status, err := svc.Status(r.Context(), instructorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}
