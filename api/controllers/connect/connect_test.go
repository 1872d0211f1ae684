package connect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lplate/lplate-backend/api/middleware"
	internalconnect "github.com/lplate/lplate-backend/internal/connect"
	"github.com/lplate/lplate-backend/pkg/db/models"
	"github.com/lplate/lplate-backend/pkg/enums"
	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
)

type fakeConnectService struct {
	existing map[uuid.UUID]bool
}

func (f *fakeConnectService) CreateAccount(_ context.Context, instructorID uuid.UUID) (*internalconnect.Onboarding, error) {
	created := !f.existing[instructorID]
	f.existing[instructorID] = true
	return &internalconnect.Onboarding{
		Account:       internalconnect.AccountStatus{InstructorID: instructorID, StripeAccountID: "acct_1"},
		OnboardingURL: "https://connect.stripe.test/setup",
		Created:       created,
	}, nil
}

func (f *fakeConnectService) Status(_ context.Context, instructorID uuid.UUID) (*internalconnect.AccountStatus, error) {
	if !f.existing[instructorID] {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "connected account not found")
	}
	return &internalconnect.AccountStatus{InstructorID: instructorID, StripeAccountID: "acct_1", PayoutsEnabled: true}, nil
}

func (f *fakeConnectService) Account(context.Context, uuid.UUID) (*models.StripeConnectAccount, error) {
	return nil, nil
}

func (f *fakeConnectService) ApplyAccountUpdate(context.Context, string, internalconnect.Flags) (bool, error) {
	return false, nil
}

func (f *fakeConnectService) Deauthorize(context.Context, string) (bool, error) {
	return false, nil
}

func request(method, path string, actor uuid.UUID, role enums.Role, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	ctx := middleware.WithActor(req.Context(), actor, role)
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

func TestCreateAccountStatusCodes(t *testing.T) {
	svc := &fakeConnectService{existing: map[uuid.UUID]bool{}}
	instructorID := uuid.New()

	rec := httptest.NewRecorder()
	CreateAccount(svc, nil).ServeHTTP(rec, request(http.MethodPost, "/api/v1/connect/accounts", instructorID, enums.RoleInstructor, nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), "onboarding_url")

	rec = httptest.NewRecorder()
	CreateAccount(svc, nil).ServeHTTP(rec, request(http.MethodPost, "/api/v1/connect/accounts", instructorID, enums.RoleInstructor, nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusAccess(t *testing.T) {
	instructorID := uuid.New()
	svc := &fakeConnectService{existing: map[uuid.UUID]bool{instructorID: true}}
	params := map[string]string{"instructorId": instructorID.String()}
	path := "/api/v1/connect/accounts/" + instructorID.String()

	rec := httptest.NewRecorder()
	Status(svc, nil).ServeHTTP(rec, request(http.MethodGet, path, instructorID, enums.RoleInstructor, params))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"payouts_enabled":true`)

	rec = httptest.NewRecorder()
	Status(svc, nil).ServeHTTP(rec, request(http.MethodGet, path, uuid.New(), enums.RoleInstructor, params))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	Status(svc, nil).ServeHTTP(rec, request(http.MethodGet, path, uuid.New(), enums.RoleAdmin, params))
	require.Equal(t, http.StatusOK, rec.Code)

	other := uuid.New()
	rec = httptest.NewRecorder()
	Status(svc, nil).ServeHTTP(rec, request(http.MethodGet, "/api/v1/connect/accounts/"+other.String(), other, enums.RoleInstructor, map[string]string{"instructorId": other.String()}))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
