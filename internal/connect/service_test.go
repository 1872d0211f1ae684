package connect

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/lplate/lplate-backend/internal/profiles"
	"github.com/lplate/lplate-backend/pkg/db/dbtest"
	"github.com/lplate/lplate-backend/pkg/db/models"
	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
	"github.com/lplate/lplate-backend/pkg/logger"
	pkgstripe "github.com/lplate/lplate-backend/pkg/stripe"
)

type fakeProvider struct {
	createAccountFn func(ctx context.Context, in pkgstripe.AccountInput) (*stripe.Account, error)
	accounts        int
	links           int
}

func (f *fakeProvider) CreateExpressAccount(ctx context.Context, in pkgstripe.AccountInput) (*stripe.Account, error) {
	f.accounts++
	if f.createAccountFn != nil {
		return f.createAccountFn(ctx, in)
	}
	return &stripe.Account{ID: "acct_" + in.InstructorID[:8]}, nil
}

func (f *fakeProvider) CreateOnboardingLink(_ context.Context, accountID string) (*stripe.AccountLink, error) {
	f.links++
	return &stripe.AccountLink{URL: "https://connect.stripe.test/setup/" + accountID}, nil
}

type fakeInstructors struct {
	known map[uuid.UUID]string
}

func (f fakeInstructors) GetInstructor(_ context.Context, id uuid.UUID) (*profiles.InstructorProfile, error) {
	email, ok := f.known[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "instructor not found")
	}
	return &profiles.InstructorProfile{
		Profile:    models.Profile{ID: id, Email: email},
		Instructor: models.Instructor{ID: id, HourlyRatePence: 4000, IsActive: true},
	}, nil
}

func newTestService(t *testing.T, provider *fakeProvider, instructorID uuid.UUID) (Service, Repository) {
	t.Helper()
	repo := NewRepository(dbtest.Open(t))
	logg := logger.New(logger.Options{ServiceName: "connect-test", Output: io.Discard})
	svc, err := NewService(repo, fakeInstructors{known: map[uuid.UUID]string{instructorID: "ira@example.com"}}, provider, logg)
	require.NoError(t, err)
	return svc, repo
}

func TestCreateAccountThenReuse(t *testing.T) {
	instructorID := uuid.New()
	provider := &fakeProvider{}
	svc, _ := newTestService(t, provider, instructorID)
	ctx := context.Background()

	first, err := svc.CreateAccount(ctx, instructorID)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.False(t, first.Account.ChargesEnabled)
	assert.Contains(t, first.OnboardingURL, first.Account.StripeAccountID)

	second, err := svc.CreateAccount(ctx, instructorID)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Account.StripeAccountID, second.Account.StripeAccountID)
	assert.Equal(t, 1, provider.accounts)
	assert.Equal(t, 2, provider.links)
}

func TestCreateAccountErrors(t *testing.T) {
	instructorID := uuid.New()
	provider := &fakeProvider{createAccountFn: func(context.Context, pkgstripe.AccountInput) (*stripe.Account, error) {
		return nil, &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, Msg: "country not supported"}
	}}
	svc, _ := newTestService(t, provider, instructorID)

	_, err := svc.CreateAccount(context.Background(), uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	_, err = svc.CreateAccount(context.Background(), instructorID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeProvider))
}

func TestAccountUpdatesAndDeauthorize(t *testing.T) {
	instructorID := uuid.New()
	svc, _ := newTestService(t, &fakeProvider{}, instructorID)
	ctx := context.Background()

	created, err := svc.CreateAccount(ctx, instructorID)
	require.NoError(t, err)
	accountID := created.Account.StripeAccountID

	found, err := svc.ApplyAccountUpdate(ctx, accountID, Flags{
		ChargesEnabled:   true,
		PayoutsEnabled:   true,
		DetailsSubmitted: true,
		Requirements:     json.RawMessage(`{"currently_due":[]}`),
	})
	require.NoError(t, err)
	assert.True(t, found)

	status, err := svc.Status(ctx, instructorID)
	require.NoError(t, err)
	assert.True(t, status.ChargesEnabled)
	assert.True(t, status.PayoutsEnabled)
	assert.JSONEq(t, `{"currently_due":[]}`, string(status.Requirements))

	found, err = svc.Deauthorize(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, found)

	status, err = svc.Status(ctx, instructorID)
	require.NoError(t, err)
	assert.False(t, status.ChargesEnabled)
	assert.False(t, status.PayoutsEnabled)
	assert.True(t, status.DetailsSubmitted)

	found, err = svc.ApplyAccountUpdate(ctx, "acct_unknown", Flags{ChargesEnabled: true})
	require.NoError(t, err)
	assert.False(t, found)

	found, err = svc.Deauthorize(ctx, "acct_unknown")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStatusNotFound(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{}, uuid.New())
	_, err := svc.Status(context.Background(), uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil)
	assert.True(t, err != nil && !errors.Is(err, context.Canceled))
}
