package connect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/lplate/lplate-backend/internal/profiles"
	"github.com/lplate/lplate-backend/pkg/db"
	"github.com/lplate/lplate-backend/pkg/db/models"
	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
	"github.com/lplate/lplate-backend/pkg/logger"
	pkgstripe "github.com/lplate/lplate-backend/pkg/stripe"
)

// AccountProvider is the slice of the payment provider used for onboarding.
type AccountProvider interface {
	CreateExpressAccount(ctx context.Context, in pkgstripe.AccountInput) (*stripe.Account, error)
	CreateOnboardingLink(ctx context.Context, accountID string) (*stripe.AccountLink, error)
}

type instructorLookup interface {
	GetInstructor(ctx context.Context, id uuid.UUID) (*profiles.InstructorProfile, error)
}

// AccountStatus is the API view of a connected account.
type AccountStatus struct {
	InstructorID     uuid.UUID       `json:"instructor_id"`
	StripeAccountID  string          `json:"stripe_account_id"`
	ChargesEnabled   bool            `json:"charges_enabled"`
	PayoutsEnabled   bool            `json:"payouts_enabled"`
	DetailsSubmitted bool            `json:"details_submitted"`
	Requirements     json.RawMessage `json:"requirements,omitempty"`
}

type Onboarding struct {
	Account       AccountStatus `json:"account"`
	OnboardingURL string        `json:"onboarding_url"`
	Created       bool          `json:"created"`
}

type Service interface {
	CreateAccount(ctx context.Context, instructorID uuid.UUID) (*Onboarding, error)
	Status(ctx context.Context, instructorID uuid.UUID) (*AccountStatus, error)
	Account(ctx context.Context, instructorID uuid.UUID) (*models.StripeConnectAccount, error)
	ApplyAccountUpdate(ctx context.Context, stripeAccountID string, flags Flags) (bool, error)
	Deauthorize(ctx context.Context, stripeAccountID string) (bool, error)
}

type service struct {
	repo        Repository
	instructors instructorLookup
	provider    AccountProvider
	logger      *logger.Logger
}

func NewService(repo Repository, instructors instructorLookup, provider AccountProvider, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("connect repository required")
	}
	if instructors == nil {
		return nil, fmt.Errorf("instructor lookup required")
	}
	if provider == nil {
		return nil, fmt.Errorf("account provider required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, instructors: instructors, provider: provider, logger: logg}, nil
}

// CreateAccount opens an Express account for the instructor, or hands back a
// fresh onboarding link when one already exists.
func (s *service) CreateAccount(ctx context.Context, instructorID uuid.UUID) (*Onboarding, error) {
	instructor, err := s.instructors.GetInstructor(ctx, instructorID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByInstructorID(ctx, instructorID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load connected account")
	}
	if existing != nil {
		return s.onboarding(ctx, existing, false)
	}

	acct, err := s.provider.CreateExpressAccount(ctx, pkgstripe.AccountInput{
		Email:        instructor.Profile.Email,
		InstructorID: instructorID.String(),
	})
	if err != nil {
		return nil, pkgstripe.AsProviderError(err, "create connected account")
	}

	record := &models.StripeConnectAccount{
		InstructorID:     instructorID,
		StripeAccountID:  acct.ID,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		if !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist connected account")
		}
		// A concurrent request won the insert; the provider call was idempotent.
		record, err = s.repo.FindByInstructorID(ctx, instructorID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload connected account")
		}
	}

	ctx = s.logger.WithInstructorID(ctx, instructorID.String())
	s.logger.Info(s.logger.WithField(ctx, "stripe_account_id", record.StripeAccountID), "connected account created")
	return s.onboarding(ctx, record, true)
}

func (s *service) onboarding(ctx context.Context, record *models.StripeConnectAccount, created bool) (*Onboarding, error) {
	link, err := s.provider.CreateOnboardingLink(ctx, record.StripeAccountID)
	if err != nil {
		return nil, pkgstripe.AsProviderError(err, "create onboarding link")
	}
	return &Onboarding{Account: toStatus(record), OnboardingURL: link.URL, Created: created}, nil
}

func (s *service) Status(ctx context.Context, instructorID uuid.UUID) (*AccountStatus, error) {
	record, err := s.Account(ctx, instructorID)
	if err != nil {
		return nil, err
	}
	status := toStatus(record)
	return &status, nil
}

func (s *service) Account(ctx context.Context, instructorID uuid.UUID) (*models.StripeConnectAccount, error) {
	if instructorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "instructor id is required")
	}
	record, err := s.repo.FindByInstructorID(ctx, instructorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "connected account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load connected account")
	}
	return record, nil
}

// ApplyAccountUpdate copies provider capability flags. Unknown accounts are
// reported with false so the caller can acknowledge and move on.
func (s *service) ApplyAccountUpdate(ctx context.Context, stripeAccountID string, flags Flags) (bool, error) {
	if stripeAccountID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "stripe account id is required")
	}
	found, err := s.repo.UpdateFlags(ctx, stripeAccountID, flags)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update connected account")
	}
	return found, nil
}

// Deauthorize turns off charges and payouts for an account that disconnected
// from the platform. Submitted details are kept as they were.
func (s *service) Deauthorize(ctx context.Context, stripeAccountID string) (bool, error) {
	if stripeAccountID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "stripe account id is required")
	}
	record, err := s.repo.FindByStripeAccountID(ctx, stripeAccountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load connected account")
	}
	return s.ApplyAccountUpdate(ctx, stripeAccountID, Flags{DetailsSubmitted: record.DetailsSubmitted})
}

func toStatus(record *models.StripeConnectAccount) AccountStatus {
	return AccountStatus{
		InstructorID:     record.InstructorID,
		StripeAccountID:  record.StripeAccountID,
		ChargesEnabled:   record.ChargesEnabled,
		PayoutsEnabled:   record.PayoutsEnabled,
		DetailsSubmitted: record.DetailsSubmitted,
		Requirements:     record.Requirements,
	}
}
