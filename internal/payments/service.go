package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/lplate/lplate-backend/internal/bookings"
	"github.com/lplate/lplate-backend/internal/commission"
	"github.com/lplate/lplate-backend/internal/discounts"
	"github.com/lplate/lplate-backend/internal/profiles"
	"github.com/lplate/lplate-backend/pkg/db"
	"github.com/lplate/lplate-backend/pkg/db/models"
	"github.com/lplate/lplate-backend/pkg/enums"
	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
	"github.com/lplate/lplate-backend/pkg/logger"
	pkgstripe "github.com/lplate/lplate-backend/pkg/stripe"
)

// Metadata keys written on every payment intent and read back by the webhook reconciler.
const (
	MetadataType         = "type"
	MetadataLearnerID    = "learnerId"
	MetadataInstructorID = "instructorId"
	MetadataBookingID    = "bookingId"
	MetadataHours        = "hours"
	MetadataHourlyRate   = "hourlyRate"
	MetadataPlatformFee  = "platformFee"
	MetadataInstructor   = "instructorAmount"
	MetadataDiscountCode = "discountCode"

	TypeLesson         = "lesson"
	TypeCreditPurchase = "credit_purchase"
)

// IntentProvider is the slice of the payment provider used at checkout.
type IntentProvider interface {
	CreatePaymentIntent(ctx context.Context, in pkgstripe.PaymentIntentInput) (*stripe.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
}

type partyLookup interface {
	GetLearner(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	GetInstructor(ctx context.Context, id uuid.UUID) (*profiles.InstructorProfile, error)
}

type bookingLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
}

type accountLookup interface {
	Account(ctx context.Context, instructorID uuid.UUID) (*models.StripeConnectAccount, error)
}

// CheckoutInput prices either an explicit base amount or a number of hours at
// the instructor's rate.
type CheckoutInput struct {
	LearnerID      uuid.UUID
	InstructorID   uuid.UUID
	BookingID      *uuid.UUID
	AmountPence    int64
	Hours          decimal.Decimal
	DiscountCode   string
	IdempotencyKey string
}

type CreditPurchaseInput struct {
	LearnerID      uuid.UUID
	InstructorID   uuid.UUID
	Hours          decimal.Decimal
	IdempotencyKey string
}

type CheckoutResult struct {
	PaymentID       uuid.UUID            `json:"payment_id"`
	PaymentIntentID string               `json:"payment_intent_id"`
	ClientSecret    string               `json:"client_secret"`
	Status          enums.PaymentStatus  `json:"status"`
	Breakdown       commission.Breakdown `json:"breakdown"`
	DiscountCode    string               `json:"discount_code,omitempty"`
}

type PaymentView struct {
	ID                    uuid.UUID           `json:"id"`
	LearnerID             uuid.UUID           `json:"learner_id"`
	InstructorID          uuid.UUID           `json:"instructor_id"`
	BookingID             *uuid.UUID          `json:"booking_id,omitempty"`
	TotalAmountPence      int64               `json:"total_amount_pence"`
	PlatformFeePence      int64               `json:"platform_fee_pence"`
	InstructorAmountPence int64               `json:"instructor_amount_pence"`
	DiscountAmountPence   int64               `json:"discount_amount_pence"`
	Currency              string              `json:"currency"`
	PaymentMethod         enums.PaymentMethod `json:"payment_method"`
	Status                enums.PaymentStatus `json:"status"`
	PaymentIntentID       string              `json:"payment_intent_id"`
	ProviderStatus        string              `json:"provider_status,omitempty"`
	CreatedAt             time.Time           `json:"created_at"`
}

type QuoteInput struct {
	AmountPence  int64
	DiscountCode string
}

type Service interface {
	Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error)
	PurchaseCredits(ctx context.Context, input CreditPurchaseInput) (*CheckoutResult, error)
	Get(ctx context.Context, paymentID uuid.UUID) (*PaymentView, error)
	Quote(ctx context.Context, input QuoteInput) (*commission.Breakdown, error)
}

type service struct {
	repo      Repository
	parties   partyLookup
	bookings  bookingLookup
	accounts  accountLookup
	discounts discounts.Service
	calc      *commission.Calculator
	provider  IntentProvider
	currency  string
	logger    *logger.Logger
	now       func() time.Time
}

// ServiceParams groups checkout dependencies.
type ServiceParams struct {
	Repo       Repository
	Parties    partyLookup
	Bookings   bookingLookup
	Accounts   accountLookup
	Discounts  discounts.Service
	Calculator *commission.Calculator
	Provider   IntentProvider
	Currency   string
	Logger     *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Parties == nil {
		return nil, fmt.Errorf("profile lookup required")
	}
	if params.Bookings == nil {
		return nil, fmt.Errorf("booking lookup required")
	}
	if params.Accounts == nil {
		return nil, fmt.Errorf("connected account lookup required")
	}
	if params.Discounts == nil {
		return nil, fmt.Errorf("discounts service required")
	}
	if params.Calculator == nil {
		return nil, fmt.Errorf("commission calculator required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("payment intent provider required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	currency := params.Currency
	if currency == "" {
		currency = "gbp"
	}
	return &service{
		repo:      params.Repo,
		parties:   params.Parties,
		bookings:  params.Bookings,
		accounts:  params.Accounts,
		discounts: params.Discounts,
		calc:      params.Calculator,
		provider:  params.Provider,
		currency:  currency,
		logger:    params.Logger,
		now:       time.Now,
	}, nil
}

func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	instructor, err := s.resolveParties(ctx, input.LearnerID, input.InstructorID)
	if err != nil {
		return nil, err
	}
	if err := s.requireChargeable(ctx, input.InstructorID); err != nil {
		return nil, err
	}
	if input.BookingID != nil {
		if err := s.requireBookingPayable(ctx, *input.BookingID, input.LearnerID, input.InstructorID); err != nil {
			return nil, err
		}
	}

	base, err := lessonBase(input, instructor.Instructor.HourlyRatePence)
	if err != nil {
		return nil, err
	}
	discount, err := s.discounts.Resolve(ctx, input.DiscountCode, base, s.now())
	if err != nil {
		return nil, err
	}
	breakdown, err := s.calc.DiscountedBreakdown(base, discount.AmountPence)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{
		MetadataType:         TypeLesson,
		MetadataLearnerID:    input.LearnerID.String(),
		MetadataInstructorID: input.InstructorID.String(),
		MetadataPlatformFee:  pkgstripe.FormatPence(breakdown.PlatformFeePence),
		MetadataInstructor:   pkgstripe.FormatPence(breakdown.InstructorAmountPence),
	}
	transferGroup := ""
	if input.BookingID != nil {
		metadata[MetadataBookingID] = input.BookingID.String()
		transferGroup = "booking_" + input.BookingID.String()
	}
	var discountCodeID *uuid.UUID
	codeLabel := ""
	if discount.Applied() {
		metadata[MetadataDiscountCode] = discount.Code.Code
		discountCodeID = &discount.Code.ID
		codeLabel = discount.Code.Code
	}

	intent, err := s.provider.CreatePaymentIntent(ctx, pkgstripe.PaymentIntentInput{
		Amount:         breakdown.TotalPence,
		TransferGroup:  transferGroup,
		Description:    "Driving lesson",
		Metadata:       metadata,
		IdempotencyKey: idempotencyKey("checkout", input.IdempotencyKey),
	})
	if err != nil {
		return nil, pkgstripe.AsProviderError(err, "create payment intent")
	}

	payment := &models.Payment{
		LearnerID:             input.LearnerID,
		InstructorID:          input.InstructorID,
		BookingID:             input.BookingID,
		TotalAmountPence:      breakdown.TotalPence,
		PlatformFeePence:      breakdown.PlatformFeePence,
		InstructorAmountPence: breakdown.InstructorAmountPence,
		DiscountAmountPence:   breakdown.DiscountPence,
		DiscountCodeID:        discountCodeID,
		Currency:              s.currency,
		PaymentMethod:         enums.PaymentMethodCard,
		Status:                initialStatus(intent),
		StripePaymentIntentID: intent.ID,
		Metadata:              encodeMetadata(metadata),
	}
	stored, replayed, err := s.persist(ctx, payment)
	if err != nil {
		return nil, err
	}
	if !replayed {
		s.discounts.MarkUsed(ctx, discount)
	}

	return &CheckoutResult{
		PaymentID:       stored.ID,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Status:          stored.Status,
		Breakdown:       breakdown,
		DiscountCode:    codeLabel,
	}, nil
}

// PurchaseCredits charges for prepaid hours. The ledger is credited by the
// payment_intent.succeeded webhook, not here.
func (s *service) PurchaseCredits(ctx context.Context, input CreditPurchaseInput) (*CheckoutResult, error) {
	instructor, err := s.resolveParties(ctx, input.LearnerID, input.InstructorID)
	if err != nil {
		return nil, err
	}
	if err := s.requireChargeable(ctx, input.InstructorID); err != nil {
		return nil, err
	}
	minutes, err := commission.HoursToMinutes(input.Hours)
	if err != nil {
		return nil, err
	}
	base, err := commission.LessonBase(instructor.Instructor.HourlyRatePence, minutes)
	if err != nil {
		return nil, err
	}
	breakdown, err := s.calc.Breakdown(base)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{
		MetadataType:         TypeCreditPurchase,
		MetadataLearnerID:    input.LearnerID.String(),
		MetadataInstructorID: input.InstructorID.String(),
		MetadataHours:        input.Hours.String(),
		MetadataHourlyRate:   pkgstripe.FormatPence(instructor.Instructor.HourlyRatePence),
		MetadataPlatformFee:  pkgstripe.FormatPence(breakdown.PlatformFeePence),
		MetadataInstructor:   pkgstripe.FormatPence(breakdown.InstructorAmountPence),
	}
	intent, err := s.provider.CreatePaymentIntent(ctx, pkgstripe.PaymentIntentInput{
		Amount:         breakdown.TotalPence,
		Description:    fmt.Sprintf("Credit purchase - %s hours", input.Hours.String()),
		Metadata:       metadata,
		IdempotencyKey: idempotencyKey("credits", input.IdempotencyKey),
	})
	if err != nil {
		return nil, pkgstripe.AsProviderError(err, "create payment intent")
	}

	payment := &models.Payment{
		LearnerID:             input.LearnerID,
		InstructorID:          input.InstructorID,
		TotalAmountPence:      breakdown.TotalPence,
		PlatformFeePence:      breakdown.PlatformFeePence,
		InstructorAmountPence: breakdown.InstructorAmountPence,
		Currency:              s.currency,
		PaymentMethod:         enums.PaymentMethodCard,
		Status:                enums.PaymentStatusPending,
		StripePaymentIntentID: intent.ID,
		Metadata:              encodeMetadata(metadata),
	}
	stored, _, err := s.persist(ctx, payment)
	if err != nil {
		return nil, err
	}
	return &CheckoutResult{
		PaymentID:       stored.ID,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Status:          stored.Status,
		Breakdown:       breakdown,
	}, nil
}

// Get returns the stored payment plus the provider's live status for card payments.
func (s *service) Get(ctx context.Context, paymentID uuid.UUID) (*PaymentView, error) {
	if paymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	view := toView(payment)
	if payment.PaymentMethod == enums.PaymentMethodCard {
		intent, err := s.provider.GetPaymentIntent(ctx, payment.StripePaymentIntentID)
		if err != nil {
			logCtx := s.logger.WithFields(ctx, map[string]any{
				"payment_id":        payment.ID.String(),
				"payment_intent_id": payment.StripePaymentIntentID,
				"error":             err.Error(),
			})
			s.logger.Warn(logCtx, "failed to load live payment intent status")
		} else {
			view.ProviderStatus = string(intent.Status)
		}
	}
	return view, nil
}

func (s *service) Quote(ctx context.Context, input QuoteInput) (*commission.Breakdown, error) {
	discount, err := s.discounts.Resolve(ctx, input.DiscountCode, input.AmountPence, s.now())
	if err != nil {
		return nil, err
	}
	breakdown, err := s.calc.DiscountedBreakdown(input.AmountPence, discount.AmountPence)
	if err != nil {
		return nil, err
	}
	return &breakdown, nil
}

func (s *service) resolveParties(ctx context.Context, learnerID, instructorID uuid.UUID) (*profiles.InstructorProfile, error) {
	if _, err := s.parties.GetLearner(ctx, learnerID); err != nil {
		return nil, err
	}
	return s.parties.GetInstructor(ctx, instructorID)
}

func (s *service) requireChargeable(ctx context.Context, instructorID uuid.UUID) error {
	account, err := s.accounts.Account(ctx, instructorID)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return pkgerrors.New(pkgerrors.CodeValidation, "instructor has not set up payments")
		}
		return err
	}
	if !account.ChargesEnabled {
		return pkgerrors.New(pkgerrors.CodeValidation, "instructor cannot accept payments yet")
	}
	return nil
}

func (s *service) requireBookingPayable(ctx context.Context, bookingID, learnerID, instructorID uuid.UUID) error {
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
	}
	if err := bookings.RequirePayable(booking, learnerID, instructorID); err != nil {
		return err
	}
	return RequireBookingUnpaid(ctx, s.repo, bookingID)
}

// RequireBookingUnpaid fails with CONFLICT when the booking already has a
// pending or succeeded payment.
func RequireBookingUnpaid(ctx context.Context, repo Repository, bookingID uuid.UUID) error {
	live, err := repo.HasLiveForBooking(ctx, bookingID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check booking payments")
	}
	if live {
		return errBookingPaid()
	}
	return nil
}

func errBookingPaid() error {
	return pkgerrors.New(pkgerrors.CodeConflict, "booking already has a payment")
}

// persist stores the payment. A retried request reuses the provider intent via
// its idempotency key, so a duplicate intent id returns the row already stored.
func (s *service) persist(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error) {
	err := s.repo.Create(ctx, payment)
	if err == nil {
		return payment, false, nil
	}
	if !db.IsUniqueViolation(err, "") {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment")
	}
	existing, findErr := s.repo.FindByIntentID(ctx, payment.StripePaymentIntentID)
	if findErr != nil {
		if errors.Is(findErr, gorm.ErrRecordNotFound) && payment.BookingID != nil {
			return nil, false, errBookingPaid()
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "reload payment")
	}
	return existing, true, nil
}

func lessonBase(input CheckoutInput, hourlyRatePence int64) (int64, error) {
	if input.AmountPence < 0 {
		return 0, pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must not be negative")
	}
	if input.AmountPence > 0 {
		return input.AmountPence, nil
	}
	if input.Hours.IsZero() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount or hours is required")
	}
	minutes, err := commission.HoursToMinutes(input.Hours)
	if err != nil {
		return 0, err
	}
	return commission.LessonBase(hourlyRatePence, minutes)
}

func initialStatus(intent *stripe.PaymentIntent) enums.PaymentStatus {
	if intent.Status == stripe.PaymentIntentStatusSucceeded {
		return enums.PaymentStatusSucceeded
	}
	return enums.PaymentStatusPending
}

func idempotencyKey(prefix, key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	return prefix + "_" + key
}

func encodeMetadata(metadata map[string]string) json.RawMessage {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil
	}
	return raw
}

func toView(p *models.Payment) *PaymentView {
	return &PaymentView{
		ID:                    p.ID,
		LearnerID:             p.LearnerID,
		InstructorID:          p.InstructorID,
		BookingID:             p.BookingID,
		TotalAmountPence:      p.TotalAmountPence,
		PlatformFeePence:      p.PlatformFeePence,
		InstructorAmountPence: p.InstructorAmountPence,
		DiscountAmountPence:   p.DiscountAmountPence,
		Currency:              p.Currency,
		PaymentMethod:         p.PaymentMethod,
		Status:                p.Status,
		PaymentIntentID:       p.StripePaymentIntentID,
		CreatedAt:             p.CreatedAt,
	}
}
