package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lplate/lplate-backend/internal/bookings"
	"github.com/lplate/lplate-backend/internal/commission"
	"github.com/lplate/lplate-backend/internal/payments"
	"github.com/lplate/lplate-backend/pkg/db"
	"github.com/lplate/lplate-backend/pkg/db/models"
	"github.com/lplate/lplate-backend/pkg/enums"
	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
	"github.com/lplate/lplate-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Balance is the read model of a learner/instructor credit row.
type Balance struct {
	LearnerID             uuid.UUID `json:"learner_id"`
	InstructorID          uuid.UUID `json:"instructor_id"`
	TotalPurchasedMinutes int64     `json:"total_purchased_minutes"`
	UsedMinutes           int64     `json:"used_minutes"`
	AdjustedMinutes       int64     `json:"adjusted_minutes"`
	RemainingMinutes      int64     `json:"remaining_minutes"`
	HourlyRatePence       int64     `json:"hourly_rate_pence"`
	Version               int64     `json:"version"`
}

// PurchaseInput credits hours bought by a learner. PaymentID makes the call
// idempotent: a second purchase for the same payment is a no-op.
type PurchaseInput struct {
	LearnerID       uuid.UUID
	InstructorID    uuid.UUID
	Hours           decimal.Decimal
	HourlyRatePence int64
	PaymentID       *uuid.UUID
}

type ConsumeInput struct {
	LearnerID    uuid.UUID
	InstructorID uuid.UUID
	Hours        decimal.Decimal
	BookingID    *uuid.UUID
	Note         string
}

// AdjustInput is a manual correction; Source must be REFUND or ADJUSTMENT.
type AdjustInput struct {
	LearnerID    uuid.UUID
	InstructorID uuid.UUID
	DeltaMinutes int64
	Source       enums.CreditSource
	Note         string
}

// BookingUsageInput pays for a booked lesson out of prepaid credit.
type BookingUsageInput struct {
	LearnerID    uuid.UUID
	InstructorID uuid.UUID
	BookingID    uuid.UUID
	Hours        decimal.Decimal
}

type BookingUsage struct {
	PaymentID             uuid.UUID `json:"payment_id"`
	MinutesUsed           int64     `json:"minutes_used"`
	RemainingMinutes      int64     `json:"remaining_minutes"`
	TotalAmountPence      int64     `json:"total_amount_pence"`
	PlatformFeePence      int64     `json:"platform_fee_pence"`
	InstructorAmountPence int64     `json:"instructor_amount_pence"`
}

// Verification compares the balance row against a replay of its ledger.
type Verification struct {
	LearnerID      uuid.UUID `json:"learner_id"`
	InstructorID   uuid.UUID `json:"instructor_id"`
	BalanceMinutes int64     `json:"balance_minutes"`
	LedgerMinutes  int64     `json:"ledger_minutes"`
	Consistent     bool      `json:"consistent"`
}

type Entry struct {
	ID           uuid.UUID          `json:"id"`
	DeltaMinutes int64              `json:"delta_minutes"`
	Source       enums.CreditSource `json:"source"`
	BookingID    *uuid.UUID         `json:"booking_id,omitempty"`
	PaymentID    *uuid.UUID         `json:"payment_id,omitempty"`
	Note         string             `json:"note"`
	CreatedAt    time.Time          `json:"created_at"`
}

type EntriesInput struct {
	LearnerID    uuid.UUID
	InstructorID uuid.UUID
	Cursor       string
	Limit        int
}

type EntryPage struct {
	Entries    []Entry `json:"entries"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

// Service is the credit ledger. Every mutation appends exactly one ledger row
// and rewrites the balance row in the same transaction, under a row lock.
type Service interface {
	Purchase(ctx context.Context, input PurchaseInput) (*Balance, error)
	PurchaseTx(ctx context.Context, tx *gorm.DB, input PurchaseInput) (*Balance, error)
	Consume(ctx context.Context, input ConsumeInput) (*Balance, error)
	ConsumeForBooking(ctx context.Context, input BookingUsageInput) (*BookingUsage, error)
	Adjust(ctx context.Context, input AdjustInput) (*Balance, error)
	Balance(ctx context.Context, learnerID, instructorID uuid.UUID) (*Balance, error)
	Replay(ctx context.Context, learnerID, instructorID uuid.UUID) (int64, error)
	Verify(ctx context.Context, learnerID, instructorID uuid.UUID) (*Verification, error)
	List(ctx context.Context, learnerID uuid.UUID, instructorID *uuid.UUID) ([]Balance, error)
	Entries(ctx context.Context, input EntriesInput) (*EntryPage, error)
}

type service struct {
	repo     Repository
	payments payments.Repository
	bookings bookings.Repository
	tx       txRunner
	calc     *commission.Calculator
	currency string
	now      func() time.Time
}

// NewService wires the credit ledger.
func NewService(repo Repository, paymentsRepo payments.Repository, bookingsRepo bookings.Repository, tx txRunner, calc *commission.Calculator, currency string) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("credits repository required")
	}
	if paymentsRepo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if bookingsRepo == nil {
		return nil, fmt.Errorf("bookings repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if calc == nil {
		return nil, fmt.Errorf("commission calculator required")
	}
	if currency == "" {
		currency = "gbp"
	}
	return &service{
		repo:     repo,
		payments: paymentsRepo,
		bookings: bookingsRepo,
		tx:       tx,
		calc:     calc,
		currency: currency,
		now:      time.Now,
	}, nil
}

func (s *service) Purchase(ctx context.Context, input PurchaseInput) (*Balance, error) {
	minutes, err := validatePurchase(input)
	if err != nil {
		return nil, err
	}
	var out *Balance
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		balance, err := s.purchase(ctx, s.repo.WithTx(tx), input, minutes)
		out = balance
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PurchaseTx runs a purchase inside a transaction owned by the caller.
func (s *service) PurchaseTx(ctx context.Context, tx *gorm.DB, input PurchaseInput) (*Balance, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	minutes, err := validatePurchase(input)
	if err != nil {
		return nil, err
	}
	return s.purchase(ctx, s.repo.WithTx(tx), input, minutes)
}

func (s *service) purchase(ctx context.Context, repo Repository, input PurchaseInput, minutes int64) (*Balance, error) {
	if err := repo.EnsureBalance(ctx, input.LearnerID, input.InstructorID); err != nil {
		return nil, persistErr(err, "ensure credit balance")
	}
	credit, err := repo.LockBalance(ctx, input.LearnerID, input.InstructorID)
	if err != nil {
		return nil, persistErr(err, "lock credit balance")
	}

	if input.PaymentID != nil {
		seen, err := repo.HasPurchaseForPayment(ctx, *input.PaymentID)
		if err != nil {
			return nil, persistErr(err, "check purchase ledger")
		}
		if seen {
			balance := toBalance(credit)
			return &balance, nil
		}
	}

	entry := &models.CreditLedgerEntry{
		LearnerID:    input.LearnerID,
		InstructorID: input.InstructorID,
		DeltaMinutes: minutes,
		Source:       enums.CreditSourcePurchase,
		PaymentID:    input.PaymentID,
		Note:         fmt.Sprintf("purchased %s hours", input.Hours.String()),
	}
	if err := repo.AppendEntry(ctx, entry); err != nil {
		return nil, persistErr(err, "append purchase entry")
	}

	credit.TotalPurchasedMinutes += minutes
	if input.HourlyRatePence > 0 {
		credit.HourlyRatePence = input.HourlyRatePence
	}
	if err := repo.SaveBalance(ctx, credit); err != nil {
		return nil, persistErr(err, "save credit balance")
	}
	balance := toBalance(credit)
	return &balance, nil
}

func (s *service) Consume(ctx context.Context, input ConsumeInput) (*Balance, error) {
	if err := requirePair(input.LearnerID, input.InstructorID); err != nil {
		return nil, err
	}
	minutes, err := commission.HoursToMinutes(input.Hours)
	if err != nil {
		return nil, err
	}

	var out *Balance
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		credit, err := lockAvailable(ctx, repo, input.LearnerID, input.InstructorID, minutes)
		if err != nil {
			return err
		}
		note := input.Note
		if note == "" {
			note = fmt.Sprintf("used %s hours", input.Hours.String())
		}
		if err := debit(ctx, repo, credit, minutes, input.BookingID, nil, note); err != nil {
			return err
		}
		balance := toBalance(credit)
		out = &balance
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ConsumeForBooking debits credit for a lesson and records a prepaid payment
// for it so the lesson flows into the instructor's weekly payout. The booking
// must belong to the learner and instructor and carry no live payment.
func (s *service) ConsumeForBooking(ctx context.Context, input BookingUsageInput) (*BookingUsage, error) {
	if err := requirePair(input.LearnerID, input.InstructorID); err != nil {
		return nil, err
	}
	if input.BookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id is required")
	}
	minutes, err := commission.HoursToMinutes(input.Hours)
	if err != nil {
		return nil, err
	}

	var out *BookingUsage
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		paymentsRepo := s.payments.WithTx(tx)
		if err := s.lockPayableBooking(ctx, tx, paymentsRepo, input); err != nil {
			return err
		}

		repo := s.repo.WithTx(tx)
		credit, err := lockAvailable(ctx, repo, input.LearnerID, input.InstructorID, minutes)
		if err != nil {
			return err
		}

		base, err := commission.LessonBase(credit.HourlyRatePence, minutes)
		if err != nil {
			return err
		}
		breakdown, err := s.calc.Breakdown(base)
		if err != nil {
			return err
		}

		bookingID := input.BookingID
		payment := &models.Payment{
			LearnerID:             input.LearnerID,
			InstructorID:          input.InstructorID,
			BookingID:             &bookingID,
			TotalAmountPence:      breakdown.TotalPence,
			PlatformFeePence:      breakdown.PlatformFeePence,
			InstructorAmountPence: breakdown.InstructorAmountPence,
			Currency:              s.currency,
			PaymentMethod:         enums.PaymentMethodCredit,
			Status:                enums.PaymentStatusSucceeded,
			StripePaymentIntentID: fmt.Sprintf("credit_%s_%d", bookingID, s.now().UnixMilli()),
		}
		if err := paymentsRepo.Create(ctx, payment); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "booking already has a payment")
			}
			return persistErr(err, "create credit payment")
		}

		note := fmt.Sprintf("lesson %s", bookingID)
		if err := debit(ctx, repo, credit, minutes, &bookingID, &payment.ID, note); err != nil {
			return err
		}

		out = &BookingUsage{
			PaymentID:             payment.ID,
			MinutesUsed:           minutes,
			RemainingMinutes:      credit.RemainingMinutes(),
			TotalAmountPence:      payment.TotalAmountPence,
			PlatformFeePence:      payment.PlatformFeePence,
			InstructorAmountPence: payment.InstructorAmountPence,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) lockPayableBooking(ctx context.Context, tx *gorm.DB, paymentsRepo payments.Repository, input BookingUsageInput) error {
	booking, err := s.bookings.WithTx(tx).LockByID(ctx, input.BookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return persistErr(err, "lock booking")
	}
	if err := bookings.RequirePayable(booking, input.LearnerID, input.InstructorID); err != nil {
		return err
	}
	return payments.RequireBookingUnpaid(ctx, paymentsRepo, booking.ID)
}

func (s *service) Adjust(ctx context.Context, input AdjustInput) (*Balance, error) {
	if err := requirePair(input.LearnerID, input.InstructorID); err != nil {
		return nil, err
	}
	if input.DeltaMinutes == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta minutes must not be zero")
	}
	if !input.Source.IsManual() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("source %q cannot be used for adjustments", input.Source))
	}

	var out *Balance
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if input.DeltaMinutes > 0 {
			if err := repo.EnsureBalance(ctx, input.LearnerID, input.InstructorID); err != nil {
				return persistErr(err, "ensure credit balance")
			}
		}

		var (
			credit *models.LearnerCredit
			err    error
		)
		if input.DeltaMinutes < 0 {
			credit, err = lockAvailable(ctx, repo, input.LearnerID, input.InstructorID, -input.DeltaMinutes)
		} else {
			credit, err = repo.LockBalance(ctx, input.LearnerID, input.InstructorID)
			if err != nil {
				err = persistErr(err, "lock credit balance")
			}
		}
		if err != nil {
			return err
		}

		entry := &models.CreditLedgerEntry{
			LearnerID:    input.LearnerID,
			InstructorID: input.InstructorID,
			DeltaMinutes: input.DeltaMinutes,
			Source:       input.Source,
			Note:         input.Note,
		}
		if err := repo.AppendEntry(ctx, entry); err != nil {
			return persistErr(err, "append adjustment entry")
		}
		credit.AdjustedMinutes += input.DeltaMinutes
		if err := repo.SaveBalance(ctx, credit); err != nil {
			return persistErr(err, "save credit balance")
		}
		balance := toBalance(credit)
		out = &balance
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Balance returns a zero balance for a pair that has never held credit.
func (s *service) Balance(ctx context.Context, learnerID, instructorID uuid.UUID) (*Balance, error) {
	if err := requirePair(learnerID, instructorID); err != nil {
		return nil, err
	}
	credit, err := s.repo.FindBalance(ctx, learnerID, instructorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Balance{LearnerID: learnerID, InstructorID: instructorID}, nil
		}
		return nil, persistErr(err, "load credit balance")
	}
	balance := toBalance(credit)
	return &balance, nil
}

func (s *service) Replay(ctx context.Context, learnerID, instructorID uuid.UUID) (int64, error) {
	if err := requirePair(learnerID, instructorID); err != nil {
		return 0, err
	}
	total, err := s.repo.SumDeltas(ctx, learnerID, instructorID)
	if err != nil {
		return 0, persistErr(err, "sum credit ledger")
	}
	return total, nil
}

func (s *service) Verify(ctx context.Context, learnerID, instructorID uuid.UUID) (*Verification, error) {
	balance, err := s.Balance(ctx, learnerID, instructorID)
	if err != nil {
		return nil, err
	}
	ledger, err := s.Replay(ctx, learnerID, instructorID)
	if err != nil {
		return nil, err
	}
	return &Verification{
		LearnerID:      learnerID,
		InstructorID:   instructorID,
		BalanceMinutes: balance.RemainingMinutes,
		LedgerMinutes:  ledger,
		Consistent:     balance.RemainingMinutes == ledger,
	}, nil
}

func (s *service) List(ctx context.Context, learnerID uuid.UUID, instructorID *uuid.UUID) ([]Balance, error) {
	if learnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "learner id is required")
	}
	rows, err := s.repo.ListBalances(ctx, learnerID, instructorID)
	if err != nil {
		return nil, persistErr(err, "list credit balances")
	}
	out := make([]Balance, 0, len(rows))
	for i := range rows {
		out = append(out, toBalance(&rows[i]))
	}
	return out, nil
}

func (s *service) Entries(ctx context.Context, input EntriesInput) (*EntryPage, error) {
	if err := requirePair(input.LearnerID, input.InstructorID); err != nil {
		return nil, err
	}
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(input.Limit)

	rows, err := s.repo.ListEntries(ctx, EntryQuery{
		LearnerID:    input.LearnerID,
		InstructorID: input.InstructorID,
		Cursor:       cursor,
		Limit:        limit,
	})
	if err != nil {
		return nil, persistErr(err, "list credit ledger")
	}

	rows, next := pagination.Trim(rows, limit, func(e models.CreditLedgerEntry) pagination.Cursor {
		return pagination.Cursor{At: e.CreatedAt, ID: e.ID}
	})
	page := &EntryPage{Entries: make([]Entry, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		page.Entries = append(page.Entries, Entry{
			ID:           row.ID,
			DeltaMinutes: row.DeltaMinutes,
			Source:       row.Source,
			BookingID:    row.BookingID,
			PaymentID:    row.PaymentID,
			Note:         row.Note,
			CreatedAt:    row.CreatedAt,
		})
	}
	return page, nil
}

// lockAvailable locks the pair's balance and fails with INSUFFICIENT_CREDIT,
// before any write, when fewer than minutes remain.
func lockAvailable(ctx context.Context, repo Repository, learnerID, instructorID uuid.UUID, minutes int64) (*models.LearnerCredit, error) {
	credit, err := repo.LockBalance(ctx, learnerID, instructorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, insufficient(0, minutes)
		}
		return nil, persistErr(err, "lock credit balance")
	}
	if available := credit.RemainingMinutes(); available < minutes {
		return nil, insufficient(available, minutes)
	}
	return credit, nil
}

func debit(ctx context.Context, repo Repository, credit *models.LearnerCredit, minutes int64, bookingID, paymentID *uuid.UUID, note string) error {
	entry := &models.CreditLedgerEntry{
		LearnerID:    credit.LearnerID,
		InstructorID: credit.InstructorID,
		DeltaMinutes: -minutes,
		Source:       enums.CreditSourceConsumption,
		BookingID:    bookingID,
		PaymentID:    paymentID,
		Note:         note,
	}
	if err := repo.AppendEntry(ctx, entry); err != nil {
		return persistErr(err, "append consumption entry")
	}
	credit.UsedMinutes += minutes
	if err := repo.SaveBalance(ctx, credit); err != nil {
		return persistErr(err, "save credit balance")
	}
	return nil
}

func insufficient(available, requested int64) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientCredit, "insufficient credit").
		WithDetails(map[string]any{
			"availableMinutes": available,
			"requestedMinutes": requested,
		})
}

func validatePurchase(input PurchaseInput) (int64, error) {
	if err := requirePair(input.LearnerID, input.InstructorID); err != nil {
		return 0, err
	}
	if input.HourlyRatePence < 0 {
		return 0, pkgerrors.New(pkgerrors.CodeInvalidAmount, "hourly rate must not be negative")
	}
	return commission.HoursToMinutes(input.Hours)
}

func requirePair(learnerID, instructorID uuid.UUID) error {
	if learnerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "learner id is required")
	}
	if instructorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "instructor id is required")
	}
	return nil
}

func persistErr(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	if errors.Is(err, ErrVersionConflict) {
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func toBalance(credit *models.LearnerCredit) Balance {
	return Balance{
		LearnerID:             credit.LearnerID,
		InstructorID:          credit.InstructorID,
		TotalPurchasedMinutes: credit.TotalPurchasedMinutes,
		UsedMinutes:           credit.UsedMinutes,
		AdjustedMinutes:       credit.AdjustedMinutes,
		RemainingMinutes:      credit.RemainingMinutes(),
		HourlyRatePence:       credit.HourlyRatePence,
		Version:               credit.Version,
	}
}
