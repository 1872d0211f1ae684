package credits

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lplate/lplate-backend/internal/bookings"
	"github.com/lplate/lplate-backend/internal/commission"
	"github.com/lplate/lplate-backend/internal/payments"
	"github.com/lplate/lplate-backend/pkg/db"
	"github.com/lplate/lplate-backend/pkg/db/dbtest"
	"github.com/lplate/lplate-backend/pkg/db/models"
	"github.com/lplate/lplate-backend/pkg/enums"
	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
)

type fixture struct {
	conn         *gorm.DB
	svc          Service
	learnerID    uuid.UUID
	instructorID uuid.UUID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	calc, err := commission.NewCalculator(18)
	require.NoError(t, err)
	svc, err := NewService(NewRepository(conn), payments.NewRepository(conn), bookings.NewRepository(conn), db.FromConn(conn), calc, "gbp")
	require.NoError(t, err)
	return fixture{conn: conn, svc: svc, learnerID: uuid.New(), instructorID: uuid.New()}
}

func (f fixture) seedBooking(t *testing.T, learnerID, instructorID uuid.UUID, status enums.BookingStatus) uuid.UUID {
	t.Helper()
	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	booking := models.Booking{
		LearnerID:       learnerID,
		InstructorID:    instructorID,
		StartAt:         start,
		EndAt:           start.Add(time.Hour),
		DurationMinutes: 60,
		PricePence:      4000,
		Status:          status,
	}
	require.NoError(t, f.conn.Create(&booking).Error)
	return booking.ID
}

func hours(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func (f fixture) entryCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.CreditLedgerEntry{}).Count(&count).Error)
	return count
}

func TestPurchaseAndConsume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	balance, err := f.svc.Purchase(ctx, PurchaseInput{
		LearnerID:       f.learnerID,
		InstructorID:    f.instructorID,
		Hours:           hours("5"),
		HourlyRatePence: 4000,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(300), balance.TotalPurchasedMinutes)
	assert.Equal(t, int64(300), balance.RemainingMinutes)
	assert.Equal(t, int64(4000), balance.HourlyRatePence)

	balance, err = f.svc.Consume(ctx, ConsumeInput{LearnerID: f.learnerID, InstructorID: f.instructorID, Hours: hours("1.5")})
	require.NoError(t, err)
	assert.Equal(t, int64(90), balance.UsedMinutes)
	assert.Equal(t, int64(210), balance.RemainingMinutes)

	ledger, err := f.svc.Replay(ctx, f.learnerID, f.instructorID)
	require.NoError(t, err)
	assert.Equal(t, int64(210), ledger)

	check, err := f.svc.Verify(ctx, f.learnerID, f.instructorID)
	require.NoError(t, err)
	assert.True(t, check.Consistent)
}

func TestConsumeInsufficientLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Purchase(ctx, PurchaseInput{LearnerID: f.learnerID, InstructorID: f.instructorID, Hours: hours("2"), HourlyRatePence: 4000})
	require.NoError(t, err)
	before, err := f.svc.Balance(ctx, f.learnerID, f.instructorID)
	require.NoError(t, err)
	entriesBefore := f.entryCount(t)

	_, err = f.svc.Consume(ctx, ConsumeInput{LearnerID: f.learnerID, InstructorID: f.instructorID, Hours: hours("3")})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientCredit, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(120), details["availableMinutes"])
	assert.Equal(t, int64(180), details["requestedMinutes"])

	after, err := f.svc.Balance(ctx, f.learnerID, f.instructorID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, entriesBefore, f.entryCount(t))
}

func TestConsumeWithoutBalance(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Consume(context.Background(), ConsumeInput{LearnerID: f.learnerID, InstructorID: f.instructorID, Hours: hours("1")})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientCredit))

	balance, err := f.svc.Balance(context.Background(), f.learnerID, f.instructorID)
	require.NoError(t, err)
	assert.Zero(t, balance.RemainingMinutes)
}

func TestPurchaseIsIdempotentPerPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paymentID := uuid.New()

	input := PurchaseInput{LearnerID: f.learnerID, InstructorID: f.instructorID, Hours: hours("3"), HourlyRatePence: 4200, PaymentID: &paymentID}
	_, err := f.svc.Purchase(ctx, input)
	require.NoError(t, err)
	balance, err := f.svc.Purchase(ctx, input)
	require.NoError(t, err)

	assert.Equal(t, int64(180), balance.TotalPurchasedMinutes)
	assert.Equal(t, int64(1), f.entryCount(t))
}

func TestPurchaseRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Purchase(ctx, PurchaseInput{LearnerID: f.learnerID, InstructorID: f.instructorID, Hours: hours("0")})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = f.svc.Purchase(ctx, PurchaseInput{LearnerID: f.learnerID, InstructorID: f.instructorID, Hours: hours("-1")})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = f.svc.Purchase(ctx, PurchaseInput{LearnerID: uuid.Nil, InstructorID: f.instructorID, Hours: hours("1")})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = f.svc.Purchase(ctx, PurchaseInput{LearnerID: f.learnerID, InstructorID: f.instructorID, Hours: hours("1"), HourlyRatePence: -5})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidAmount))
	assert.Zero(t, f.entryCount(t))
}

func TestAdjust(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	balance, err := f.svc.Adjust(ctx, AdjustInput{LearnerID: f.learnerID, InstructorID: f.instructorID, DeltaMinutes: 60, Source: enums.CreditSourceRefund, Note: "cancelled lesson"})
	require.NoError(t, err)
	assert.Equal(t, int64(60), balance.AdjustedMinutes)
	assert.Equal(t, int64(60), balance.RemainingMinutes)

	balance, err = f.svc.Adjust(ctx, AdjustInput{LearnerID: f.learnerID, InstructorID: f.instructorID, DeltaMinutes: -45, Source: enums.CreditSourceAdjustment})
	require.NoError(t, err)
	assert.Equal(t, int64(15), balance.RemainingMinutes)

	_, err = f.svc.Adjust(ctx, AdjustInput{LearnerID: f.learnerID, InstructorID: f.instructorID, DeltaMinutes: -30, Source: enums.CreditSourceAdjustment})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientCredit))

	_, err = f.svc.Adjust(ctx, AdjustInput{LearnerID: f.learnerID, InstructorID: f.instructorID, DeltaMinutes: 30, Source: enums.CreditSourcePurchase})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = f.svc.Adjust(ctx, AdjustInput{LearnerID: f.learnerID, InstructorID: f.instructorID, Source: enums.CreditSourceAdjustment})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	check, err := f.svc.Verify(ctx, f.learnerID, f.instructorID)
	require.NoError(t, err)
	assert.True(t, check.Consistent)
	assert.Equal(t, int64(15), check.LedgerMinutes)
}

func TestConsumeForBookingRecordsCreditPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bookingID := f.seedBooking(t, f.learnerID, f.instructorID, enums.BookingStatusConfirmed)

	_, err := f.svc.Purchase(ctx, PurchaseInput{LearnerID: f.learnerID, InstructorID: f.instructorID, Hours: hours("2"), HourlyRatePence: 4000})
	require.NoError(t, err)

	usage, err := f.svc.ConsumeForBooking(ctx, BookingUsageInput{LearnerID: f.learnerID, InstructorID: f.instructorID, BookingID: bookingID, Hours: hours("1")})
	require.NoError(t, err)
	assert.Equal(t, int64(60), usage.MinutesUsed)
	assert.Equal(t, int64(60), usage.RemainingMinutes)
	assert.Equal(t, int64(4720), usage.TotalAmountPence)
	assert.Equal(t, int64(720), usage.PlatformFeePence)
	assert.Equal(t, int64(4000), usage.InstructorAmountPence)

	var payment models.Payment
	require.NoError(t, f.conn.Where("id = ?", usage.PaymentID).First(&payment).Error)
	assert.Equal(t, enums.PaymentMethodCredit, payment.PaymentMethod)
	assert.Equal(t, enums.PaymentStatusSucceeded, payment.Status)
	assert.True(t, strings.HasPrefix(payment.StripePaymentIntentID, "credit_"+bookingID.String()+"_"))
	require.NotNil(t, payment.BookingID)
	assert.Equal(t, bookingID, *payment.BookingID)

	var entry models.CreditLedgerEntry
	require.NoError(t, f.conn.Where("source = ?", enums.CreditSourceConsumption).First(&entry).Error)
	require.NotNil(t, entry.PaymentID)
	assert.Equal(t, usage.PaymentID, *entry.PaymentID)
	assert.Equal(t, int64(-60), entry.DeltaMinutes)

	longLesson := f.seedBooking(t, f.learnerID, f.instructorID, enums.BookingStatusConfirmed)
	_, err = f.svc.ConsumeForBooking(ctx, BookingUsageInput{LearnerID: f.learnerID, InstructorID: f.instructorID, BookingID: longLesson, Hours: hours("2")})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientCredit))

	var paymentCount int64
	require.NoError(t, f.conn.Model(&models.Payment{}).Count(&paymentCount).Error)
	assert.Equal(t, int64(1), paymentCount)
}

func TestConsumeForBookingRejectsForeignOrPaidBookings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	otherInstructor := uuid.New()
	otherLearner := uuid.New()

	_, err := f.svc.Purchase(ctx, PurchaseInput{LearnerID: f.learnerID, InstructorID: f.instructorID, Hours: hours("4"), HourlyRatePence: 3000})
	require.NoError(t, err)
	before, err := f.svc.Balance(ctx, f.learnerID, f.instructorID)
	require.NoError(t, err)

	use := func(bookingID uuid.UUID) error {
		_, err := f.svc.ConsumeForBooking(ctx, BookingUsageInput{LearnerID: f.learnerID, InstructorID: f.instructorID, BookingID: bookingID, Hours: hours("1")})
		return err
	}

	cases := []struct {
		name    string
		booking uuid.UUID
		code    pkgerrors.Code
	}{
		{"unknown booking", uuid.New(), pkgerrors.CodeNotFound},
		{"other learner", f.seedBooking(t, otherLearner, f.instructorID, enums.BookingStatusCompleted), pkgerrors.CodeForbidden},
		{"other instructor", f.seedBooking(t, f.learnerID, otherInstructor, enums.BookingStatusCompleted), pkgerrors.CodeValidation},
		{"cancelled", f.seedBooking(t, f.learnerID, f.instructorID, enums.BookingStatusCancelled), pkgerrors.CodeStateConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := use(tc.booking)
			require.Error(t, err)
			assert.True(t, pkgerrors.Is(err, tc.code), "got %v", err)
		})
	}

	after, err := f.svc.Balance(ctx, f.learnerID, f.instructorID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	lesson := f.seedBooking(t, f.learnerID, f.instructorID, enums.BookingStatusCompleted)
	require.NoError(t, use(lesson))
	err = use(lesson)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict))

	var paymentCount int64
	require.NoError(t, f.conn.Model(&models.Payment{}).Count(&paymentCount).Error)
	assert.Equal(t, int64(1), paymentCount)
	balance, err := f.svc.Balance(ctx, f.learnerID, f.instructorID)
	require.NoError(t, err)
	assert.Equal(t, int64(180), balance.RemainingMinutes)

	lessons, err := bookings.NewRepository(f.conn).ListPayoutEligible(ctx,
		time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, lessons, 1)
	assert.Equal(t, lesson, lessons[0].BookingID)
	assert.Equal(t, f.instructorID, lessons[0].InstructorID)
	assert.Equal(t, int64(3000), lessons[0].InstructorAmountPence)
}

func TestConcurrentConsumeNeverOverdraws(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Purchase(ctx, PurchaseInput{LearnerID: f.learnerID, InstructorID: f.instructorID, Hours: hours("5"), HourlyRatePence: 4000})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Consume(ctx, ConsumeInput{LearnerID: f.learnerID, InstructorID: f.instructorID, Hours: hours("1")})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	balance, err := f.svc.Balance(ctx, f.learnerID, f.instructorID)
	require.NoError(t, err)
	assert.Zero(t, balance.RemainingMinutes)
	check, err := f.svc.Verify(ctx, f.learnerID, f.instructorID)
	require.NoError(t, err)
	assert.True(t, check.Consistent)
}

func TestEntriesPaginatesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Purchase(ctx, PurchaseInput{LearnerID: f.learnerID, InstructorID: f.instructorID, Hours: hours("5"), HourlyRatePence: 4000})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		time.Sleep(2 * time.Millisecond)
		_, err := f.svc.Consume(ctx, ConsumeInput{LearnerID: f.learnerID, InstructorID: f.instructorID, Hours: hours("0.5")})
		require.NoError(t, err)
	}

	first, err := f.svc.Entries(ctx, EntriesInput{LearnerID: f.learnerID, InstructorID: f.instructorID, Limit: 3})
	require.NoError(t, err)
	require.Len(t, first.Entries, 3)
	require.NotEmpty(t, first.NextCursor)
	for _, e := range first.Entries {
		assert.Equal(t, enums.CreditSourceConsumption, e.Source)
	}

	second, err := f.svc.Entries(ctx, EntriesInput{LearnerID: f.learnerID, InstructorID: f.instructorID, Limit: 3, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Entries, 1)
	assert.Equal(t, enums.CreditSourcePurchase, second.Entries[0].Source)
	assert.Empty(t, second.NextCursor)

	_, err = f.svc.Entries(ctx, EntriesInput{LearnerID: f.learnerID, InstructorID: f.instructorID, Cursor: "%%%"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestListBalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := uuid.New()

	_, err := f.svc.Purchase(ctx, PurchaseInput{LearnerID: f.learnerID, InstructorID: f.instructorID, Hours: hours("1"), HourlyRatePence: 4000})
	require.NoError(t, err)
	_, err = f.svc.Purchase(ctx, PurchaseInput{LearnerID: f.learnerID, InstructorID: other, Hours: hours("2"), HourlyRatePence: 3800})
	require.NoError(t, err)

	all, err := f.svc.List(ctx, f.learnerID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := f.svc.List(ctx, f.learnerID, &other)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, int64(120), filtered[0].RemainingMinutes)
}
