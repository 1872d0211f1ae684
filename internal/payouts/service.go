package payouts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/lplate/lplate-backend/internal/bookings"
	"github.com/lplate/lplate-backend/pkg/db"
	"github.com/lplate/lplate-backend/pkg/db/models"
	"github.com/lplate/lplate-backend/pkg/enums"
	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
	"github.com/lplate/lplate-backend/pkg/logger"
	"github.com/lplate/lplate-backend/pkg/metrics"
	"github.com/lplate/lplate-backend/pkg/pagination"
	pkgstripe "github.com/lplate/lplate-backend/pkg/stripe"
)

// Transfer metadata keys. Webhooks use MetaPayoutID to find a payout whose
// transfer id has not been recorded yet.
const (
	MetaPayoutID     = "payoutId"
	MetaInstructorID = "instructorId"
	MetaPayoutDate   = "payoutDate"
	MetaLessonCount  = "lessonCount"
)

// Outcomes reported per instructor and used as metric labels.
const (
	OutcomeCreated  = "created"
	OutcomeExisting = "existing"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

const (
	errPayoutsNotEnabled = "payouts not enabled"
	retryBatchSize       = 50
)

// TransferProvider moves funds to a connected account.
type TransferProvider interface {
	CreateTransfer(ctx context.Context, in pkgstripe.TransferInput) (*stripe.Transfer, error)
}

type lessonSource interface {
	ListPayoutEligible(ctx context.Context, start, end time.Time) ([]bookings.EligibleLesson, error)
}

type accountSource interface {
	FindByInstructorID(ctx context.Context, instructorID uuid.UUID) (*models.StripeConnectAccount, error)
	ListByInstructorIDs(ctx context.Context, instructorIDs []uuid.UUID) ([]models.StripeConnectAccount, error)
}

// Config tunes batching and transfer retries.
type Config struct {
	Location           *time.Location
	Currency           string
	TransferMaxRetries int
	TransferBackoff    time.Duration
	// MaxAttempts stops scheduled re-drives once a payout has failed this many times.
	MaxAttempts  int
	HistoryLimit int
}

// InstructorResult reports what the batch did for one instructor.
type InstructorResult struct {
	InstructorID     uuid.UUID          `json:"instructor_id"`
	PayoutID         *uuid.UUID         `json:"payout_id,omitempty"`
	AmountPence      int64              `json:"amount_pence"`
	PlatformFeePence int64              `json:"platform_fee_pence"`
	LessonCount      int                `json:"lesson_count"`
	Status           enums.PayoutStatus `json:"status,omitempty"`
	TransferID       string             `json:"transfer_id,omitempty"`
	Outcome          string             `json:"outcome"`
	Existing         bool               `json:"existing"`
	Error            string             `json:"error,omitempty"`
}

// Totals aggregates instructor results.
type Totals struct {
	Succeeded        int   `json:"succeeded"`
	Failed           int   `json:"failed"`
	Existing         int   `json:"existing"`
	Skipped          int   `json:"skipped"`
	TransferredPence int64 `json:"transferred_pence"`
	LessonCount      int   `json:"lesson_count"`
}

func (t *Totals) add(res InstructorResult) {
	switch res.Outcome {
	case OutcomeCreated:
		t.Succeeded++
		t.TransferredPence += res.AmountPence
		t.LessonCount += res.LessonCount
	case OutcomeExisting:
		t.Existing++
	case OutcomeSkipped:
		t.Skipped++
	default:
		t.Failed++
	}
}

type BatchResult struct {
	PayoutDate  string             `json:"payout_date"`
	PeriodStart time.Time          `json:"period_start"`
	PeriodEnd   time.Time          `json:"period_end"`
	Instructors []InstructorResult `json:"instructors"`
	Totals
}

type RetryResult struct {
	Payouts []InstructorResult `json:"payouts"`
	Totals
}

type PayoutView struct {
	ID               uuid.UUID          `json:"id"`
	InstructorID     uuid.UUID          `json:"instructor_id"`
	PayoutDate       string             `json:"payout_date"`
	PeriodStart      time.Time          `json:"period_start"`
	PeriodEnd        time.Time          `json:"period_end"`
	TotalAmountPence int64              `json:"total_amount_pence"`
	PlatformFeePence int64              `json:"platform_fee_pence"`
	NetAmountPence   int64              `json:"net_amount_pence"`
	LessonCount      int                `json:"lesson_count"`
	Currency         string             `json:"currency"`
	Status           enums.PayoutStatus `json:"status"`
	StripeTransferID *string            `json:"stripe_transfer_id,omitempty"`
	FailureReason    *string            `json:"failure_reason,omitempty"`
	Attempts         int                `json:"attempts"`
	PaymentIDs       []uuid.UUID        `json:"payment_ids,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

type HistoryInput struct {
	InstructorID uuid.UUID
	Cursor       string
	Limit        int
}

type HistoryPage struct {
	Payouts    []PayoutView `json:"payouts"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// TransferEventKind is the provider-side transfer lifecycle step.
type TransferEventKind string

const (
	TransferCreated  TransferEventKind = "created"
	TransferPaid     TransferEventKind = "paid"
	TransferReversed TransferEventKind = "reversed"
)

func (k TransferEventKind) target() (enums.PayoutStatus, bool) {
	switch k {
	case TransferCreated:
		return enums.PayoutStatusProcessing, true
	case TransferPaid:
		return enums.PayoutStatusPaid, true
	case TransferReversed:
		return enums.PayoutStatusFailed, true
	}
	return "", false
}

// TransferEvent is a transfer webhook reduced to what payouts need.
type TransferEvent struct {
	Kind       TransferEventKind
	TransferID string
	PayoutID   string
	Reason     string
}

// Service settles completed lessons to instructors once a week.
type Service interface {
	Run(ctx context.Context, date time.Time) (*BatchResult, error)
	RetryFailed(ctx context.Context, payoutID uuid.UUID) (*InstructorResult, error)
	RetryAllFailed(ctx context.Context) (*RetryResult, error)
	Get(ctx context.Context, payoutID uuid.UUID) (*PayoutView, error)
	History(ctx context.Context, input HistoryInput) (*HistoryPage, error)
	ApplyTransferEvent(ctx context.Context, event TransferEvent) (bool, error)
}

type ServiceParams struct {
	Repo     Repository
	Lessons  lessonSource
	Accounts accountSource
	Provider TransferProvider
	Metrics  *metrics.PayoutMetrics
	Logger   *logger.Logger
	Config   Config
}

type service struct {
	repo     Repository
	lessons  lessonSource
	accounts accountSource
	provider TransferProvider
	metrics  *metrics.PayoutMetrics
	logger   *logger.Logger
	cfg      Config
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if params.Lessons == nil {
		return nil, fmt.Errorf("lesson source required")
	}
	if params.Accounts == nil {
		return nil, fmt.Errorf("connect account source required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("transfer provider required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg := params.Config
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Currency == "" {
		cfg.Currency = "gbp"
	}
	if cfg.TransferMaxRetries < 0 {
		cfg.TransferMaxRetries = 0
	}
	if cfg.TransferBackoff <= 0 {
		cfg.TransferBackoff = 500 * time.Millisecond
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	return &service{
		repo:     params.Repo,
		lessons:  params.Lessons,
		accounts: params.Accounts,
		provider: params.Provider,
		metrics:  params.Metrics,
		logger:   params.Logger,
		cfg:      cfg,
	}, nil
}

type lessonGroup struct {
	instructorID uuid.UUID
	amountPence  int64
	feePence     int64
	paymentIDs   []uuid.UUID
}

// groupLessons sums lessons per instructor, keeping first-seen order. Each
// booking contributes one payment; lessons arrive oldest payment first.
func groupLessons(lessons []bookings.EligibleLesson) []*lessonGroup {
	index := map[uuid.UUID]*lessonGroup{}
	seen := map[uuid.UUID]struct{}{}
	groups := make([]*lessonGroup, 0)
	for _, lesson := range lessons {
		if _, dup := seen[lesson.BookingID]; dup {
			continue
		}
		seen[lesson.BookingID] = struct{}{}
		group, ok := index[lesson.InstructorID]
		if !ok {
			group = &lessonGroup{instructorID: lesson.InstructorID}
			index[lesson.InstructorID] = group
			groups = append(groups, group)
		}
		group.amountPence += lesson.InstructorAmountPence
		group.feePence += lesson.PlatformFeePence
		group.paymentIDs = append(group.paymentIDs, lesson.PaymentID)
	}
	return groups
}

// Run settles every instructor with completed lessons in the week before
// date. A failure for one instructor is recorded in the result and the batch
// moves on; re-running for the same date returns existing payouts unchanged.
func (s *service) Run(ctx context.Context, date time.Time) (*BatchResult, error) {
	window, err := WindowFor(date, s.cfg.Location)
	if err != nil {
		return nil, err
	}
	result := &BatchResult{
		PayoutDate:  window.PayoutDate.Format(DateLayout),
		PeriodStart: window.Start,
		PeriodEnd:   window.PeriodEnd(),
		Instructors: []InstructorResult{},
	}
	ctx = s.logger.WithField(ctx, "payout_date", result.PayoutDate)

	lessons, err := s.lessons.ListPayoutEligible(ctx, window.Start, window.End)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payout eligible lessons")
	}
	groups := groupLessons(lessons)
	if len(groups) == 0 {
		s.logger.Info(ctx, "no payout eligible lessons")
		return result, nil
	}

	instructorIDs := make([]uuid.UUID, 0, len(groups))
	for _, group := range groups {
		instructorIDs = append(instructorIDs, group.instructorID)
	}
	accounts, err := s.accounts.ListByInstructorIDs(ctx, instructorIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load connected accounts")
	}
	accountByInstructor := make(map[uuid.UUID]*models.StripeConnectAccount, len(accounts))
	for i := range accounts {
		accountByInstructor[accounts[i].InstructorID] = &accounts[i]
	}

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		res := s.settle(ctx, window, group, accountByInstructor[group.instructorID])
		result.Instructors = append(result.Instructors, res)
		result.add(res)
	}

	s.logger.Info(s.logger.WithFields(ctx, map[string]any{
		"succeeded":         result.Succeeded,
		"failed":            result.Failed,
		"existing":          result.Existing,
		"skipped":           result.Skipped,
		"transferred_pence": result.TransferredPence,
	}), "payout batch finished")
	return result, nil
}

func (s *service) settle(ctx context.Context, window Window, group *lessonGroup, account *models.StripeConnectAccount) InstructorResult {
	ctx = s.logger.WithInstructorID(ctx, group.instructorID.String())
	res := InstructorResult{
		InstructorID:     group.instructorID,
		AmountPence:      group.amountPence,
		PlatformFeePence: group.feePence,
		LessonCount:      len(group.paymentIDs),
	}

	existing, err := s.repo.FindByInstructorAndDate(ctx, group.instructorID, window.PayoutDate)
	if err == nil {
		return s.record(existingResult(existing))
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error(ctx, "failed to look up existing payout", err)
		res.Outcome = OutcomeFailed
		res.Error = "failed to look up existing payout"
		return s.record(res)
	}

	if account == nil || !account.PayoutsEnabled {
		s.logger.Warn(ctx, "payout failed, payouts not enabled")
		res.Outcome = OutcomeFailed
		res.Error = errPayoutsNotEnabled
		return s.record(res)
	}

	payout := &models.Payout{
		InstructorID:     group.instructorID,
		PayoutDate:       window.PayoutDate,
		PeriodStart:      window.Start,
		PeriodEnd:        window.PeriodEnd(),
		TotalAmountPence: group.amountPence,
		PlatformFeePence: group.feePence,
		NetAmountPence:   group.amountPence,
		LessonCount:      len(group.paymentIDs),
		Currency:         s.cfg.Currency,
		Status:           enums.PayoutStatusPending,
		StripeAccountID:  account.StripeAccountID,
	}
	if err := s.repo.Create(ctx, payout); err != nil {
		if db.IsUniqueViolation(err, "") {
			if raced, findErr := s.repo.FindByInstructorAndDate(ctx, group.instructorID, window.PayoutDate); findErr == nil {
				return s.record(existingResult(raced))
			}
		}
		s.logger.Error(ctx, "failed to create payout", err)
		res.Outcome = OutcomeFailed
		res.Error = "failed to create payout"
		return s.record(res)
	}
	res.PayoutID = &payout.ID
	ctx = s.logger.WithField(ctx, "payout_id", payout.ID.String())

	if err := s.repo.LinkPayments(ctx, payout.ID, group.paymentIDs); err != nil {
		s.logger.Warn(s.logger.WithField(ctx, "error", err.Error()), "failed to link payout payments")
	}

	return s.record(s.transfer(ctx, payout, res))
}

// transfer sends the payout amount and records the outcome on the payout.
// It expects payout to be pending.
func (s *service) transfer(ctx context.Context, payout *models.Payout, res InstructorResult) InstructorResult {
	attempt := payout.Attempts + 1
	transferID, err := s.createTransfer(ctx, payout, attempt)
	payout.Attempts = attempt

	if err != nil {
		reason := failureReason(err)
		s.logger.Error(ctx, "payout transfer failed", err)
		payout.Status = enums.PayoutStatusFailed
		payout.FailureReason = &reason
		if saveErr := s.repo.Save(ctx, payout); saveErr != nil {
			s.logger.Error(ctx, "failed to mark payout failed", saveErr)
		}
		res.Status = enums.PayoutStatusFailed
		res.Outcome = OutcomeFailed
		res.Error = reason
		return res
	}

	res.Outcome = OutcomeCreated
	res.TransferID = transferID
	res.Status = enums.PayoutStatusProcessing
	s.metrics.AddTransferred(payout.NetAmountPence)

	payout.Status = enums.PayoutStatusProcessing
	payout.StripeTransferID = &transferID
	payout.FailureReason = nil
	if err := s.repo.Save(ctx, payout); err != nil {
		// A transfer.created webhook may already have recorded the transfer.
		if errors.Is(err, ErrVersionConflict) {
			if current, findErr := s.repo.FindByID(ctx, payout.ID); findErr == nil &&
				current.StripeTransferID != nil && *current.StripeTransferID == transferID {
				res.Status = current.Status
				return res
			}
		}
		s.logger.Error(s.logger.WithField(ctx, "stripe_transfer_id", transferID), "transfer created but payout not updated", err)
		res.Error = "transfer created but payout not updated"
	}
	return res
}

func (s *service) createTransfer(ctx context.Context, payout *models.Payout, attempt int) (string, error) {
	date := payout.PayoutDate.Format(DateLayout)
	input := pkgstripe.TransferInput{
		Amount:        payout.NetAmountPence,
		Destination:   payout.StripeAccountID,
		TransferGroup: "payout_" + payout.ID.String(),
		Description:   fmt.Sprintf("Lesson payout for %s", date),
		Metadata: map[string]string{
			MetaPayoutID:     payout.ID.String(),
			MetaInstructorID: payout.InstructorID.String(),
			MetaPayoutDate:   date,
			MetaLessonCount:  strconv.Itoa(payout.LessonCount),
		},
		// Stable across the retries below; a new attempt gets a new key so the
		// provider does not replay a cached failure.
		IdempotencyKey: fmt.Sprintf("payout_%s_%d", payout.ID, attempt),
	}

	backoff := retry.WithMaxRetries(uint64(s.cfg.TransferMaxRetries), retry.NewExponential(s.cfg.TransferBackoff))
	var transferID string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		tr, err := s.provider.CreateTransfer(ctx, input)
		if err != nil {
			if pkgstripe.IsRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		if tr == nil || tr.ID == "" {
			return fmt.Errorf("provider returned no transfer")
		}
		transferID = tr.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return transferID, nil
}

func (s *service) record(res InstructorResult) InstructorResult {
	s.metrics.IncOutcome(res.Outcome)
	return res
}

func (s *service) RetryFailed(ctx context.Context, payoutID uuid.UUID) (*InstructorResult, error) {
	if payoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id is required")
	}
	payout, err := s.repo.FindByID(ctx, payoutID)
	if err != nil {
		return nil, mapLookupErr(err, "payout not found", "load payout")
	}
	if payout.Status != enums.PayoutStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only failed payouts can be retried").
			WithDetails(map[string]any{"status": payout.Status})
	}

	account, err := s.accounts.FindByInstructorID(ctx, payout.InstructorID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load connected account")
	}
	if account == nil || !account.PayoutsEnabled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, errPayoutsNotEnabled)
	}

	ctx = s.logger.WithFields(s.logger.WithInstructorID(ctx, payout.InstructorID.String()), map[string]any{
		"payout_id": payout.ID.String(),
		"attempt":   payout.Attempts + 1,
	})

	payout.Status = enums.PayoutStatusPending
	payout.FailureReason = nil
	payout.StripeAccountID = account.StripeAccountID
	if err := s.repo.Save(ctx, payout); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payout changed during retry")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset payout")
	}

	id := payout.ID
	res := s.record(s.transfer(ctx, payout, InstructorResult{
		InstructorID:     payout.InstructorID,
		PayoutID:         &id,
		AmountPence:      payout.NetAmountPence,
		PlatformFeePence: payout.PlatformFeePence,
		LessonCount:      payout.LessonCount,
	}))
	s.logger.Info(s.logger.WithField(ctx, "outcome", res.Outcome), "payout retried")
	return &res, nil
}

// RetryAllFailed re-drives failed payouts that still have attempts left.
func (s *service) RetryAllFailed(ctx context.Context) (*RetryResult, error) {
	failed, err := s.repo.ListFailed(ctx, s.cfg.MaxAttempts, retryBatchSize)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list failed payouts")
	}
	result := &RetryResult{Payouts: []InstructorResult{}}
	for _, payout := range failed {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		res, err := s.RetryFailed(ctx, payout.ID)
		if err != nil {
			id := payout.ID
			res = &InstructorResult{
				InstructorID: payout.InstructorID,
				PayoutID:     &id,
				AmountPence:  payout.NetAmountPence,
				LessonCount:  payout.LessonCount,
				Status:       payout.Status,
				Outcome:      OutcomeSkipped,
				Error:        errorMessage(err),
			}
		}
		result.Payouts = append(result.Payouts, *res)
		result.add(*res)
	}
	return result, nil
}

func (s *service) Get(ctx context.Context, payoutID uuid.UUID) (*PayoutView, error) {
	payout, err := s.repo.FindByID(ctx, payoutID)
	if err != nil {
		return nil, mapLookupErr(err, "payout not found", "load payout")
	}
	paymentIDs, err := s.repo.ListPaymentIDs(ctx, payout.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout payments")
	}
	view := toView(payout)
	view.PaymentIDs = paymentIDs
	return &view, nil
}

func (s *service) History(ctx context.Context, input HistoryInput) (*HistoryPage, error) {
	if input.InstructorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "instructor id is required")
	}
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimitWithDefault(input.Limit, s.cfg.HistoryLimit)

	rows, err := s.repo.History(ctx, HistoryQuery{InstructorID: input.InstructorID, Cursor: cursor, Limit: limit})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}

	page := &HistoryPage{Payouts: make([]PayoutView, 0, limit)}
	if len(rows) > limit {
		last := rows[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{At: last.PayoutDate, ID: last.ID})
		rows = rows[:limit]
	}
	for i := range rows {
		page.Payouts = append(page.Payouts, toView(&rows[i]))
	}
	return page, nil
}

// ApplyTransferEvent moves a payout along with its transfer. It reports false
// when no payout matches the transfer. Events that would move a payout
// backwards are ignored.
func (s *service) ApplyTransferEvent(ctx context.Context, event TransferEvent) (bool, error) {
	target, ok := event.Kind.target()
	if !ok {
		return false, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown transfer event %q", event.Kind))
	}
	if event.TransferID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "transfer id is required")
	}

	payout, err := s.findForTransfer(ctx, event)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout for transfer")
	}
	ctx = s.logger.WithFields(ctx, map[string]any{
		"payout_id":          payout.ID.String(),
		"stripe_transfer_id": event.TransferID,
	})

	if payout.Status == target {
		return true, nil
	}
	// A paid event can arrive before the created one was applied.
	allowed := payout.Status.CanTransitionTo(target) ||
		(payout.Status == enums.PayoutStatusPending && target == enums.PayoutStatusPaid)
	if !allowed {
		s.logger.Warn(s.logger.WithFields(ctx, map[string]any{
			"from": payout.Status,
			"to":   target,
		}), "ignoring out of order transfer event")
		return true, nil
	}

	payout.Status = target
	if payout.StripeTransferID == nil {
		transferID := event.TransferID
		payout.StripeTransferID = &transferID
	}
	if target == enums.PayoutStatusFailed {
		reason := event.Reason
		if reason == "" {
			reason = "transfer reversed"
		}
		payout.FailureReason = &reason
	}
	if err := s.repo.Save(ctx, payout); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return false, pkgerrors.New(pkgerrors.CodeStateConflict, "payout changed while applying transfer event")
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout")
	}
	s.logger.Info(s.logger.WithField(ctx, "status", target), "payout updated from transfer event")
	return true, nil
}

func (s *service) findForTransfer(ctx context.Context, event TransferEvent) (*models.Payout, error) {
	payout, err := s.repo.FindByTransferID(ctx, event.TransferID)
	if err == nil || !errors.Is(err, gorm.ErrRecordNotFound) || event.PayoutID == "" {
		return payout, err
	}
	id, parseErr := uuid.Parse(event.PayoutID)
	if parseErr != nil {
		return nil, gorm.ErrRecordNotFound
	}
	payout, err = s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payout.StripeTransferID != nil && *payout.StripeTransferID != event.TransferID {
		return nil, gorm.ErrRecordNotFound
	}
	return payout, nil
}

func existingResult(payout *models.Payout) InstructorResult {
	id := payout.ID
	res := InstructorResult{
		InstructorID:     payout.InstructorID,
		PayoutID:         &id,
		AmountPence:      payout.NetAmountPence,
		PlatformFeePence: payout.PlatformFeePence,
		LessonCount:      payout.LessonCount,
		Status:           payout.Status,
		Outcome:          OutcomeExisting,
		Existing:         true,
	}
	if payout.StripeTransferID != nil {
		res.TransferID = *payout.StripeTransferID
	}
	return res
}

func toView(payout *models.Payout) PayoutView {
	return PayoutView{
		ID:               payout.ID,
		InstructorID:     payout.InstructorID,
		PayoutDate:       payout.PayoutDate.Format(DateLayout),
		PeriodStart:      payout.PeriodStart,
		PeriodEnd:        payout.PeriodEnd,
		TotalAmountPence: payout.TotalAmountPence,
		PlatformFeePence: payout.PlatformFeePence,
		NetAmountPence:   payout.NetAmountPence,
		LessonCount:      payout.LessonCount,
		Currency:         payout.Currency,
		Status:           payout.Status,
		StripeTransferID: payout.StripeTransferID,
		FailureReason:    payout.FailureReason,
		Attempts:         payout.Attempts,
		CreatedAt:        payout.CreatedAt,
	}
}

func failureReason(err error) string {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return stripeErr.Msg
	}
	return err.Error()
}

func errorMessage(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Message()
	}
	return err.Error()
}

func mapLookupErr(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
