package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/lplate/lplate-backend/internal/commission"
	"github.com/lplate/lplate-backend/internal/credits"
	"github.com/lplate/lplate-backend/internal/payments"
	"github.com/lplate/lplate-backend/pkg/db"
	"github.com/lplate/lplate-backend/pkg/db/models"
	"github.com/lplate/lplate-backend/pkg/enums"
	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
	"github.com/lplate/lplate-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type creditPurchaser interface {
	PurchaseTx(ctx context.Context, tx *gorm.DB, input credits.PurchaseInput) (*credits.Balance, error)
}

type PaymentsParams struct {
	Payments          payments.Repository
	Credits           creditPurchaser
	TransactionRunner txRunner
	Logger            *logger.Logger
}

// PaymentsReconciler applies payment intent and charge events to payments.
// Every branch checks stored state first, so a redelivered event is a no-op.
type PaymentsReconciler struct {
	payments payments.Repository
	credits  creditPurchaser
	txRunner txRunner
	logger   *logger.Logger
}

func NewPaymentsReconciler(params PaymentsParams) (*PaymentsReconciler, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments repo required")
	}
	if params.Credits == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "credit ledger required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &PaymentsReconciler{
		payments: params.Payments,
		credits:  params.Credits,
		txRunner: params.TransactionRunner,
		logger:   params.Logger,
	}, nil
}

func (r *PaymentsReconciler) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
		}
		return r.intentSucceeded(ctx, &intent)
	case stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
		}
		return r.intentFailed(ctx, &intent)
	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge")
		}
		return r.chargeRefunded(ctx, &charge)
	case stripe.EventTypeChargeRefundUpdated:
		var refund stripe.Refund
		if err := json.Unmarshal(event.Data.Raw, &refund); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode refund")
		}
		return r.refundUpdated(ctx, &refund)
	case stripe.EventTypeChargeDisputeCreated:
		var dispute stripe.Dispute
		if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode dispute")
		}
		fields := map[string]any{
			"dispute_id":   dispute.ID,
			"amount_pence": dispute.Amount,
			"reason":       string(dispute.Reason),
		}
		if dispute.Charge != nil {
			fields["charge_id"] = dispute.Charge.ID
		}
		r.logger.Warn(r.logger.WithFields(ctx, fields), "charge disputed")
		return nil
	default:
		return nil
	}
}

func (r *PaymentsReconciler) intentSucceeded(ctx context.Context, intent *stripe.PaymentIntent) error {
	ctx = r.logger.WithField(ctx, "payment_intent_id", intent.ID)
	return r.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.payments.WithTx(tx)
		payment, err := repo.LockByIntentID(ctx, intent.ID)
		if err != nil {
			return r.lookupErr(ctx, err, intent)
		}

		moved, err := r.transition(ctx, repo, payment, enums.PaymentStatusSucceeded)
		if err != nil || !moved {
			return err
		}

		meta := paymentMetadata(payment, intent.Metadata)
		if meta[payments.MetadataType] != payments.TypeCreditPurchase {
			return nil
		}
		hours, err := decimal.NewFromString(meta[payments.MetadataHours])
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "credit purchase hours missing")
		}
		var rate int64
		if raw := meta[payments.MetadataHourlyRate]; raw != "" {
			if rate, err = strconv.ParseInt(raw, 10, 64); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "credit purchase hourly rate invalid")
			}
		}
		paymentID := payment.ID
		if _, err := r.credits.PurchaseTx(ctx, tx, credits.PurchaseInput{
			LearnerID:       payment.LearnerID,
			InstructorID:    payment.InstructorID,
			Hours:           hours,
			HourlyRatePence: rate,
			PaymentID:       &paymentID,
		}); err != nil {
			return err
		}
		r.logger.Info(r.logger.WithField(ctx, "hours", hours.String()), "credit purchase applied")
		return nil
	})
}

func (r *PaymentsReconciler) intentFailed(ctx context.Context, intent *stripe.PaymentIntent) error {
	ctx = r.logger.WithField(ctx, "payment_intent_id", intent.ID)
	return r.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.payments.WithTx(tx)
		payment, err := repo.LockByIntentID(ctx, intent.ID)
		if err != nil {
			return r.lookupErr(ctx, err, intent)
		}
		if _, err := r.transition(ctx, repo, payment, enums.PaymentStatusFailed); err != nil {
			return err
		}
		if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
			r.logger.Info(r.logger.WithField(ctx, "reason", intent.LastPaymentError.Msg), "payment failed")
		}
		return nil
	})
}

// transition moves payment to next. It reports whether the payment now sits
// in next; a payment already there counts, one elsewhere is left alone.
func (r *PaymentsReconciler) transition(ctx context.Context, repo payments.Repository, payment *models.Payment, next enums.PaymentStatus) (bool, error) {
	if payment.Status == next {
		return true, nil
	}
	if !payment.Status.CanTransitionTo(next) {
		r.logger.Warn(r.logger.WithFields(ctx, map[string]any{
			"payment_id": payment.ID.String(),
			"from":       payment.Status,
			"to":         next,
		}), "ignoring payment event for settled payment")
		return false, nil
	}
	updated, err := repo.UpdateStatus(ctx, payment.ID, payment.Status, next)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
	}
	if !updated {
		return false, pkgerrors.New(pkgerrors.CodeStateConflict, "payment status changed concurrently")
	}
	payment.Status = next
	return true, nil
}

// lookupErr acknowledges intents this service never created. Intents carrying
// our metadata may arrive before checkout stored the payment, so those fail
// and the provider redelivers.
func (r *PaymentsReconciler) lookupErr(ctx context.Context, err error, intent *stripe.PaymentIntent) error {
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if intent.Metadata[payments.MetadataType] != "" {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment not recorded yet")
	}
	r.logger.Info(ctx, "ignoring event for unknown payment intent")
	return nil
}

type refundRecord struct {
	id     string
	amount int64
	reason string
	status enums.RefundStatus
}

func (r *PaymentsReconciler) chargeRefunded(ctx context.Context, charge *stripe.Charge) error {
	if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
		r.logger.Info(r.logger.WithField(ctx, "charge_id", charge.ID), "ignoring refund without payment intent")
		return nil
	}
	intentID := charge.PaymentIntent.ID
	ctx = r.logger.WithFields(ctx, map[string]any{"charge_id": charge.ID, "payment_intent_id": intentID})

	return r.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.payments.WithTx(tx)
		payment, err := repo.LockByIntentID(ctx, intentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				r.logger.Info(ctx, "ignoring refund for unknown payment")
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}

		recorded, err := repo.SumRefunds(ctx, payment.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum refunds")
		}

		return r.applyRefunds(ctx, repo, payment, refundsFromCharge(charge, recorded))
	})
}

// refundUpdated follows a single refund through its lifecycle, so a refund
// first seen as pending moves the payment once it succeeds.
func (r *PaymentsReconciler) refundUpdated(ctx context.Context, refund *stripe.Refund) error {
	if refund.ID == "" || refund.PaymentIntent == nil || refund.PaymentIntent.ID == "" {
		r.logger.Info(ctx, "ignoring refund update without payment intent")
		return nil
	}
	intentID := refund.PaymentIntent.ID
	ctx = r.logger.WithFields(ctx, map[string]any{"stripe_refund_id": refund.ID, "payment_intent_id": intentID})

	return r.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.payments.WithTx(tx)
		payment, err := repo.LockByIntentID(ctx, intentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				r.logger.Info(ctx, "ignoring refund update for unknown payment")
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}
		return r.applyRefunds(ctx, repo, payment, []refundRecord{{
			id:     refund.ID,
			amount: refund.Amount,
			reason: refundReason(string(refund.Reason)),
			status: refundStatus(string(refund.Status)),
		}})
	})
}

// applyRefunds records each refund and moves the payment to refunded only
// once at least one of them has succeeded.
func (r *PaymentsReconciler) applyRefunds(ctx context.Context, repo payments.Repository, payment *models.Payment, records []refundRecord) error {
	refunded := false
	for _, record := range records {
		if record.status == enums.RefundStatusSucceeded {
			refunded = true
		}
		if err := r.recordRefund(ctx, repo, payment, record); err != nil {
			return err
		}
	}
	if !refunded {
		return nil
	}
	_, err := r.transition(ctx, repo, payment, enums.PaymentStatusRefunded)
	return err
}

func (r *PaymentsReconciler) recordRefund(ctx context.Context, repo payments.Repository, payment *models.Payment, record refundRecord) error {
	if existing, err := repo.FindRefundByStripeID(ctx, record.id); err == nil {
		if existing.Status == record.status || existing.Status != enums.RefundStatusPending {
			return nil
		}
		if err := repo.UpdateRefundStatus(ctx, existing.ID, record.status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update refund status")
		}
		r.logger.Info(r.logger.WithFields(ctx, map[string]any{
			"stripe_refund_id": record.id,
			"refund_status":    record.status,
		}), "refund status updated")
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund")
	}

	share, err := commission.RefundSplit(record.amount, payment.TotalAmountPence, payment.PlatformFeePence)
	if err != nil {
		return err
	}
	refund := &models.Refund{
		PaymentID:              payment.ID,
		StripeRefundID:         record.id,
		AmountPence:            share.AmountPence,
		PlatformFeeRefundPence: share.PlatformFeeRefundPence,
		InstructorRefundPence:  share.InstructorRefundPence,
		Reason:                 record.reason,
		Status:                 record.status,
	}
	if err := repo.CreateRefund(ctx, refund); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
	}
	r.logger.Info(r.logger.WithFields(ctx, map[string]any{
		"stripe_refund_id":    record.id,
		"amount_pence":        share.AmountPence,
		"platform_fee_pence":  share.PlatformFeeRefundPence,
		"instructor_pence":    share.InstructorRefundPence,
		"payment_id":          payment.ID.String(),
		"refund_status":       record.status,
		"payment_total_pence": payment.TotalAmountPence,
	}), "refund recorded")
	return nil
}

// refundsFromCharge lists the charge's refunds. Charges rendered without
// their refund list yield one record for the amount refunded beyond what is
// already recorded, keyed by the charge and its cumulative refunded amount.
func refundsFromCharge(charge *stripe.Charge, recorded int64) []refundRecord {
	if charge.Refunds != nil && len(charge.Refunds.Data) > 0 {
		records := make([]refundRecord, 0, len(charge.Refunds.Data))
		for _, refund := range charge.Refunds.Data {
			if refund == nil || refund.ID == "" {
				continue
			}
			records = append(records, refundRecord{
				id:     refund.ID,
				amount: refund.Amount,
				reason: refundReason(string(refund.Reason)),
				status: refundStatus(string(refund.Status)),
			})
		}
		return records
	}
	if charge.AmountRefunded <= recorded {
		return nil
	}
	return []refundRecord{{
		id:     fmt.Sprintf("%s_%d", charge.ID, charge.AmountRefunded),
		amount: charge.AmountRefunded - recorded,
		reason: refundReason(""),
		status: enums.RefundStatusSucceeded,
	}}
}

func refundReason(reason string) string {
	if reason == "" {
		return "unspecified"
	}
	return reason
}

func refundStatus(status string) enums.RefundStatus {
	switch status {
	case "", "succeeded":
		return enums.RefundStatusSucceeded
	case "failed", "canceled":
		return enums.RefundStatusFailed
	default:
		return enums.RefundStatusPending
	}
}

// paymentMetadata prefers what checkout stored over what the event carries.
func paymentMetadata(payment *models.Payment, fallback map[string]string) map[string]string {
	if len(payment.Metadata) > 0 {
		var stored map[string]string
		if err := json.Unmarshal(payment.Metadata, &stored); err == nil && len(stored) > 0 {
			return stored
		}
	}
	if fallback == nil {
		return map[string]string{}
	}
	return fallback
}
