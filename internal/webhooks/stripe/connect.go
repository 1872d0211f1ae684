package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v84"

	"github.com/lplate/lplate-backend/internal/connect"
	"github.com/lplate/lplate-backend/internal/payouts"
	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
	"github.com/lplate/lplate-backend/pkg/logger"
)

// EventTypeTransferPaid is still sent to endpoints pinned to older API versions.
const EventTypeTransferPaid stripe.EventType = "transfer.paid"

type accountUpdater interface {
	ApplyAccountUpdate(ctx context.Context, stripeAccountID string, flags connect.Flags) (bool, error)
	Deauthorize(ctx context.Context, stripeAccountID string) (bool, error)
}

type transferApplier interface {
	ApplyTransferEvent(ctx context.Context, event payouts.TransferEvent) (bool, error)
}

type ConnectParams struct {
	Accounts  accountUpdater
	Transfers transferApplier
	Logger    *logger.Logger
}

// ConnectReconciler applies connected account and transfer events.
type ConnectReconciler struct {
	accounts  accountUpdater
	transfers transferApplier
	logger    *logger.Logger
}

func NewConnectReconciler(params ConnectParams) (*ConnectReconciler, error) {
	if params.Accounts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "connect service required")
	}
	if params.Transfers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payout service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &ConnectReconciler{
		accounts:  params.Accounts,
		transfers: params.Transfers,
		logger:    params.Logger,
	}, nil
}

func (r *ConnectReconciler) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeAccountUpdated:
		var account stripe.Account
		if err := json.Unmarshal(event.Data.Raw, &account); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode account")
		}
		return r.accountUpdated(ctx, &account)
	case stripe.EventTypeAccountApplicationDeauthorized:
		if event.Account == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "connected account id missing")
		}
		found, err := r.accounts.Deauthorize(ctx, event.Account)
		if err != nil {
			return err
		}
		r.logAccount(ctx, event.Account, found, "connected account deauthorized")
		return nil
	case stripe.EventTypeTransferCreated,
		stripe.EventTypeTransferUpdated,
		stripe.EventTypeTransferReversed,
		EventTypeTransferPaid:
		var transfer stripe.Transfer
		if err := json.Unmarshal(event.Data.Raw, &transfer); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode transfer")
		}
		return r.transferChanged(ctx, event.Type, &transfer)
	default:
		return nil
	}
}

func (r *ConnectReconciler) accountUpdated(ctx context.Context, account *stripe.Account) error {
	if account.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "account id missing")
	}
	flags := connect.Flags{
		ChargesEnabled:   account.ChargesEnabled,
		PayoutsEnabled:   account.PayoutsEnabled,
		DetailsSubmitted: account.DetailsSubmitted,
	}
	if account.Requirements != nil {
		raw, err := json.Marshal(account.Requirements)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode account requirements")
		}
		flags.Requirements = raw
	}
	found, err := r.accounts.ApplyAccountUpdate(ctx, account.ID, flags)
	if err != nil {
		return err
	}
	r.logAccount(ctx, account.ID, found, "connected account updated")
	return nil
}

func (r *ConnectReconciler) transferChanged(ctx context.Context, eventType stripe.EventType, transfer *stripe.Transfer) error {
	update := payouts.TransferEvent{
		TransferID: transfer.ID,
		PayoutID:   transfer.Metadata[payouts.MetaPayoutID],
	}
	switch {
	case eventType == stripe.EventTypeTransferCreated:
		update.Kind = payouts.TransferCreated
	case eventType == stripe.EventTypeTransferReversed, transfer.Reversed:
		update.Kind = payouts.TransferReversed
		update.Reason = "transfer reversed by provider"
	default:
		update.Kind = payouts.TransferPaid
	}

	matched, err := r.transfers.ApplyTransferEvent(ctx, update)
	if err != nil {
		return err
	}
	if !matched {
		r.logger.Info(r.logger.WithField(ctx, "stripe_transfer_id", transfer.ID), "transfer not linked to a payout")
	}
	return nil
}

func (r *ConnectReconciler) logAccount(ctx context.Context, accountID string, found bool, msg string) {
	ctx = r.logger.WithField(ctx, "stripe_account_id", accountID)
	if !found {
		r.logger.Warn(ctx, "event for unknown connected account")
		return
	}
	r.logger.Info(ctx, msg)
}
