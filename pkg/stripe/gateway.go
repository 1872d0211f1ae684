package stripe

import (
	"context"
	"errors"
	"strconv"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/account"
	"github.com/stripe/stripe-go/v84/accountlink"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/transfer"
)

// PaymentIntentInput describes a platform charge. Funds stay on the platform
// balance and reach the instructor through the weekly payout transfer, which
// shares TransferGroup with the charge.
type PaymentIntentInput struct {
	Amount         int64
	TransferGroup  string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// TransferInput moves funds from the platform balance to a connected account.
type TransferInput struct {
	Amount         int64
	Destination    string
	TransferGroup  string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// AccountInput seeds a new Express account for an instructor.
type AccountInput struct {
	Email        string
	InstructorID string
}

func (c *Client) CreatePaymentIntent(ctx context.Context, in PaymentIntentInput) (*stripe.PaymentIntent, error) {
	if c == nil {
		return nil, errors.New("stripe client not initialized")
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(in.Amount),
		Currency: stripe.String(c.Currency()),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if in.TransferGroup != "" {
		params.TransferGroup = stripe.String(in.TransferGroup)
	}
	if in.Description != "" {
		params.Description = stripe.String(in.Description)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	params.Context = ctx
	return paymentintent.New(params)
}

func (c *Client) GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	if c == nil {
		return nil, errors.New("stripe client not initialized")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	return paymentintent.Get(id, params)
}

func (c *Client) CreateTransfer(ctx context.Context, in TransferInput) (*stripe.Transfer, error) {
	if c == nil {
		return nil, errors.New("stripe client not initialized")
	}
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(in.Amount),
		Currency:    stripe.String(c.Currency()),
		Destination: stripe.String(in.Destination),
	}
	if in.TransferGroup != "" {
		params.TransferGroup = stripe.String(in.TransferGroup)
	}
	if in.Description != "" {
		params.Description = stripe.String(in.Description)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	params.Context = ctx
	return transfer.New(params)
}

// CreateExpressAccount opens an Express account that settles weekly on Fridays
// after a seven day delay.
func (c *Client) CreateExpressAccount(ctx context.Context, in AccountInput) (*stripe.Account, error) {
	if c == nil {
		return nil, errors.New("stripe client not initialized")
	}
	country := c.country
	if country == "" {
		country = "GB"
	}
	params := &stripe.AccountParams{
		Type:         stripe.String(string(stripe.AccountTypeExpress)),
		Country:      stripe.String(country),
		Email:        stripe.String(in.Email),
		BusinessType: stripe.String(string(stripe.AccountBusinessTypeIndividual)),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
		Settings: &stripe.AccountSettingsParams{
			Payouts: &stripe.AccountSettingsPayoutsParams{
				Schedule: &stripe.AccountSettingsPayoutsScheduleParams{
					Interval:     stripe.String("weekly"),
					WeeklyAnchor: stripe.String("friday"),
					DelayDays:    stripe.Int64(7),
				},
			},
		},
	}
	params.AddMetadata("instructor_id", in.InstructorID)
	params.SetIdempotencyKey("connect_account_" + in.InstructorID)
	params.Context = ctx
	return account.New(params)
}

// CreateOnboardingLink returns a hosted onboarding URL for the account.
func (c *Client) CreateOnboardingLink(ctx context.Context, accountID string) (*stripe.AccountLink, error) {
	if c == nil {
		return nil, errors.New("stripe client not initialized")
	}
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(c.refreshURL),
		ReturnURL:  stripe.String(c.returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx
	return accountlink.New(params)
}

// FormatPence renders an amount for provider metadata.
func FormatPence(amount int64) string {
	return strconv.FormatInt(amount, 10)
}
