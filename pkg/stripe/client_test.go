package stripe

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stripe/stripe-go/v84"

	"github.com/lplate/lplate-backend/pkg/config"
	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
)

func TestNewClientValidatesConfig(t *testing.T) {
	base := config.StripeConfig{
		APIKey:                "sk_test_123",
		Env:                   "test",
		PaymentsWebhookSecret: "whsec_pay",
		ConnectWebhookSecret:  "whsec_conn",
		Currency:              "GBP",
	}

	client, err := NewClient(context.Background(), base, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Environment() != "test" || client.Currency() != "gbp" {
		t.Fatalf("unexpected env/currency %s/%s", client.Environment(), client.Currency())
	}
	if client.PaymentsSigningSecret() != "whsec_pay" || client.ConnectSigningSecret() != "whsec_conn" {
		t.Fatalf("signing secrets not preserved")
	}

	live := base
	live.Env = "live"
	if _, err := NewClient(context.Background(), live, nil); err == nil {
		t.Fatal("expected live env to reject a test key")
	}

	missingSecret := base
	missingSecret.ConnectWebhookSecret = ""
	if _, err := NewClient(context.Background(), missingSecret, nil); !errors.Is(err, errSecretRequired) {
		t.Fatalf("expected secret required error, got %v", err)
	}

	badEnv := base
	badEnv.Env = "staging"
	if _, err := NewClient(context.Background(), badEnv, nil); err == nil {
		t.Fatal("expected unknown env to fail")
	}
}

func TestNilClientAccessors(t *testing.T) {
	var c *Client
	if c.Currency() != "gbp" || c.PaymentsSigningSecret() != "" || c.API() != nil {
		t.Fatal("nil client accessors should be safe")
	}
	if _, err := c.CreateTransfer(context.Background(), TransferInput{}); err == nil {
		t.Fatal("expected error from nil client")
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "api error", err: &stripe.Error{Type: stripe.ErrorTypeAPI}, want: true},
		{name: "rate limited", err: &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusTooManyRequests}, want: true},
		{name: "card declined", err: &stripe.Error{Type: stripe.ErrorTypeCard, HTTPStatusCode: http.StatusPaymentRequired}, want: false},
		{name: "invalid request", err: &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusBadRequest}, want: false},
		{name: "network", err: timeoutErr{}, want: true},
		{name: "plain", err: errors.New("boom"), want: false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v got %v", tc.name, tc.want, got)
		}
	}
}

func TestAsProviderErrorPassesThroughDetails(t *testing.T) {
	err := AsProviderError(&stripe.Error{Type: stripe.ErrorTypeInvalidRequest, Code: stripe.ErrorCodeBalanceInsufficient, Msg: "insufficient funds"}, "create transfer")
	if err.Code() != pkgerrors.CodeProvider {
		t.Fatalf("expected provider code, got %s", err.Code())
	}
	details, ok := err.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected map details, got %T", err.Details())
	}
	if details["code"] != string(stripe.ErrorCodeBalanceInsufficient) || details["message"] != "insufficient funds" {
		t.Fatalf("unexpected details %v", details)
	}

	typed := pkgerrors.New(pkgerrors.CodeValidation, "bad")
	if AsProviderError(typed, "ignored") != typed {
		t.Fatal("typed errors should be returned unchanged")
	}
}
