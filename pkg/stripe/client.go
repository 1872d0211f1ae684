package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/lplate/lplate-backend/pkg/config"
	"github.com/lplate/lplate-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secrets are required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client wraps Stripe's API client plus env-specific metadata. The payments and
// connect webhook endpoints are signed with different secrets.
type Client struct {
	api            *stripe.Client
	environment    string
	currency       string
	country        string
	paymentsSecret string
	connectSecret  string
	returnURL      string
	refreshURL     string
}

// NewClient initializes Stripe once with the configured secrets and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	paymentsSecret := strings.TrimSpace(cfg.PaymentsWebhookSecret)
	connectSecret := strings.TrimSpace(cfg.ConnectWebhookSecret)
	if paymentsSecret == "" || connectSecret == "" {
		return nil, errSecretRequired
	}

	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	api := stripe.NewClient(apiKey)
	stripe.Key = apiKey

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	}

	return &Client{
		api:            api,
		environment:    env,
		currency:       cfg.CurrencyCode(),
		country:        strings.ToUpper(strings.TrimSpace(cfg.Country)),
		paymentsSecret: paymentsSecret,
		connectSecret:  connectSecret,
		returnURL:      cfg.ConnectReturnURL,
		refreshURL:     cfg.ConnectRefreshURL,
	}, nil
}

// API returns the underlying Stripe API client.
func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// Currency is the lowercase ISO code used on every intent and transfer.
func (c *Client) Currency() string {
	if c == nil || c.currency == "" {
		return "gbp"
	}
	return c.currency
}

// PaymentsSigningSecret verifies payment_intent/charge webhooks.
func (c *Client) PaymentsSigningSecret() string {
	if c == nil {
		return ""
	}
	return c.paymentsSecret
}

// ConnectSigningSecret verifies account/transfer webhooks.
func (c *Client) ConnectSigningSecret() string {
	if c == nil {
		return ""
	}
	return c.connectSecret
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
