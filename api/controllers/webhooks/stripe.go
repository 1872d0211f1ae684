package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/lplate/lplate-backend/api/responses"
	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
	"github.com/lplate/lplate-backend/pkg/logger"
	"github.com/lplate/lplate-backend/pkg/metrics"
)

const maxPayloadBytes = int64(65536)

const (
	EndpointPayments = "payments"
	EndpointConnect  = "connect"
)

type EventHandler interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type eventGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// StripeEndpoint wires one Stripe webhook endpoint. Payments and Connect
// events arrive on separate endpoints with their own signing secrets.
type StripeEndpoint struct {
	Name          string
	SigningSecret string
	Handler       EventHandler
	Guard         eventGuard
	Metrics       *metrics.WebhookMetrics
}

type receivedResponse struct {
	Received bool `json:"received"`
}

// StripeWebhook verifies, deduplicates and dispatches Stripe events.
func StripeWebhook(endpoint StripeEndpoint, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if endpoint.Handler == nil || endpoint.Guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook endpoint unavailable"))
			return
		}
		if endpoint.SigningSecret == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook signing secret not configured"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			endpoint.Metrics.Observe(endpoint.Name, "unknown", "rejected")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEvent(payload, sigHeader, endpoint.SigningSecret)
		if err != nil {
			endpoint.Metrics.Observe(endpoint.Name, "unknown", "rejected")
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature"))
			return
		}

		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"stripe_event_id":   event.ID,
				"stripe_event_type": string(event.Type),
				"webhook_endpoint":  endpoint.Name,
			})
		}

		first, err := endpoint.Guard.Claim(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if !first {
			endpoint.Metrics.Observe(endpoint.Name, string(event.Type), "duplicate")
			responses.WriteJSON(w, http.StatusOK, receivedResponse{Received: true})
			return
		}

		if err := endpoint.Handler.HandleEvent(ctx, &event); err != nil {
			if relErr := endpoint.Guard.Release(ctx, event.ID); relErr != nil && logg != nil {
				logg.Error(ctx, "release stripe event claim", relErr)
			}
			endpoint.Metrics.Observe(endpoint.Name, string(event.Type), "failed")
			responses.WriteError(ctx, logg, w, err)
			return
		}

		endpoint.Metrics.Observe(endpoint.Name, string(event.Type), "handled")
		if logg != nil {
			logg.Info(ctx, "stripe event processed")
		}
		responses.WriteJSON(w, http.StatusOK, receivedResponse{Received: true})
	}
}
