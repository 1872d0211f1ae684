package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lplate/lplate-backend/api/controllers"
	bookingcontrollers "github.com/lplate/lplate-backend/api/controllers/bookings"
	connectcontrollers "github.com/lplate/lplate-backend/api/controllers/connect"
	creditcontrollers "github.com/lplate/lplate-backend/api/controllers/credits"
	paymentcontrollers "github.com/lplate/lplate-backend/api/controllers/payments"
	payoutcontrollers "github.com/lplate/lplate-backend/api/controllers/payouts"
	webhookcontrollers "github.com/lplate/lplate-backend/api/controllers/webhooks"
	"github.com/lplate/lplate-backend/api/middleware"
	"github.com/lplate/lplate-backend/internal/bookings"
	"github.com/lplate/lplate-backend/internal/connect"
	"github.com/lplate/lplate-backend/internal/credits"
	"github.com/lplate/lplate-backend/internal/payments"
	"github.com/lplate/lplate-backend/internal/payouts"
	"github.com/lplate/lplate-backend/pkg/config"
	"github.com/lplate/lplate-backend/pkg/enums"
	"github.com/lplate/lplate-backend/pkg/logger"
	"github.com/lplate/lplate-backend/pkg/redis"
)

// Dependencies is everything the HTTP surface is wired to.
type Dependencies struct {
	Config *config.Config
	Logger *logger.Logger

	DB    controllers.Pinger
	Redis controllers.Pinger

	Idempotency redis.IdempotencyStore
	Gatherer    prometheus.Gatherer

	Payments payments.Service
	Credits  credits.Service
	Payouts  payouts.Service
	Connect  connect.Service
	Bookings bookings.Service

	PaymentsWebhook webhookcontrollers.StripeEndpoint
	ConnectWebhook  webhookcontrollers.StripeEndpoint
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	payoutLoc, err := cfg.Payouts.Location()
	if err != nil {
		payoutLoc = time.UTC
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1/webhooks/stripe", func(r chi.Router) {
		r.Post("/payments", webhookcontrollers.StripeWebhook(deps.PaymentsWebhook, logg))
		r.Post("/connect", webhookcontrollers.StripeWebhook(deps.ConnectWebhook, logg))
	})

	learner := middleware.RequireRole(logg, enums.RoleLearner)
	instructor := middleware.RequireRole(logg, enums.RoleInstructor)
	admin := middleware.RequireRole(logg, enums.RoleAdmin)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Route("/payments", func(r chi.Router) {
			r.With(learner).Post("/", paymentcontrollers.Checkout(deps.Payments, logg))
			r.Post("/quote", paymentcontrollers.Quote(deps.Payments, logg))
			r.Get("/{paymentId}", paymentcontrollers.Get(deps.Payments, logg))
		})

		r.Route("/credits", func(r chi.Router) {
			r.Get("/", creditcontrollers.Balances(deps.Credits, logg))
			r.Get("/ledger", creditcontrollers.Ledger(deps.Credits, logg))
			r.With(learner).Post("/", creditcontrollers.Use(deps.Credits, logg))
			r.With(learner).Put("/", creditcontrollers.Purchase(deps.Payments, logg))
		})

		r.Route("/payouts", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, enums.RoleInstructor, enums.RoleAdmin)).Get("/", payoutcontrollers.History(deps.Payouts, logg))
			r.With(admin).Post("/", payoutcontrollers.Run(deps.Payouts, payoutLoc, logg))
			r.With(admin).Post("/{payoutId}/retry", payoutcontrollers.Retry(deps.Payouts, logg))
		})

		r.Route("/connect/accounts", func(r chi.Router) {
			r.With(instructor).Post("/", connectcontrollers.CreateAccount(deps.Connect, logg))
			r.With(middleware.RequireRole(logg, enums.RoleInstructor, enums.RoleAdmin)).Get("/{instructorId}", connectcontrollers.Status(deps.Connect, logg))
		})

		r.Patch("/bookings/{bookingId}/status", bookingcontrollers.UpdateStatus(deps.Bookings, logg))
	})

	return r
}
