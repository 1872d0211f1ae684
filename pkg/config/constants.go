package config

// EnvPrefix is passed to envconfig; every field carries its full variable name.
const EnvPrefix = "LPLATE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "LPLATE_APP_ENV"
	EnvPort     = "LPLATE_APP_PORT"
	EnvLogLevel = "LPLATE_LOG_LEVEL"

	EnvDBDSN  = "LPLATE_DB_DSN"
	EnvDBHost = "LPLATE_DB_HOST"
	EnvDBUser = "LPLATE_DB_USER"
	EnvDBName = "LPLATE_DB_NAME"

	EnvRedisURL = "LPLATE_REDIS_URL"

	EnvJWTSecret = "LPLATE_JWT_SECRET"
	EnvJWTIssuer = "LPLATE_JWT_ISSUER"

	EnvStripeAPIKey         = "LPLATE_STRIPE_API_KEY"
	EnvStripeEnv            = "LPLATE_STRIPE_ENV"
	EnvStripePaymentsSecret = "LPLATE_STRIPE_PAYMENTS_WEBHOOK_SECRET"
	EnvStripeConnectSecret  = "LPLATE_STRIPE_CONNECT_WEBHOOK_SECRET"

	EnvPlatformFeePercent = "LPLATE_PLATFORM_FEE_PERCENT"
	EnvPayoutSchedule     = "LPLATE_PAYOUT_SCHEDULE"
	EnvPayoutTimezone     = "LPLATE_PAYOUT_TIMEZONE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
