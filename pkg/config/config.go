package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Stripe       StripeConfig
	Fees         FeesConfig
	Payouts      PayoutsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var err error
	if c.Fees.PlatformFeePercent < 0 || c.Fees.PlatformFeePercent > 100 {
		err = multierr.Append(err, fmt.Errorf("%s must be within [0,100], got %d", EnvPlatformFeePercent, c.Fees.PlatformFeePercent))
	}
	if strings.TrimSpace(c.Payouts.Schedule) == "" {
		err = multierr.Append(err, fmt.Errorf("%s is required", EnvPayoutSchedule))
	}
	if _, locErr := c.Payouts.Location(); locErr != nil {
		err = multierr.Append(err, fmt.Errorf("%s: %w", EnvPayoutTimezone, locErr))
	}
	if c.Payouts.TransferMaxRetries < 0 {
		err = multierr.Append(err, fmt.Errorf("payout transfer retries cannot be negative"))
	}
	return err
}

type AppConfig struct {
	Env          string `envconfig:"LPLATE_APP_ENV" required:"true"`
	Port         string `envconfig:"LPLATE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LPLATE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LPLATE_LOG_WARN_STACK" default:"false"`

	AllowedOrigins []string `envconfig:"LPLATE_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LPLATE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LPLATE_DB_DSN"`
	Driver string `envconfig:"LPLATE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LPLATE_DB_HOST"`
	LegacyPort     int    `envconfig:"LPLATE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LPLATE_DB_USER"`
	LegacyPassword string `envconfig:"LPLATE_DB_PASSWORD"`
	LegacyName     string `envconfig:"LPLATE_DB_NAME"`
	LegacySSLMode  string `envconfig:"LPLATE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LPLATE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LPLATE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LPLATE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LPLATE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LPLATE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LPLATE_REDIS_ADDR"`
	Password     string        `envconfig:"LPLATE_REDIS_PASSWORD"`
	DB           int           `envconfig:"LPLATE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LPLATE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LPLATE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LPLATE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LPLATE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LPLATE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies access tokens minted by the hosted auth provider.
type JWTConfig struct {
	Secret string `envconfig:"LPLATE_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"LPLATE_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LPLATE_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"LPLATE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	HTTPIdempotencyTTL    time.Duration `envconfig:"LPLATE_HTTP_IDEMPOTENCY_TTL" default:"24h"`
}

type StripeConfig struct {
	APIKey                string `envconfig:"LPLATE_STRIPE_API_KEY"`
	Env                   string `envconfig:"LPLATE_STRIPE_ENV" default:"test"`
	PaymentsWebhookSecret string `envconfig:"LPLATE_STRIPE_PAYMENTS_WEBHOOK_SECRET"`
	ConnectWebhookSecret  string `envconfig:"LPLATE_STRIPE_CONNECT_WEBHOOK_SECRET"`
	Currency              string `envconfig:"LPLATE_STRIPE_CURRENCY" default:"gbp"`
	Country               string `envconfig:"LPLATE_STRIPE_CONNECT_COUNTRY" default:"GB"`
	ConnectReturnURL      string `envconfig:"LPLATE_STRIPE_CONNECT_RETURN_URL" default:"http://localhost:3000/instructor/payouts?onboarded=1"`
	ConnectRefreshURL     string `envconfig:"LPLATE_STRIPE_CONNECT_REFRESH_URL" default:"http://localhost:3000/instructor/payouts?refresh=1"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// CurrencyCode returns the lowercase ISO currency used for every charge and transfer.
func (s StripeConfig) CurrencyCode() string {
	cur := strings.TrimSpace(strings.ToLower(s.Currency))
	if cur == "" {
		return "gbp"
	}
	return cur
}

type FeesConfig struct {
	PlatformFeePercent int `envconfig:"LPLATE_PLATFORM_FEE_PERCENT" default:"18"`
}

type PayoutsConfig struct {
	Schedule           string        `envconfig:"LPLATE_PAYOUT_SCHEDULE" default:"0 6 * * 5"`
	RetrySchedule      string        `envconfig:"LPLATE_PAYOUT_RETRY_SCHEDULE" default:"30 */4 * * *"`
	Timezone           string        `envconfig:"LPLATE_PAYOUT_TIMEZONE" default:"Europe/London"`
	TransferMaxRetries int           `envconfig:"LPLATE_PAYOUT_TRANSFER_MAX_RETRIES" default:"3"`
	TransferBackoff    time.Duration `envconfig:"LPLATE_PAYOUT_TRANSFER_BACKOFF" default:"500ms"`
	LockTTL            time.Duration `envconfig:"LPLATE_PAYOUT_LOCK_TTL" default:"15m"`
	HistoryLimit       int           `envconfig:"LPLATE_PAYOUT_HISTORY_LIMIT" default:"10"`
	MaxAttempts        int           `envconfig:"LPLATE_PAYOUT_MAX_ATTEMPTS" default:"5"`
}

// Location resolves the timezone payout dates are evaluated in.
func (p PayoutsConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(p.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
