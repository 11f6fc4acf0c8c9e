package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Checkout     CheckoutConfig
	Pickup       PickupConfig
	Payout       PayoutConfig
	Onboarding   OnboardingConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Checkout.CommissionRate(); err != nil {
		return nil, err
	}
	if _, err := cfg.Payout.Rates(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"MARKETCART_APP_ENV" required:"true"`
	Port         string   `envconfig:"MARKETCART_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"MARKETCART_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"MARKETCART_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"MARKETCART_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"MARKETCART_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MARKETCART_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MARKETCART_DB_DSN"`
	Driver string `envconfig:"MARKETCART_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MARKETCART_DB_HOST"`
	LegacyPort     int    `envconfig:"MARKETCART_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MARKETCART_DB_USER"`
	LegacyPassword string `envconfig:"MARKETCART_DB_PASSWORD"`
	LegacyName     string `envconfig:"MARKETCART_DB_NAME"`
	LegacySSLMode  string `envconfig:"MARKETCART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARKETCART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETCART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETCART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETCART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the sqlite driver was selected (local dev only).
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETCART_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MARKETCART_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETCART_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETCART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETCART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETCART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETCART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETCART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETCART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MARKETCART_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MARKETCART_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MARKETCART_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MARKETCART_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"MARKETCART_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

type CheckoutConfig struct {
	SlotLockTTL           time.Duration `envconfig:"MARKETCART_SLOT_LOCK_TTL" default:"15m"`
	OrderAbandonAfter     time.Duration `envconfig:"MARKETCART_ORDER_ABANDON_AFTER" default:"15m"`
	Currency              string        `envconfig:"MARKETCART_CURRENCY" default:"usd"`
	DefaultCommissionRate string        `envconfig:"MARKETCART_DEFAULT_COMMISSION_RATE" default:"0.10"`
	PointValueCents       int64         `envconfig:"MARKETCART_POINT_VALUE_CENTS" default:"1"`
	PointsPerUnit         int64         `envconfig:"MARKETCART_POINTS_PER_UNIT" default:"1"`
	SuccessURL            string        `envconfig:"MARKETCART_CHECKOUT_SUCCESS_URL" default:"http://localhost:3000/checkout/success"`
	CancelURL             string        `envconfig:"MARKETCART_CHECKOUT_CANCEL_URL" default:"http://localhost:3000/checkout/cancel"`
	// Per-customer cap on slot lock and checkout attempts inside RateWindow. Zero disables it.
	RateLimit  int64         `envconfig:"MARKETCART_CHECKOUT_RATE_LIMIT" default:"30"`
	RateWindow time.Duration `envconfig:"MARKETCART_CHECKOUT_RATE_WINDOW" default:"1m"`
}

// CommissionRate parses the configured platform commission as a fraction in [0,1].
func (c CheckoutConfig) CommissionRate() (decimal.Decimal, error) {
	raw := strings.TrimSpace(c.DefaultCommissionRate)
	if raw == "" {
		return decimal.Zero, nil
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s: %w", EnvDefaultCommissionRate, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%s must be between 0 and 1", EnvDefaultCommissionRate)
	}
	return rate, nil
}

type PickupConfig struct {
	QRSecret string        `envconfig:"MARKETCART_PICKUP_QR_SECRET" required:"true"`
	MaxAge   time.Duration `envconfig:"MARKETCART_PICKUP_QR_MAX_AGE" default:"720h"`
}

type PayoutConfig struct {
	BaseCurrency string `envconfig:"MARKETCART_PAYOUT_BASE_CURRENCY" default:"usd"`
	// FXRates lists "CUR:rate" pairs where rate converts one unit of CUR into the base currency.
	FXRates string `envconfig:"MARKETCART_PAYOUT_FX_RATES"`
}

// Rates parses FXRates into a currency -> base-rate map. The base currency is always 1.
func (p PayoutConfig) Rates() (map[string]decimal.Decimal, error) {
	base := strings.ToLower(strings.TrimSpace(p.BaseCurrency))
	rates := map[string]decimal.Decimal{base: decimal.NewFromInt(1)}
	for _, pair := range strings.Split(p.FXRates, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid fx rate %q (expected CUR:rate)", pair)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid fx rate %q: %w", pair, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("fx rate for %s must be positive", parts[0])
		}
		rates[strings.ToLower(strings.TrimSpace(parts[0]))] = rate
	}
	return rates, nil
}

type OnboardingConfig struct {
	RefreshURL string        `envconfig:"MARKETCART_ONBOARDING_REFRESH_URL" default:"http://localhost:3000/seller/onboarding/refresh"`
	ReturnURL  string        `envconfig:"MARKETCART_ONBOARDING_RETURN_URL" default:"http://localhost:8080/api/v1/seller/onboarding/complete"`
	StateTTL   time.Duration `envconfig:"MARKETCART_ONBOARDING_STATE_TTL" default:"30m"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"MARKETCART_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"MARKETCART_CRON_LOCK_TTL" default:"5m"`
	// ReconcileAfter is how long a referenced order may sit in awaiting_payment before the
	// reconcile job polls the processor for it.
	ReconcileAfter time.Duration `envconfig:"MARKETCART_CRON_RECONCILE_AFTER" default:"5m"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"MARKETCART_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"MARKETCART_PUBSUB_DOMAIN_TOPIC" default:"marketcart-domain-events"`
	DomainSubscription string `envconfig:"MARKETCART_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MARKETCART_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MARKETCART_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MARKETCART_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type StripeConfig struct {
	APIKey string `envconfig:"MARKETCART_STRIPE_API_KEY"`
	Secret string `envconfig:"MARKETCART_STRIPE_SECRET"`
	Env    string `envconfig:"MARKETCART_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
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
