package config

const (
	EnvPrefix = "MARKETCART"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	EnvAppEnv                = "MARKETCART_APP_ENV"
	EnvPort                  = "MARKETCART_APP_PORT"
	EnvDBDSN                 = "MARKETCART_DB_DSN"
	EnvDBDriver              = "MARKETCART_DB_DRIVER"
	EnvDBHost                = "MARKETCART_DB_HOST"
	EnvDBUser                = "MARKETCART_DB_USER"
	EnvDBName                = "MARKETCART_DB_NAME"
	EnvRedisURL              = "MARKETCART_REDIS_URL"
	EnvJWTSecret             = "MARKETCART_JWT_SECRET"
	EnvJWTIssuer             = "MARKETCART_JWT_ISSUER"
	EnvJWTExpMins            = "MARKETCART_JWT_EXPIRATION_MINUTES"
	EnvPickupQRSecret        = "MARKETCART_PICKUP_QR_SECRET"
	EnvSlotLockTTL           = "MARKETCART_SLOT_LOCK_TTL"
	EnvOrderAbandonAfter     = "MARKETCART_ORDER_ABANDON_AFTER"
	EnvDefaultCommissionRate = "MARKETCART_DEFAULT_COMMISSION_RATE"
	EnvPayoutFXRates         = "MARKETCART_PAYOUT_FX_RATES"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
