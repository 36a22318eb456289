package config

const EnvPrefix = "SHOPCORE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLiteDSN = "file:shopcore.db?cache=shared&_foreign_keys=on"
)

const (
	EnvAppEnv = "SHOPCORE_APP_ENV"
	EnvPort   = "SHOPCORE_APP_PORT"

	EnvDBDSN  = "SHOPCORE_DB_DSN"
	EnvDBHost = "SHOPCORE_DB_HOST"
	EnvDBUser = "SHOPCORE_DB_USER"
	EnvDBName = "SHOPCORE_DB_NAME"

	EnvRedisURL  = "SHOPCORE_REDIS_URL"
	EnvJWTSecret = "SHOPCORE_JWT_SECRET"
	EnvJWTIssuer = "SHOPCORE_JWT_ISSUER"

	EnvUseSQLite        = "SHOPCORE_USE_SQLITE"
	EnvReturnWindowDays = "SHOPCORE_RETURN_WINDOW_DAYS"
	EnvCODMaxCents      = "SHOPCORE_COD_MAX_CENTS"
	EnvSquareAccess     = "SHOPCORE_SQUARE_ACCESS_TOKEN"
	EnvSquareSecret     = "SHOPCORE_SQUARE_WEBHOOK_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
