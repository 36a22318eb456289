package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Square       SquareConfig
	Fulfillment  FulfillmentConfig
	Cron         CronConfig
	Retry        RetryConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SHOPCORE_APP_ENV" required:"true"`
	Port         string `envconfig:"SHOPCORE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SHOPCORE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHOPCORE_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"SHOPCORE_LOG_FORMAT" default:"json"`
	// CORSOrigins is a comma separated allow list; empty means same-origin only outside dev.
	CORSOrigins []string `envconfig:"SHOPCORE_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"SHOPCORE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SHOPCORE_DB_DSN"`
	Driver string `envconfig:"SHOPCORE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SHOPCORE_DB_HOST"`
	LegacyPort     int    `envconfig:"SHOPCORE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SHOPCORE_DB_USER"`
	LegacyPassword string `envconfig:"SHOPCORE_DB_PASSWORD"`
	LegacyName     string `envconfig:"SHOPCORE_DB_NAME"`
	LegacySSLMode  string `envconfig:"SHOPCORE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHOPCORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHOPCORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHOPCORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHOPCORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"SHOPCORE_DB_SLOW_QUERY" default:"200ms"`
}

// IsSQLite reports whether the sqlite dialector should be used.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"SHOPCORE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SHOPCORE_REDIS_ADDR"`
	Password     string        `envconfig:"SHOPCORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHOPCORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHOPCORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHOPCORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHOPCORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHOPCORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHOPCORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string        `envconfig:"SHOPCORE_JWT_SECRET" required:"true"`
	Issuer            string        `envconfig:"SHOPCORE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int           `envconfig:"SHOPCORE_JWT_EXPIRATION_MINUTES" default:"60"`
	Audience          string        `envconfig:"SHOPCORE_JWT_AUDIENCE"`
	Leeway            time.Duration `envconfig:"SHOPCORE_JWT_LEEWAY" default:"30s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SHOPCORE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SHOPCORE_AUTO_MIGRATE" default:"false"`
	// StaffNotifications toggles the pubsub staff channel; when off, notifications are only logged.
	StaffNotifications bool `envconfig:"SHOPCORE_FEATURE_STAFF_NOTIFICATIONS" default:"true"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL  time.Duration `envconfig:"SHOPCORE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookIdempotencyTTL time.Duration `envconfig:"SHOPCORE_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SHOPCORE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SHOPCORE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SHOPCORE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic              string `envconfig:"SHOPCORE_PUBSUB_DOMAIN_TOPIC" default:"shopcore-domain-events"`
	DomainSubscription       string `envconfig:"SHOPCORE_PUBSUB_DOMAIN_SUBSCRIPTION"`
	NotificationTopic        string `envconfig:"SHOPCORE_PUBSUB_NOTIFICATION_TOPIC" default:"shopcore-staff-notifications"`
	NotificationSubscription string `envconfig:"SHOPCORE_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
	AnalyticsSubscription    string `envconfig:"SHOPCORE_PUBSUB_ANALYTICS_SUBSCRIPTION"`
	MaxOutstandingMessages   int    `envconfig:"SHOPCORE_PUBSUB_MAX_OUTSTANDING" default:"100"`
}

// BigQueryConfig points the sales analytics sink at a dataset. An empty
// dataset disables the sink.
type BigQueryConfig struct {
	Dataset          string `envconfig:"SHOPCORE_BIGQUERY_DATASET"`
	SalesEventsTable string `envconfig:"SHOPCORE_BIGQUERY_SALES_EVENTS_TABLE" default:"sales_events"`
}

func (b BigQueryConfig) Enabled() bool {
	return strings.TrimSpace(b.Dataset) != ""
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"SHOPCORE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"SHOPCORE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"SHOPCORE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"SHOPCORE_OUTBOX_RETENTION" default:"720h"`
}

type SquareConfig struct {
	Env             string `envconfig:"SHOPCORE_SQUARE_ENV" default:"sandbox"`
	AccessToken     string `envconfig:"SHOPCORE_SQUARE_ACCESS_TOKEN"`
	WebhookSecret   string `envconfig:"SHOPCORE_SQUARE_WEBHOOK_SECRET"`
	LocationID      string `envconfig:"SHOPCORE_SQUARE_LOCATION_ID"`
	Currency        string `envconfig:"SHOPCORE_SQUARE_CURRENCY" default:"INR"`
	NotificationURL string `envconfig:"SHOPCORE_SQUARE_NOTIFICATION_URL"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// Enabled reports whether gateway credentials are configured.
func (s SquareConfig) Enabled() bool {
	return strings.TrimSpace(s.AccessToken) != "" && strings.TrimSpace(s.WebhookSecret) != ""
}

type FulfillmentConfig struct {
	ReturnWindowDays      int           `envconfig:"SHOPCORE_RETURN_WINDOW_DAYS" default:"10"`
	DefaultDeliveryDays   int           `envconfig:"SHOPCORE_DEFAULT_DELIVERY_DAYS" default:"5"`
	DelayExtensionDays    int           `envconfig:"SHOPCORE_DELAY_EXTENSION_DAYS" default:"3"`
	CODMaxCents           int64         `envconfig:"SHOPCORE_COD_MAX_CENTS" default:"300000"`
	ShippingCents         int64         `envconfig:"SHOPCORE_SHIPPING_CENTS" default:"0"`
	PendingOrderTTL       time.Duration `envconfig:"SHOPCORE_PENDING_ORDER_TTL" default:"30m"`
	PaymentRetryWindow    time.Duration `envconfig:"SHOPCORE_PAYMENT_RETRY_WINDOW" default:"168h"`
	ApprovalNotifyTimeout time.Duration `envconfig:"SHOPCORE_APPROVAL_NOTIFY_TIMEOUT" default:"5s"`
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"SHOPCORE_CRON_INTERVAL" default:"5m"`
	LockKey    string        `envconfig:"SHOPCORE_CRON_LOCK_KEY" default:"shopcore:cron:lock"`
	LockTTL    time.Duration `envconfig:"SHOPCORE_CRON_LOCK_TTL" default:"10m"`
	JobTimeout time.Duration `envconfig:"SHOPCORE_CRON_JOB_TIMEOUT" default:"2m"`
}

type RetryConfig struct {
	MaxAttempts int           `envconfig:"SHOPCORE_TX_RETRY_MAX_ATTEMPTS" default:"3"`
	BaseDelay   time.Duration `envconfig:"SHOPCORE_TX_RETRY_BASE_DELAY" default:"50ms"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite && strings.TrimSpace(db.Driver) != DriverSQLite {
		db.Driver = DriverSQLite
	}
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = defaultSQLiteDSN
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

type RateLimitConfig struct {
	Enabled bool          `envconfig:"SHOPCORE_RATE_LIMIT_ENABLED" default:"true"`
	Limit   int64         `envconfig:"SHOPCORE_RATE_LIMIT_REQUESTS" default:"120"`
	Window  time.Duration `envconfig:"SHOPCORE_RATE_LIMIT_WINDOW" default:"1m"`
}
