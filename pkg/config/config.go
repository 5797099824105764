package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "production"

	EnvAppEnv          = "STOREFRONT_APP_ENV"
	EnvPort            = "STOREFRONT_APP_PORT"
	EnvDBDSN           = "STOREFRONT_DB_DSN"
	EnvDBHost          = "STOREFRONT_DB_HOST"
	EnvDBUser          = "STOREFRONT_DB_USER"
	EnvDBName          = "STOREFRONT_DB_NAME"
	EnvRedisURL        = "STOREFRONT_REDIS_URL"
	EnvIdentitySecret  = "STOREFRONT_IDENTITY_JWT_SECRET"
	EnvStripeAPIKey    = "STOREFRONT_STRIPE_API_KEY"
	EnvStripeWebhook   = "STOREFRONT_STRIPE_WEBHOOK_SECRET"
	EnvCartSecret      = "STOREFRONT_CART_SECRET"
	EnvEmailTopic      = "STOREFRONT_EMAIL_TOPIC"
	EnvGCPProjectID    = "STOREFRONT_GCP_PROJECT_ID"
	EnvRateLimitLimit  = "STOREFRONT_RATE_LIMIT_MAX_REQUESTS"
	EnvRateLimitWindow = "STOREFRONT_RATE_LIMIT_WINDOW"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Identity     IdentityConfig
	Stripe       StripeConfig
	Cart         CartConfig
	RateLimit    RateLimitConfig
	Email        EmailConfig
	GCP          GCPConfig
	Webhook      WebhookConfig
	Sweeper      SweeperConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	// SiteURL is used to build absolute links in customer emails.
	SiteURL        string   `envconfig:"STOREFRONT_SITE_URL" default:"http://localhost:3000"`
	AllowedOrigins []string `envconfig:"STOREFRONT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"STOREFRONT_DB_DSN"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"require"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"3s"`
}

// IdentityConfig describes how access tokens minted by the identity provider are verified.
type IdentityConfig struct {
	JWTSecret  string `envconfig:"STOREFRONT_IDENTITY_JWT_SECRET" required:"true"`
	Issuer     string `envconfig:"STOREFRONT_IDENTITY_ISSUER"`
	CookieName string `envconfig:"STOREFRONT_IDENTITY_COOKIE" default:"sb-access-token"`
	LoginPath  string `envconfig:"STOREFRONT_IDENTITY_LOGIN_PATH" default:"/auth/login"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"STOREFRONT_STRIPE_API_KEY" required:"true"`
	WebhookSecret string `envconfig:"STOREFRONT_STRIPE_WEBHOOK_SECRET" required:"true"`
	Env           string `envconfig:"STOREFRONT_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type CartConfig struct {
	Secret     string        `envconfig:"STOREFRONT_CART_SECRET" required:"true"`
	CookieName string        `envconfig:"STOREFRONT_CART_COOKIE" default:"sf_cart"`
	TTL        time.Duration `envconfig:"STOREFRONT_CART_TTL" default:"72h"`
}

type RateLimitConfig struct {
	Window         time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_WINDOW" default:"1m"`
	MaxRequests    int           `envconfig:"STOREFRONT_RATE_LIMIT_MAX_REQUESTS" default:"120"`
	BypassPrefixes []string      `envconfig:"STOREFRONT_RATE_LIMIT_BYPASS" default:"/api/v1/webhooks,/health"`
}

type EmailConfig struct {
	FromAddress     string        `envconfig:"STOREFRONT_EMAIL_FROM" default:"orders@localhost"`
	SupportAddress  string        `envconfig:"STOREFRONT_EMAIL_SUPPORT" default:"support@localhost"`
	Topic           string        `envconfig:"STOREFRONT_EMAIL_TOPIC"`
	DispatchTimeout time.Duration `envconfig:"STOREFRONT_EMAIL_DISPATCH_TIMEOUT" default:"10s"`
}

// Enabled reports whether emails are published to Pub/Sub rather than logged.
func (e EmailConfig) Enabled() bool {
	return strings.TrimSpace(e.Topic) != ""
}

type GCPConfig struct {
	ProjectID       string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
	CredentialsFile string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"STOREFRONT_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

// SweeperConfig drives cmd/sweeper. PendingTTL must exceed the payment
// session lifetime (24h at Stripe).
type SweeperConfig struct {
	Interval   time.Duration `envconfig:"STOREFRONT_SWEEPER_INTERVAL" default:"15m"`
	PendingTTL time.Duration `envconfig:"STOREFRONT_SWEEPER_PENDING_TTL" default:"48h"`
	BatchSize  int           `envconfig:"STOREFRONT_SWEEPER_BATCH_SIZE" default:"200"`
	LockTTL    time.Duration `envconfig:"STOREFRONT_SWEEPER_LOCK_TTL" default:"10m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
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
