package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values come from env (or an env-file loaded by main).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Webhook WebhookConfig
	Email   EmailConfig
	Admin   AdminConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is optional. An empty Host disables the send guard.
type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type WebhookConfig struct {
	SharedSecret string

	// AllowUnsigned admits webhooks when SharedSecret is empty.
	// Ignored in production.
	AllowUnsigned bool

	// CorrelationWindow bounds how far back caller-number correlation looks.
	CorrelationWindow time.Duration
}

const (
	EmailTransportSMTP = "smtp"
	EmailTransportSES  = "ses"
)

type EmailConfig struct {
	Transport string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPUseTLS   bool

	AWSRegion    string
	AWSAccessKey string
	AWSSecretKey string

	FromAddress string
	StubMode    bool

	SendTimeout   time.Duration
	DedupeWindow  time.Duration
	MaxConcurrent int
}

// AdminConfig seeds the first superuser when the users table is empty.
type AdminConfig struct {
	Username string
	Password string
}

func Load() (Config, error) {
	c := Config{}
	env := &envParser{}

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port = env.intOr("APP_PORT", 8000)

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port = env.intOr("DB_PORT", 5432)
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port = env.intOr("REDIS_PORT", 6379)

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Webhook.SharedSecret = strings.TrimSpace(os.Getenv("WEBHOOK_SHARED_SECRET"))
	c.Webhook.AllowUnsigned = mustBool("WEBHOOK_ALLOW_UNSIGNED")
	c.Webhook.CorrelationWindow = mustDuration("CORRELATION_WINDOW")

	c.Email.Transport = strings.ToLower(strings.TrimSpace(os.Getenv("EMAIL_TRANSPORT")))
	c.Email.SMTPHost = strings.TrimSpace(os.Getenv("SMTP_HOST"))
	c.Email.SMTPPort = env.intOr("SMTP_PORT", 587)
	c.Email.SMTPUsername = strings.TrimSpace(os.Getenv("SMTP_USERNAME"))
	c.Email.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	c.Email.SMTPUseTLS = boolOr("SMTP_USE_TLS", true)
	c.Email.AWSRegion = strings.TrimSpace(os.Getenv("AWS_REGION"))
	c.Email.AWSAccessKey = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	c.Email.AWSSecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	c.Email.FromAddress = strings.TrimSpace(os.Getenv("EMAIL_FROM_ADDRESS"))
	c.Email.StubMode = mustBool("EMAIL_STUB_MODE")
	c.Email.SendTimeout = mustDuration("EMAIL_SEND_TIMEOUT")
	c.Email.DedupeWindow = mustDuration("EMAIL_DEDUPE_WINDOW")
	c.Email.MaxConcurrent = env.intOr("EMAIL_MAX_CONCURRENT", 0)

	c.Admin.Username = strings.TrimSpace(os.Getenv("ADMIN_USERNAME"))
	c.Admin.Password = os.Getenv("ADMIN_PASSWORD")

	if err := joinErrors(env.errs); err != nil {
		return Config{}, err
	}
	// Validate fills defaults, so it must run on the addressable value.
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.IsProduction() && c.Webhook.SharedSecret == "" {
		errs = append(errs, errors.New("WEBHOOK_SHARED_SECRET is required in production"))
	}
	if c.Webhook.CorrelationWindow <= 0 {
		c.Webhook.CorrelationWindow = 30 * time.Minute
	}

	if c.Email.Transport == "" {
		c.Email.Transport = EmailTransportSMTP
	}
	switch c.Email.Transport {
	case EmailTransportSMTP:
		if c.Email.SMTPHost == "" {
			c.Email.SMTPHost = "smtp.smtp2go.com"
		}
		if c.Email.SMTPPort <= 0 || c.Email.SMTPPort > 65535 {
			errs = append(errs, fmt.Errorf("SMTP_PORT must be a valid port, got %d", c.Email.SMTPPort))
		}
	case EmailTransportSES:
		if c.Email.AWSRegion == "" {
			errs = append(errs, errors.New("AWS_REGION is required for the ses transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("EMAIL_TRANSPORT must be one of smtp, ses, got %q", c.Email.Transport))
	}
	if c.Email.FromAddress == "" {
		c.Email.FromAddress = "utilitybilling@braselton.net"
	}
	if c.Email.SendTimeout <= 0 {
		c.Email.SendTimeout = 15 * time.Second
	}
	if c.Email.DedupeWindow <= 0 {
		c.Email.DedupeWindow = 10 * time.Minute
	}
	if c.Email.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("EMAIL_MAX_CONCURRENT must be >= 0, got %d", c.Email.MaxConcurrent))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

// WebhookAllowsUnsigned reports whether webhooks without a configured secret are accepted.
func (c Config) WebhookAllowsUnsigned() bool {
	return c.Webhook.SharedSecret == "" && c.Webhook.AllowUnsigned && !c.IsProduction()
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// envParser collects integer parse errors so Load can report all of them at once.
type envParser struct {
	errs []error
}

func (p *envParser) intOr(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return 0
	}
	return n
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func mustBool(key string) bool {
	return boolOr(key, false)
}

func boolOr(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
