package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"github.com/kursadbilgin/survey-engine/internal/domain"
	"github.com/kursadbilgin/survey-engine/internal/provider"
	"github.com/kursadbilgin/survey-engine/internal/ratelimit"
)

const (
	DatabaseDriverPostgres = "postgres"
	DatabaseDriverSQLite   = "sqlite"
)

type Config struct {
	DatabaseDriver string `env:"DATABASE_DRIVER,default=sqlite"`
	DatabaseDSN    string `env:"DATABASE_DSN,required=true"`
	RedisURL       string `env:"REDIS_URL"`
	LogLevel       string `env:"LOG_LEVEL,default=info"`

	DeliveryMechanism string `env:"DELIVERY_MECHANISM,default=mock"`
	TemplateName      string `env:"TEMPLATE_NAME,default=invitation-1"`
	TemplateDir       string `env:"TEMPLATE_DIR,default=templates"`
	DeliveryTitle     string `env:"DELIVERY_TITLE,default=Survey invitation"`

	MinDeliveriesPerDay   int `env:"MIN_DELIVERIES_PER_DAY,default=144"`
	MaxDeliveriesPerDay   int `env:"MAX_DELIVERIES_PER_DAY,default=2880"`
	WarmupDurationMinutes int `env:"WARMUP_DURATION_MINUTES,default=60"`

	SurveyLinkStudent      string `env:"SURVEY_LINK_STUDENT"`
	SurveyLinkTeacher      string `env:"SURVEY_LINK_TEACHER"`
	SurveyLinkFamilyMember string `env:"SURVEY_LINK_FAMILY_MEMBER"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT,default=587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`

	WebhookURL string `env:"WEBHOOK_URL"`

	StatusAddr          string `env:"STATUS_ADDR"`
	AllowedEmailDomains string `env:"ALLOWED_EMAIL_DOMAINS"`
	RunLockTTLSeconds   int    `env:"RUN_LOCK_TTL_SECONDS,default=300"`
}

// Load reads the given dotenv files, when they exist, and then the process
// environment. Variables already set in the environment win over the files.
func Load(envFiles ...string) (*Config, error) {
	for _, file := range envFiles {
		if strings.TrimSpace(file) == "" {
			continue
		}
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", file, err)
		}
	}

	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case DatabaseDriverPostgres, DatabaseDriverSQLite:
	default:
		return fmt.Errorf("%w: unsupported database driver %q", domain.ErrValidation, c.DatabaseDriver)
	}

	if err := c.Throttle().Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	mechanism, err := c.Mechanism()
	if err != nil {
		return err
	}

	switch mechanism {
	case domain.MechanismEmail:
		if err := c.Email().Validate(); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
	case domain.MechanismWebhook:
		if strings.TrimSpace(c.WebhookURL) == "" {
			return fmt.Errorf("%w: WEBHOOK_URL is required for the webhook mechanism", domain.ErrValidation)
		}
	}

	if c.RunLockTTLSeconds <= 0 {
		return fmt.Errorf("%w: RUN_LOCK_TTL_SECONDS must be positive", domain.ErrValidation)
	}

	return nil
}

func (c *Config) Mechanism() (domain.Mechanism, error) {
	return domain.ParseMechanismFromString(c.DeliveryMechanism)
}

func (c *Config) Throttle() ratelimit.ThrottleConfig {
	return ratelimit.ThrottleConfig{
		MinDeliveriesPerDay:   c.MinDeliveriesPerDay,
		MaxDeliveriesPerDay:   c.MaxDeliveriesPerDay,
		WarmupDurationMinutes: c.WarmupDurationMinutes,
	}
}

func (c *Config) Email() provider.EmailConfig {
	return provider.EmailConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUser,
		Password: c.SMTPPassword,
		From:     c.SMTPFrom,
	}
}

func (c *Config) SurveyLinks() map[domain.RecipientKind]string {
	return map[domain.RecipientKind]string{
		domain.RecipientKindStudent:      c.SurveyLinkStudent,
		domain.RecipientKindTeacher:      c.SurveyLinkTeacher,
		domain.RecipientKindFamilyMember: c.SurveyLinkFamilyMember,
	}
}

// EmailDomains returns the lowercased allow-list, or nil when every domain is
// accepted.
func (c *Config) EmailDomains() []string {
	var domains []string
	for _, part := range strings.Split(c.AllowedEmailDomains, ",") {
		if trimmed := strings.ToLower(strings.TrimSpace(part)); trimmed != "" {
			domains = append(domains, trimmed)
		}
	}
	return domains
}

func (c *Config) RunLockTTL() time.Duration {
	return time.Duration(c.RunLockTTLSeconds) * time.Second
}
