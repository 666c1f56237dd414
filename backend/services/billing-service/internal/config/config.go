package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "mvpbackend/backend/libs/config"
)

// Notification drivers.
const (
	NotifyDriverLog  = "log"
	NotifyDriverSMTP = "smtp"
	NotifyDriverAMQP = "amqp"
)

// Config defines billing service configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"BILLING_HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN            string `yaml:"dsn" env:"BILLING_POSTGRES_DSN"`
		MigrateOnStart bool   `yaml:"migrateOnStart" env:"BILLING_MIGRATE_ON_START"`
	} `yaml:"database"`
	Redis struct {
		Addr     string        `yaml:"addr" env:"BILLING_REDIS_ADDR"`
		Password string        `yaml:"password" env:"BILLING_REDIS_PASSWORD"`
		DB       int           `yaml:"db" env:"BILLING_REDIS_DB"`
		TTL      time.Duration `yaml:"ttl" env:"BILLING_REDIS_TTL"`
	} `yaml:"redis"`
	Stripe struct {
		SecretKey        string        `yaml:"secretKey" env:"STRIPE_SECRET_KEY"`
		WebhookSecret    string        `yaml:"webhookSecret" env:"STRIPE_WEBHOOK_SECRET"`
		WebhookTolerance time.Duration `yaml:"webhookTolerance" env:"STRIPE_WEBHOOK_TOLERANCE"`
		SuccessURL       string        `yaml:"successUrl" env:"STRIPE_SUCCESS_URL"`
		CancelURL        string        `yaml:"cancelUrl" env:"STRIPE_CANCEL_URL"`
		Currency         string        `yaml:"currency" env:"STRIPE_CURRENCY"`
	} `yaml:"stripe"`
	Billing struct {
		CreditsPerMinute int64 `yaml:"creditsPerMinute" env:"BILLING_CREDITS_PER_MINUTE"`
	} `yaml:"billing"`
	Internal struct {
		SharedSecret string `yaml:"sharedSecret" env:"INTERNAL_SHARED_SECRET"`
	} `yaml:"internal"`
	JWT struct {
		Secret string `yaml:"secret" env:"JWT_SECRET"`
	} `yaml:"jwt"`
	Notify struct {
		Driver    string        `yaml:"driver" env:"NOTIFY_DRIVER"`
		QueueSize int           `yaml:"queueSize" env:"NOTIFY_QUEUE_SIZE"`
		Timeout   time.Duration `yaml:"timeout" env:"NOTIFY_TIMEOUT"`
	} `yaml:"notify"`
	SMTP struct {
		Host     string `yaml:"host" env:"SMTP_HOST"`
		Port     string `yaml:"port" env:"SMTP_PORT"`
		Username string `yaml:"username" env:"SMTP_USERNAME"`
		Password string `yaml:"password" env:"SMTP_PASSWORD"`
		From     string `yaml:"from" env:"SMTP_FROM"`
	} `yaml:"smtp"`
	AMQP struct {
		URL      string `yaml:"url" env:"AMQP_URL"`
		Exchange string `yaml:"exchange" env:"AMQP_EXCHANGE"`
		Prefix   string `yaml:"prefix" env:"AMQP_ROUTING_PREFIX"`
	} `yaml:"amqp"`
}

func defaults() *Config {
	cfg := &Config{}
	cfg.HTTP.Port = "8083"
	cfg.Redis.TTL = 6 * time.Hour
	cfg.Stripe.Currency = "usd"
	cfg.Stripe.WebhookTolerance = 5 * time.Minute
	cfg.Billing.CreditsPerMinute = 1
	cfg.Notify.Driver = NotifyDriverLog
	cfg.Notify.QueueSize = 256
	cfg.Notify.Timeout = 10 * time.Second
	cfg.SMTP.Port = "587"
	cfg.AMQP.Exchange = "billing.events"
	cfg.AMQP.Prefix = "notifications"
	return cfg
}

// Load configuration from file/env.
func Load() (*Config, error) {
	cfg := defaults()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, errors.New("config: database dsn required"))
	}
	if strings.TrimSpace(c.Stripe.WebhookSecret) == "" {
		errs = append(errs, errors.New("config: stripe webhook secret required"))
	}
	if strings.TrimSpace(c.Internal.SharedSecret) == "" {
		errs = append(errs, errors.New("config: internal shared secret required"))
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		errs = append(errs, errors.New("config: jwt secret required"))
	}
	if c.Billing.CreditsPerMinute <= 0 {
		errs = append(errs, errors.New("config: credits per minute must be positive"))
	}

	switch c.Notify.Driver {
	case NotifyDriverLog:
	case NotifyDriverSMTP:
		if strings.TrimSpace(c.SMTP.Host) == "" || strings.TrimSpace(c.SMTP.From) == "" {
			errs = append(errs, errors.New("config: smtp host and from required"))
		}
	case NotifyDriverAMQP:
		if strings.TrimSpace(c.AMQP.URL) == "" {
			errs = append(errs, errors.New("config: amqp url required"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown notify driver %q", c.Notify.Driver))
	}

	if c.Stripe.SecretKey != "" && (c.Stripe.SuccessURL == "" || c.Stripe.CancelURL == "") {
		errs = append(errs, errors.New("config: stripe success and cancel urls required with a secret key"))
	}
	return errors.Join(errs...)
}

// HTTPAddress returns :port style string.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8083"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}
