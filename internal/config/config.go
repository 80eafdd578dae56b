package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

const (
	EmailProviderSMTP     = "smtp"
	EmailProviderPostmark = "postmark"

	maxBackoffBase         = 10
	maxBackoffCapSeconds   = 24 * 60 * 60
	maxBreakerResetSeconds = 24 * 60 * 60
	maxTTLSeconds          = 30 * 24 * 60 * 60
)

type Config struct {
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	DatabaseDSN string `env:"DATABASE_DSN"`

	Exchange             string `env:"EXCHANGE,default=notifications.direct"`
	EmailQueue           string `env:"EMAIL_QUEUE,default=email.queue"`
	PushQueue            string `env:"PUSH_QUEUE,default=push.queue"`
	DeadLetterRoutingKey string `env:"DEAD_LETTER_ROUTING_KEY,default=failed"`
	DeadLetterQueue      string `env:"DEAD_LETTER_QUEUE,default=failed.queue"`
	PrefetchCount        int    `env:"PREFETCH_COUNT,default=10"`
	MaxRetries           int    `env:"MAX_RETRIES,default=5"`

	BreakerFailMax             int `env:"BREAKER_FAIL_MAX,default=5"`
	BreakerResetTimeoutSeconds int `env:"BREAKER_RESET_TIMEOUT_SECONDS,default=30"`
	BackoffBase                int `env:"BACKOFF_BASE,default=2"`
	BackoffCapSeconds          int `env:"BACKOFF_CAP_SECONDS,default=60"`
	StatusTTLSeconds           int `env:"STATUS_TTL_SECONDS,default=86400"`
	IdempotencyTTLSeconds      int `env:"IDEMPOTENCY_TTL_SECONDS,default=3600"`

	EmailProvider        string `env:"EMAIL_PROVIDER,default=smtp"`
	SMTPHost             string `env:"SMTP_HOST"`
	SMTPPort             int    `env:"SMTP_PORT,default=587"`
	SMTPUser             string `env:"SMTP_USER"`
	SMTPPass             string `env:"SMTP_PASS"`
	SenderEmail          string `env:"SENDER_EMAIL"`
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	PushAPIURL           string `env:"PUSH_API_URL,default=https://fcm.googleapis.com/fcm/send"`
	PushServerKey        string `env:"PUSH_SERVER_KEY"`

	RateLimitPerSec int    `env:"RATE_LIMIT_PER_SEC,default=0"`
	APIPort         int    `env:"API_PORT,default=8080"`
	WorkerPort      int    `env:"WORKER_PORT,default=8081"`
	LogLevel        string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
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

// Validate checks the settings shared by the API and the worker.
func (c *Config) Validate() error {
	if c.PrefetchCount < 1 {
		return fmt.Errorf("PREFETCH_COUNT must be >= 1")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must be >= 0")
	}
	if c.RateLimitPerSec < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_SEC must be >= 0")
	}
	if c.BreakerFailMax < 1 {
		return fmt.Errorf("BREAKER_FAIL_MAX must be >= 1")
	}
	if c.BreakerResetTimeoutSeconds < 1 || c.BreakerResetTimeoutSeconds > maxBreakerResetSeconds {
		return fmt.Errorf("BREAKER_RESET_TIMEOUT_SECONDS must be between 1 and %d", maxBreakerResetSeconds)
	}
	if c.BackoffBase < 1 || c.BackoffBase > maxBackoffBase {
		return fmt.Errorf("BACKOFF_BASE must be between 1 and %d", maxBackoffBase)
	}
	if c.BackoffCapSeconds < 1 || c.BackoffCapSeconds > maxBackoffCapSeconds {
		return fmt.Errorf("BACKOFF_CAP_SECONDS must be between 1 and %d", maxBackoffCapSeconds)
	}
	if c.StatusTTLSeconds < 1 || c.StatusTTLSeconds > maxTTLSeconds {
		return fmt.Errorf("STATUS_TTL_SECONDS must be between 1 and %d", maxTTLSeconds)
	}
	if c.IdempotencyTTLSeconds < 1 || c.IdempotencyTTLSeconds > maxTTLSeconds {
		return fmt.Errorf("IDEMPOTENCY_TTL_SECONDS must be between 1 and %d", maxTTLSeconds)
	}

	return nil
}

// ValidateChannels checks the delivery channel settings. Only the worker
// talks to the channels, so the API never calls it.
func (c *Config) ValidateChannels() error {
	c.EmailProvider = strings.ToLower(strings.TrimSpace(c.EmailProvider))

	if strings.TrimSpace(c.SenderEmail) == "" {
		return fmt.Errorf("SENDER_EMAIL is required")
	}
	if strings.TrimSpace(c.PushServerKey) == "" {
		return fmt.Errorf("PUSH_SERVER_KEY is required")
	}

	switch c.EmailProvider {
	case EmailProviderSMTP:
		if strings.TrimSpace(c.SMTPHost) == "" {
			return fmt.Errorf("SMTP_HOST is required when EMAIL_PROVIDER=smtp")
		}
		if c.SMTPPort < 1 || c.SMTPPort > 65535 {
			return fmt.Errorf("SMTP_PORT must be between 1 and 65535")
		}
	case EmailProviderPostmark:
		if c.PostmarkServerToken == "" || c.PostmarkAccountToken == "" {
			return fmt.Errorf("POSTMARK_SERVER_TOKEN and POSTMARK_ACCOUNT_TOKEN are required when EMAIL_PROVIDER=postmark")
		}
	default:
		return fmt.Errorf("unsupported EMAIL_PROVIDER %q", c.EmailProvider)
	}

	return nil
}

func (c *Config) BreakerResetTimeout() time.Duration {
	return time.Duration(c.BreakerResetTimeoutSeconds) * time.Second
}

func (c *Config) BackoffCap() time.Duration {
	return time.Duration(c.BackoffCapSeconds) * time.Second
}

func (c *Config) StatusTTL() time.Duration {
	return time.Duration(c.StatusTTLSeconds) * time.Second
}

func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLSeconds) * time.Second
}
