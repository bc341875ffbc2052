// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	AllowedOrigin  string        `yaml:"allowed_origin"` // CORS origin of the web frontend
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	JWTSecret    string        `yaml:"jwt_secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
	SecureCookie bool          `yaml:"secure_cookie"`
	ResetCodeTTL time.Duration `yaml:"reset_code_ttl"`
	AdminEmails  []string      `yaml:"admin_emails"` // accounts allowed to manage grants by hand
}

type IremboPayConfig struct {
	BaseURL        string `yaml:"base_url"`
	AuthURL        string `yaml:"auth_url"`
	ClientID       string `yaml:"client_id"`
	SecretKey      string `yaml:"secret_key"`
	PaymentAccount string `yaml:"payment_account"`
	ProductCode    string `yaml:"product_code"`
	WebhookSecret  string `yaml:"webhook_secret"`
}

type PaymentConfig struct {
	IremboPay     IremboPayConfig `yaml:"irembopay"`
	Currency      string          `yaml:"currency"`
	GazettePrice  int64           `yaml:"gazette_price"`
	InvoiceExpiry time.Duration   `yaml:"invoice_expiry"`
	Timeout       time.Duration   `yaml:"timeout"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type SMSConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Sender  string `yaml:"sender"`
}

type NotificationConfig struct {
	SMTP       SMTPConfig    `yaml:"smtp"`
	SMS        SMSConfig     `yaml:"sms"`
	Workers    int           `yaml:"workers"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type SchedulerConfig struct {
	ReconcileCron  string        `yaml:"reconcile_cron"`
	ReconcileAfter time.Duration `yaml:"reconcile_after"`
	ExpiryCron     string        `yaml:"expiry_cron"`
}

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Auth         AuthConfig         `yaml:"auth"`
	Payment      PaymentConfig      `yaml:"payment"`
	Notification NotificationConfig `yaml:"notification"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path. ${VAR} references are expanded
// from the environment before parsing so secrets can stay out of the file.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	if err := checkRuntime(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// checkRuntime holds requirements relaxed in developer mode.
func checkRuntime(cfg *Config) error {
	if cfg.Runtime.Dev {
		return nil
	}
	if cfg.Payment.IremboPay.WebhookSecret == "" {
		return errors.New("payment.irembopay.webhook_secret is required outside -dev mode")
	}
	return nil
}

// Parse decodes, defaults and validates raw YAML.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}
	if cfg.Payment.IremboPay.BaseURL == "" || cfg.Payment.IremboPay.SecretKey == "" {
		return nil, errors.New("payment.irembopay.base_url and secret_key are required")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Auth.TokenTTL <= 0 {
		cfg.Auth.TokenTTL = time.Hour
	}
	if cfg.Auth.ResetCodeTTL <= 0 {
		cfg.Auth.ResetCodeTTL = 10 * time.Minute
	}
	if cfg.Payment.Currency == "" {
		cfg.Payment.Currency = "RWF"
	}
	if cfg.Payment.InvoiceExpiry <= 0 {
		cfg.Payment.InvoiceExpiry = 30 * time.Minute
	}
	if cfg.Payment.Timeout <= 0 {
		cfg.Payment.Timeout = 10 * time.Second
	}
	if cfg.Payment.IremboPay.ProductCode == "" {
		cfg.Payment.IremboPay.ProductCode = "SUBSCRIPTION"
	}
	if cfg.Notification.Workers <= 0 {
		cfg.Notification.Workers = 4
	}
	if cfg.Notification.RetryDelay <= 0 {
		cfg.Notification.RetryDelay = time.Second
	}
	if cfg.Notification.SMTP.Port == 0 {
		cfg.Notification.SMTP.Port = 587
	}
	if cfg.Scheduler.ReconcileCron == "" {
		cfg.Scheduler.ReconcileCron = "@every 5m"
	}
	if cfg.Scheduler.ReconcileAfter <= 0 {
		cfg.Scheduler.ReconcileAfter = 10 * time.Minute
	}
	if cfg.Scheduler.ExpiryCron == "" {
		cfg.Scheduler.ExpiryCron = "@hourly"
	}
}
