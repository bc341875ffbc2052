//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimal = `
database:
  url: postgres://u:p@localhost/db
redis:
  url: localhost:6379
auth:
  jwt_secret: ${TEST_JWT_SECRET}
payment:
  irembopay:
    base_url: https://api.sandbox.irembopay.com
    secret_key: sk_test
`

func TestParse(t *testing.T) {
	t.Run("should apply defaults and expand env", func(t *testing.T) {
		t.Setenv("TEST_JWT_SECRET", "s3cret")
		cfg, err := Parse([]byte(minimal))
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if cfg.Auth.JWTSecret != "s3cret" {
			t.Errorf("expected jwt secret from env, got %q", cfg.Auth.JWTSecret)
		}
		if cfg.Payment.InvoiceExpiry != 30*time.Minute {
			t.Errorf("expected 30m invoice expiry, got %s", cfg.Payment.InvoiceExpiry)
		}
		if cfg.Payment.Timeout != 10*time.Second {
			t.Errorf("expected 10s gateway timeout, got %s", cfg.Payment.Timeout)
		}
		if cfg.Server.Port != 3000 {
			t.Errorf("expected default port 3000, got %d", cfg.Server.Port)
		}
	})

	t.Run("should require jwt secret", func(t *testing.T) {
		t.Setenv("TEST_JWT_SECRET", "")
		_, err := Parse([]byte(minimal))
		if err == nil || !strings.Contains(err.Error(), "jwt_secret") {
			t.Fatalf("expected jwt_secret error, got %v", err)
		}
	})
}

func TestCheckRuntime(t *testing.T) {
	t.Setenv("TEST_JWT_SECRET", "s3cret")
	cfg, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	t.Run("should require a webhook secret in production", func(t *testing.T) {
		cfg.Runtime.Dev = false
		if err := checkRuntime(cfg); err == nil || !strings.Contains(err.Error(), "webhook_secret") {
			t.Fatalf("expected webhook_secret error, got %v", err)
		}
	})

	t.Run("should allow a missing webhook secret in dev mode", func(t *testing.T) {
		cfg.Runtime.Dev = true
		if err := checkRuntime(cfg); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("should pass with a webhook secret", func(t *testing.T) {
		cfg.Runtime.Dev = false
		cfg.Payment.IremboPay.WebhookSecret = "whsec"
		if err := checkRuntime(cfg); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("TEST_JWT_SECRET", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(minimal), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfig(path, false); err == nil {
		t.Error("expected production load without webhook secret to fail")
	}
	cfg, err := LoadConfig(path, true)
	if err != nil {
		t.Fatalf("expected dev load to succeed, got %v", err)
	}
	if !cfg.Runtime.Dev {
		t.Error("expected dev flag to be recorded")
	}
}
