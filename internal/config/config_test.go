package config

import (
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017/testdb")
	t.Setenv("MONGODB_DATABASE", "community_test")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("EMAIL_USER", "notify@example.com")
	t.Setenv("EMAIL_PASS", "app-password")
	t.Setenv("CLIENT_URL", "https://connect.example.org/")
	t.Setenv("PORT", "8080")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.MongoDB.URI == "" || cfg.Redis.Host == "" {
		t.Fatalf("unexpected empty config values: %+v", cfg)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("PORT should override SERVER_PORT, got %q", cfg.Server.Port)
	}
	if !cfg.Mail.Configured() {
		t.Fatalf("mail should be configured when user and password are set")
	}
	if cfg.ClientURL != "https://connect.example.org" {
		t.Fatalf("client url should be trimmed, got %q", cfg.ClientURL)
	}
	if cfg.MongoDB.Timeout != 10*time.Second {
		t.Fatalf("unexpected mongo timeout: %v", cfg.MongoDB.Timeout)
	}
}

func TestMailNotConfiguredWithoutPassword(t *testing.T) {
	m := MailConfig{Host: "smtp.example.org", User: "notify@example.com"}
	if m.Configured() {
		t.Fatalf("mail without password must not be configured")
	}
}
