package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		App:      AppConfig{Env: "local", Port: 8080},
		DB:       DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "batchcall", SSLMode: "disable"},
		Redis:    RedisConfig{Host: "localhost", Port: 6379},
		Auth:     AuthConfig{JWTSecret: "secret", AccessTokenTTL: 15 * time.Minute, RefreshTokenTTL: 24 * time.Hour},
		Executor: ExecutorConfig{BaseURL: "http://localhost:9000"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_ProductionRequiresSSLModeAndExecutorToken(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	c.DB.SSLMode = ""
	c.Auth.JWTIssuer = "issuer"
	c.Auth.JWTAudience = "aud"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}

	c.DB.SSLMode = "require"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without EXECUTOR_TOKEN")
	}

	c.Executor.Token = "tok"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_ExecutorBaseURLRequired(t *testing.T) {
	c := validConfig()
	c.Executor.BaseURL = ""
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error without executor base url")
	}
}

func TestValidate_TimezoneMustBeIANA(t *testing.T) {
	c := validConfig()
	c.Batch.Timezone = "not/a/zone"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for bad timezone")
	}

	c.Batch.Timezone = "America/New_York"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Location().String() != "America/New_York" {
		t.Fatalf("unexpected location %s", c.Location())
	}
}

func TestLocation_DefaultsToUTC(t *testing.T) {
	if loc := (Config{}).Location(); loc != time.UTC {
		t.Fatalf("expected UTC, got %v", loc)
	}
}
