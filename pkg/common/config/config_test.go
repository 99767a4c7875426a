package config

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

func TestLoadDecodesCredentials(t *testing.T) {
	t.Setenv("LOGIN", base64.StdEncoding.EncodeToString([]byte("backoffice-user")))
	t.Setenv("PASSWORD", base64.StdEncoding.EncodeToString([]byte("s3cret")))

	cfg := Load()
	if cfg.Login != "backoffice-user" {
		t.Fatalf("expected decoded login, got %q", cfg.Login)
	}
	if cfg.Password != "s3cret" {
		t.Fatalf("expected decoded password, got %q", cfg.Password)
	}
}

func TestLoadRejectsUndecodableCredential(t *testing.T) {
	t.Setenv("LOGIN", "%%% not base64 %%%")

	cfg := Load()
	if cfg.Login != "" {
		t.Fatalf("expected undecodable login to be treated as missing, got %q", cfg.Login)
	}
}

func TestValidateReportsAllMissingVars(t *testing.T) {
	cfg := &Config{SinkKind: "postgres"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"BASE_URL", "LOGIN", "PASSWORD"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %s, got %v", want, err)
		}
	}
}

func TestValidateSheetsRequiresSpreadsheet(t *testing.T) {
	cfg := &Config{
		SinkKind: "sheets",
		BaseURL:  "https://backoffice.example.com/#/login",
		Login:    "u",
		Password: "p",
	}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "SHEETS_SPREADSHEET_ID") {
		t.Fatalf("expected sheets validation error, got %v", err)
	}
}

func TestValidateRejectsUnknownSink(t *testing.T) {
	cfg := &Config{
		SinkKind: "dynamo",
		BaseURL:  "https://backoffice.example.com",
		Login:    "u",
		Password: "p",
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown sink kind")
	}
}

func TestDurationAndSliceDefaults(t *testing.T) {
	t.Setenv("SETTLE_DELAY", "2s")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")

	cfg := Load()
	if cfg.SettleDelay != 2*time.Second {
		t.Fatalf("expected 2s settle delay, got %v", cfg.SettleDelay)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "b:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
	if cfg.NavigationTimeout != 60*time.Second {
		t.Fatalf("expected default navigation timeout, got %v", cfg.NavigationTimeout)
	}
}
