package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.BookingWindowDays != 7 {
		t.Errorf("BookingWindowDays = %d, want 7", cfg.BookingWindowDays)
	}
	if cfg.CapacityEditWindowDays != 14 {
		t.Errorf("CapacityEditWindowDays = %d, want 14", cfg.CapacityEditWindowDays)
	}
	if cfg.ClinicTimezone != "Asia/Manila" {
		t.Errorf("ClinicTimezone = %q", cfg.ClinicTimezone)
	}
	if cfg.NotifyPollInterval != 5*time.Second {
		t.Errorf("NotifyPollInterval = %s", cfg.NotifyPollInterval)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Errorf("CORSAllowedOrigins = %v, want nil", cfg.CORSAllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("BOOKING_WINDOW_DAYS", "14")
	t.Setenv("NOTIFY_POLL_INTERVAL", "250ms")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.BookingWindowDays != 14 {
		t.Errorf("BookingWindowDays = %d", cfg.BookingWindowDays)
	}
	if cfg.NotifyPollInterval != 250*time.Millisecond {
		t.Errorf("NotifyPollInterval = %s", cfg.NotifyPollInterval)
	}
	if !cfg.RedisTLS {
		t.Error("RedisTLS should be true")
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadIgnoresMalformedInt(t *testing.T) {
	t.Setenv("BOOKING_WINDOW_DAYS", "not-a-number")
	if cfg := Load(); cfg.BookingWindowDays != 7 {
		t.Errorf("BookingWindowDays = %d, want default 7", cfg.BookingWindowDays)
	}
}
