package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNormalizeSubject(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", defaultVAPIDSubject},
		{"ops@example.com", "mailto:ops@example.com"},
		{"mailto:ops@example.com", "mailto:ops@example.com"},
		{"https://example.com/contact", "https://example.com/contact"},
		{"  ops@example.com ", "mailto:ops@example.com"},
	}
	for _, tt := range tests {
		if got := NormalizeSubject(tt.in); got != tt.want {
			t.Errorf("NormalizeSubject(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadDefaultsWithoutVAPIDKeys(t *testing.T) {
	t.Setenv("KEYS_DIR", t.TempDir())
	t.Setenv("VAPID_PUBLIC_KEY", "")
	t.Setenv("VAPID_PRIVATE_KEY", "")

	cfg, err := Load(discardLogger())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.PushConfigured() {
		t.Fatalf("expected push to be unconfigured without keys")
	}
	if cfg.ReferenceTimezone != "America/New_York" {
		t.Fatalf("unexpected default timezone %q", cfg.ReferenceTimezone)
	}
	if cfg.PushTimeout != 10*time.Second {
		t.Fatalf("unexpected default push timeout %s", cfg.PushTimeout)
	}
	if cfg.DeviceFanout != 4 {
		t.Fatalf("unexpected default fan-out %d", cfg.DeviceFanout)
	}
}

func TestLoadVAPIDKeysFromEnvironment(t *testing.T) {
	t.Setenv("KEYS_DIR", t.TempDir())
	t.Setenv("VAPID_PUBLIC_KEY", "public")
	t.Setenv("VAPID_PRIVATE_KEY", "private")
	t.Setenv("VAPID_SUBJECT", "ops@example.com")

	cfg, err := Load(discardLogger())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !cfg.PushConfigured() {
		t.Fatalf("expected push to be configured")
	}
	if cfg.VAPIDKeys.Subject != "mailto:ops@example.com" {
		t.Fatalf("subject not normalized: %q", cfg.VAPIDKeys.Subject)
	}
}

func TestGeneratedVAPIDKeysArePersisted(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("KEYS_DIR", dir)
	t.Setenv("VAPID_PUBLIC_KEY", "")
	t.Setenv("VAPID_PRIVATE_KEY", "")
	t.Setenv("VAPID_GENERATE", "true")

	first, err := Load(discardLogger())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !first.PushConfigured() {
		t.Fatalf("expected generated keys")
	}
	if _, err := os.Stat(filepath.Join(dir, "vapid-private.key")); err != nil {
		t.Fatalf("private key not saved: %v", err)
	}

	second, err := Load(discardLogger())
	if err != nil {
		t.Fatalf("second load failed: %v", err)
	}
	if second.VAPIDKeys.PublicKey != first.VAPIDKeys.PublicKey {
		t.Fatalf("expected keys to be reused from %s", dir)
	}
}

func TestLoadRejectsInvalidTimezone(t *testing.T) {
	t.Setenv("KEYS_DIR", t.TempDir())
	t.Setenv("REFERENCE_TIMEZONE", "Mars/Olympus_Mons")

	if _, err := Load(discardLogger()); err == nil {
		t.Fatalf("expected invalid timezone to fail")
	}
}

func TestLoadValidatesModes(t *testing.T) {
	t.Setenv("KEYS_DIR", t.TempDir())

	t.Setenv("TLS_MODE", "autocert")
	t.Setenv("DOMAIN", "")
	if _, err := Load(discardLogger()); err == nil {
		t.Fatalf("expected autocert without DOMAIN to fail")
	}

	t.Setenv("TLS_MODE", "off")
	t.Setenv("SCHEDULER_AUTH", "oidc")
	if _, err := Load(discardLogger()); err == nil {
		t.Fatalf("expected unknown scheduler auth to fail")
	}

	t.Setenv("SCHEDULER_AUTH", "jwt")
	cfg, err := Load(discardLogger())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.SchedulerAuth != SchedulerAuthJWT {
		t.Fatalf("unexpected scheduler auth %q", cfg.SchedulerAuth)
	}
}
