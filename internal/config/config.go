package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

var ErrPushNotConfigured = errors.New("push notifications are not configured")

const (
	TLSModeOff      = "off"
	TLSModeAutocert = "autocert"

	SchedulerAuthSecret = "secret"
	SchedulerAuthJWT    = "jwt"

	defaultVAPIDSubject = "mailto:notifications@wellpush.app"
)

type Config struct {
	HTTPPort  string `env:"HTTP_PORT" env-default:"8080"`
	HTTPSPort string `env:"HTTPS_PORT" env-default:"443"`
	Domain    string `env:"DOMAIN"`
	TLSMode   string `env:"TLS_MODE" env-default:"off"`
	CertsDir  string `env:"CERTS_DIR"`

	CORSOrigin string `env:"CORS_ORIGIN" env-default:"*"`

	DatabaseDriver string `env:"DATABASE_DRIVER" env-default:"sqlite"`
	DatabaseDSN    string `env:"DATABASE_DSN" env-default:"wellpush.db"`

	JWTSecret     string `env:"JWT_SECRET"`
	CronSecret    string `env:"CRON_SECRET"`
	SchedulerAuth string `env:"SCHEDULER_AUTH" env-default:"secret"`

	ReferenceTimezone string        `env:"REFERENCE_TIMEZONE" env-default:"America/New_York"`
	PushTimeout       time.Duration `env:"PUSH_TIMEOUT" env-default:"10s"`
	PushTTL           int           `env:"PUSH_TTL" env-default:"86400"`
	DeviceFanout      int           `env:"DEVICE_FANOUT" env-default:"4"`
	BreakerFailures   uint32        `env:"BREAKER_FAILURES" env-default:"5"`
	BreakerCooldown   time.Duration `env:"BREAKER_COOLDOWN" env-default:"30s"`

	RedisURL   string        `env:"REDIS_URL"`
	RunLockTTL time.Duration `env:"RUN_LOCK_TTL" env-default:"10m"`

	LogLevel string `env:"LOG_LEVEL" env-default:"info"`

	KeysDir       string `env:"KEYS_DIR"`
	VAPIDGenerate bool   `env:"VAPID_GENERATE" env-default:"false"`
	VAPIDKeys     VAPIDKeys
}

type VAPIDKeys struct {
	PublicKey  string `env:"VAPID_PUBLIC_KEY"`
	PrivateKey string `env:"VAPID_PRIVATE_KEY"`
	Subject    string `env:"VAPID_SUBJECT"`
}

// Load reads configuration once at startup: .env (if any), then the process
// environment, then VAPID keys from the keys directory.
func Load(logger *slog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "error", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if _, err := cfg.ReferenceLocation(); err != nil {
		return nil, err
	}
	switch cfg.TLSMode {
	case TLSModeOff:
	case TLSModeAutocert:
		if cfg.Domain == "" {
			return nil, errors.New("DOMAIN is required when TLS_MODE=autocert")
		}
	default:
		return nil, fmt.Errorf("unknown TLS_MODE %q", cfg.TLSMode)
	}
	if cfg.SchedulerAuth != SchedulerAuthSecret && cfg.SchedulerAuth != SchedulerAuthJWT {
		return nil, fmt.Errorf("unknown SCHEDULER_AUTH %q", cfg.SchedulerAuth)
	}
	if cfg.DeviceFanout < 1 {
		cfg.DeviceFanout = 1
	}
	if cfg.KeysDir == "" {
		cfg.KeysDir = executableSubdir("keys")
	}
	if cfg.CertsDir == "" {
		cfg.CertsDir = executableSubdir("certs")
	}

	if err := loadVAPIDKeys(&cfg, logger); err != nil {
		return nil, err
	}
	if !cfg.PushConfigured() {
		logger.Warn("VAPID keys are not configured, push endpoints will answer 503")
	}

	return &cfg, nil
}

// PushConfigured reports whether a VAPID key pair is available.
func (c *Config) PushConfigured() bool {
	return c.VAPIDKeys.PublicKey != "" && c.VAPIDKeys.PrivateKey != ""
}

func (c *Config) ReferenceLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ReferenceTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid REFERENCE_TIMEZONE %q: %w", c.ReferenceTimezone, err)
	}
	return loc, nil
}

// NormalizeSubject turns a bare contact address into the mailto: URI VAPID
// expects in the sub claim.
func NormalizeSubject(subject string) string {
	subject = strings.TrimSpace(subject)
	switch {
	case subject == "":
		return defaultVAPIDSubject
	case strings.HasPrefix(subject, "mailto:"), strings.HasPrefix(subject, "https:"):
		return subject
	default:
		return "mailto:" + subject
	}
}

func loadVAPIDKeys(cfg *Config, logger *slog.Logger) error {
	cfg.VAPIDKeys.Subject = NormalizeSubject(cfg.VAPIDKeys.Subject)

	// Environment has the highest priority.
	if cfg.PushConfigured() {
		return nil
	}

	publicKeyFile := filepath.Join(cfg.KeysDir, "vapid-public.key")
	privateKeyFile := filepath.Join(cfg.KeysDir, "vapid-private.key")

	publicKeyData, pubErr := os.ReadFile(publicKeyFile)
	privateKeyData, privErr := os.ReadFile(privateKeyFile)
	if pubErr == nil && privErr == nil {
		privateKey := strings.TrimSpace(string(privateKeyData))
		// webpush-go wants the raw 32 byte scalar, not PKCS#8.
		decoded, err := base64.RawURLEncoding.DecodeString(privateKey)
		if err != nil || len(decoded) != 32 {
			return fmt.Errorf("VAPID private key in %s is not a raw base64url P-256 scalar", privateKeyFile)
		}
		cfg.VAPIDKeys.PublicKey = strings.TrimSpace(string(publicKeyData))
		cfg.VAPIDKeys.PrivateKey = privateKey
		logger.Info("VAPID keys loaded", "dir", cfg.KeysDir)
		return nil
	}

	if !cfg.VAPIDGenerate {
		return nil
	}

	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return fmt.Errorf("failed to generate VAPID keys: %w", err)
	}
	cfg.VAPIDKeys.PublicKey = publicKey
	cfg.VAPIDKeys.PrivateKey = privateKey

	if err := saveVAPIDKeys(cfg.KeysDir, publicKey, privateKey); err != nil {
		logger.Warn("failed to save VAPID keys, they will be regenerated on restart", "error", err)
	} else {
		logger.Info("VAPID keys generated", "dir", cfg.KeysDir)
	}
	return nil
}

func saveVAPIDKeys(keysDir, publicKey, privateKey string) error {
	if err := os.MkdirAll(keysDir, 0700); err != nil {
		return fmt.Errorf("failed to create keys directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(keysDir, "vapid-public.key"), []byte(publicKey), 0600); err != nil {
		return fmt.Errorf("failed to save public key: %w", err)
	}
	if err := os.WriteFile(filepath.Join(keysDir, "vapid-private.key"), []byte(privateKey), 0600); err != nil {
		return fmt.Errorf("failed to save private key: %w", err)
	}
	return nil
}

// executableSubdir resolves name next to the running binary.
func executableSubdir(name string) string {
	execPath, err := os.Executable()
	if err != nil {
		return name
	}
	return filepath.Join(filepath.Dir(execPath), name)
}
