package core

import (
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

var (
	ErrMissingBackendURL     = errors.New("missing backend URL (SMIS_BACKEND_URL)")
	ErrMissingBackendAnonKey = errors.New("missing backend anon key (SMIS_BACKEND_ANONKEY)")
)

type (
	BackendConfig struct {
		URL            string
		AnonKey        string
		RequestTimeout time.Duration
	}

	DashboardConfig struct {
		DefaultPageSize int
	}

	EmulatorConfig struct {
		Address                   string
		PublicURL                 string
		SecretKey                 string
		JWTExpirationDelta        time.Duration
		PasswordResetTimeoutDelta time.Duration
		DatabaseURL               string
		MaxUploadSize             int64
		StrictPasswords           bool
	}

	Config struct {
		Env      string // DEV (local; default), TEST, QA, PROD
		Debug    bool
		TestMode bool
		AppName  string
		Build    string
		WorkDir  string

		Backend   BackendConfig
		Dashboard DashboardConfig
		Emulator  EmulatorConfig

		RollbarToken     string
		SendgridApiKey   string
		FrontendBaseURL  string
		defaultFromEmail string
	}
)

// NewConfig loads the configuration from the environment, optionally preloaded from `config/.env.<env>`.
func NewConfig() (*Config, error) {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "SMIS Portal")
	v.SetDefault("build", "dev")
	v.SetDefault("backend.url", "")
	v.SetDefault("backend.anonKey", "")
	v.SetDefault("backend.requestTimeout", 30*time.Second)
	v.SetDefault("dashboard.defaultPageSize", 10)
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("defaultFromEmail", "SMIS Portal <noreply@localhost>")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("emulator.address", ":54321")
	v.SetDefault("emulator.publicURL", "http://localhost:54321")
	v.SetDefault("emulator.secretKey", "super-secret-jwt-token-with-at-least-32-characters-long")
	v.SetDefault("emulator.jwtExpirationDelta", time.Hour)
	v.SetDefault("emulator.passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("emulator.databaseURL", "")
	v.SetDefault("emulator.maxUploadSize", 5*1024*1024)
	v.SetDefault("emulator.strictPasswords", true)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, "getting working directory")
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "stat %s", dotEnvPath)
	}

	v.SetEnvPrefix("smis")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	conf := &Config{
		Env:      env,
		Debug:    v.GetBool("debug"),
		TestMode: v.GetBool("testMode"),
		AppName:  v.GetString("appName"),
		Build:    v.GetString("build"),
		WorkDir:  wd,
		Backend: BackendConfig{
			URL:            strings.TrimRight(v.GetString("backend.url"), "/"),
			AnonKey:        v.GetString("backend.anonKey"),
			RequestTimeout: v.GetDuration("backend.requestTimeout"),
		},
		Dashboard: DashboardConfig{
			DefaultPageSize: v.GetInt("dashboard.defaultPageSize"),
		},
		Emulator: EmulatorConfig{
			Address:                   v.GetString("emulator.address"),
			PublicURL:                 strings.TrimRight(v.GetString("emulator.publicURL"), "/"),
			SecretKey:                 v.GetString("emulator.secretKey"),
			JWTExpirationDelta:        v.GetDuration("emulator.jwtExpirationDelta"),
			PasswordResetTimeoutDelta: v.GetDuration("emulator.passwordResetTimeoutDelta"),
			DatabaseURL:               v.GetString("emulator.databaseURL"),
			MaxUploadSize:             v.GetInt64("emulator.maxUploadSize"),
			StrictPasswords:           v.GetBool("emulator.strictPasswords"),
		},
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
	}
	return conf, nil
}

// Validate checks that the dashboard can reach its hosted backend.
func (c BackendConfig) Validate() error {
	if c.URL == "" {
		return ErrMissingBackendURL
	}
	if c.AnonKey == "" {
		return ErrMissingBackendAnonKey
	}
	return nil
}

func (c *Config) DefaultFromEmail() mail.Address {
	if addr, err := mail.ParseAddress(c.defaultFromEmail); err == nil {
		return *addr
	}
	return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
}

// NewTestConfig returns a Config suitable for tests: no env lookups, no external services.
func NewTestConfig() *Config {
	return &Config{
		Env:      "TEST",
		Debug:    true,
		TestMode: true,
		AppName:  "SMIS Portal",
		Build:    "test",
		Backend: BackendConfig{
			URL:            "http://localhost:54321",
			AnonKey:        "test-anon-key",
			RequestTimeout: 5 * time.Second,
		},
		Dashboard: DashboardConfig{DefaultPageSize: 10},
		Emulator: EmulatorConfig{
			PublicURL:                 "http://localhost:54321",
			SecretKey:                 "test-secret-key-with-at-least-32-characters",
			JWTExpirationDelta:        time.Hour,
			PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
			MaxUploadSize:             5 * 1024 * 1024,
			StrictPasswords:           true,
		},
		FrontendBaseURL:  "http://localhost:3000",
		defaultFromEmail: "SMIS Portal <noreply@localhost>",
	}
}
