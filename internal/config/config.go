// Package config loads the process-lifetime configuration from the
// environment. There is no flag parsing and no global state: main reads the
// environment once and threads the resulting Config through constructors.
package config

import (
	"fmt"
	"os"
)

// Config is immutable for the lifetime of the process.
type Config struct {
	EmailDomain string
	WebURL      string
	DBFile      string
	SMTPAddr    string
	HTTPAddr    string
}

// FromEnv reads EMAIL_DOMAIN, WEB_URL, DB_FILE, SMTP_ADDR and HTTP_ADDR.
// EMAIL_DOMAIN and WEB_URL are required; the rest fall back to defaults.
func FromEnv() (Config, error) {
	cfg := Config{
		EmailDomain: os.Getenv("EMAIL_DOMAIN"),
		WebURL:      os.Getenv("WEB_URL"),
		DBFile:      getenvDefault("DB_FILE", "ktnl.sqlite3"),
		SMTPAddr:    getenvDefault("SMTP_ADDR", "0.0.0.0:2525"),
		HTTPAddr:    getenvDefault("HTTP_ADDR", "127.0.0.1:8080"),
	}

	if cfg.EmailDomain == "" {
		return Config{}, fmt.Errorf("config: EMAIL_DOMAIN is required")
	}
	if cfg.WebURL == "" {
		return Config{}, fmt.Errorf("config: WEB_URL is required")
	}

	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
