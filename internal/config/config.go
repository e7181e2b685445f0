package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Defaults for the client runtime. The backend contract fixes the request
// timeout at 30s and the job poll interval at 5s; both stay overridable for
// local development.
const (
	DefaultBaseURL      = "http://localhost:8000/api/v1"
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 5 * time.Second
	DefaultLanguage     = "en"
)

// Config holds runtime configuration values. Each field corresponds to an
// environment variable with the MAJORPATH_ prefix.
type Config struct {
	BaseURL       string        // MAJORPATH_API_URL
	Timeout       time.Duration // MAJORPATH_TIMEOUT_SECONDS
	PollInterval  time.Duration // MAJORPATH_POLL_INTERVAL_SECONDS
	CredentialDir string        // MAJORPATH_CRED_DIR
	Language      string        // MAJORPATH_LANG
	MetricsAddr   string        // MAJORPATH_METRICS_ADDR, empty disables the listener
}

// Load reads configuration from the environment, falling back to defaults.
// Callers that want .env support load it first (godotenv in cmd/).
func Load() Config {
	return Config{
		BaseURL:       getenv("MAJORPATH_API_URL", DefaultBaseURL),
		Timeout:       seconds("MAJORPATH_TIMEOUT_SECONDS", DefaultTimeout),
		PollInterval:  seconds("MAJORPATH_POLL_INTERVAL_SECONDS", DefaultPollInterval),
		CredentialDir: getenv("MAJORPATH_CRED_DIR", defaultCredentialDir()),
		Language:      getenv("MAJORPATH_LANG", DefaultLanguage),
		MetricsAddr:   os.Getenv("MAJORPATH_METRICS_ADDR"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func seconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

func defaultCredentialDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".majorpath"
	}
	return filepath.Join(home, ".majorpath")
}
