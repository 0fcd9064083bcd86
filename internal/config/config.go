package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment prefix and the per-device serial alias prefix.
const (
	envPrefix       = "KUMO"
	serialenvPrefix = "KUMO_SERIAL_"
)

// Defaults for a stock deployment.
const (
	defaultBaseURL     = "https://app-prod.kumocloud.com"
	defaultSocketURL   = "https://socket-prod.kumocloud.com"
	defaultHTTPTimeout = 30 * time.Second
	defaultPushTimeout = 5 * time.Second
	defaultLogLevel    = "info"
)

// Config carries everything a session needs: identity, endpoints,
// local file locations and timeouts.
type Config struct {
	Username string
	Password string
	SiteID   string

	BaseURL   string
	SocketURL string

	TokenFile string
	CacheFile string

	HTTPTimeout time.Duration
	PushTimeout time.Duration

	LogLevel string

	// Serials maps lowercase friendly names to device serials,
	// populated from KUMO_SERIAL_<NAME> environment variables.
	Serials map[string]string
}

// Load builds the configuration from defaults, an optional YAML config
// file and KUMO_* environment variables (later sources win). path may
// be empty, in which case only defaults and the environment apply.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("base_url", defaultBaseURL)
	v.SetDefault("socket_url", defaultSocketURL)
	v.SetDefault("token_file", defaultTokenFile())
	v.SetDefault("cache_file", defaultCacheFile())
	v.SetDefault("http_timeout", defaultHTTPTimeout)
	v.SetDefault("push_timeout", defaultPushTimeout)
	v.SetDefault("log_level", defaultLogLevel)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	cfg := Config{
		Username:    v.GetString("username"),
		Password:    v.GetString("password"),
		SiteID:      v.GetString("site_id"),
		BaseURL:     v.GetString("base_url"),
		SocketURL:   v.GetString("socket_url"),
		TokenFile:   v.GetString("token_file"),
		CacheFile:   v.GetString("cache_file"),
		HTTPTimeout: v.GetDuration("http_timeout"),
		PushTimeout: v.GetDuration("push_timeout"),
		LogLevel:    v.GetString("log_level"),
		Serials:     serialsFromEnv(os.Environ()),
	}
	return cfg, nil
}

// serialsFromEnv extracts KUMO_SERIAL_<NAME>=<serial> pairs. Names are
// lowercased so CLI lookups are case-insensitive.
func serialsFromEnv(environ []string) map[string]string {
	serials := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, serialenvPrefix) {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, serialenvPrefix))
		if name != "" && value != "" {
			serials[name] = value
		}
	}
	return serials
}

// defaultTokenFile returns ~/.kumo_tokens.json, falling back to the
// working directory when the home dir cannot be determined.
func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kumo_tokens.json"
	}
	return filepath.Join(home, ".kumo_tokens.json")
}

// defaultCacheFile returns ~/.kumo_cache.db for the snapshot cache.
func defaultCacheFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kumo_cache.db"
	}
	return filepath.Join(home, ".kumo_cache.db")
}
