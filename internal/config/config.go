// Package config reads service settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Storage backends.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// Config holds every setting the service reads at startup.
type Config struct {
	Addr   string
	WebDir string

	Store       string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string

	NutritionixAppID   string
	NutritionixAPIKey  string
	NutritionixBaseURL string

	JWTSecret        string
	JWTTTL           time.Duration
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURL  string
	DisableAuth      bool

	// TrustedProxies may set Remote-User and client-address headers.
	TrustedProxies []netip.Prefix

	LogLevel              zerolog.Level
	SuggestionQuietPeriod time.Duration
}

// OIDCEnabled reports whether single sign-on is configured.
func (c *Config) OIDCEnabled() bool {
	return c.OIDCIssuer != ""
}

// Load reads path (usually ".env") into the environment, without overriding
// variables that are already set, and then parses the environment. A missing
// file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return FromEnv()
}

// FromEnv parses the process environment.
func FromEnv() (*Config, error) {
	c := &Config{
		Addr:               env("ADDR", ":8080"),
		WebDir:             env("WEB_DIR", "web"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         env("SQLITE_PATH", "fitbite.db"),
		RedisURL:           os.Getenv("REDIS_URL"),
		OpenAIKey:          os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        os.Getenv("OPENAI_MODEL"),
		OpenAIBaseURL:      os.Getenv("OPENAI_BASE_URL"),
		NutritionixAppID:   os.Getenv("NUTRITIONIX_APP_ID"),
		NutritionixAPIKey:  os.Getenv("NUTRITIONIX_API_KEY"),
		NutritionixBaseURL: os.Getenv("NUTRITIONIX_BASE_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		OIDCIssuer:         os.Getenv("OIDC_ISSUER"),
		OIDCClientID:       os.Getenv("OIDC_CLIENT_ID"),
		OIDCClientSecret:   os.Getenv("OIDC_CLIENT_SECRET"),
		OIDCRedirectURL:    os.Getenv("OIDC_REDIRECT_URL"),
	}

	c.Store = os.Getenv("STORE")
	if c.Store == "" {
		c.Store = StoreSQLite
		if c.DatabaseURL != "" {
			c.Store = StorePostgres
		}
	}
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres store")
		}
	case StoreSQLite, StoreMemory:
	default:
		return nil, fmt.Errorf("STORE must be %s, %s or %s, got %q", StorePostgres, StoreSQLite, StoreMemory, c.Store)
	}

	if c.OIDCIssuer != "" && (c.OIDCClientID == "" || c.OIDCRedirectURL == "") {
		return nil, errors.New("OIDC_CLIENT_ID and OIDC_REDIRECT_URL are required when OIDC_ISSUER is set")
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 16 {
		return nil, errors.New("JWT_SECRET must be at least 16 characters")
	}

	var err error
	if c.LogLevel, err = zerolog.ParseLevel(env("LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.JWTTTL, err = duration("JWT_TTL", 72*time.Hour); err != nil {
		return nil, err
	}
	if c.SuggestionQuietPeriod, err = duration("SUGGESTION_QUIET_PERIOD", 2*time.Second); err != nil {
		return nil, err
	}
	if c.TrustedProxies, err = prefixes("TRUSTED_PROXIES"); err != nil {
		return nil, err
	}
	if v := os.Getenv("DISABLE_AUTH"); v != "" {
		if c.DisableAuth, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("DISABLE_AUTH: %w", err)
		}
	}
	return c, nil
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// prefixes parses a comma-separated list of CIDRs or bare addresses.
func prefixes(key string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, field := range strings.Split(os.Getenv(key), ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if strings.Contains(field, "/") {
			p, err := netip.ParsePrefix(field)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(field)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func duration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
