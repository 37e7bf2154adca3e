package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"RP_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"RP_DB_MAX_CONNS" default:"8"`

	// Discovery and cleanup tuning for the import orchestrator.
	DiscoveryMinImpressions int64  `envconfig:"RP_DISCOVERY_MIN_IMPRESSIONS" default:"10"`
	DeactivationGraceDays   int    `envconfig:"RP_DEACTIVATION_GRACE_DAYS" default:"30"`
	DefaultLookbackDays     int    `envconfig:"RP_DEFAULT_LOOKBACK_DAYS" default:"28"`
	RelevanceHighTerms      string `envconfig:"RP_RELEVANCE_HIGH_TERMS" default:""`
	RelevanceLowTerms       string `envconfig:"RP_RELEVANCE_LOW_TERMS" default:""`

	// PreferAccentedSurvivor controls which variant the duplicate merger keeps.
	PreferAccentedSurvivor bool `envconfig:"RP_PREFER_ACCENTED_SURVIVOR" default:"true"`

	// Provider credentials. Empty values leave the adapter unavailable.
	GoogleSiteURL     string `envconfig:"RP_GOOGLE_SITE_URL" default:""`
	GoogleAccessToken string `envconfig:"RP_GOOGLE_ACCESS_TOKEN" default:""`
	BingSiteURL       string `envconfig:"RP_BING_SITE_URL" default:""`
	BingAPIKey        string `envconfig:"RP_BING_API_KEY" default:""`

	ProviderTimeoutSeconds int `envconfig:"RP_PROVIDER_TIMEOUT_SECONDS" default:"30"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("RP_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("RP_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("RP_DB_MIN_CONNS (%d) cannot exceed RP_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.DiscoveryMinImpressions < 0 {
		return fmt.Errorf("RP_DISCOVERY_MIN_IMPRESSIONS must be >= 0")
	}
	if c.DeactivationGraceDays < 1 {
		return fmt.Errorf("RP_DEACTIVATION_GRACE_DAYS must be >= 1")
	}
	if c.DefaultLookbackDays < 1 {
		return fmt.Errorf("RP_DEFAULT_LOOKBACK_DAYS must be >= 1")
	}
	if c.ProviderTimeoutSeconds < 1 {
		return fmt.Errorf("RP_PROVIDER_TIMEOUT_SECONDS must be >= 1")
	}
	return nil
}

// RelevanceHighTermsList splits the comma-separated high-relevance term list.
func (c *Config) RelevanceHighTermsList() []string {
	return splitTermList(c.RelevanceHighTerms)
}

// RelevanceLowTermsList splits the comma-separated low-relevance term list.
func (c *Config) RelevanceLowTermsList() []string {
	return splitTermList(c.RelevanceLowTerms)
}

func splitTermList(raw string) []string {
	parts := strings.Split(raw, ",")
	terms := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		term := strings.ToLower(strings.TrimSpace(part))
		if term == "" {
			continue
		}
		if _, exists := seen[term]; exists {
			continue
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}
	return terms
}
