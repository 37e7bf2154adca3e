package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/rankpulse/internal/config"
	"horse.fit/rankpulse/internal/db"
	"horse.fit/rankpulse/internal/dedup"
	"horse.fit/rankpulse/internal/provider"
	"horse.fit/rankpulse/internal/sync"
)

// buildRegistry wires every adapter that has credentials configured.
// Registration is unconditional; availability is checked at run time so
// a sync can report which providers were skipped.
func buildRegistry(cfg *config.Config) (*provider.Registry, error) {
	timeout := time.Duration(cfg.ProviderTimeoutSeconds) * time.Second

	registry := provider.NewRegistry()
	google := provider.NewGoogleAdapter(cfg.GoogleSiteURL, provider.StaticGoogleToken(cfg.GoogleAccessToken), timeout)
	if err := registry.Register(google); err != nil {
		return nil, fmt.Errorf("register google adapter: %w", err)
	}
	bing := provider.NewBingAdapter(cfg.BingSiteURL, cfg.BingAPIKey, timeout)
	if err := registry.Register(bing); err != nil {
		return nil, fmt.Errorf("register bing adapter: %w", err)
	}
	return registry, nil
}

func newSyncService(pool *db.Pool, registry *provider.Registry, logger zerolog.Logger, cfg *config.Config) *sync.Service {
	return sync.NewService(pool, registry, logger, sync.Options{
		MinImpressions: cfg.DiscoveryMinImpressions,
		GraceDays:      cfg.DeactivationGraceDays,
		LookbackDays:   cfg.DefaultLookbackDays,
		HighTerms:      cfg.RelevanceHighTermsList(),
		LowTerms:       cfg.RelevanceLowTermsList(),
	})
}

func newMerger(pool *db.Pool, logger zerolog.Logger, cfg *config.Config) *dedup.Merger {
	return dedup.NewMerger(pool, logger, dedup.Policy{PreferAccented: cfg.PreferAccentedSurvivor})
}

// resolveScope maps an optional site slug to a storage scope. An empty
// slug selects the global scope.
func resolveScope(ctx context.Context, pool *db.Pool, slug string) (db.Scope, error) {
	trimmed := strings.TrimSpace(slug)
	if trimmed == "" {
		return db.GlobalScope(), nil
	}

	site, err := pool.GetSiteBySlug(ctx, trimmed)
	if err != nil {
		if db.IsNoRows(err) {
			return db.Scope{}, fmt.Errorf("site %q not found", trimmed)
		}
		return db.Scope{}, fmt.Errorf("look up site %q: %w", trimmed, err)
	}
	return db.SiteScope(site.SiteID), nil
}
