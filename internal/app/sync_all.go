package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/rankpulse/internal/cli"
	"horse.fit/rankpulse/internal/config"
	"horse.fit/rankpulse/internal/db"
	"horse.fit/rankpulse/internal/logging"
	"horse.fit/rankpulse/internal/sync"
)

func runSyncAll(args []string) int {
	fs := flag.NewFlagSet("sync-all", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Hour, "Command timeout for the whole batch")
	skipDiscovery := fs.Bool("skip-discovery", false, "Skip new-keyword discovery")
	skipCleanup := fs.Bool("skip-cleanup", false, "Skip stale-keyword deactivation")
	overwrite := fs.Bool("overwrite", false, "Overwrite existing position rows")
	lookback := fs.Int("lookback", 0, "Lookback window in days (0 = configured default)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	sites, err := pool.ListEnabledSites(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("list enabled sites failed")
		fmt.Fprintf(os.Stderr, "Failed to list sites: %v\n", err)
		return 1
	}
	if len(sites) == 0 {
		fmt.Println("no enabled sites")
		return 0
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build provider registry: %v\n", err)
		return 1
	}

	svc := newSyncService(pool, registry, logger, cfg)
	runOpts := sync.RunOptions{
		SkipDiscovery: *skipDiscovery,
		SkipCleanup:   *skipCleanup,
		Overwrite:     *overwrite,
		LookbackDays:  *lookback,
	}

	// One bad site must not block the rest of the batch.
	failed := 0
	for _, site := range sites {
		summary, runErr := svc.Run(ctx, db.SiteScope(site.SiteID), runOpts)
		if runErr != nil {
			failed++
			logger.Error().Err(runErr).Str("slug", site.Slug).Msg("site sync failed")
			fmt.Fprintf(os.Stderr, "%s: %v\n", site.Slug, runErr)
			continue
		}
		fmt.Printf("%s: %s\n", site.Slug, summary.Message())
		if summary.Failed() {
			failed++
		}
	}

	fmt.Printf("synced %d site(s), %d failed\n", len(sites), failed)
	if failed > 0 {
		return 1
	}
	return 0
}
