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

func runSync(args []string) int {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 15*time.Minute, "Command timeout")
	site := fs.String("site", "", "Site slug to sync (empty = global scope)")
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

	if *lookback < 0 {
		fmt.Fprintln(os.Stderr, "--lookback must be >= 0")
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

	scope, err := resolveScope(ctx, pool, *site)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build provider registry: %v\n", err)
		return 1
	}

	svc := newSyncService(pool, registry, logger, cfg)
	summary, err := svc.Run(ctx, scope, sync.RunOptions{
		SkipDiscovery: *skipDiscovery,
		SkipCleanup:   *skipCleanup,
		Overwrite:     *overwrite,
		LookbackDays:  *lookback,
	})
	if err != nil {
		if errors.Is(err, sync.ErrScopeBusy) {
			fmt.Fprintf(os.Stderr, "Scope %s is busy: another run holds the lock\n", scope)
			return 1
		}
		if errors.Is(err, sync.ErrNoProviders) {
			fmt.Fprintln(os.Stderr, "No provider adapters are available; check credentials")
			return 1
		}
		logger.Error().Err(err).Str("scope", scope.String()).Msg("sync failed")
		fmt.Fprintf(os.Stderr, "Sync failed: %v\n", err)
		return 1
	}

	fmt.Println(summary.Message())
	if summary.Failed() {
		return 1
	}
	return 0
}
