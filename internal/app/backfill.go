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
	"horse.fit/rankpulse/internal/provider"
	"horse.fit/rankpulse/internal/sync"
)

func runBackfill(args []string) int {
	fs := flag.NewFlagSet("backfill", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", time.Hour, "Command timeout")
	site := fs.String("site", "", "Site slug to backfill (empty = global scope)")
	from := fs.String("from", "", "Range start, YYYY-MM-DD (required)")
	to := fs.String("to", "", "Range end, YYYY-MM-DD (required)")
	overwrite := fs.Bool("overwrite", false, "Overwrite existing position rows")
	dryRun := fs.Bool("dry-run", false, "Report planned changes without writing")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	dateRange, err := provider.ParseDateRange(*from, *to)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid range: %v\n", err)
		return 2
	}

	if envLoader != nil {
		if _, loadErr := envLoader.Load(); loadErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", loadErr)
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
	report, err := svc.Backfill(ctx, scope, sync.BackfillOptions{
		Range:     dateRange,
		Overwrite: *overwrite,
		DryRun:    *dryRun,
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
		logger.Error().Err(err).Str("scope", scope.String()).Msg("backfill failed")
		fmt.Fprintf(os.Stderr, "Backfill failed: %v\n", err)
		return 1
	}

	label := "backfill"
	if report.DryRun {
		label = "backfill (dry run)"
	}
	fmt.Printf("%s %s over %s\n", label, report.Scope, report.Range)
	for _, day := range report.SortedDays() {
		counts := report.Days[day]
		fmt.Printf("  %s: created=%d skipped=%d overwritten=%d\n", day, counts.Created, counts.Skipped, counts.Overwritten)
	}
	fmt.Printf("created=%d no_data=%d errors=%d\n", report.Created, report.NoData, report.Errors)

	if report.Errors > 0 {
		return 1
	}
	return 0
}
