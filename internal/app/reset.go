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

func runReset(args []string) int {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 4*time.Hour, "Command timeout")
	site := fs.String("site", "", "Site slug to reset (empty = global scope)")
	confirm := fs.Bool("confirm", false, "Required: acknowledge that all scope data is deleted first")
	lookback := fs.Int("lookback", 0, "Re-import window in days (0 = default)")

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
	report, err := svc.FullReset(ctx, scope, sync.ResetOptions{
		Confirm:      *confirm,
		LookbackDays: *lookback,
	})
	if err != nil {
		if errors.Is(err, sync.ErrConfirmationRequired) {
			fmt.Fprintln(os.Stderr, "A full reset deletes every keyword and position row in the scope.")
			fmt.Fprintln(os.Stderr, "Re-run with --confirm to proceed.")
			return 2
		}
		if errors.Is(err, sync.ErrScopeBusy) {
			fmt.Fprintf(os.Stderr, "Scope %s is busy: another run holds the lock\n", scope)
			return 1
		}
		if errors.Is(err, sync.ErrNoProviders) {
			fmt.Fprintln(os.Stderr, "No provider adapters are available; check credentials")
			return 1
		}
		logger.Error().Err(err).Str("scope", scope.String()).Msg("reset failed")
		fmt.Fprintf(os.Stderr, "Reset failed: %v\n", err)
		return 1
	}

	fmt.Printf("reset %s over %s\n", report.Scope, report.Range)
	fmt.Printf("deleted: keywords=%d positions=%d totals=%d\n", report.DeletedKeywords, report.DeletedPositions, report.DeletedTotals)
	fmt.Printf("rebuilt: keywords=%d positions=%d total_days=%d errors=%d\n",
		report.CreatedKeywords, report.Positions.Created, report.TotalDays, report.Errors)

	if len(report.Verification) > 0 {
		fmt.Println("verification (latest daily totals):")
		for _, total := range report.Verification {
			fmt.Printf("  %s %-7s clicks=%d impressions=%d position=%.1f\n",
				total.Day.Format(provider.DayFormat), total.Source, total.Clicks, total.Impressions, total.Position)
		}
	}

	if report.Errors > 0 {
		return 1
	}
	return 0
}
