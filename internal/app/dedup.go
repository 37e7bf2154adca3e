package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/rankpulse/internal/cli"
	"horse.fit/rankpulse/internal/config"
	"horse.fit/rankpulse/internal/db"
	"horse.fit/rankpulse/internal/logging"
)

func runMergeDuplicates(args []string) int {
	fs := flag.NewFlagSet("merge-duplicates", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Minute, "Command timeout")
	site := fs.String("site", "", "Site slug (empty = global scope)")
	dryRun := fs.Bool("dry-run", false, "Report planned merges without writing")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, logger, pool, scope, code := dedupSetup(envLoader, *timeout, *site)
	if pool == nil {
		return code
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	merger := newMerger(pool, logger, cfg)
	report, err := merger.MergeDuplicates(ctx, scope, *dryRun)
	if err != nil {
		logger.Error().Err(err).Str("scope", scope.String()).Msg("merge duplicates failed")
		fmt.Fprintf(os.Stderr, "Merge failed: %v\n", err)
		return 1
	}

	label := "merged"
	if report.DryRun {
		label = "would merge"
	}
	fmt.Printf("%s %d duplicate keyword(s) across %d group(s)\n", label, report.MergedKeywords, report.Groups)
	for _, plan := range report.Plans {
		fmt.Printf("  %q keeps keyword %d (%q), folds %v\n", plan.NormalizedText, plan.SurvivorID, plan.SurvivorText, plan.DuplicateIDs)
	}
	fmt.Printf("rows: summed=%d moved=%d deleted=%d errors=%d\n",
		report.SummedRows, report.MovedRows, report.DeletedPositions, report.Errors)

	if report.Errors > 0 {
		return 1
	}
	return 0
}

func runDedupPositions(args []string) int {
	fs := flag.NewFlagSet("dedup-positions", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Minute, "Command timeout")
	site := fs.String("site", "", "Site slug (empty = global scope)")
	dryRun := fs.Bool("dry-run", false, "Report planned deletions without writing")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, logger, pool, scope, code := dedupSetup(envLoader, *timeout, *site)
	if pool == nil {
		return code
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	merger := newMerger(pool, logger, cfg)
	report, err := merger.DedupPositions(ctx, scope, *dryRun)
	if err != nil {
		logger.Error().Err(err).Str("scope", scope.String()).Msg("dedup positions failed")
		fmt.Fprintf(os.Stderr, "Dedup failed: %v\n", err)
		return 1
	}

	label := "deleted"
	if report.DryRun {
		label = "would delete"
	}
	fmt.Printf("%s %d duplicate row(s) across %d group(s), errors=%d\n",
		label, report.DeletedRows, report.Groups, report.Errors)

	if report.Errors > 0 {
		return 1
	}
	return 0
}

// dedupSetup shares the env/config/pool boilerplate of the two dedup
// commands. A nil pool means setup failed and the exit code is final.
func dedupSetup(envLoader *cli.EnvLoader, timeout time.Duration, site string) (*config.Config, zerolog.Logger, *db.Pool, db.Scope, int) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, zerolog.Nop(), nil, db.Scope{}, 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return nil, zerolog.Nop(), nil, db.Scope{}, 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return nil, zerolog.Nop(), nil, db.Scope{}, 1
	}

	scope, err := resolveScope(ctx, pool, site)
	if err != nil {
		_ = pool.Close()
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return nil, zerolog.Nop(), nil, db.Scope{}, 2
	}

	return cfg, logger, pool, scope, 0
}
