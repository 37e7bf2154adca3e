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
	"horse.fit/rankpulse/internal/schedule"
)

func runDue(args []string) int {
	fs := flag.NewFlagSet("due", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Second, "Command timeout")
	at := fs.String("at", "", "Reference time, RFC3339 (default: now)")
	all := fs.Bool("all", false, "Show every enabled site, not only due ones")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	reference := time.Now().UTC()
	if trimmed := *at; trimmed != "" {
		parsed, err := time.Parse(time.RFC3339, trimmed)
		if err != nil {
			fmt.Fprintf(os.Stderr, "--at must be RFC3339: %v\n", err)
			return 2
		}
		reference = parsed
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

	fmt.Printf("schedule check at %s\n", reference.Format(time.RFC3339))
	shown := 0
	for _, site := range sites {
		status := schedule.Evaluate(site, reference)
		if !*all && !status.ImportDue && !status.ReportDue {
			continue
		}
		shown++
		fmt.Printf("  %-24s import_due=%-5v report_due=%v\n", status.Slug, status.ImportDue, status.ReportDue)
	}
	if shown == 0 {
		fmt.Println("  nothing due")
	}
	return 0
}
