package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/rankpulse/internal/cli"
	"horse.fit/rankpulse/internal/config"
	"horse.fit/rankpulse/internal/db"
	"horse.fit/rankpulse/internal/logging"
	siteschema "horse.fit/rankpulse/schema"
)

func runSites(args []string) int {
	if len(args) == 0 {
		printSitesUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printSitesUsage()
		return 0
	case "list":
		return runSitesList(args[1:])
	case "import":
		return runSitesImport(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown sites subcommand: %s\n\n", args[0])
		printSitesUsage()
		return 2
	}
}

func printSitesUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  rankpulse sites list")
	fmt.Fprintln(os.Stderr, "  rankpulse sites import --file sites.json")
}

func runSitesList(args []string) int {
	fs := flag.NewFlagSet("sites list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Second, "Command timeout")

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

	sites, err := pool.ListSites(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("list sites failed")
		fmt.Fprintf(os.Stderr, "Failed to list sites: %v\n", err)
		return 1
	}

	if len(sites) == 0 {
		fmt.Println("no sites")
		return 0
	}
	for _, site := range sites {
		state := "enabled"
		if !site.Enabled {
			state = "disabled"
		}
		fmt.Printf("%-24s %-8s %s\n", site.Slug, state, site.PropertyURL)
	}
	return 0
}

func runSitesImport(args []string) int {
	fs := flag.NewFlagSet("sites import", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	file := fs.String("file", "", "Path to the site definitions JSON file (required)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if strings.TrimSpace(*file) == "" {
		fmt.Fprintln(os.Stderr, "--file is required")
		return 2
	}

	payload, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", *file, err)
		return 2
	}

	document, err := siteschema.ValidateSiteImport(payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid site document: %v\n", err)
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

	for _, site := range document.Sites {
		params := db.UpsertSiteParams{
			Slug:        site.Slug,
			Name:        site.Name,
			PropertyURL: site.PropertyURL,
			Enabled:     site.IsEnabled(),
		}
		if site.ImportSchedule != nil {
			weekday := site.ImportSchedule.Weekday
			slot := site.ImportSchedule.Slot
			params.ImportWeekday = &weekday
			params.ImportSlot = &slot
		}
		if site.ReportSchedule != nil {
			weekday := site.ReportSchedule.Weekday
			weekOfMonth := site.ReportSchedule.WeekOfMonth
			slot := site.ReportSchedule.Slot
			params.ReportWeekday = &weekday
			params.ReportWeekOfMonth = &weekOfMonth
			params.ReportSlot = &slot
		}

		siteID, upsertErr := pool.UpsertSite(ctx, params)
		if upsertErr != nil {
			logger.Error().Err(upsertErr).Str("slug", site.Slug).Msg("site upsert failed")
			fmt.Fprintf(os.Stderr, "Failed to upsert %s: %v\n", site.Slug, upsertErr)
			return 1
		}
		logger.Info().Int64("site_id", siteID).Str("slug", site.Slug).Msg("site upserted")
		fmt.Printf("upserted %s (site_id=%d)\n", site.Slug, siteID)
	}

	fmt.Printf("imported %d site(s)\n", len(document.Sites))
	return 0
}
