package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "sync":
		return runSync(args[1:])
	case "sync-all":
		return runSyncAll(args[1:])
	case "backfill":
		return runBackfill(args[1:])
	case "reset":
		return runReset(args[1:])
	case "merge-duplicates":
		return runMergeDuplicates(args[1:])
	case "dedup-positions":
		return runDedupPositions(args[1:])
	case "due":
		return runDue(args[1:])
	case "sites":
		return runSites(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "rankpulse CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  rankpulse <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health            Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  sync              Run one import cycle for a scope")
	fmt.Fprintln(os.Stderr, "  sync-all          Run import cycles for every enabled site")
	fmt.Fprintln(os.Stderr, "  backfill          Re-import day-granularity positions for a date range")
	fmt.Fprintln(os.Stderr, "  reset             Delete and rebuild a scope from provider data")
	fmt.Fprintln(os.Stderr, "  merge-duplicates  Fold accent/case duplicate keywords into one survivor")
	fmt.Fprintln(os.Stderr, "  dedup-positions   Remove literal duplicate position rows")
	fmt.Fprintln(os.Stderr, "  due               Show which sites have an import or report cycle due")
	fmt.Fprintln(os.Stderr, "  sites             Import or list site definitions")
	fmt.Fprintln(os.Stderr, "  serve             Start the read-only Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"rankpulse <command> -h\" for command-specific flags.")
}
