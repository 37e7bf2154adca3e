package cli

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// EnvLoader loads .env files with a predictable override order.
type EnvLoader struct {
	value       *string
	defaultPath string
}

// AddEnvFlag registers an --env flag and returns an EnvLoader.
func AddEnvFlag(fs *flag.FlagSet, defaultPath, description string) *EnvLoader {
	if fs == nil {
		fs = flag.CommandLine
	}
	if defaultPath == "" {
		defaultPath = ".env"
	}
	if description == "" {
		description = "Path to the .env file"
	}

	value := fs.String("env", defaultPath, description)
	return &EnvLoader{
		value:       value,
		defaultPath: defaultPath,
	}
}

// Load resolves and loads environment variables using the configured flag value.
func (l *EnvLoader) Load() (string, error) {
	if l == nil {
		return "", fmt.Errorf("env loader is nil")
	}

	log.SetOutput(os.Stderr)

	if custom := strings.TrimSpace(os.Getenv("RANKPULSE_ENV_FILE")); custom != "" {
		if err := godotenv.Overload(custom); err == nil {
			log.Printf("Loaded environment from RANKPULSE_ENV_FILE: %s", custom)
			return custom, nil
		}
		log.Printf("Warning: failed to load RANKPULSE_ENV_FILE=%s", custom)
	}

	requested := strings.TrimSpace(derefString(l.value))
	if requested == "" {
		requested = l.defaultPath
	}

	absPath, err := filepath.Abs(requested)
	if err != nil {
		return "", fmt.Errorf("normalize env path %q: %w", requested, err)
	}

	if _, statErr := os.Stat(absPath); statErr != nil {
		if os.IsNotExist(statErr) {
			return "", fmt.Errorf("env file %q does not exist (environment variables are used as-is)", absPath)
		}
		return "", fmt.Errorf("stat env file %q: %w", absPath, statErr)
	}

	if err := godotenv.Overload(absPath); err != nil {
		return "", fmt.Errorf("load env file %q: %w", absPath, err)
	}
	return absPath, nil
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
